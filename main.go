// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/poll-rooms/cliparse"
	"github.com/danielhkuo/poll-rooms/db"
	"github.com/danielhkuo/poll-rooms/ledger"
	"github.com/danielhkuo/poll-rooms/metrics"
	"github.com/danielhkuo/poll-rooms/room"
	"github.com/danielhkuo/poll-rooms/router"
	"github.com/danielhkuo/poll-rooms/topic"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := cliparse.LoadDotEnv(); err != nil {
		return err
	}

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect and create schema (tables)
	conn, err := db.Open(ctx, cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.CreateSchema(ctx, conn); err != nil {
		return err
	}
	slog.Info("Database schema ready", "type", cfg.DatabaseType)

	m := metrics.New(prometheus.DefaultRegisterer)
	votes := ledger.New(conn, ledger.WithLogger(logger), ledger.WithMetrics(m))
	topics := topic.New(topic.WithLogger(logger), topic.WithMetrics(m))
	rooms := room.New(votes, topics, logger)

	server := &http.Server{
		Handler:           router.NewRouter(router.Options{Rooms: rooms, Config: cfg}),
		Addr:              ":" + strconv.Itoa(cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		slog.Info("Listening", "port", cfg.Port)
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("Shutting down")

		// Live connections are hijacked and invisible to Shutdown; closing
		// the registry ends them.
		topics.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = eg.Wait()
	slog.Info("Server closed", "error", err)
	return err
}

func newLogger(format string) *slog.Logger {
	if format == cliparse.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}
