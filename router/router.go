// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielhkuo/poll-rooms/cliparse"
	"github.com/danielhkuo/poll-rooms/handlers"
	"github.com/danielhkuo/poll-rooms/middleware"
	"github.com/danielhkuo/poll-rooms/room"
)

const APIPrefix = "/api/v1"

type Options struct {
	Rooms  *room.Coordinator
	Config cliparse.Config
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Clock drives live connection heartbeats. Nil uses the real clock.
	Clock quartz.Clock
}

func NewRouter(opts Options) http.Handler {
	cfg := opts.Config
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// Initialize handlers
	pollHandler := handlers.NewPollHandler(opts.Rooms)
	votingHandler := handlers.NewVotingHandler(opts.Rooms)
	liveHandler := handlers.NewLiveHandler(opts.Rooms, cfg.ClientOrigins, opts.Clock, cfg.HeartbeatPeriod)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.TrustProxyHeaders(cfg.TrustProxyHeaders))
	r.Use(middleware.CORS(cfg.ClientOrigins))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route(APIPrefix, func(r chi.Router) {
		r.Use(middleware.WithLogging)

		// Polls
		r.Post("/polls", pollHandler.CreatePoll)
		r.Get("/polls/{pollID}", pollHandler.GetPoll)
		r.Get("/polls/{pollID}/results", pollHandler.GetResults)

		// Voting
		r.With(middleware.RateLimitByIP(cfg.VoteRateLimit, cfg.VoteRateWindow)).
			Post("/polls/{pollID}/votes", votingHandler.CastVote)

		// Live updates
		r.Get("/ws/polls/{pollID}", liveHandler.Watch)
	})

	// Root endpoint
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("poll-rooms API v1"))
	})

	return r
}
