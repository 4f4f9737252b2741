// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/coder/websocket"
	"golang.org/x/xerrors"

	"github.com/danielhkuo/poll-rooms/topic"
)

// ErrClosed is returned by Send once the connection is closed.
var ErrClosed = errors.New("live connection closed")

const (
	DefaultHeartbeatPeriod = 30 * time.Second
	DefaultSendTimeout     = 10 * time.Second

	ReasonPeerGone        = "peer disconnected"
	ReasonHeartbeatFailed = "heartbeat failed"
	ReasonContextDone     = "request finished"
)

// State is the lifecycle stage of a Conn.
type State int32

const (
	StateConnected State = iota
	StateReading
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReading:
		return "reading"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Watcher registers a subscriber for a poll. *room.Coordinator implements it.
type Watcher interface {
	Watch(ctx context.Context, pollID string, sub topic.Subscriber) (unsubscribe func(), err error)
}

// Conn is one client's live channel for one poll.
type Conn struct {
	ws     *websocket.Conn
	pollID string

	clock       quartz.Clock
	logger      *slog.Logger
	heartbeat   time.Duration
	sendTimeout time.Duration

	state     atomic.Int32
	closeOnce sync.Once
	done      chan struct{}
	reason    string
}

var _ topic.Subscriber = (*Conn)(nil)

type Option func(*Conn)

func WithClock(clock quartz.Clock) Option {
	return func(c *Conn) {
		c.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		c.logger = logger
	}
}

func WithHeartbeat(period time.Duration) Option {
	return func(c *Conn) {
		if period > 0 {
			c.heartbeat = period
		}
	}
}

func WithSendTimeout(timeout time.Duration) Option {
	return func(c *Conn) {
		if timeout > 0 {
			c.sendTimeout = timeout
		}
	}
}

func New(ws *websocket.Conn, pollID string, opts ...Option) *Conn {
	c := &Conn{
		ws:          ws,
		pollID:      pollID,
		clock:       quartz.NewReal(),
		logger:      slog.Default(),
		heartbeat:   DefaultHeartbeatPeriod,
		sendTimeout: DefaultSendTimeout,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conn) State() State {
	return State(c.state.Load())
}

// Send writes one text frame, bounded by the send timeout.
func (c *Conn) Send(ctx context.Context, msg []byte) error {
	if c.State() == StateClosed {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	if err := c.ws.Write(ctx, websocket.MessageText, msg); err != nil {
		return xerrors.Errorf("write to poll %q subscriber: %w", c.pollID, err)
	}
	return nil
}

// Close marks the connection closed and wakes Serve, which tears the socket
// down. It never blocks.
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		c.state.Store(int32(StateClosed))
		close(c.done)
	})
}

// Serve subscribes to the poll and blocks until the connection ends. Every
// exit path unsubscribes and closes the socket exactly once.
func (c *Conn) Serve(ctx context.Context, w Watcher) error {
	unsubscribe, err := w.Watch(ctx, c.pollID, c)
	if err != nil {
		c.Close(err.Error())
		_ = c.ws.Close(websocket.StatusPolicyViolation, "poll unavailable")
		return xerrors.Errorf("watch poll %q: %w", c.pollID, err)
	}
	c.state.CompareAndSwap(int32(StateConnected), int32(StateReading))
	c.logger.Info("live connection opened", "poll_id", c.pollID)

	// Canceling a read context closes the socket without a close frame, so
	// reads get their own context that is canceled only after Close.
	readCtx, cancelRead := context.WithCancel(context.Background())
	defer cancelRead()
	readDone := make(chan error, 1)
	go func() {
		readDone <- c.readLoop(readCtx)
	}()

	hbCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	hb := c.clock.TickerFunc(hbCtx, c.heartbeat, func() error {
		pingCtx, cancel := context.WithTimeout(hbCtx, c.sendTimeout)
		defer cancel()
		if err := c.ws.Ping(pingCtx); err != nil {
			if hbCtx.Err() == nil {
				c.Close(ReasonHeartbeatFailed)
			}
			return err
		}
		return nil
	}, "live", "heartbeat")

	var readErr error
	readFinished := false
	select {
	case readErr = <-readDone:
		readFinished = true
		c.Close(ReasonPeerGone)
	case <-c.done:
	case <-ctx.Done():
		c.Close(ReasonContextDone)
	}

	unsubscribe()
	cancelHeartbeat()
	_ = hb.Wait()

	switch c.reason {
	case topic.ReasonShutdown, ReasonContextDone:
		_ = c.ws.Close(websocket.StatusGoingAway, c.reason)
	default:
		// Peer is gone or unresponsive; a close handshake would only wait.
		_ = c.ws.CloseNow()
	}
	cancelRead()
	if !readFinished {
		readErr = <-readDone
	}

	c.logger.Info("live connection closed", "poll_id", c.pollID, "reason", c.reason)
	if c.reason == ReasonPeerGone && !isNormalClose(readErr) {
		return xerrors.Errorf("read from poll %q subscriber: %w", c.pollID, readErr)
	}
	return nil
}

// readLoop discards incoming frames; it exists to process control frames
// and to notice when the peer goes away.
func (c *Conn) readLoop(ctx context.Context) error {
	for {
		if _, _, err := c.ws.Read(ctx); err != nil {
			return err
		}
	}
}

func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return true
	}
	return false
}
