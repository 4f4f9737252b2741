// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package topic

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielhkuo/poll-rooms/metrics"
)

// ErrClosed is returned by Subscribe after the registry has been closed.
var ErrClosed = errors.New("topic registry closed")

const (
	// ReasonSendFailed is passed to Subscriber.Close when a broadcast could
	// not be delivered.
	ReasonSendFailed = "send failed"
	// ReasonShutdown is passed to Subscriber.Close by Registry.Close.
	ReasonShutdown = "server shutting down"

	defaultFanout = 64
)

// Subscriber is a live connection that receives every broadcast for the poll
// it subscribed to. Implementations must be comparable and safe to call from
// multiple goroutines.
type Subscriber interface {
	// Send delivers one message. An error means the subscriber is gone.
	Send(ctx context.Context, msg []byte) error
	// Close tears the connection down. It must be idempotent and must not
	// block on the registry.
	Close(reason string)
}

// Result reports the outcome of one broadcast.
type Result struct {
	Delivered int
	Dropped   int
}

// Registry maps poll ids to the set of live subscribers watching them.
type Registry struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	fanout  int

	mu     sync.RWMutex
	topics map[string]map[Subscriber]struct{}
	count  int
	closed bool
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithFanout bounds how many sends one broadcast runs at once.
func WithFanout(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.fanout = n
		}
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		logger:  slog.Default(),
		metrics: metrics.New(nil),
		fanout:  defaultFanout,
		topics:  make(map[string]map[Subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe adds sub to the poll's topic, creating the topic on first use.
// Subscribing the same handle twice is a no-op.
func (r *Registry) Subscribe(pollID string, sub Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	subs, ok := r.topics[pollID]
	if !ok {
		subs = make(map[Subscriber]struct{})
		r.topics[pollID] = subs
	}
	if _, ok := subs[sub]; ok {
		return nil
	}
	subs[sub] = struct{}{}
	r.count++
	r.updateGauges()

	r.logger.Debug("subscriber added", "poll_id", pollID, "subscribers", len(subs))
	return nil
}

// Unsubscribe removes sub from the poll's topic. Topics with no subscribers
// are removed. Removing an absent handle is a no-op.
func (r *Registry) Unsubscribe(pollID string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(pollID, sub)
}

func (r *Registry) removeLocked(pollID string, sub Subscriber) bool {
	subs, ok := r.topics[pollID]
	if !ok {
		return false
	}
	if _, ok := subs[sub]; !ok {
		return false
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(r.topics, pollID)
	}
	r.count--
	r.updateGauges()
	return true
}

// Broadcast sends msg to every subscriber of the poll. Subscribers whose
// send fails are removed and closed. Delivery is best effort; the caller
// only learns the counts.
func (r *Registry) Broadcast(ctx context.Context, pollID string, msg []byte) Result {
	start := time.Now()

	r.mu.RLock()
	subs := make([]Subscriber, 0, len(r.topics[pollID]))
	for sub := range r.topics[pollID] {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	r.metrics.Broadcasts.Inc()
	if len(subs) == 0 {
		return Result{}
	}

	var delivered, dropped atomic.Int64
	var eg errgroup.Group
	eg.SetLimit(r.fanout)
	for _, sub := range subs {
		eg.Go(func() error {
			if err := sub.Send(ctx, msg); err != nil {
				dropped.Add(1)
				r.drop(pollID, sub, err)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = eg.Wait()

	res := Result{Delivered: int(delivered.Load()), Dropped: int(dropped.Load())}
	r.metrics.Deliveries.WithLabelValues(metrics.ResultDelivered).Add(float64(res.Delivered))
	r.metrics.Deliveries.WithLabelValues(metrics.ResultDropped).Add(float64(res.Dropped))
	r.metrics.BroadcastSeconds.Observe(time.Since(start).Seconds())
	return res
}

func (r *Registry) drop(pollID string, sub Subscriber, err error) {
	r.mu.Lock()
	removed := r.removeLocked(pollID, sub)
	r.mu.Unlock()

	if removed {
		r.logger.Info("dropping subscriber after failed send", "poll_id", pollID, "error", err)
	}
	sub.Close(ReasonSendFailed)
}

// Topics returns the ids of polls with at least one subscriber, sorted.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.topics))
	for id := range r.topics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Subscribers returns how many handles watch the poll.
func (r *Registry) Subscribers(pollID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.topics[pollID])
}

// Close closes every subscriber and rejects further subscriptions.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	topics := r.topics
	r.topics = make(map[string]map[Subscriber]struct{})
	r.count = 0
	r.updateGauges()
	r.mu.Unlock()

	n := 0
	for _, subs := range topics {
		for sub := range subs {
			sub.Close(ReasonShutdown)
			n++
		}
	}
	r.logger.Info("topic registry closed", "subscribers", n)
}

func (r *Registry) updateGauges() {
	r.metrics.Topics.Set(float64(len(r.topics)))
	r.metrics.Subscribers.Set(float64(r.count))
}
