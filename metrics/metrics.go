// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package metrics holds the Prometheus collectors shared by the vote ledger,
// the topic registry, and the room coordinator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ns = "pollrooms"

	LabelResult = "result"
	LabelOp     = "op"

	ResultAdmitted  = "admitted"
	ResultDuplicate = "duplicate"
	ResultNotFound  = "not_found"
	ResultInvalid   = "invalid"
	ResultError     = "error"

	ResultDelivered = "delivered"
	ResultDropped   = "dropped"
)

type Metrics struct {
	Votes        *prometheus.CounterVec
	StoreRetries *prometheus.CounterVec

	Topics      prometheus.Gauge
	Subscribers prometheus.Gauge

	Broadcasts       prometheus.Counter
	Deliveries       *prometheus.CounterVec
	BroadcastSeconds prometheus.Histogram
}

// New registers the collectors with reg. A nil reg creates unregistered
// collectors, which tests use to get isolated instances.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Votes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "votes_total", Namespace: ns, Subsystem: "ledger",
			Help: "Vote submissions by outcome (admitted, duplicate, not_found, invalid, error).",
		}, []string{LabelResult}),
		StoreRetries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "store_retries_total", Namespace: ns, Subsystem: "ledger",
			Help: "Ledger operations retried after a transient store failure.",
		}, []string{LabelOp}),

		Topics: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "topics", Namespace: ns, Subsystem: "topic",
			Help: "Polls with at least one live subscriber.",
		}),
		Subscribers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "subscribers", Namespace: ns, Subsystem: "topic",
			Help: "Live subscriber connections across all polls.",
		}),

		Broadcasts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "broadcasts_total", Namespace: ns, Subsystem: "topic",
			Help: "Broadcasts fanned out to a poll topic.",
		}),
		Deliveries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "deliveries_total", Namespace: ns, Subsystem: "topic",
			Help: "Per-subscriber deliveries by result (delivered, dropped).",
		}, []string{LabelResult}),
		BroadcastSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "broadcast_seconds", Namespace: ns, Subsystem: "topic",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			Help:    "Time to deliver one broadcast to every subscriber of a poll.",
		}),
	}
}
