// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package metrics holds the Prometheus collectors shared by the tally
// engine. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Propagation walk
	hops       prometheus.Counter
	writes     prometheus.Counter
	converged  prometheus.Counter
	stale      prometheus.Counter
	walkHops   prometheus.Histogram
	hopSeconds prometheus.Histogram
	rebuilds   prometheus.Counter

	// Dispatch queue
	enqueued     prometheus.Counter
	delivered    prometheus.Counter
	retried      prometheus.Counter
	deadLettered prometheus.Counter
	inFlight     prometheus.Gauge

	// Leaf mutations by operation and outcome
	mutations *prometheus.CounterVec

	// Requests refused by the per-actor throttle
	throttled prometheus.Counter
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.hops = factory.NewCounter(prometheus.CounterOpts{
		Name: "tally_propagation_hops_total",
		Help: "propagation steps executed",
	})
	m.writes = factory.NewCounter(prometheus.CounterOpts{
		Name: "tally_propagation_writes_total",
		Help: "propagation steps that rewrote a parent location",
	})
	m.converged = factory.NewCounter(prometheus.CounterOpts{
		Name: "tally_propagation_converged_total",
		Help: "walks that stopped early because a parent was unchanged",
	})
	m.stale = factory.NewCounter(prometheus.CounterOpts{
		Name: "tally_propagation_stale_total",
		Help: "steps skipped because the stored child was newer",
	})
	m.walkHops = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "tally_propagation_walk_hops",
		Help:    "steps per propagation walk",
		Buckets: []float64{1, 2, 3, 4, 5},
	})
	m.hopSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "tally_propagation_hop_seconds",
		Help:    "duration of one propagation step including retries",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
	m.rebuilds = factory.NewCounter(prometheus.CounterOpts{
		Name: "tally_rebuilds_total",
		Help: "subtree recomputations",
	})

	m.enqueued = factory.NewCounter(prometheus.CounterOpts{
		Name: "tally_queue_enqueued_total",
		Help: "tasks handed to the dispatch queue",
	})
	m.delivered = factory.NewCounter(prometheus.CounterOpts{
		Name: "tally_queue_delivered_total",
		Help: "tasks delivered successfully",
	})
	m.retried = factory.NewCounter(prometheus.CounterOpts{
		Name: "tally_queue_retried_total",
		Help: "failed deliveries scheduled for another attempt",
	})
	m.deadLettered = factory.NewCounter(prometheus.CounterOpts{
		Name: "tally_queue_dead_lettered_total",
		Help: "tasks that exhausted their retries",
	})
	m.inFlight = factory.NewGauge(prometheus.GaugeOpts{
		Name: "tally_queue_in_flight",
		Help: "deliveries currently running",
	})

	m.mutations = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "tally_mutations_total",
		Help: "leaf mutations by operation and result",
	}, []string{"op", "result"})

	m.throttled = factory.NewCounter(prometheus.CounterOpts{
		Name: "tally_requests_throttled_total",
		Help: "requests refused by the per-actor rate limit",
	})
	return m
}

// Hop records one propagation step.
func (m *Metrics) Hop(changed, stale bool, d time.Duration) {
	if m == nil {
		return
	}
	m.hops.Inc()
	if changed {
		m.writes.Inc()
	}
	if stale {
		m.stale.Inc()
	}
	m.hopSeconds.Observe(d.Seconds())
}

// Walk records a finished propagation walk.
func (m *Metrics) Walk(hops int, converged bool) {
	if m == nil {
		return
	}
	m.walkHops.Observe(float64(hops))
	if converged {
		m.converged.Inc()
	}
}

func (m *Metrics) Rebuild() {
	if m == nil {
		return
	}
	m.rebuilds.Inc()
}

func (m *Metrics) Enqueued() {
	if m == nil {
		return
	}
	m.enqueued.Inc()
}

// Delivery records the end of one attempt. inFlight is adjusted by
// DeliveryStarted.
func (m *Metrics) Delivery(ok bool) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	if ok {
		m.delivered.Inc()
	}
}

func (m *Metrics) DeliveryStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) Retried() {
	if m == nil {
		return
	}
	m.retried.Inc()
}

func (m *Metrics) DeadLettered() {
	if m == nil {
		return
	}
	m.deadLettered.Inc()
}

// Mutation counts a leaf operation, result is "ok", "noop" or an error class.
func (m *Metrics) Mutation(op, result string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) Throttled() {
	if m == nil {
		return
	}
	m.throttled.Inc()
}
