// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

type txnMetrics struct {
	retries    prometheus.Counter
	contention prometheus.Counter
}

func newTxnMetrics(reg prometheus.Registerer, backend string) *txnMetrics {
	m := &txnMetrics{
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "tally_store_txn_retries_total",
			Help:        "transactions re-run after a conflict",
			ConstLabels: prometheus.Labels{"backend": backend},
		}),
		contention: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "tally_store_txn_contention_total",
			Help:        "transactions abandoned after exhausting retries",
			ConstLabels: prometheus.Labels{"backend": backend},
		}),
	}
	reg.MustRegister(m.retries, m.contention)
	return m
}

func (m *txnMetrics) retry() {
	if m != nil {
		m.retries.Inc()
	}
}

func (m *txnMetrics) exhausted() {
	if m != nil {
		m.contention.Inc()
	}
}
