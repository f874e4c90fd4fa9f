// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rollover

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "rollover"

// Metrics counts rollover outcomes. A nil *Metrics records nothing.
type Metrics struct {
	Migrations       *prometheus.CounterVec
	MigrationLatency prometheus.Histogram
	StakeFailures    prometheus.Counter
	FeesForwarded    prometheus.Counter
	FeesDeferred     prometheus.Counter
	FeeClaims        prometheus.Counter
}

// NewMetrics creates the rollover collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "migrations_total",
			Help:      "Rollover calls by outcome and error kind",
		}, []string{"outcome", "kind"}),
		MigrationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "migration_duration_seconds",
			Help:      "Wall time of a rollover call",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		StakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stake_failures_total",
			Help:      "Best-effort stakes that failed after a committed deposit",
		}),
		FeesForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fees_forwarded_total",
			Help:      "Per-token fees transferred to the fee recipient",
		}),
		FeesDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fees_deferred_total",
			Help:      "Per-token fees credited to the pending fee ledger",
		}),
		FeeClaims: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fee_claims_total",
			Help:      "Successful pending fee claims",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.Migrations,
		m.MigrationLatency,
		m.StakeFailures,
		m.FeesForwarded,
		m.FeesDeferred,
		m.FeeClaims,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) migration(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Migrations.WithLabelValues("failure", KindOf(err)).Inc()
		return
	}
	m.Migrations.WithLabelValues("success", "").Inc()
}

func (m *Metrics) timer() *prometheus.Timer {
	if m == nil {
		return prometheus.NewTimer(prometheus.ObserverFunc(func(float64) {}))
	}
	return prometheus.NewTimer(m.MigrationLatency)
}

func (m *Metrics) stakeFailed() {
	if m != nil {
		m.StakeFailures.Inc()
	}
}

func (m *Metrics) feeForwarded() {
	if m != nil {
		m.FeesForwarded.Inc()
	}
}

func (m *Metrics) feeDeferred() {
	if m != nil {
		m.FeesDeferred.Inc()
	}
}

func (m *Metrics) feeClaimed() {
	if m != nil {
		m.FeeClaims.Inc()
	}
}
