// Package metrics defines the Prometheus collectors used across splitsync.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Snapshot decisions taken by the sync coordinator.
const (
	DecisionAdopted = "adopted"
	DecisionEcho    = "echo"
	DecisionStale   = "stale"
	DecisionAbsent  = "absent"
)

// Metrics groups the collectors. Create one per registry.
type Metrics struct {
	StoreWrites    *prometheus.CounterVec
	Snapshots      *prometheus.CounterVec
	Mutations      *prometheus.CounterVec
	SettleDuration prometheus.Histogram
	ActiveWatchers prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StoreWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitsync",
			Name:      "store_writes_total",
			Help:      "Ledger writes issued by sync sessions, by result.",
		}, []string{"result"}),
		Snapshots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitsync",
			Name:      "snapshots_total",
			Help:      "Remote snapshots received by sync sessions, by merge decision.",
		}, []string{"decision"}),
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splitsync",
			Name:      "mutations_total",
			Help:      "Local ledger mutations applied, by operation.",
		}, []string{"op"}),
		SettleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "splitsync",
			Name:      "settle_duration_seconds",
			Help:      "Time spent computing settlements.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		ActiveWatchers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "splitsync",
			Name:      "active_watchers",
			Help:      "Open WatchLedger streams.",
		}),
	}
}

// WriteResult counts a store write with result "ok" or "error".
func (m *Metrics) WriteResult(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StoreWrites.WithLabelValues(result).Inc()
}

// Snapshot counts one merge decision.
func (m *Metrics) Snapshot(decision string) {
	if m == nil {
		return
	}
	m.Snapshots.WithLabelValues(decision).Inc()
}

// Mutation counts one local mutation.
func (m *Metrics) Mutation(op string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(op).Inc()
}

// ObserveSettle records how long a settlement computation took.
func (m *Metrics) ObserveSettle(start time.Time) {
	if m == nil {
		return
	}
	m.SettleDuration.Observe(time.Since(start).Seconds())
}

// WatchStarted and WatchEnded track open watch streams.
func (m *Metrics) WatchStarted() {
	if m != nil {
		m.ActiveWatchers.Inc()
	}
}

func (m *Metrics) WatchEnded() {
	if m != nil {
		m.ActiveWatchers.Dec()
	}
}
