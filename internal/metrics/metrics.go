// Package metrics exposes the engine's anomaly counters as Prometheus
// metrics (spec.md §7): source-inconsistency anomalies, numerical
// anomalies, and per-wallet replay failures, each broken down by kind
// so a dashboard can tell a stale neg_risk_markets snapshot apart from
// an empty-bucket consume.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder is the narrow interface the engine and replay driver depend
// on, so tests can substitute a no-op or counting fake without pulling
// in a real Prometheus registry.
type Recorder interface {
	IncAnomaly(kind string)
	IncReplayFailure()
}

// Collector is the Recorder backed by real Prometheus counters.
type Collector struct {
	anomaliesTotal *prometheus.CounterVec
	replayFailures prometheus.Counter
}

// NewCollector registers the ledger engine's counters against reg and
// returns a Collector. Pass prometheus.NewRegistry() in tests, or the
// default registry in production.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		anomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledgerengine",
			Name:      "anomalies_total",
			Help:      "Source-inconsistency and numerical anomalies encountered during replay, by kind.",
		}, []string{"kind"}),
		replayFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledgerengine",
			Name:      "replay_failures_total",
			Help:      "Per-wallet replays that failed fatally (loader or write failure).",
		}),
	}
	reg.MustRegister(c.anomaliesTotal, c.replayFailures)
	return c
}

// IncAnomaly records one occurrence of a source-inconsistency or
// numerical anomaly, tagged with a short kind such as "empty_bucket_consume"
// or "zero_denominator_resolution".
func (c *Collector) IncAnomaly(kind string) {
	c.anomaliesTotal.WithLabelValues(kind).Inc()
}

// IncReplayFailure records one fatal per-wallet replay failure.
func (c *Collector) IncReplayFailure() {
	c.replayFailures.Inc()
}

// NoopRecorder discards everything; used where no metrics backend is
// wired (unit tests, one-off CLI dry runs).
type NoopRecorder struct{}

func (NoopRecorder) IncAnomaly(string) {}
func (NoopRecorder) IncReplayFailure() {}
