package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments ledger appends. A nil *Metrics is a valid no-op.
type Metrics struct {
	EventsEmitted   *prometheus.CounterVec
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
	RelayDropped    prometheus.Counter
}

// NewMetrics registers the ledger metrics with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kycgate_ledger_entries_total",
			Help: "Ledger entries persisted by event type",
		}, []string{"event_type"}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycgate_ledger_persist_failures_total",
			Help: "Ledger appends that failed and aborted their mutation",
		}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kycgate_ledger_persist_duration_seconds",
			Help:    "Duration of synchronous ledger appends",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		RelayDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycgate_ledger_relay_dropped_total",
			Help: "Persisted entries not handed to the stream relay because its buffer was full",
		}),
	}
}

func (m *Metrics) IncEventsEmitted(eventType string) {
	if m != nil {
		m.EventsEmitted.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) IncPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) ObservePersistDuration(seconds float64) {
	if m != nil {
		m.PersistDuration.Observe(seconds)
	}
}

func (m *Metrics) IncRelayDropped() {
	if m != nil {
		m.RelayDropped.Inc()
	}
}
