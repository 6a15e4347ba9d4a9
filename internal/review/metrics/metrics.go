package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts reviewer activity. A nil *Metrics records nothing.
type Metrics struct {
	Overrides *prometheus.CounterVec
	Reversals prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Overrides: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kycgate_review_overrides_total",
			Help: "Reviewer overrides applied, by decision",
		}, []string{"decision"}),
		Reversals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycgate_review_reversals_total",
			Help: "Overrides whose resulting status differs from the automated outcome",
		}),
	}
}

func (m *Metrics) IncOverride(decision string, reversed bool) {
	if m == nil {
		return
	}
	m.Overrides.WithLabelValues(decision).Inc()
	if reversed {
		m.Reversals.Inc()
	}
}
