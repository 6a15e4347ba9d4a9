package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks session lifecycle and detector behaviour. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	SessionsStarted   prometheus.Counter
	StagesRecorded    *prometheus.CounterVec
	StageReplays      prometheus.Counter
	StageDuration     *prometheus.HistogramVec
	ProviderCalls     *prometheus.CounterVec
	ProviderDuration  *prometheus.HistogramVec
	SessionsAssessed  *prometheus.CounterVec
	DuplicateRejected prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycgate_sessions_started_total",
			Help: "Total number of verification sessions started",
		}),
		StagesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kycgate_stages_recorded_total",
			Help: "Stage results committed, by stage kind and outcome",
		}, []string{"stage", "outcome"}),
		StageReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycgate_stage_replays_total",
			Help: "Identical stage resubmissions answered from the recorded result",
		}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kycgate_stage_duration_seconds",
			Help:    "End-to-end duration of stage submissions including detector calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
		ProviderCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kycgate_provider_calls_total",
			Help: "Detector invocations by variant and result status",
		}, []string{"variant", "status"}),
		ProviderDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kycgate_provider_duration_seconds",
			Help:    "Detector call latency by variant",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}, []string{"variant"}),
		SessionsAssessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kycgate_sessions_assessed_total",
			Help: "Sessions assessed, by automated disposition",
		}, []string{"disposition"}),
		DuplicateRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycgate_duplicate_sessions_rejected_total",
			Help: "Session starts refused because the subject already has a recent session",
		}),
	}
}

func (m *Metrics) IncSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

func (m *Metrics) IncStageRecorded(stage, outcome string) {
	if m == nil {
		return
	}
	m.StagesRecorded.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) IncReplay() {
	if m == nil {
		return
	}
	m.StageReplays.Inc()
}

// ObserveStage records a stage submission. Call with time.Now() taken at the start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveProvider(variant, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(variant, status).Inc()
	m.ProviderDuration.WithLabelValues(variant).Observe(elapsed.Seconds())
}

func (m *Metrics) IncAssessed(disposition string) {
	if m == nil {
		return
	}
	m.SessionsAssessed.WithLabelValues(disposition).Inc()
}

func (m *Metrics) IncDuplicateRejected() {
	if m == nil {
		return
	}
	m.DuplicateRejected.Inc()
}
