package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification flow.
type Metrics struct {
	// External API call latency by operation and error category ("ok" on success)
	APILatency *prometheus.HistogramVec

	// Flow step outcomes by step and outcome
	StepOutcome *prometheus.CounterVec

	// Verdicts received by display color
	Verdicts *prometheus.CounterVec

	// Circuit breaker transitions for the external API
	BreakerTransitions *prometheus.CounterVec
}

// New creates a new Metrics instance registered on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		APILatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verifiedai_verification_api_duration_seconds",
			Help:    "Duration of calls to the external verification API",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation", "outcome"}), // operation: create_job, upload_evidence, fetch_result

		StepOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "verifiedai_verification_steps_total",
			Help: "Verification flow steps by step and outcome",
		}, []string{"step", "outcome"}),

		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "verifiedai_verification_verdicts_total",
			Help: "Verdicts received, labelled by display color",
		}, []string{"color"}),

		BreakerTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "verifiedai_verification_breaker_transitions_total",
			Help: "Circuit breaker state changes for the verification API",
		}, []string{"to"}),
	}
}

// ObserveAPILatency records the duration of one external call.
func (m *Metrics) ObserveAPILatency(operation, outcome string, d time.Duration) {
	if m != nil {
		m.APILatency.WithLabelValues(operation, outcome).Observe(d.Seconds())
	}
}

// IncrementStep records a flow step outcome.
func (m *Metrics) IncrementStep(step, outcome string) {
	if m != nil {
		m.StepOutcome.WithLabelValues(step, outcome).Inc()
	}
}

// IncrementVerdict records a received verdict.
func (m *Metrics) IncrementVerdict(color string) {
	if m != nil {
		m.Verdicts.WithLabelValues(color).Inc()
	}
}

// IncrementBreaker records a breaker transition.
func (m *Metrics) IncrementBreaker(to string) {
	if m != nil {
		m.BreakerTransitions.WithLabelValues(to).Inc()
	}
}
