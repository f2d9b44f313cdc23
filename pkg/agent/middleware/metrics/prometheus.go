package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costsTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	stepsTotal      *prometheus.CounterVec
	outcomesTotal   *prometheus.CounterVec
}

// NewPrometheusRecorder registers the devloop collectors with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devloop_llm_requests_total",
				Help: "Generator requests by model, role, and status",
			},
			[]string{"model", "role", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devloop_llm_tokens_total",
				Help: "Tokens used by generator requests",
			},
			[]string{"model", "role", "type"},
		),
		costsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devloop_llm_costs_total",
				Help: "Estimated USD cost of generator requests",
			},
			[]string{"model", "role"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "devloop_llm_request_duration_seconds",
				Help:    "Duration of generator requests in seconds",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"model", "role"},
		),
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devloop_loop_steps_total",
				Help: "Agent loop steps by role and kind",
			},
			[]string{"role", "kind"},
		),
		outcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devloop_loop_outcomes_total",
				Help: "Terminal agent loop outcomes by role",
			},
			[]string{"role", "outcome"},
		),
	}
}

// ObserveRequest records one generator call.
func (p *PrometheusRecorder) ObserveRequest(r Request) {
	status := "success"
	if !r.Success {
		status = "error"
	}
	p.requestsTotal.WithLabelValues(r.Model, r.Role, status, r.ErrorType).Inc()
	if r.Success {
		p.tokensTotal.WithLabelValues(r.Model, r.Role, "prompt").Add(float64(r.PromptTokens))
		p.tokensTotal.WithLabelValues(r.Model, r.Role, "completion").Add(float64(r.CompletionTokens))
		p.costsTotal.WithLabelValues(r.Model, r.Role).Add(r.Cost)
	}
	p.requestDuration.WithLabelValues(r.Model, r.Role).Observe(r.Duration.Seconds())
}

// IncStep counts one loop step.
func (p *PrometheusRecorder) IncStep(role, kind string) {
	p.stepsTotal.WithLabelValues(role, kind).Inc()
}

// IncOutcome counts a terminal loop outcome.
func (p *PrometheusRecorder) IncOutcome(role, outcome string) {
	p.outcomesTotal.WithLabelValues(role, outcome).Inc()
}
