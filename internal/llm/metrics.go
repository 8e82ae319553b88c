package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	attempts     *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
	exhausted    *prometheus.CounterVec
	promptTokens *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// NewMetrics registers the gateway collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docexam",
			Subsystem: "llm",
			Name:      "attempts_total",
			Help:      "Model calls by model and outcome",
		}, []string{"model", "outcome"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docexam",
			Subsystem: "llm",
			Name:      "fallbacks_total",
			Help:      "Calls served by a model other than the first of their tier",
		}, []string{"tier"}),
		exhausted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docexam",
			Subsystem: "llm",
			Name:      "exhausted_total",
			Help:      "Calls that failed on every model of their tier",
		}, []string{"tier", "kind"}),
		promptTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docexam",
			Subsystem: "llm",
			Name:      "prompt_tokens_total",
			Help:      "Estimated prompt tokens sent, by tier",
		}, []string{"tier"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docexam",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Latency of individual model calls",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"model"}),
	}
}

func (m *Metrics) observeAttempt(model string, kind error, seconds float64) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(model, kindLabel(kind)).Inc()
	m.latency.WithLabelValues(model).Observe(seconds)
}

func (m *Metrics) observeFallback(tier Tier) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(string(tier)).Inc()
}

func (m *Metrics) observeExhausted(tier Tier, kind error) {
	if m == nil {
		return
	}
	m.exhausted.WithLabelValues(string(tier), kindLabel(kind)).Inc()
}

func (m *Metrics) observeTokens(tier Tier, n int) {
	if m == nil || n == 0 {
		return
	}
	m.promptTokens.WithLabelValues(string(tier)).Add(float64(n))
}
