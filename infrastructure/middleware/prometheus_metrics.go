// Package middleware provides cross-cutting infrastructure for the grading
// pipeline, currently the Prometheus metrics collector.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aerograde/flygrade/internal/ports"
)

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements ports.MetricsCollector over the global
// Prometheus registry: sample throughput, evaluation latency, judge cache
// behavior, and LLM request metrics.
type PrometheusMetrics struct {
	samplesEvaluated *prometheus.CounterVec
	evaluationTime   *prometheus.HistogramVec
	llmLatency       *prometheus.HistogramVec
	llmRequests      *prometheus.CounterVec
	llmTokens        *prometheus.CounterVec
	judgeCache       *prometheus.CounterVec
	gauges           *prometheus.GaugeVec
}

// NewPrometheusMetrics registers all metrics in the default registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		samplesEvaluated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flygrade_samples_evaluated_total",
				Help: "Samples evaluated, labeled by task, model, and eligibility.",
			},
			[]string{"task", "model", "eligibility"},
		),
		evaluationTime: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flygrade_sample_evaluation_seconds",
				Help:    "Wall time of one sample evaluation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task", "model"},
		),
		llmLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flygrade_llm_latency_seconds",
				Help:    "Latency of judge model requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "status"},
		),
		llmRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flygrade_llm_requests_total",
				Help: "Judge model requests, labeled by outcome.",
			},
			[]string{"model", "status"},
		),
		llmTokens: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flygrade_llm_tokens_total",
				Help: "Judge model token usage.",
			},
			[]string{"model", "token_type"},
		),
		judgeCache: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flygrade_judge_cache_events_total",
				Help: "Judge cache hits, misses, and fallbacks.",
			},
			[]string{"event", "model"},
		),
		gauges: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flygrade_state",
				Help: "Miscellaneous gauge values.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency maps generic latency observations onto the evaluation
// histogram.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.evaluationTime.WithLabelValues(labels["task"], labels["model"]).Observe(duration.Seconds())
}

// RecordCounter routes counter metrics by name.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "samples_evaluated_total":
		pm.samplesEvaluated.WithLabelValues(labels["task"], labels["model"], labels["eligibility"]).Add(value)
	case "llm_requests_total":
		pm.llmRequests.WithLabelValues(labels["model"], labels["status"]).Add(value)
	case "llm_tokens_total":
		pm.llmTokens.WithLabelValues(labels["model"], labels["token_type"]).Add(value)
	case "judge_cache_hits_total":
		pm.judgeCache.WithLabelValues("hit", labels["model"]).Add(value)
	case "judge_cache_misses_total":
		pm.judgeCache.WithLabelValues("miss", labels["model"]).Add(value)
	case "judge_fallbacks_total":
		pm.judgeCache.WithLabelValues("fallback", labels["model"]).Add(value)
	}
}

// RecordGauge sets a named gauge.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	pm.gauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram routes histogram metrics by name.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case "sample_evaluation_seconds":
		pm.evaluationTime.WithLabelValues(labels["task"], labels["model"]).Observe(value)
	case "llm_latency_seconds":
		pm.llmLatency.WithLabelValues(labels["model"], labels["status"]).Observe(value)
	}
}
