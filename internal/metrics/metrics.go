// Package metrics holds the Prometheus instruments of the consultation
// pipeline. They are registered on the default registry and exposed by the
// server at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "policychat"

var (
	// StageDuration observes each pipeline stage.
	// Labels: stage (profiling, search, eligibility, ranking, strategy, synthesis)
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of a consultation pipeline stage",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	// StageErrors counts stage failures recorded as agent errors.
	StageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_errors_total",
			Help:      "Stage failures that degraded to a fallback output",
		},
		[]string{"stage"},
	)

	// ChatRequests counts answered chat turns.
	// Labels: path (greeting, general, rag, multi_agent), mode (sync, stream)
	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Chat requests by routing path",
		},
		[]string{"path", "mode"},
	)

	// IndexRebuilds counts full policy index rebuilds.
	IndexRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Policy index rebuilds by outcome",
		},
		[]string{"status"},
	)
)

// ObserveStage records the duration of a stage that started at start.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
