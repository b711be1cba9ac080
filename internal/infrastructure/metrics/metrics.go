package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swiftlogix/order-pipeline/internal/application/pipeline"
	"github.com/swiftlogix/order-pipeline/internal/domain"
)

var (
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Duration of a single backend stage call (CMS/ROS/WMS).",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_transitions_total",
			Help: "Total number of order status transitions.",
		},
		[]string{"from", "to"},
	)

	dlqTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_dlq_total",
			Help: "Total number of orders routed to the dead-letter queue.",
		},
		[]string{"reason"},
	)
)

// Sink is the Prometheus-backed pipeline.MetricsSink implementation.
type Sink struct{}

func NewSink() *Sink { return &Sink{} }

func (Sink) ObserveStageDuration(stage pipeline.Stage, d time.Duration) {
	stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func (Sink) IncTransition(from, to domain.Status) {
	transitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

func (Sink) IncDLQ(reason string) {
	dlqTotal.WithLabelValues(reason).Inc()
}

// Handler exposes the registered collectors on /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
