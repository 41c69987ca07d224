package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for workflow execution.
//
// Exposed series (all namespaced "autoscholar_graph_"):
//   - step_latency_ms (histogram): node execution duration, labeled by
//     node_id and status (success/error)
//   - steps_total (counter): completed node executions, same labels
//   - tasks_total (counter): finished Run calls, labeled by outcome
//     (completed/paused)
type Metrics struct {
	stepLatency *prometheus.HistogramVec
	steps       *prometheus.CounterVec
	tasks       *prometheus.CounterVec
}

// NewMetrics registers the engine metrics with the given registry.
// A nil registry uses the default global registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autoscholar",
			Subsystem: "graph",
			Name:      "step_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000},
		}, []string{"node_id", "status"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autoscholar",
			Subsystem: "graph",
			Name:      "steps_total",
			Help:      "Completed node executions",
		}, []string{"node_id", "status"}),
		tasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autoscholar",
			Subsystem: "graph",
			Name:      "tasks_total",
			Help:      "Finished engine runs by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveStep records one node execution.
func (m *Metrics) ObserveStep(nodeID string, latency time.Duration, status string) {
	m.stepLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
	m.steps.WithLabelValues(nodeID, status).Inc()
}

// TaskFinished records the outcome of a Run call.
func (m *Metrics) TaskFinished(outcome string) {
	m.tasks.WithLabelValues(outcome).Inc()
}
