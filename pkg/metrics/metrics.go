// Package metrics exposes Prometheus instrumentation for call execution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors instrumenting the execution engine and node
// dispatcher. A nil *Metrics is safe to use and records nothing, so tests
// can pass nil without wiring a registry.
type Metrics struct {
	executionsStarted prometheus.Counter
	executionsEnded   *prometheus.CounterVec
	nodeDispatches    *prometheus.CounterVec
	dispatchDuration  *prometheus.HistogramVec
	activeExecutions  prometheus.Gauge
	webhookRequests   *prometheus.CounterVec
}

// New creates the collectors and registers them with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voxflow_executions_started_total",
			Help: "Total number of call executions started",
		}),
		executionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxflow_executions_ended_total",
			Help: "Total number of call executions ended, by reason",
		}, []string{"reason"}),
		nodeDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxflow_node_dispatches_total",
			Help: "Total number of node dispatches, by node type",
		}, []string{"node_type"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxflow_node_dispatch_duration_seconds",
			Help:    "Duration of single node dispatches",
			Buckets: prometheus.DefBuckets,
		}, []string{"node_type"}),
		activeExecutions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voxflow_active_executions",
			Help: "Number of in-flight call executions",
		}),
		webhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxflow_webhook_requests_total",
			Help: "Total number of provider webhook requests, by route and status",
		}, []string{"route", "status"}),
	}

	reg.MustRegister(
		m.executionsStarted,
		m.executionsEnded,
		m.nodeDispatches,
		m.dispatchDuration,
		m.activeExecutions,
		m.webhookRequests,
	)

	return m
}

func (m *Metrics) ExecutionStarted() {
	if m == nil {
		return
	}

	m.executionsStarted.Inc()
	m.activeExecutions.Inc()
}

func (m *Metrics) ExecutionEnded(reason string) {
	if m == nil {
		return
	}

	m.executionsEnded.WithLabelValues(reason).Inc()
	m.activeExecutions.Dec()
}

func (m *Metrics) NodeDispatched(nodeType string, seconds float64) {
	if m == nil {
		return
	}

	m.nodeDispatches.WithLabelValues(nodeType).Inc()
	m.dispatchDuration.WithLabelValues(nodeType).Observe(seconds)
}

func (m *Metrics) WebhookRequest(route, status string) {
	if m == nil {
		return
	}

	m.webhookRequests.WithLabelValues(route, status).Inc()
}
