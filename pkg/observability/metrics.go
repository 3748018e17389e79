package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arbor"

// Metrics holds the collectors fed by Hooks.
type Metrics struct {
	registry *prometheus.Registry

	Nodes              *prometheus.CounterVec
	NodeDuration       *prometheus.HistogramVec
	Invocations        *prometheus.CounterVec
	InvocationDuration prometheus.Histogram
	InFlight           prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_total",
			Help:      "Nodes that finished, by kind and outcome.",
		}, []string{"kind", "status"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Time spent in a node, teardown included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Template invocations that finished, by outcome.",
		}, []string{"status"}),
		InvocationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Duration of template invocations.",
			Buckets:   prometheus.DefBuckets,
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes_in_flight",
			Help:      "Nodes entered but not left yet.",
		}),
	}
	m.registry.MustRegister(m.Nodes, m.NodeDuration, m.Invocations, m.InvocationDuration, m.InFlight)
	return m
}

// Registry exposes the registry, e.g. to add process collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collected metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks records every node and invocation outcome.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.InFlight.Inc()
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.InFlight.Dec()
			m.Nodes.WithLabelValues(string(e.Kind), string(e.Status)).Inc()
			m.NodeDuration.WithLabelValues(string(e.Kind)).Observe(e.Duration.Seconds())
		},
		OnInvocationFinish: func(_ context.Context, e *domain.InvocationEvent) {
			m.Invocations.WithLabelValues(string(e.Status)).Inc()
			m.InvocationDuration.Observe(e.Duration.Seconds())
		},
	}
}
