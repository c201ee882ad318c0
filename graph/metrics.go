package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus metrics for walk execution.
//
// All metrics are namespaced "supportgraph_":
//
//   - walks_total (counter, label kind=started|resumed): walks driven by
//     Start or Resume.
//   - walk_outcomes_total (counter, label outcome=completed|suspended|failed):
//     how each walk call ended.
//   - node_latency_ms (histogram, label node): per-node execution duration.
//   - route_overrides_total (counter): times the revisit ceiling forced
//     control to the overflow node.
//
// Expose via HTTP for scraping:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// All methods are nil-safe so the engine can run without metrics.
type Metrics struct {
	walks          *prometheus.CounterVec
	walkOutcomes   *prometheus.CounterVec
	nodeLatency    *prometheus.HistogramVec
	routeOverrides prometheus.Counter
}

// NewMetrics creates and registers walk metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		walks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supportgraph",
			Name:      "walks_total",
			Help:      "Walks driven, by entry point (started or resumed).",
		}, []string{"kind"}),
		walkOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supportgraph",
			Name:      "walk_outcomes_total",
			Help:      "How walk calls ended (completed, suspended, failed).",
		}, []string{"outcome"}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "supportgraph",
			Name:      "node_latency_ms",
			Help:      "Node execution duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"node"}),
		routeOverrides: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "supportgraph",
			Name:      "route_overrides_total",
			Help:      "Routing decisions overridden by the revisit ceiling.",
		}),
	}
}

func (m *Metrics) walkStarted() {
	if m == nil {
		return
	}
	m.walks.WithLabelValues("started").Inc()
}

func (m *Metrics) walkResumed() {
	if m == nil {
		return
	}
	m.walks.WithLabelValues("resumed").Inc()
}

func (m *Metrics) walkOutcome(outcome string) {
	if m == nil {
		return
	}
	m.walkOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeNode(node string, d time.Duration) {
	if m == nil {
		return
	}
	m.nodeLatency.WithLabelValues(node).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) routeOverridden() {
	if m == nil {
		return
	}
	m.routeOverrides.Inc()
}
