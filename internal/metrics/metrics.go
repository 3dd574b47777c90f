// Package metrics provides Prometheus metrics for depview.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Backend metrics
	backendQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depview_backend_queries_total",
			Help: "Total number of backend queries",
		},
		[]string{"op", "status"},
	)

	backendQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "depview_backend_query_duration_seconds",
			Help:    "Backend query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// Cache metrics
	nodeCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "depview_node_cache_entries",
			Help: "Number of tree nodes held in the node cache",
		},
	)

	nodeCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "depview_node_cache_evictions_total",
			Help: "Total number of nodes evicted by refreshes",
		},
	)

	// Refresh metrics
	refreshRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depview_refresh_requests_total",
			Help: "Total number of refresh requests",
		},
		[]string{"scope", "debounce"},
	)

	refreshFiresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depview_refresh_fires_total",
			Help: "Total number of refreshes actually performed",
		},
		[]string{"scope"},
	)

	// Reveal metrics
	revealsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depview_reveals_total",
			Help: "Total number of reveal attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Change stream metrics
	changeSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "depview_change_subscribers",
			Help: "Number of active change stream subscribers",
		},
	)

	changeDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "depview_change_events_dropped_total",
			Help: "Change events dropped for slow subscribers",
		},
	)

	// Watcher metrics
	watcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depview_watcher_events_total",
			Help: "Filesystem events seen by the watcher",
		},
		[]string{"op"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordBackendQuery records one backend call.
func RecordBackendQuery(op string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	backendQueriesTotal.WithLabelValues(op, status).Inc()
	backendQueryDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SetNodeCacheEntries sets the node cache size gauge.
func SetNodeCacheEntries(n uint64) {
	nodeCacheEntries.Set(float64(n))
}

// RecordEvictions adds n evicted nodes.
func RecordEvictions(n uint64) {
	nodeCacheEvictions.Add(float64(n))
}

// RecordRefreshRequest records an incoming refresh request.
func RecordRefreshRequest(root, debounce bool) {
	d := "false"
	if debounce {
		d = "true"
	}
	refreshRequestsTotal.WithLabelValues(scope(root), d).Inc()
}

// RecordRefreshFire records a refresh that evicted part of the tree.
func RecordRefreshFire(root bool) {
	refreshFiresTotal.WithLabelValues(scope(root)).Inc()
}

// RecordReveal records a reveal outcome.
func RecordReveal(outcome string) {
	revealsTotal.WithLabelValues(outcome).Inc()
}

// SetChangeSubscribers sets the subscriber gauge.
func SetChangeSubscribers(n int) {
	changeSubscribers.Set(float64(n))
}

// RecordChangeDropped counts one dropped change event.
func RecordChangeDropped() {
	changeDropsTotal.Inc()
}

// RecordWatcherEvent counts one filesystem event.
func RecordWatcherEvent(op string) {
	watcherEventsTotal.WithLabelValues(op).Inc()
}

func scope(root bool) string {
	if root {
		return "root"
	}
	return "subtree"
}
