// Package metrics provides Prometheus instrumentation for homeflix.
//
// Metrics registered here:
//
//	homeflix_sync_runs_total              counter: sync cycles by result
//	homeflix_sync_duration_seconds        histogram: sync cycle latency
//	homeflix_sync_items_total             counter: stage items by stage and outcome
//	homeflix_cache_lookups_total          counter: cache lookups by namespace and result
//	homeflix_search_queries_total         counter: searches by execution path
//	homeflix_http_requests_total          counter: HTTP requests by method, route and status
//	homeflix_http_request_duration_seconds histogram: HTTP latency by method and route
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sync outcomes used as the outcome label of SyncItems
const (
	OutcomeStored  = "stored"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// SyncRuns counts completed sync cycles. result is "ok" or "partial".
var SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "homeflix_sync_runs_total",
	Help: "Completed sync cycles.",
}, []string{"result"})

// SyncDuration tracks how long a full cycle takes
var SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "homeflix_sync_duration_seconds",
	Help:    "Sync cycle duration in seconds.",
	Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
})

// SyncItems counts items seen by each stage
var SyncItems = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "homeflix_sync_items_total",
	Help: "Items processed by sync stage and outcome.",
}, []string{"stage", "outcome"})

// CacheLookups counts TieredCache reads
var CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "homeflix_cache_lookups_total",
	Help: "Cache lookups by namespace and result.",
}, []string{"namespace", "result"})

// SearchQueries counts searches by the path that served them
var SearchQueries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "homeflix_search_queries_total",
	Help: "Search queries by execution path (index, substring, failed).",
}, []string{"path"})

// HTTPRequests counts handled requests
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "homeflix_http_requests_total",
	Help: "Total HTTP requests handled.",
}, []string{"method", "route", "status"})

// HTTPDuration tracks request latency
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "homeflix_http_request_duration_seconds",
	Help:    "HTTP request latency in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route"})

// CacheLookup is a TieredCache lookup hook
func CacheLookup(namespace string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(namespace, result).Inc()
}

// Handler returns the Prometheus scrape handler for GET /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
