// Package metrics holds the prometheus collectors for the scan pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gcp_inventory"

var (
	ScansStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_started_total",
		Help:      "Scans accepted by the coordinator, by trigger.",
	}, []string{"trigger"})

	ScansFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_finished_total",
		Help:      "Scans sealed, by final status.",
	}, []string{"status"})

	BatchesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_completed_total",
		Help:      "Batch worker runs, by outcome.",
	}, []string{"outcome"})

	ProjectScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "project_scan_duration_seconds",
		Help:      "Wall time of one project scan.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	CollectorRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collector_runs_total",
		Help:      "Collector runs, by resource kind and result (ok, warning, failure, skipped).",
	}, []string{"kind", "result"})

	ResourcesUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resources_upserted_total",
		Help:      "Catalog upserts, by resource kind and operation (create, update).",
	}, []string{"kind", "op"})

	ParentMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "parent_misses_total",
		Help:      "Items skipped because their parent was not in the catalog.",
	}, []string{"kind"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "API requests, by route pattern, method and status code.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "API request latency, by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)
