// Package metrics provides Prometheus metrics for techstock.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts API requests by route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "techstock",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration measures request handling time.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "techstock",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ImportRunsTotal counts importer runs by source and outcome.
	ImportRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "techstock",
			Name:      "import_runs_total",
			Help:      "Total number of importer runs",
		},
		[]string{"source", "status"},
	)

	// ImportArticlesTotal counts articles seen by the importer, split into
	// fetched, new and saved.
	ImportArticlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "techstock",
			Name:      "import_articles_total",
			Help:      "Articles handled by the importer",
		},
		[]string{"source", "stage"},
	)

	// QiitaPagesTotal counts stock pages by outcome (fetched or skipped).
	QiitaPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "techstock",
			Name:      "qiita_pages_total",
			Help:      "Qiita stock pages requested",
		},
		[]string{"outcome"},
	)

	// QiitaRateLimitRemaining is the last Rate-Limit-Remaining value seen.
	QiitaRateLimitRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "techstock",
			Name:      "qiita_rate_limit_remaining",
			Help:      "Last reported Qiita rate limit remaining",
		},
	)
)

// RecordRequest records one handled HTTP request.
func RecordRequest(method, route string, status int, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordImport records a completed importer run.
func RecordImport(source string, total, fresh, saved int) {
	ImportRunsTotal.WithLabelValues(source, "ok").Inc()
	ImportArticlesTotal.WithLabelValues(source, "fetched").Add(float64(total))
	ImportArticlesTotal.WithLabelValues(source, "new").Add(float64(fresh))
	ImportArticlesTotal.WithLabelValues(source, "saved").Add(float64(saved))
}

// RecordImportError records an importer run that failed before writing.
func RecordImportError(source string) {
	ImportRunsTotal.WithLabelValues(source, "error").Inc()
}
