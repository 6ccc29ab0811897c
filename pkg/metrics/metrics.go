// Package metrics provides Prometheus collectors for the deltashare client.
//
// # Basic Usage
//
//	timer := metrics.NewTimer("list_shares")
//	resp, err := client.Do(req)
//	metrics.ObserveRequest(timer.Name(), resp.StatusCode, timer.Stop())
//
// All collectors are registered with the default registry at init through
// promauto, so an embedding program exposes them by serving promhttp.Handler.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
)

var (
	// Requests counts sharing server requests.
	// Labels: endpoint (list_shares, query, ...), status (HTTP code or "error")
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deltashare",
			Subsystem: "rest",
			Name:      "requests_total",
			Help:      "Total number of sharing server requests",
		},
		[]string{"endpoint", "status"},
	)

	// RequestLatency tracks sharing server request latency in seconds.
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "deltashare",
			Subsystem: "rest",
			Name:      "request_duration_seconds",
			Help:      "Duration of sharing server requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"endpoint"},
	)

	// PagesFetched counts listing pages.
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deltashare",
			Subsystem: "rest",
			Name:      "pages_fetched_total",
			Help:      "Total number of listing pages fetched",
		},
		[]string{"endpoint"},
	)

	// AllTablesFallbacks counts list-all-tables calls that fell back to
	// per-schema listing.
	AllTablesFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "deltashare",
			Subsystem: "sharing",
			Name:      "all_tables_fallbacks_total",
			Help:      "Number of list-all-tables calls answered by the schema/table fallback",
		},
	)

	// FileFetches counts data file reads by outcome.
	FileFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deltashare",
			Subsystem: "reader",
			Name:      "file_fetches_total",
			Help:      "Total number of data file reads",
		},
		[]string{"scheme", "outcome"},
	)

	// FileBytes counts bytes downloaded for data files.
	FileBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deltashare",
			Subsystem: "reader",
			Name:      "file_bytes_total",
			Help:      "Total bytes downloaded for data files",
		},
		[]string{"scheme"},
	)

	// RowsMaterialized counts rows returned to callers.
	RowsMaterialized = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "deltashare",
			Subsystem: "reader",
			Name:      "rows_materialized_total",
			Help:      "Total number of rows returned by table materialization",
		},
	)

	// InflightFetches tracks concurrent file reads.
	InflightFetches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "deltashare",
			Subsystem: "reader",
			Name:      "inflight_file_fetches",
			Help:      "Number of data file reads in progress",
		},
	)
)

// ObserveRequest records one request. A status of 0 means the request never
// produced a response.
func ObserveRequest(endpoint string, status int, d time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	Requests.WithLabelValues(endpoint, label).Inc()
	RequestLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// Timer measures an operation's duration.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Stop returns the elapsed time
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// Name returns the timer name
func (t *Timer) Name() string {
	return t.name
}
