package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for the outreach service
type Metrics struct {
	// Platform client metrics
	PlatformRequestsTotal *prometheus.CounterVec
	PlatformRetriesTotal  prometheus.Counter
	PlatformThrottleTotal prometheus.Counter

	// Sync metrics
	SyncRunsTotal     *prometheus.CounterVec
	SyncOpensTotal    *prometheus.CounterVec
	SyncRepliesTotal  *prometheus.CounterVec
	SyncErrorsTotal   prometheus.Counter
	SyncLastTimestamp prometheus.Gauge

	// Experiment metrics
	TestsRunning      prometheus.Gauge
	SendsTotal        *prometheus.CounterVec
	SignificantTotal  prometheus.Counter

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds prometheus.Gauge
	Goroutines    prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		PlatformRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_platform_requests_total",
				Help: "Total number of requests issued to the sending platform API",
			},
			[]string{"method", "status"},
		),
		PlatformRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_platform_retries_total",
				Help: "Total number of retried platform requests",
			},
		),
		PlatformThrottleTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_platform_throttle_total",
				Help: "Total number of Retry-After throttle windows observed",
			},
		),

		SyncRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_sync_runs_total",
				Help: "Total number of engagement sync runs",
			},
			[]string{"result"},
		),
		SyncOpensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_sync_opens_total",
				Help: "Open events seen during sync, by outcome",
			},
			[]string{"outcome"},
		),
		SyncRepliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_sync_replies_total",
				Help: "Reply events seen during sync, by outcome",
			},
			[]string{"outcome"},
		),
		SyncErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_sync_errors_total",
				Help: "Total number of partial failures absorbed during sync",
			},
		),
		SyncLastTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outreach_sync_last_timestamp_seconds",
				Help: "Unix time of the last completed sync run",
			},
		),

		TestsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outreach_tests_running",
				Help: "Number of A/B tests currently in running state",
			},
		),
		SendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_sends_total",
				Help: "Total number of recorded sends, by variant kind",
			},
			[]string{"kind"},
		),
		SignificantTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_significant_results_total",
				Help: "Total number of significance checks that found a winner",
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_api_requests_total",
				Help: "Total number of reporting API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outreach_api_request_duration_seconds",
				Help:    "Reporting API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_api_errors_total",
				Help: "Total number of reporting API errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outreach_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "outreach_goroutines",
				Help: "Number of active goroutines",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.PlatformRequestsTotal,
		m.PlatformRetriesTotal,
		m.PlatformThrottleTotal,
		m.SyncRunsTotal,
		m.SyncOpensTotal,
		m.SyncRepliesTotal,
		m.SyncErrorsTotal,
		m.SyncLastTimestamp,
		m.TestsRunning,
		m.SendsTotal,
		m.SignificantTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncPlatformRequest increments the platform request counter
func IncPlatformRequest(method, status string) {
	m := Global()
	if m != nil {
		m.PlatformRequestsTotal.WithLabelValues(method, status).Inc()
	}
}

// IncPlatformRetry increments the platform retry counter
func IncPlatformRetry() {
	m := Global()
	if m != nil {
		m.PlatformRetriesTotal.Inc()
	}
}

// IncPlatformThrottle increments the throttle window counter
func IncPlatformThrottle() {
	m := Global()
	if m != nil {
		m.PlatformThrottleTotal.Inc()
	}
}

// IncSignificant increments the counter of winner-finding checks
func IncSignificant() {
	m := Global()
	if m != nil {
		m.SignificantTotal.Inc()
	}
}

// IncSend increments the send counter for a variant kind
func IncSend(kind string) {
	m := Global()
	if m != nil {
		m.SendsTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveSyncRun records the outcome counters of one sync run
func ObserveSyncRun(opensSynced, opensSkipped, repliesSynced, repliesSkipped, errs int, failed bool) {
	m := Global()
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "failed"
	} else if errs > 0 {
		result = "partial"
	}
	m.SyncRunsTotal.WithLabelValues(result).Inc()
	if !failed {
		m.SyncLastTimestamp.SetToCurrentTime()
	}
	m.SyncOpensTotal.WithLabelValues("synced").Add(float64(opensSynced))
	m.SyncOpensTotal.WithLabelValues("skipped").Add(float64(opensSkipped))
	m.SyncRepliesTotal.WithLabelValues("synced").Add(float64(repliesSynced))
	m.SyncRepliesTotal.WithLabelValues("skipped").Add(float64(repliesSkipped))
	m.SyncErrorsTotal.Add(float64(errs))
}
