package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/olympiad-registration-api/internal/reconcile"
)

// Registration outcomes recorded by RecordRegistration.
const (
	OutcomeCreated  = "created"
	OutcomeUpdated  = "updated"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// MetricsService owns the Prometheus registry and the collectors the API reports.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheLookups    *prometheus.CounterVec

	registrations       *prometheus.CounterVec
	reconcileRecords    *prometheus.CounterVec
	reconcileRuns       *prometheus.CounterVec
	reconcileDuration   prometheus.Histogram
	reconcileLastOutput prometheus.Gauge
}

// NewMetricsService registers every collector on a private registry.
func NewMetricsService() *MetricsService {
	m := &MetricsService{registry: prometheus.NewRegistry()}

	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
	m.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	m.cacheLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})
	m.cacheWrite = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache writes",
		Buckets: prometheus.DefBuckets,
	})
	m.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})
	m.registrations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "registrations_submitted_total",
		Help: "Registration submissions by outcome",
	}, []string{"outcome"})
	m.reconcileRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_records_total",
		Help: "Records touched by reconciliation, by action",
	}, []string{"action"})
	m.reconcileRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_runs_total",
		Help: "Reconciliation runs by mode",
	}, []string{"mode"})
	m.reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconciliation_duration_seconds",
		Help:    "Wall time of a reconciliation run",
		Buckets: prometheus.DefBuckets,
	})
	m.reconcileLastOutput = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reconciliation_last_output_registrations",
		Help: "Registrations produced by the last reconciliation run",
	})
	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	m.registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite, m.cacheLookups,
		m.registrations, m.reconcileRecords, m.reconcileRuns, m.reconcileDuration, m.reconcileLastOutput,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the registry over HTTP.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks cache write latency.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordRegistration counts a submission by outcome.
func (m *MetricsService) RecordRegistration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

// RecordReconciliation records the per-action counts of a finished run.
func (m *MetricsService) RecordReconciliation(report reconcile.Report, dryRun bool, duration time.Duration) {
	if m == nil {
		return
	}
	mode := "apply"
	if dryRun {
		mode = "dry_run"
	}
	m.reconcileRuns.WithLabelValues(mode).Inc()
	m.reconcileDuration.Observe(duration.Seconds())
	m.reconcileLastOutput.Set(float64(report.Output))
	for action, n := range report.Counts() {
		m.reconcileRecords.WithLabelValues(string(action)).Add(float64(n))
	}
}
