package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the sync engine and read API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	tickDuration    prometheus.Observer
	ticks           *prometheus.CounterVec
	ticksSkipped    prometheus.Counter
	fetchOutcomes   *prometheus.CounterVec
	parseFailures   prometheus.Counter
	occupied        prometheus.Gauge
	lastCommit      prometheus.Gauge
	cacheWrites     *prometheus.CounterVec
	cacheWrite      prometheus.Observer
	enrollments     *prometheus.CounterVec
	labLogs         *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	tickDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_tick_duration_seconds",
		Help:    "Duration of a full sync cycle",
		Buckets: prometheus.DefBuckets,
	})

	ticks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_ticks_total",
		Help: "Sync cycles by outcome (committed, stale, stopped, cancelled)",
	}, []string{"outcome"})

	ticksSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_ticks_skipped_total",
		Help: "Ticks skipped because the previous cycle was still in flight",
	})

	fetchOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_collection_fetch_total",
		Help: "Collection fetches by collection and result kind",
	}, []string{"collection", "kind"})

	parseFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_time_parse_failures_total",
		Help: "Subjects skipped by the occupancy matcher because of malformed times",
	})

	occupied := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lab_occupied_subjects",
		Help: "Subjects whose window contains the last evaluation instant",
	})

	lastCommit := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sync_last_commit_timestamp_seconds",
		Help: "Unix time of the last committed sync cycle",
	})

	cacheWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "occupant_cache_writes_total",
		Help: "Occupant cache write-through operations by op and result",
	}, []string{"op", "result"})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "occupant_cache_write_seconds",
		Help:    "Latency for occupant cache write-through",
		Buckets: prometheus.DefBuckets,
	})

	enrollments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_total",
		Help: "Enrol attempts by outcome code",
	}, []string{"outcome"})

	labLogs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lab_status_changes_total",
		Help: "Lab lock and unlock events by status and result",
	}, []string{"status", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, tickDuration, ticks, ticksSkipped, fetchOutcomes, parseFailures, occupied, lastCommit, cacheWrites, cacheWrite, enrollments, labLogs, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		tickDuration:    tickDuration,
		ticks:           ticks,
		ticksSkipped:    ticksSkipped,
		fetchOutcomes:   fetchOutcomes,
		parseFailures:   parseFailures,
		occupied:        occupied,
		lastCommit:      lastCommit,
		cacheWrites:     cacheWrites,
		cacheWrite:      cacheWrite,
		enrollments:     enrollments,
		labLogs:         labLogs,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveTick records a finished sync cycle.
func (m *MetricsService) ObserveTick(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(outcome).Inc()
	m.tickDuration.Observe(duration.Seconds())
}

// RecordTickSkipped counts a tick dropped by the in-flight guard.
func (m *MetricsService) RecordTickSkipped() {
	if m == nil {
		return
	}
	m.ticksSkipped.Inc()
}

// RecordFetch counts one collection fetch outcome.
func (m *MetricsService) RecordFetch(collection, kind string) {
	if m == nil {
		return
	}
	m.fetchOutcomes.WithLabelValues(collection, kind).Inc()
}

// RecordParseFailures counts subjects skipped for malformed times.
func (m *MetricsService) RecordParseFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.parseFailures.Add(float64(n))
}

// SetCommitted publishes the state of the latest committed cycle.
func (m *MetricsService) SetCommitted(occupied int, at time.Time) {
	if m == nil {
		return
	}
	m.occupied.Set(float64(occupied))
	m.lastCommit.Set(float64(at.Unix()))
}

// ObserveCacheWrite tracks one write-through operation.
func (m *MetricsService) ObserveCacheWrite(op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cacheWrites.WithLabelValues(op, result).Inc()
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordEnrollment counts an enrol attempt by outcome code.
func (m *MetricsService) RecordEnrollment(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "UNKNOWN"
	}
	m.enrollments.WithLabelValues(outcome).Inc()
}

// RecordLabLog counts a lock or unlock event.
func (m *MetricsService) RecordLabLog(status, result string) {
	if m == nil {
		return
	}
	m.labLogs.WithLabelValues(status, result).Inc()
}
