package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/conference-timetable/internal/models"
)

// Commit outcomes recorded by ObserveCommit.
const (
	CommitOutcomeCommitted  = "committed"
	CommitOutcomeRejected   = "rejected"
	CommitOutcomeStructural = "structural"
	CommitOutcomeFailed     = "failed"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface,
// the audit cache and the timetable engine. All methods are nil-safe.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	commits           *prometheus.CounterVec
	violations        *prometheus.CounterVec
	stagedOps         *prometheus.CounterVec
	commitDuration    prometheus.Observer
	auditDuration     prometheus.Observer
	auditJobs         *prometheus.CounterVec
	inconsistentGauge prometheus.Gauge

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors on a private registry.
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	commits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_commits_total",
		Help: "Timetable transactions by outcome",
	}, []string{"outcome"})

	violations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_violations_total",
		Help: "Invariant violations reported by rejected commits, by kind",
	}, []string{"kind"})

	stagedOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_staged_operations_total",
		Help: "Mutations staged into timetable transactions, by operation",
	}, []string{"op"})

	commitDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_commit_duration_seconds",
		Help:    "Time from begin to commit or rejection of a timetable transaction",
		Buckets: prometheus.DefBuckets,
	})

	auditDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_audit_duration_seconds",
		Help:    "Time spent validating one persisted event timetable",
		Buckets: prometheus.DefBuckets,
	})

	auditJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_audit_jobs_total",
		Help: "Background audit jobs by outcome",
	}, []string{"outcome"})

	inconsistent := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_inconsistent_events",
		Help: "Events found inconsistent by the latest audit sweep",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		commits, violations, stagedOps, commitDuration, auditDuration, auditJobs, inconsistent,
		goroutines,
	)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHitRatio:     cacheHitRatio,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		commits:           commits,
		violations:        violations,
		stagedOps:         stagedOps,
		commitDuration:    commitDuration,
		auditDuration:     auditDuration,
		auditJobs:         auditJobs,
		inconsistentGauge: inconsistent,
	}
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveStagedOp counts one staged mutation.
func (m *MetricsService) ObserveStagedOp(op string) {
	if m == nil {
		return
	}
	m.stagedOps.WithLabelValues(op).Inc()
}

// ObserveCommit records the outcome of a timetable transaction and, for
// rejected ones, every violation kind.
func (m *MetricsService) ObserveCommit(outcome string, duration time.Duration, violations []models.Violation) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(outcome).Inc()
	m.commitDuration.Observe(duration.Seconds())
	for _, v := range violations {
		m.violations.WithLabelValues(string(v.Kind)).Inc()
	}
}

// ObserveAudit records how long validating one event took.
func (m *MetricsService) ObserveAudit(duration time.Duration) {
	if m == nil {
		return
	}
	m.auditDuration.Observe(duration.Seconds())
}

// ObserveAuditJob counts a background audit job by outcome.
func (m *MetricsService) ObserveAuditJob(outcome string) {
	if m == nil {
		return
	}
	m.auditJobs.WithLabelValues(outcome).Inc()
}

// SetInconsistentEvents publishes the sweep's inconsistent event count.
func (m *MetricsService) SetInconsistentEvents(n int) {
	if m == nil {
		return
	}
	m.inconsistentGauge.Set(float64(n))
}
