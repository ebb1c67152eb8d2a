package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/ims-admission-api/internal/models"
)

// MetricsService owns the Prometheus registry and keeps plain counters
// alongside it for the JSON snapshot endpoint. All methods tolerate a nil
// receiver so wiring can pass the service through unconditionally.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	transitionTotal  *prometheus.CounterVec
	notificationRuns *prometheus.CounterVec
	chainChecks      *prometheus.CounterVec
	cacheLatency     prometheus.Observer
	cacheWrite       prometheus.Observer
	cacheHitRatio    prometheus.Gauge
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	dbQueryDuration  *prometheus.HistogramVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	transitionCount      uint64
	transitionDenied     uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64

	streamClients    func() int
	reportQueueDepth func() int
}

// NewMetricsService builds a private registry with every collector the API
// emits. A private registry keeps test instances from colliding.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration by route template",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route template and status",
	}, []string{"method", "path", "status"})

	transitionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_transitions_total",
		Help: "Lifecycle transitions by action and outcome",
	}, []string{"action", "outcome"})

	notificationRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_notifications_total",
		Help: "Student notifications by outcome",
	}, []string{"outcome"})

	chainChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_chain_verifications_total",
		Help: "Audit chain verification runs by outcome",
	}, []string{"outcome"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Redis read latency",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Redis write latency",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Cache hits over total lookups since start",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Cache lookups answered from Redis",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Cache lookups that fell through to Postgres",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Query duration by repository label",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Live goroutines in the API process",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transitionTotal, notificationRuns, chainChecks, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, dbQueryDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		transitionTotal:  transitionTotal,
		notificationRuns: notificationRuns,
		chainChecks:      chainChecks,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheHitRatio:    cacheHitRatio,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
		dbQueryDuration:  dbQueryDuration,
	}
}

// Handler serves the Prometheus scrape endpoint. A nil service answers 503
// so the route can stay mounted while metrics are disabled.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// SetStreamClientSource registers the callback used to report connected
// websocket clients in snapshots.
func (m *MetricsService) SetStreamClientSource(source func() int) {
	if m == nil {
		return
	}
	m.streamClients = source
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "stream_clients",
		Help: "Connected websocket dashboard clients",
	}, func() float64 {
		return float64(source())
	})
	m.registry.MustRegister(gauge)
}

// SetReportQueueDepthSource registers the callback used to report buffered
// report jobs in snapshots.
func (m *MetricsService) SetReportQueueDepthSource(source func() int) {
	if m == nil {
		return
	}
	m.reportQueueDepth = source
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "report_queue_depth",
		Help: "Report jobs waiting in the worker queue",
	}, func() float64 {
		return float64(source())
	})
	m.registry.MustRegister(gauge)
}

// ObserveHTTPRequest feeds the request histograms and the snapshot
// counters in one call.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordTransition counts a lifecycle transition attempt.
func (m *MetricsService) RecordTransition(action models.Action, allowed bool) {
	if m == nil {
		return
	}
	outcome := "applied"
	if !allowed {
		outcome = "denied"
		atomic.AddUint64(&m.transitionDenied, 1)
	} else {
		atomic.AddUint64(&m.transitionCount, 1)
	}
	m.transitionTotal.WithLabelValues(string(action), outcome).Inc()
}

// RecordNotification counts a post-transition notification attempt.
func (m *MetricsService) RecordNotification(delivered bool) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if !delivered {
		outcome = "failed"
	}
	m.notificationRuns.WithLabelValues(outcome).Inc()
}

// RecordChainVerification counts an audit chain verification run.
func (m *MetricsService) RecordChainVerification(intact bool) {
	if m == nil {
		return
	}
	outcome := "intact"
	if !intact {
		outcome = "broken"
	}
	m.chainChecks.WithLabelValues(outcome).Inc()
}

// RecordCacheOperation counts one cache lookup and refreshes the hit
// ratio gauge.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite times one cache population.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery times one query under the given repository label.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// Snapshot returns aggregated metrics suitable for the metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	transitions := atomic.LoadUint64(&m.transitionCount)
	denied := atomic.LoadUint64(&m.transitionDenied)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)
	dbDuration := atomic.LoadUint64(&m.dbQueryDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgDBMs float64
	if dbCount > 0 {
		avgDBMs = float64(dbDuration) / float64(dbCount) / float64(time.Millisecond)
	}

	var clients int
	if m.streamClients != nil {
		clients = m.streamClients()
	}
	var queued int
	if m.reportQueueDepth != nil {
		queued = m.reportQueueDepth()
	}

	return models.SystemMetrics{
		HTTP: models.HTTPMetrics{
			RequestsTotal:     requests,
			AverageDurationMs: avgRequestMs,
		},
		Cache: models.CacheMetrics{
			HitRatio: cacheRatio,
			Hits:     hits,
			Misses:   misses,
		},
		DB: models.DBMetrics{
			QueryCount:        dbCount,
			AverageDurationMs: avgDBMs,
		},
		Admissions: models.AdmissionMetrics{
			TransitionsApplied: transitions,
			TransitionsDenied:  denied,
			StreamClients:      clients,
		},
		Reports: models.ReportMetrics{
			QueueDepth: queued,
		},
		Goroutines:  runtime.NumGoroutine(),
		GeneratedAt: time.Now().UTC(),
	}
}
