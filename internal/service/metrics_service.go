package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/ambassador-api/internal/models"
	"github.com/noah-isme/ambassador-api/pkg/jobs"
)

const metricsNamespace = "ambassador"

// MetricsService owns the Prometheus registry and keeps a few running
// totals for the admin metrics view. A nil *MetricsService is a no-op.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	httpDuration  *prometheus.HistogramVec
	cacheDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	intakes       *prometheus.CounterVec
	typeDraws     *prometheus.CounterVec
	completions   prometheus.Counter
	points        *prometheus.CounterVec
	notifications *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec

	totals struct {
		requests, requestNanos     atomic.Uint64
		cacheHits, cacheMisses     atomic.Uint64
		intakesOK, intakesRejected atomic.Uint64
		completions, points        atomic.Uint64
		notifySent, notifyFailed   atomic.Uint64
	}

	queuesMu sync.RWMutex
	queues   map[string]func() jobs.Stats
}

func NewMetricsService() *MetricsService {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: metricsNamespace, Subsystem: subsystem, Name: name, Help: help}, labels)
	}
	histogram := func(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return f.NewHistogramVec(prometheus.HistogramOpts{Namespace: metricsNamespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}, labels)
	}

	m := &MetricsService{
		registry: reg,
		queues:   map[string]func() jobs.Stats{},

		httpDuration: histogram("http", "request_duration_seconds", "HTTP request latency by route and status class.",
			[]float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}, "method", "route", "status"),
		cacheDuration: histogram("cache", "operation_duration_seconds", "Redis round trips by operation.",
			[]float64{.0005, .001, .0025, .005, .01, .025, .05, .1}, "op"),
		cacheLookups:  counter("cache", "lookups_total", "Cache reads by result.", "result"),
		intakes:       counter("", "intake_submissions_total", "Intake submissions by outcome.", "outcome"),
		typeDraws:     counter("", "type_assignments_total", "Ambassador types drawn at intake.", "type"),
		completions:   counter("", "challenge_completions_total", "Recorded challenge completions.").WithLabelValues(),
		points:        counter("", "points_awarded_total", "Points credited to applicants by source.", "source"),
		notifications: counter("", "notifications_total", "Outbound emails by template and outcome.", "template", "outcome"),
		rateLimited:   counter("http", "rate_limited_total", "Requests rejected by the rate limiter.", "route"),
	}
	f.NewGaugeFunc(prometheus.GaugeOpts{Namespace: metricsNamespace, Name: "cache_hit_ratio", Help: "Cache hits over lookups since start."}, m.hitRatio)
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	return m
}

// Handler serves the Prometheus exposition format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// TrackQueue exports depth and failure gauges for a job queue.
func (m *MetricsService) TrackQueue(name string, stats func() jobs.Stats) {
	if m == nil {
		return
	}
	m.queuesMu.Lock()
	m.queues[name] = stats
	m.queuesMu.Unlock()

	labels := prometheus.Labels{"queue": name}
	f := promauto.With(m.registry)
	f.NewGaugeFunc(prometheus.GaugeOpts{Namespace: metricsNamespace, Subsystem: "queue", Name: "pending", Help: "Jobs waiting for a worker.", ConstLabels: labels},
		func() float64 { return float64(stats().Pending) })
	f.NewCounterFunc(prometheus.CounterOpts{Namespace: metricsNamespace, Subsystem: "queue", Name: "failed_total", Help: "Jobs given up on.", ConstLabels: labels},
		func() float64 { return float64(stats().Failed) })
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status/100) + "xx"
}

func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, statusClass(status)).Observe(d.Seconds())
	m.totals.requests.Add(1)
	m.totals.requestNanos.Add(uint64(d.Nanoseconds()))
}

// RecordCacheOperation records one cache read.
func (m *MetricsService) RecordCacheOperation(hit bool, d time.Duration) {
	if m == nil {
		return
	}
	m.cacheDuration.WithLabelValues("get").Observe(d.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		m.totals.cacheHits.Add(1)
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
	m.totals.cacheMisses.Add(1)
}

func (m *MetricsService) ObserveCacheWrite(d time.Duration) {
	if m == nil {
		return
	}
	m.cacheDuration.WithLabelValues("set").Observe(d.Seconds())
}

// RecordIntake counts an intake submission. outcome is "accepted", "duplicate" or "rejected".
func (m *MetricsService) RecordIntake(outcome, ambassadorType string) {
	if m == nil {
		return
	}
	m.intakes.WithLabelValues(outcome).Inc()
	if outcome == "rejected" {
		m.totals.intakesRejected.Add(1)
		return
	}
	m.totals.intakesOK.Add(1)
	if ambassadorType != "" {
		m.typeDraws.WithLabelValues(ambassadorType).Inc()
	}
}

func (m *MetricsService) RecordCompletion() {
	if m == nil {
		return
	}
	m.completions.Inc()
	m.totals.completions.Add(1)
}

func (m *MetricsService) RecordPoints(source string, points int) {
	if m == nil || points <= 0 {
		return
	}
	m.points.WithLabelValues(source).Add(float64(points))
	m.totals.points.Add(uint64(points))
}

func (m *MetricsService) RecordNotification(template string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.notifications.WithLabelValues(template, "failed").Inc()
		m.totals.notifyFailed.Add(1)
		return
	}
	m.notifications.WithLabelValues(template, "sent").Inc()
	m.totals.notifySent.Add(1)
}

func (m *MetricsService) RecordRateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}

func (m *MetricsService) hitRatio() float64 {
	hits, misses := m.totals.cacheHits.Load(), m.totals.cacheMisses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// Snapshot returns the running totals for the admin metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := m.totals.requests.Load()
	var avgMs float64
	if requests > 0 {
		avgMs = float64(m.totals.requestNanos.Load()) / float64(requests) / float64(time.Millisecond)
	}
	snap := models.SystemMetrics{
		CacheHitRatio:            m.hitRatio(),
		CacheHits:                m.totals.cacheHits.Load(),
		CacheMisses:              m.totals.cacheMisses.Load(),
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgMs,
		IntakesAccepted:          m.totals.intakesOK.Load(),
		IntakesRejected:          m.totals.intakesRejected.Load(),
		ChallengeCompletions:     m.totals.completions.Load(),
		PointsAwarded:            m.totals.points.Load(),
		NotificationsSent:        m.totals.notifySent.Load(),
		NotificationsFailed:      m.totals.notifyFailed.Load(),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
	m.queuesMu.RLock()
	defer m.queuesMu.RUnlock()
	if len(m.queues) > 0 {
		snap.Queues = make(map[string]models.QueueDepth, len(m.queues))
		for name, stats := range m.queues {
			s := stats()
			snap.Queues[name] = models.QueueDepth{Pending: s.Pending, Retrying: s.Retrying, Processed: s.Processed, Failed: s.Failed}
		}
	}
	return snap
}
