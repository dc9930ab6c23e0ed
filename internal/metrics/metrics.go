// Package metrics exposes Prometheus collectors for reconciliation, the dataset view cache,
// background jobs and HTTP requests.
//
// All methods are safe to call on a nil [*Metrics], which records nothing.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reconcile outcomes.
const (
	OutcomeSkipped   = "skipped"   // terminal task, no status query
	OutcomeUnchanged = "unchanged" // status queried, nothing to persist
	OutcomeUpdated   = "updated"   // new state persisted
	OutcomeForced    = "forced"    // no task, forced to SUCCESS
	OutcomeError     = "error"     // status query or persistence failed
)

// Cache results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry     *prometheus.Registry
	reconciles   *prometheus.CounterVec
	statusQuery  prometheus.Histogram
	viewCache    *prometheus.CounterVec
	jobs         *prometheus.CounterVec
	jobsRunning  *prometheus.GaugeVec
	downloaded   prometheus.Histogram
	httpRequests *prometheus.HistogramVec
}

// New builds and registers every collector with names prefixed by namespace.
func New(namespace string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.reconciles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_reconcile_total", namespace),
			Help: "Dataset reconciliations by outcome",
		},
		[]string{"outcome"},
	)

	m.statusQuery = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    fmt.Sprintf("%s_status_query_seconds", namespace),
		Help:    "Latency of task status queries",
		Buckets: prometheus.DefBuckets,
	})

	m.viewCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_view_cache_total", namespace),
			Help: "Dataset view cache lookups by result",
		},
		[]string{"result"},
	)

	m.jobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_jobs_total", namespace),
			Help: "Finished acquisition jobs by kind and final state",
		},
		[]string{"kind", "state"},
	)

	m.jobsRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_jobs_running", namespace),
			Help: "Acquisition jobs currently executing",
		},
		[]string{"kind"},
	)

	// 1KB .. 1GB
	m.downloaded = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    fmt.Sprintf("%s_download_object_bytes", namespace),
		Help:    "Size of objects fetched from remote dataset storage",
		Buckets: prometheus.ExponentialBuckets(1024, 10, 7),
	})

	m.httpRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_http_request_seconds", namespace),
			Help:    "HTTP request latency by route and status code",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "code"},
	)

	m.registry.MustRegister(
		m.reconciles, m.statusQuery, m.viewCache, m.jobs, m.jobsRunning, m.downloaded, m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Reconciled(outcome string) {
	if m == nil {
		return
	}
	m.reconciles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StatusQueried(d time.Duration) {
	if m == nil {
		return
	}
	m.statusQuery.Observe(d.Seconds())
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.viewCache.WithLabelValues(result).Inc()
}

// JobStarted increments the running gauge; the returned func records the final state and decrements it.
func (m *Metrics) JobStarted(kind string) func(state string) {
	if m == nil {
		return func(string) {}
	}
	m.jobsRunning.WithLabelValues(kind).Inc()
	return func(state string) {
		m.jobsRunning.WithLabelValues(kind).Dec()
		m.jobs.WithLabelValues(kind, state).Inc()
	}
}

func (m *Metrics) Downloaded(bytes int64) {
	if m == nil {
		return
	}
	m.downloaded.Observe(float64(bytes))
}

func (m *Metrics) RequestServed(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, fmt.Sprint(code)).Observe(d.Seconds())
}
