package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the storefront's Prometheus collectors.
type Metrics struct {
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	CacheLookups       *prometheus.CounterVec
	PageRenders        *prometheus.CounterVec
	SessionsActive     prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors and registers them on reg. A nil registry gets a
// fresh one so tests never collide on the global default.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{registry: reg}

	m.APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmstand_api_requests_total",
			Help: "Marketplace API calls issued by the storefront",
		},
		[]string{"method", "endpoint", "status"},
	)
	m.APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "farmstand_api_request_duration_seconds",
			Help:    "Latency of marketplace API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
	m.CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmstand_refcache_lookups_total",
			Help: "Reference data cache lookups by collection and result",
		},
		[]string{"collection", "result"},
	)
	m.PageRenders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmstand_page_renders_total",
			Help: "Page renders dispatched by the view router",
		},
		[]string{"page"},
	)
	m.SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "farmstand_sessions_active",
			Help: "Browser sessions held in memory",
		},
	)

	reg.MustRegister(m.APIRequestsTotal, m.APIRequestDuration, m.CacheLookups, m.PageRenders, m.SessionsActive)
	return m
}

// ObserveAPI records one upstream call. status 0 means no response arrived.
func (m *Metrics) ObserveAPI(method, endpoint string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.APIRequestsTotal.WithLabelValues(method, endpoint, code).Inc()
	m.APIRequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

// ObserveCache records a hit or miss for a cached collection.
func (m *Metrics) ObserveCache(collection string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(collection, result).Inc()
}

func (m *Metrics) ObserveRender(page string) {
	if m == nil {
		return
	}
	m.PageRenders.WithLabelValues(page).Inc()
}

func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
