package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Prometheus 的 registry 不允许重复注册同名指标，否则会 panic。
	once sync.Once

	// route 用路由模板 (例如 /api/links/:id)，不要用真实 path，否则 label 基数无限。
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPInflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// outcome: redirect | not_found | bad_input | error
	Redirects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_redirects_total",
			Help: "Redirect resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	SlugCollisions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shortener_slug_collisions_total",
			Help: "Generated slugs rejected because the (domain, slug) pair was taken.",
		},
	)

	SlugExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shortener_slug_exhausted_total",
			Help: "Link creations that ran out of slug attempts.",
		},
	)

	// sink: channel | redis | kafka | direct
	ClicksDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_clicks_dropped_total",
			Help: "Click events that were not counted.",
		},
		[]string{"sink"},
	)

	// layer: local | redis ; result: hit | miss | negative_hit | error
	CacheOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_cache_operations_total",
			Help: "Resolution cache lookups by layer and result.",
		},
		[]string{"layer", "result"},
	)
)

// Init 注册指标：只允许注册一次
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			HTTPInflightRequests,
			Redirects,
			SlugCollisions,
			SlugExhausted,
			ClicksDropped,
			CacheOperations,
		)
	})
}
