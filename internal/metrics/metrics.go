// Package metrics registers and exposes the Prometheus collectors shared by
// the HTTP layer, the cache hierarchy, the provider orchestrator, and the
// job pipelines. Layout mirrors the teacher's per-subsystem metrics structs
// registered against one shared registry.
package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "bookwyrm"

// patternRE strips chi's `{param}` segments from a route pattern so that
// e.g. "/v1/editions/{isbn}" and "/v1/editions/{id}" both collapse to one
// label value instead of spamming cardinality.
var patternRE = regexp.MustCompile(`\{[^/]+\}`)

func normalizePattern(pattern string) string {
	return patternRE.ReplaceAllString(pattern, "*")
}

// NewRegistry creates a fresh registry with Go/process/build collectors
// already attached.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
		collectors.NewBuildInfoCollector(),
	)
	return reg
}

// RegisterPool attaches a pgxpool connection-stat collector to reg, so idle
// connections, acquire wait time, and max-lifetime destroys show up next to
// the rest of the service's metrics.
func RegisterPool(reg *prometheus.Registry, db *pgxpool.Pool) {
	reg.MustRegister(pgxpoolprometheus.NewCollector(db, nil))
}

// Instrument wraps next with request latency/inflight/status tracking.
func Instrument(reg *prometheus.Registry, next http.Handler) http.Handler {
	requests := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests",
			Help:      "HTTP request latencies by method, path, and status.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)
	inflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight",
		Help:      "Current in-flight HTTP requests.",
	})
	reg.MustRegister(requests, inflight)

	normalized := map[string]string{}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inflight.Inc()
		defer inflight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chiPattern(r)
		path, ok := normalized[pattern]
		if !ok {
			path = normalizePattern(pattern)
			normalized[pattern] = path
		}
		if path == "" {
			return
		}
		requests.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Observe(time.Since(start).Seconds())
	})
}

// chiPattern returns the matched route pattern (e.g. "/v1/editions/{isbn}"),
// which chi populates via r.Pattern on go1.22+ ServeMux semantics, falling
// back to the raw path for unmatched routes.
func chiPattern(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.URL.Path
}

// CacheMetrics tracks per-tier hit/miss/skip counters for the cache
// hierarchy. Every hit is a plain counter increment on the hot Get path,
// matching the teacher's preference for cheap counters over latency-sensitive
// code.
type CacheMetrics struct {
	hits    *prometheus.CounterVec
	misses  prometheus.Counter
	skipped prometheus.Counter
}

// NewCacheMetrics registers the cache hierarchy's collectors against reg.
func NewCacheMetrics(reg *prometheus.Registry) *CacheMetrics {
	m := &CacheMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by tier (edge, warm, cold).",
		}, []string{"tier"}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses across every tier.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "skipped_identical_writes_total",
			Help:      "Writes skipped because the new value was byte-identical to what's cached.",
		}),
	}
	reg.MustRegister(m.hits, m.misses, m.skipped)
	return m
}

// Hit records a cache hit at the given tier ("edge", "warm", "cold").
func (m *CacheMetrics) Hit(tier string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(tier).Inc()
}

// Miss records a full cache miss (every tier consulted, none had the key).
func (m *CacheMetrics) Miss() {
	if m == nil {
		return
	}
	m.misses.Inc()
}

// SkippedIdenticalWrite records a Set that was elided because the value was
// unchanged (the ETag-diff skip).
func (m *CacheMetrics) SkippedIdenticalWrite() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}
