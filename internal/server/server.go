// Package server implements the HTTP/WebSocket surface of spec §6: the chi
// router, every REST handler, the progress WebSocket upgrade, and the
// response envelope/header contract. Grounded on the teacher's handler.go
// (mux wiring, cacheFor headers, bulk fan-out) generalized from a single
// Readarr-shaped resource tree onto this spec's search/ingestion API.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/stampede"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bookwyrm/core/internal/config"
	"github.com/bookwyrm/core/internal/jobs"
	"github.com/bookwyrm/core/internal/logging"
	"github.com/bookwyrm/core/internal/metrics"
	"github.com/bookwyrm/core/internal/orchestrate"
	"github.com/bookwyrm/core/internal/pipelines"
	"github.com/bookwyrm/core/internal/ratelimit"
)

// Server wires every component the HTTP surface needs. One instance is
// built at startup and shared across all requests.
type Server struct {
	orch     *orchestrate.Orchestrator
	limiter  *ratelimit.Limiter
	registry *jobs.Registry
	reg      *prometheus.Registry
	sink     *metrics.Sink
	cfg      config.Config

	aiscan      *pipelines.AIScanDriver
	csvimport   *pipelines.CSVImportDriver
	batchenrich *pipelines.BatchEnrichmentDriver
}

// Deps carries every dependency NewServer needs, grouped so call sites
// don't juggle a long positional argument list.
type Deps struct {
	Orchestrator *orchestrate.Orchestrator
	Limiter      *ratelimit.Limiter
	Registry     *jobs.Registry
	Metrics      *prometheus.Registry
	Sink         *metrics.Sink
	Config       config.Config

	AIScan          *pipelines.AIScanDriver
	CSVImport       *pipelines.CSVImportDriver
	BatchEnrichment *pipelines.BatchEnrichmentDriver
}

// New builds a Server from deps.
func New(deps Deps) *Server {
	return &Server{
		orch:        deps.Orchestrator,
		limiter:     deps.Limiter,
		registry:    deps.Registry,
		reg:         deps.Metrics,
		sink:        deps.Sink,
		cfg:         deps.Config,
		aiscan:      deps.AIScan,
		csvimport:   deps.CSVImport,
		batchenrich: deps.BatchEnrichment,
	}
}

// Router assembles the chi mux with the full middleware chain (spec §6,
// SPEC_FULL.md ambient stack) and every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)
	r.Use(logging.Middleware)
	r.Use(func(next http.Handler) http.Handler { return metrics.Instrument(s.reg, next) })
	r.Use(responseTime)
	r.Use(s.analytics)
	r.Use(gzhttp.GzipHandler)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	coalesce := stampede.Handler(512, time.Second)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.With(coalesce).Get("/v1/search/title", s.handleSearchTitle)
		r.With(coalesce).Get("/v1/search/isbn", s.handleSearchISBN)
		r.With(coalesce).Get("/v1/search/author", s.handleSearchAuthor)
		r.Get("/v1/search/advanced", s.handleSearchAdvanced)
		r.Post("/v1/search/advanced", s.handleSearchAdvanced)
		r.With(coalesce).Get("/v1/books/bulk", s.handleBulkLookup)

		r.Post("/api/enrichment/start", s.handleEnrichmentStart)
		r.Post("/api/enrichment/cancel", s.handleEnrichmentCancel)
		r.Post("/api/scan-bookshelf", s.handleScanBookshelf)
		r.Post("/api/scan-bookshelf/batch", s.handleScanBookshelfBatch)
		r.Post("/api/import/csv", s.handleImportCSV)
		r.Post("/api/token/refresh", s.handleTokenRefresh)

		r.Get("/ws/progress", s.handleWebSocket)
	})

	return r
}
