// Command bookwyrm runs the book-tracking core service: the HTTP/WebSocket
// API (serve), a cache-bust operator tool (bust), and schema setup
// (migrate). Wiring mirrors the teacher's single kong-parsed cli struct with
// one Run method per subcommand.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/alecthomas/kong"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookwyrm/core/internal/cache"
	"github.com/bookwyrm/core/internal/config"
	"github.com/bookwyrm/core/internal/jobs"
	"github.com/bookwyrm/core/internal/logging"
	"github.com/bookwyrm/core/internal/metrics"
	"github.com/bookwyrm/core/internal/orchestrate"
	"github.com/bookwyrm/core/internal/pipelines"
	"github.com/bookwyrm/core/internal/providers"
	"github.com/bookwyrm/core/internal/ratelimit"
	"github.com/bookwyrm/core/internal/server"
)

// defaultEdgeTTL and defaultMaxUpstreamCalls mirror config.Cache/config.Jobs'
// own defaults (internal/config); serveCmd doesn't expose every knob as a
// flag yet, so these fill the gap until it does.
const (
	defaultEdgeTTL          = 5 * time.Minute
	defaultMaxUpstreamCalls = 50
)

type cli struct {
	Serve   serveCmd   `cmd:"" help:"Run the HTTP/WebSocket API."`
	Bust    bustCmd    `cmd:"" help:"Bust a cache entry by endpoint and params."`
	Migrate migrateCmd `cmd:"" help:"Create or update the Postgres schema."`
}

type pgFlags struct {
	PostgresHost     string `default:"localhost" help:"Postgres host."`
	PostgresUser     string `default:"postgres" help:"Postgres user."`
	PostgresPassword string `default:"" help:"Postgres password."`
	PostgresPort     int    `default:"5432" help:"Postgres port."`
	PostgresDatabase string `default:"bookwyrm" help:"Postgres database to use."`
}

func (p *pgFlags) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		p.PostgresUser, p.PostgresPassword, p.PostgresHost, p.PostgresPort, p.PostgresDatabase)
}

type logFlags struct {
	Verbose bool `help:"Increase log verbosity."`
}

func (l *logFlags) apply() {
	if l.Verbose {
		logging.SetVerbose()
	}
}

type secretFlags struct {
	CatalogAKey string `env:"CATALOG_A_API_KEY" help:"API key for catalog A."`
	CatalogCKey string `env:"CATALOG_C_API_KEY" help:"API key for catalog C."`
	OpenAIKey   string `env:"OPENAI_API_KEY" help:"API key for the AI vision/CSV providers."`
}

func (s *secretFlags) source() providers.EnvSource {
	return providers.EnvSource{
		"CATALOG_A_API_KEY": s.CatalogAKey,
		"CATALOG_C_API_KEY": s.CatalogCKey,
		"OPENAI_API_KEY":    s.OpenAIKey,
	}
}

type serveCmd struct {
	pgFlags
	logFlags
	secretFlags

	Port            int           `default:"8788" help:"Port to serve traffic on."`
	CatalogABase    string        `default:"https://catalog-a.example.com" help:"Catalog A base URL."`
	CatalogBBase    string        `default:"https://catalog-b.example.com" help:"Catalog B base URL."`
	CatalogCBase    string        `default:"https://catalog-c.example.com" help:"Catalog C base URL."`
	AIVisionModel   string        `default:"gpt-4o" help:"Model name for AI-vision bookshelf scans."`
	AICSVModel      string        `default:"gpt-4o-mini" help:"Model name for AI-assisted CSV parsing."`
	ColdBucket      string        `help:"S3 bucket backing the cold cache tier and pipeline result sets. Empty disables the cold tier."`
	ColdPrefix      string        `default:"bookwyrm/cache" help:"Key prefix inside the cold bucket."`
	RateLimitMax    int           `default:"10" help:"Requests allowed per rate-limit window."`
	RateLimitWindow time.Duration `default:"60s" help:"Rate-limit window size."`
	UpstreamRPS     float64       `default:"3" help:"Outbound requests per second per provider."`
}

func (c *serveCmd) Run() error {
	c.logFlags.apply()
	ctx := context.Background()

	db, err := pgxpool.New(ctx, c.dsn())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	var cold *cache.S3Store
	if c.ColdBucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("loading aws config: %w", err)
		}
		cold = cache.NewS3Store(s3.NewFromConfig(awsCfg), c.ColdBucket, c.ColdPrefix)
	}

	reg := metrics.NewRegistry()
	metrics.RegisterPool(reg, db)
	cacheMetrics := metrics.NewCacheMetrics(reg)

	warm := cache.NewPGStore(db)
	hierarchy, err := cache.NewHierarchy(warm, cold, defaultEdgeTTL, cacheMetrics)
	if err != nil {
		return fmt.Errorf("building cache hierarchy: %w", err)
	}

	secrets := c.secretFlags.source()
	catalogA := providers.NewCatalogA(c.CatalogABase, providers.NewUpstream(c.UpstreamRPS, nil), secrets)
	catalogB := providers.NewCatalogB(c.CatalogBBase, providers.NewUpstream(c.UpstreamRPS, nil), secrets)
	catalogC := providers.NewCatalogC(c.CatalogCBase, providers.NewUpstream(c.UpstreamRPS, nil), secrets)

	orch := orchestrate.New(catalogA, catalogB, catalogC, hierarchy, orchestrate.DefaultTTLs(), defaultMaxUpstreamCalls)

	aivision := providers.NewAIVision(c.OpenAIKey, c.AIVisionModel)
	aicsv := providers.NewAICSV(c.OpenAIKey, c.AICSVModel)

	resultStore := pipelines.ResultStore(nil)
	if cold != nil {
		resultStore = cold
	}
	aiscan := pipelines.NewAIScanDriver(aivision, orch, resultStore)
	csvimport := pipelines.NewCSVImportDriver(aicsv, orch, resultStore)
	batchenrich := pipelines.NewBatchEnrichmentDriver(orch, resultStore)

	jobPersister := jobs.NewPGPersister(db)
	registry := jobs.NewRegistry(jobPersister, jobs.DefaultConfig())

	rateStore := ratelimit.NewPGStore(db)
	limiter := ratelimit.New(c.RateLimitMax, c.RateLimitWindow, rateStore)

	sink := metrics.NewSink(1024)

	srv := server.New(server.Deps{
		Orchestrator:    orch,
		Limiter:         limiter,
		Registry:        registry,
		Metrics:         reg,
		Sink:            sink,
		Config:          defaultConfig(c),
		AIScan:          aiscan,
		CSVImport:       csvimport,
		BatchEnrichment: batchenrich,
	})

	addr := fmt.Sprintf(":%d", c.Port)
	httpServer := &http.Server{
		Handler:  srv.Router(),
		Addr:     addr,
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	}

	slog.Info("listening", "addr", addr)
	return httpServer.ListenAndServe()
}

func defaultConfig(c *serveCmd) config.Config {
	cfg := config.Config{Port: c.Port}
	cfg.RateLimit.Max = c.RateLimitMax
	cfg.RateLimit.Window = c.RateLimitWindow
	cfg.Providers.UpstreamRPS = c.UpstreamRPS
	return cfg
}

type bustCmd struct {
	pgFlags
	logFlags

	Endpoint string   `arg:"" help:"Cache key kind: title, isbn, author, or enrich. Advanced-search keys are not supported."`
	Params   []string `arg:"" optional:"" help:"Parameters for the given endpoint: title [author [maxResults]], isbn, author [limit [offset [sortBy]]], or a ref for enrich."`
}

func (b *bustCmd) Run() error {
	b.logFlags.apply()
	ctx := context.Background()

	db, err := pgxpool.New(ctx, b.dsn())
	if err != nil {
		return err
	}
	defer db.Close()

	warm := cache.NewPGStore(db)
	hierarchy, err := cache.NewHierarchy(warm, nil, 5*time.Minute, nil)
	if err != nil {
		return err
	}

	key, err := bustKey(b.Endpoint, b.Params)
	if err != nil {
		return err
	}
	if err := hierarchy.Delete(ctx, key); err != nil {
		return err
	}
	slog.Info("busted", "endpoint", b.Endpoint, "key", key)
	return nil
}

// bustArg returns params[i], or def if params is too short.
func bustArg(params []string, i int, def string) string {
	if i < len(params) {
		return params[i]
	}
	return def
}

func bustIntArg(params []string, i int, def int) (int, error) {
	raw := bustArg(params, i, "")
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func bustKey(endpoint string, params []string) (string, error) {
	switch endpoint {
	case "title":
		if len(params) == 0 {
			return "", fmt.Errorf("bust title requires a title argument")
		}
		author := bustArg(params, 1, "")
		maxResults, err := bustIntArg(params, 2, 0)
		if err != nil {
			return "", fmt.Errorf("bust title: invalid maxResults: %w", err)
		}
		return cache.TitleSearchKey(params[0], author, maxResults), nil
	case "isbn":
		if len(params) == 0 {
			return "", fmt.Errorf("bust isbn requires an isbn argument")
		}
		return cache.ISBNSearchKey(params[0]), nil
	case "author":
		if len(params) == 0 {
			return "", fmt.Errorf("bust author requires an author argument")
		}
		limit, err := bustIntArg(params, 1, 0)
		if err != nil {
			return "", fmt.Errorf("bust author: invalid limit: %w", err)
		}
		offset, err := bustIntArg(params, 2, 0)
		if err != nil {
			return "", fmt.Errorf("bust author: invalid offset: %w", err)
		}
		sortBy := bustArg(params, 3, "")
		return cache.AuthorSearchKey(params[0], limit, offset, sortBy), nil
	case "enrich":
		if len(params) == 0 {
			return "", fmt.Errorf("bust enrich requires a ref argument")
		}
		return cache.EnrichmentKey(params[0]), nil
	default:
		return "", fmt.Errorf("unknown bust endpoint %q", endpoint)
	}
}

type migrateCmd struct {
	pgFlags
	logFlags
}

// schema creates the tables the warm cache tier and job/rate-limit
// persisters assume already exist. Idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS cache (
	key text PRIMARY KEY,
	value bytea NOT NULL,
	expires_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS cache_expires_at_idx ON cache (expires_at);

CREATE TABLE IF NOT EXISTS job_state (
	job_id text PRIMARY KEY,
	pipeline text NOT NULL,
	status text NOT NULL,
	version bigint NOT NULL,
	body jsonb NOT NULL
);

CREATE TABLE IF NOT EXISTS job_tokens (
	job_id text PRIMARY KEY,
	value text NOT NULL,
	expires_at bigint NOT NULL
);

CREATE TABLE IF NOT EXISTS rate_limits (
	client_key text PRIMARY KEY,
	window_start bigint NOT NULL,
	count integer NOT NULL
);
`

func (m *migrateCmd) Run() error {
	m.logFlags.apply()
	ctx := context.Background()

	db, err := pgxpool.New(ctx, m.dsn())
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(ctx, schema)
	return err
}

func main() {
	kctx := kong.Parse(&cli{})
	if err := kctx.Run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func init() {
	_, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithLogger(slog.Default()),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
	)
	if err != nil {
		panic(err)
	}
}
