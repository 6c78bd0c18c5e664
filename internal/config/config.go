// Package config holds the process-wide configuration knobs read once at
// startup (spec §6 "Configuration knobs"). Nothing here is hot-reloaded;
// that's deliberate per the teacher's "one enumerated configuration value"
// approach to dynamic config.
package config

import "time"

// Postgres describes how to reach the warm-tier / durable store.
type Postgres struct {
	Host     string `default:"localhost" help:"Postgres host."`
	User     string `default:"postgres" help:"Postgres user."`
	Password string `default:"" help:"Postgres password."`
	Port     int    `default:"5432" help:"Postgres port."`
	Database string `default:"bookwyrm" help:"Postgres database to use."`
}

// Log controls verbosity for the charmbracelet/log-backed logger.
type Log struct {
	Verbose bool `help:"increase log verbosity"`
}

// Cache carries the per-endpoint TTLs from spec §6.
type Cache struct {
	EdgeTTL         time.Duration `default:"5m" help:"Hot/edge tier TTL."`
	TitleTTL        time.Duration `default:"6h" help:"Title search warm-tier TTL."`
	ISBNTTL         time.Duration `default:"8760h" help:"ISBN search warm-tier TTL."`
	AuthorTTL       time.Duration `default:"6h" help:"Author search warm-tier TTL."`
	CoverTTL        time.Duration `default:"8760h" help:"Cover metadata warm-tier TTL."`
	ColdIndexTTL    time.Duration `default:"2160h" help:"Cold-tier index TTL (90 days)."`
	ColdBucket      string        `help:"Object-store bucket for the cold tier."`
	ColdPrefix      string        `default:"bookwyrm/cache" help:"Key prefix inside the cold bucket."`
}

// RateLimit mirrors spec §4.4: 10 req / 60s per client, fail-open.
type RateLimit struct {
	Max      int           `default:"10" help:"Requests allowed per window."`
	Window   time.Duration `default:"60s" help:"Fixed window size."`
}

// Providers carries per-call deadlines from spec §4.1.
type Providers struct {
	CatalogTimeout time.Duration `default:"5s" help:"Deadline for catalog provider calls."`
	AITimeout      time.Duration `default:"30s" help:"Deadline for AI provider calls."`
	ImageTimeout   time.Duration `default:"10s" help:"Deadline for image downloads."`
	UpstreamRPS    float64       `default:"3" help:"Outbound requests per second per provider."`
}

// Jobs carries the per-job entity's throttled-persistence and lifecycle
// knobs from spec §4.6.
type Jobs struct {
	PersistN            int           `default:"20" help:"Persist after this many buffered updates."`
	PersistT             time.Duration `default:"30s" help:"Persist after this much time has elapsed."`
	CleanupAfter         time.Duration `default:"24h" help:"Delete terminal job state after this long."`
	TokenTTL             time.Duration `default:"2h" help:"Auth token lifetime."`
	TokenRefreshWindow   time.Duration `default:"30m" help:"Window before expiry in which a refresh is allowed."`
	MaxUpstreamCalls     int           `default:"50" help:"Hard cap on upstream calls per logical request."`
}

// Config is the fully assembled, read-once configuration for the server.
type Config struct {
	Postgres  Postgres
	Log       Log
	Cache     Cache
	RateLimit RateLimit
	Providers Providers
	Jobs      Jobs

	Port int `default:"8788" help:"Port to serve traffic on."`
}

// AnalyticsSampling maps an endpoint path to a sampling rate in [0,1], per
// spec §6's ANALYTICS_SAMPLING knob.
var AnalyticsSampling = map[string]float64{
	"/v1/search/title":          0.1,
	"/v1/search/isbn":           0.2,
	"/v1/search/author":         0.1,
	"/v1/search/advanced":       0.1,
	"/api/enrichment/start":     0.5,
	"/api/scan-bookshelf":       0.5,
	"/api/scan-bookshelf/batch": 0.5,
	"/api/import/csv":           0.5,
}
