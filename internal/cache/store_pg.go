package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eko/gocache/lib/v4/store"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStoreType is reported by GetType so metrics/logging can attribute a hit
// to the warm tier.
const PGStoreType = "postgres"

// PGStore is a warm-tier cache store backed by a Postgres table, following
// the teacher's "Postgres as a cache table" idiom from its Persister.
type PGStore struct {
	db *pgxpool.Pool
}

var _ store.StoreInterface = (*PGStore)(nil)

// NewPGStore creates a warm-tier store against an already-migrated "cache"
// table: key text primary key, value bytea, expires_at timestamptz.
func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// Get returns the raw value for key, or an error satisfying
// errors.Is(err, ErrCacheMiss) if absent or expired.
func (p *PGStore) Get(ctx context.Context, key any) (any, error) {
	v, _, err := p.getWithTTL(ctx, key)
	return v, err
}

// GetWithTTL returns the raw value and its remaining TTL.
func (p *PGStore) GetWithTTL(ctx context.Context, key any) (any, time.Duration, error) {
	return p.getWithTTL(ctx, key)
}

func (p *PGStore) getWithTTL(ctx context.Context, key any) ([]byte, time.Duration, error) {
	k := fmt.Sprint(key)
	var value []byte
	var expiresAt time.Time
	err := p.db.QueryRow(ctx,
		`SELECT value, expires_at FROM cache WHERE key = $1 AND expires_at > now()`, k,
	).Scan(&value, &expiresAt)
	if err != nil {
		return nil, 0, ErrCacheMiss
	}
	return value, time.Until(expiresAt), nil
}

// Set upserts key with the given TTL.
func (p *PGStore) Set(ctx context.Context, key any, value any, options ...store.Option) error {
	k := fmt.Sprint(key)
	v, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("postgres store only accepts []byte values, got %T", value)
	}

	opts := store.ApplyOptions(options...)
	ttl := opts.Expiration()
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	_, err := p.db.Exec(ctx, `
		INSERT INTO cache (key, value, expires_at)
		VALUES ($1, $2, now() + $3::interval)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, k, v, ttl.String())
	return err
}

// Delete removes key.
func (p *PGStore) Delete(ctx context.Context, key any) error {
	_, err := p.db.Exec(ctx, `DELETE FROM cache WHERE key = $1`, fmt.Sprint(key))
	return err
}

// Invalidate is a no-op: this store doesn't support tag-based invalidation.
func (p *PGStore) Invalidate(ctx context.Context, options ...store.InvalidateOption) error {
	return nil
}

// Clear truncates the entire cache table. Neither request handling nor the
// bust command calls it.
func (p *PGStore) Clear(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `TRUNCATE TABLE cache`)
	return err
}

// GetType reports this store's kind for gocache's internal bookkeeping.
func (p *PGStore) GetType() string {
	return PGStoreType
}

// ErrCacheMiss is returned by any tier when a key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")
