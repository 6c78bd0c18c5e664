package ratelimit

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookwyrm/core/internal/domain"
)

// PGStore is the durable backing for rate-limit counters, grounded on the
// same pgx pool the warm cache tier uses (spec OQ-5 decision in
// SPEC_FULL.md: one fewer moving part than introducing Redis purely for
// this).
type PGStore struct {
	db *pgxpool.Pool
}

// NewPGStore builds a Store against an already-migrated "rate_limits"
// table: client_key text primary key, window_start bigint, count int.
func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Load(ctx context.Context, clientKey string) (domain.RateLimitCounter, bool, error) {
	var c domain.RateLimitCounter
	err := s.db.QueryRow(ctx,
		`SELECT window_start, count FROM rate_limits WHERE client_key = $1`, clientKey,
	).Scan(&c.WindowStart, &c.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RateLimitCounter{}, false, nil // absent row is a miss, not a failure
	}
	if err != nil {
		return domain.RateLimitCounter{}, false, err
	}
	return c, true, nil
}

func (s *PGStore) Save(ctx context.Context, clientKey string, c domain.RateLimitCounter) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rate_limits (client_key, window_start, count)
		VALUES ($1, $2, $3)
		ON CONFLICT (client_key) DO UPDATE SET window_start = excluded.window_start, count = excluded.count
	`, clientKey, c.WindowStart, c.Count)
	return err
}
