package jobs

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookwyrm/core/internal/domain"
)

// PGPersister is the durable Persister backing JobState/AuthToken, sharing
// the warm-tier pgx pool with internal/cache (spec DOMAIN STACK: "a table
// keyed by string, TTL column, JSONB value" -- the same shape as the cache
// table, just with two columns instead of one blob).
type PGPersister struct {
	db *pgxpool.Pool
}

// NewPGPersister builds a Persister against already-migrated "job_state"
// and "job_tokens" tables.
func NewPGPersister(db *pgxpool.Pool) *PGPersister {
	return &PGPersister{db: db}
}

func (p *PGPersister) SaveState(ctx context.Context, state domain.JobState) error {
	body, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO job_state (job_id, pipeline, status, version, body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id) DO UPDATE SET
			status = excluded.status, version = excluded.version, body = excluded.body
	`, state.JobID, string(state.Pipeline), string(state.Status), state.Version, body)
	return err
}

func (p *PGPersister) SaveToken(ctx context.Context, token domain.AuthToken) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO job_tokens (job_id, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, token.JobID, token.Value, token.ExpiresAt)
	return err
}

func (p *PGPersister) DeleteState(ctx context.Context, jobID string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM job_state WHERE job_id = $1`, jobID)
	return err
}

func (p *PGPersister) DeleteToken(ctx context.Context, jobID string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM job_tokens WHERE job_id = $1`, jobID)
	return err
}

// LoadState retrieves a previously-persisted state; an absent row reports
// ok=false. The Registry does not call it, so no Entity is rehydrated from
// storage after a process restart.
func (p *PGPersister) LoadState(ctx context.Context, jobID string) (domain.JobState, bool, error) {
	var body []byte
	err := p.db.QueryRow(ctx, `SELECT body FROM job_state WHERE job_id = $1`, jobID).Scan(&body)
	if err != nil {
		return domain.JobState{}, false, nil //nolint:nilerr // absent row is a miss, not a failure
	}
	var state domain.JobState
	if err := json.Unmarshal(body, &state); err != nil {
		return domain.JobState{}, false, err
	}
	return state, true, nil
}
