// Package pipelines implements the background drivers of spec §4.7: each
// one streams work units through a jobs.Entity, checking IsCanceled at
// every iteration and calling UpdateProgress/Complete/SendError the way
// the common skeleton in §4.7 describes. Grounded on the teacher's
// internal/persist.go resumable-background-work style, generalized from
// "author refresh" to three distinct pipelines.
package pipelines

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"

	"github.com/bookwyrm/core/internal/apierrors"
	"github.com/bookwyrm/core/internal/jobs"
	"github.com/bookwyrm/core/internal/logging"
)

// ResultStore uploads a large completion payload to the cold tier and
// returns a fetchable URL, letting a driver supply resultsUrl instead of
// embedding the payload (spec §4.7 step 3). *cache.S3Store satisfies this
// structurally; a nil ResultStore means no object store is configured, and
// drivers fall back to always embedding the payload inline.
type ResultStore interface {
	PutResultSet(ctx context.Context, key string, payload []byte, ttl time.Duration) (string, error)
}

// inlineThreshold is the completion-payload size above which a driver
// offloads to ResultStore instead of embedding inline.
const inlineThreshold = 256 * 1024

// resultsTTL is how long an uploaded result set stays fetchable, matching
// the job cleanup window (spec §4.6) so a resultsUrl never outlives the
// job record that references it.
const resultsTTL = 24 * time.Hour

// maybeOffload marshals payload and, if it's larger than inlineThreshold and
// store is non-nil, uploads it and returns (nil, url). Otherwise it returns
// (payload, "") unchanged so the caller embeds it inline.
func maybeOffload(ctx context.Context, store ResultStore, jobID string, payload any) (any, string) {
	if store == nil {
		return payload, ""
	}
	raw, err := sonic.Marshal(payload)
	if err != nil || len(raw) <= inlineThreshold {
		return payload, ""
	}
	url, err := store.PutResultSet(ctx, jobID, raw, resultsTTL)
	if err != nil {
		logging.Log(ctx).Warn("result offload failed, embedding inline", "jobId", jobID, "err", err)
		return payload, ""
	}
	return nil, url
}

// retryAttempts/retryBackoff implement spec §4.8: individual pipeline items
// may be retried up to 3 attempts with fixed backoff for Timeout/
// Unavailable provider failures; RateLimited is not retried here, it's the
// orchestrator's job to have already skipped that provider.
const (
	retryAttempts = 3
	retryBackoff  = 500 * time.Millisecond
)

// withItemRetry runs fn up to retryAttempts times, stopping early on a
// non-retryable error or context cancellation.
func withItemRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		err = fn()
		if err == nil || !isRetryable(err) {
			return err
		}
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pe *apierrors.ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == apierrors.KindTimeout || pe.Kind == apierrors.KindUnavailable
	}
	return false
}

// checkCanceled is the per-iteration cancellation checkpoint every driver
// loop calls (spec §5 "check IsCanceled() at each loop iteration").
func checkCanceled(entity *jobs.Entity) bool {
	return entity.IsCanceled()
}
