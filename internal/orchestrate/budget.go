// Package orchestrate implements the Provider Orchestrator of spec §4.5:
// per-logical-query provider fan-out, fallback chains, normalization,
// dedup, quality scoring, and cache population. Grounded on the teacher's
// Controller (internal/controller.go), which plays the analogous "decide
// which upstream to hit, merge, cache" role for a single backing service
// instead of a fallback chain across several.
package orchestrate

import (
	"context"
	"sync/atomic"

	"github.com/bookwyrm/core/internal/apierrors"
)

// budget enforces spec §4.5's hard bound: no more than
// MaxUpstreamCalls upstream calls within one logical request. This is a
// local, per-request counter -- never shared across requests -- so it
// can't starve unrelated callers.
type budget struct {
	remaining atomic.Int64
}

func newBudget(max int) *budget {
	b := &budget{}
	b.remaining.Store(int64(max))
	return b
}

// Spend consumes one call from the budget, returning
// apierrors.ErrUpstreamBudgetExceeded once exhausted.
func (b *budget) Spend(_ context.Context) error {
	if b.remaining.Add(-1) < 0 {
		return apierrors.ErrUpstreamBudgetExceeded
	}
	return nil
}
