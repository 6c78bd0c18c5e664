// Package ratelimit implements the per-client fixed-window rate limiter of
// spec §4.4: one addressable entity per client key, serializing its own
// counter so concurrent callers can't race past the limit (spec §8
// property 3). The in-process map below *is* "the entity" -- each client's
// mutex is the serialization boundary the teacher's per-jobId actor model
// (spec §9) calls for, just keyed by client IP instead of jobId.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/bookwyrm/core/internal/domain"
	"github.com/bookwyrm/core/internal/logging"
)

// Store durably persists counters so limits survive a process restart
// within the same window. A nil Store degrades to in-process-only
// tracking, which is still correct within one process's lifetime.
type Store interface {
	Load(ctx context.Context, clientKey string) (domain.RateLimitCounter, bool, error)
	Save(ctx context.Context, clientKey string, c domain.RateLimitCounter) error
}

// Result is returned by CheckAndIncrement.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // only set when Allowed is false
}

// Status is returned by Status; it never mutates the counter.
type Status struct {
	Count     int
	Remaining int
	ResetAt   time.Time
}

type clientEntity struct {
	mu      sync.Mutex
	counter domain.RateLimitCounter
}

// Limiter is the registry of per-client entities, one per distinct client
// key (normally the caller's IP, or "unknown").
type Limiter struct {
	max    int
	window time.Duration
	store  Store

	mu       sync.Mutex
	entities map[string]*clientEntity
}

// New builds a Limiter allowing max requests per window, per client key.
// store may be nil.
func New(max int, window time.Duration, store Store) *Limiter {
	return &Limiter{max: max, window: window, store: store, entities: map[string]*clientEntity{}}
}

func (l *Limiter) entity(clientKey string) *clientEntity {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entities[clientKey]
	if !ok {
		e = &clientEntity{}
		l.entities[clientKey] = e
	}
	return e
}

// CheckAndIncrement implements spec §4.4's checkAndIncrement semantics.
// On any internal failure (e.g. the durable store is unreachable) it fails
// open: the request is allowed and the failure is logged, per spec's
// explicit "limiter downtime must not take the whole API down" rationale.
func (l *Limiter) CheckAndIncrement(ctx context.Context, clientKey string) Result {
	if clientKey == "" {
		clientKey = "unknown"
	}

	e := l.entity(clientKey)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	if e.counter.WindowStart == 0 {
		if l.store != nil {
			if loaded, ok, err := l.store.Load(ctx, clientKey); err != nil {
				logging.Log(ctx).Warn("ratelimit: store load failed, failing open", "client", clientKey, "err", err)
				return Result{Allowed: true, Remaining: l.max - 1, ResetAt: now.Add(l.window)}
			} else if ok {
				e.counter = loaded
			}
		}
	}

	if now.UnixMilli()-e.counter.WindowStart >= l.window.Milliseconds() {
		e.counter = domain.RateLimitCounter{WindowStart: now.UnixMilli(), Count: 0}
	}

	resetAt := time.UnixMilli(e.counter.WindowStart).Add(l.window)

	var result Result
	if e.counter.Count < l.max {
		e.counter.Count++
		result = Result{Allowed: true, Remaining: l.max - e.counter.Count, ResetAt: resetAt}
	} else {
		result = Result{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: time.Duration(ceilSeconds(resetAt.Sub(now))) * time.Second,
		}
	}

	if l.store != nil {
		if err := l.store.Save(ctx, clientKey, e.counter); err != nil {
			logging.Log(ctx).Warn("ratelimit: store save failed", "client", clientKey, "err", err)
		}
	}
	return result
}

// Status reports the current counter state without mutating it.
func (l *Limiter) Status(clientKey string) Status {
	if clientKey == "" {
		clientKey = "unknown"
	}
	e := l.entity(clientKey)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	count := e.counter.Count
	windowStart := e.counter.WindowStart
	if now.UnixMilli()-windowStart >= l.window.Milliseconds() {
		count = 0
		windowStart = now.UnixMilli()
	}
	return Status{
		Count:     count,
		Remaining: max(0, l.max-count),
		ResetAt:   time.UnixMilli(windowStart).Add(l.window),
	}
}

func ceilSeconds(d time.Duration) int64 {
	secs := d / time.Second
	if d%time.Second > 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return int64(secs)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
