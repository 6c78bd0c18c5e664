package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookwyrm/core/internal/domain"
)

type memStore struct {
	counters map[string]domain.RateLimitCounter
	loadErr  error
}

func newMemStore() *memStore { return &memStore{counters: map[string]domain.RateLimitCounter{}} }

func (m *memStore) Load(_ context.Context, clientKey string) (domain.RateLimitCounter, bool, error) {
	if m.loadErr != nil {
		return domain.RateLimitCounter{}, false, m.loadErr
	}
	c, ok := m.counters[clientKey]
	return c, ok, nil
}

func (m *memStore) Save(_ context.Context, clientKey string, c domain.RateLimitCounter) error {
	m.counters[clientKey] = c
	return nil
}

func TestCheckAndIncrement_AllowsUpToMax(t *testing.T) {
	l := New(2, time.Minute, nil)
	ctx := context.Background()

	r1 := l.CheckAndIncrement(ctx, "client-a")
	assert.True(t, r1.Allowed)
	assert.Equal(t, 1, r1.Remaining)

	r2 := l.CheckAndIncrement(ctx, "client-a")
	assert.True(t, r2.Allowed)
	assert.Equal(t, 0, r2.Remaining)

	r3 := l.CheckAndIncrement(ctx, "client-a")
	assert.False(t, r3.Allowed)
	assert.Greater(t, r3.RetryAfter, time.Duration(0))
}

func TestCheckAndIncrement_SeparateClientsIndependent(t *testing.T) {
	l := New(1, time.Minute, nil)
	ctx := context.Background()
	assert.True(t, l.CheckAndIncrement(ctx, "a").Allowed)
	assert.True(t, l.CheckAndIncrement(ctx, "b").Allowed)
}

func TestCheckAndIncrement_EmptyClientKeyNormalizes(t *testing.T) {
	l := New(1, time.Minute, nil)
	ctx := context.Background()
	assert.True(t, l.CheckAndIncrement(ctx, "").Allowed)
	assert.False(t, l.CheckAndIncrement(ctx, "").Allowed)
}

func TestCheckAndIncrement_WindowResets(t *testing.T) {
	l := New(1, 10*time.Millisecond, nil)
	ctx := context.Background()
	require.True(t, l.CheckAndIncrement(ctx, "a").Allowed)
	require.False(t, l.CheckAndIncrement(ctx, "a").Allowed)
	time.Sleep(20 * time.Millisecond)
	assert.True(t, l.CheckAndIncrement(ctx, "a").Allowed)
}

func TestCheckAndIncrement_FailsOpenOnStoreLoadError(t *testing.T) {
	store := newMemStore()
	store.loadErr = assert.AnError
	l := New(1, time.Minute, store)
	r := l.CheckAndIncrement(context.Background(), "a")
	assert.True(t, r.Allowed)
}

func TestCheckAndIncrement_PersistsAcrossLimiterInstances(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	l1 := New(1, time.Minute, store)
	require.True(t, l1.CheckAndIncrement(ctx, "a").Allowed)

	l2 := New(1, time.Minute, store)
	assert.False(t, l2.CheckAndIncrement(ctx, "a").Allowed)
}

func TestStatus_DoesNotMutateCounter(t *testing.T) {
	l := New(3, time.Minute, nil)
	ctx := context.Background()
	l.CheckAndIncrement(ctx, "a")

	s1 := l.Status("a")
	s2 := l.Status("a")
	assert.Equal(t, s1.Count, s2.Count)
	assert.Equal(t, 1, s1.Count)
	assert.Equal(t, 2, s1.Remaining)
}
