package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvSource_SecretPresentAndAbsent(t *testing.T) {
	s := EnvSource{"A": "1", "B": ""}
	v, ok := s.Secret(t.Context(), "A")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = s.Secret(t.Context(), "B")
	assert.False(t, ok)

	_, ok = s.Secret(t.Context(), "MISSING")
	assert.False(t, ok)
}

func TestRequireSecret_MissingReturnsAuthMissingError(t *testing.T) {
	_, err := RequireSecret(t.Context(), EnvSource{}, "catalog_a", "KEY")
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindAuthMissing, pe.Kind)
}

func TestVaultFunc_WrapsLookup(t *testing.T) {
	found := VaultFunc(func(_ context.Context, name string) (string, error) { return "vault-" + name, nil })
	v, ok := found.Secret(t.Context(), "KEY")
	assert.True(t, ok)
	assert.Equal(t, "vault-KEY", v)

	failing := VaultFunc(func(_ context.Context, name string) (string, error) { return "", errors.New("unavailable") })
	_, ok = failing.Secret(t.Context(), "KEY")
	assert.False(t, ok)
}

func TestNewUpstream_ForwardsRequest(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	client := NewUpstream(1000, nil)
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 1, hits)
}

func TestWithDeadline_BoundsContext(t *testing.T) {
	ctx, cancel := WithDeadline(t.Context(), 5*time.Millisecond)
	defer cancel()
	<-ctx.Done()
	assert.Error(t, ctx.Err())
}

func TestDefaultDeadlines(t *testing.T) {
	d := DefaultDeadlines()
	assert.Equal(t, 5*time.Second, d.Catalog)
	assert.Equal(t, 30*time.Second, d.AI)
	assert.Equal(t, 10*time.Second, d.Image)
}
