// Package providers implements the typed upstream clients of spec §4.1: one
// per external catalog/AI service. Each client is a thin, typed wrapper
// around an *http.Client with its own deadline; none of them retry
// internally -- retry policy belongs to the caller (the orchestrator or a
// pipeline driver), per spec §4.8.
//
// The shared plumbing here (ErrorKind, deadlines, secrets.Source) is
// grounded on the teacher's NewUpstream throttled transport and its
// AuthMissing-as-error (never a panic) convention from internal/hardcover.go
// and internal/gr.go.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrorKind classifies a provider failure so the orchestrator's fallback
// chain (spec §4.5) can decide whether to skip, fall through, or surface it.
type ErrorKind string

const (
	KindTimeout         ErrorKind = "Timeout"
	KindUnavailable     ErrorKind = "Unavailable"
	KindRateLimited     ErrorKind = "RateLimited"
	KindNotFound        ErrorKind = "NotFound"
	KindInvalidResponse ErrorKind = "InvalidResponse"
	KindAuthMissing     ErrorKind = "AuthMissing"
	KindTransport       ErrorKind = "Transport"
)

// Error is the structured failure every provider client returns instead of
// a bare error value, so the orchestrator can pattern-match on Kind without
// string-sniffing.
type Error struct {
	Provider    string
	Kind        ErrorKind
	RetryAfter  time.Duration // only meaningful when Kind == KindRateLimited
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(provider string, kind ErrorKind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// Source abstracts how a provider's secret is obtained. The teacher's
// config reads secrets straight from flags; this spec additionally needs a
// vault-backed form (spec §4.1, §9 "Dynamic configuration / secrets
// indirection"), so both live behind one interface.
type Source interface {
	// Secret returns the named secret, or ("", false) if it is unset.
	Secret(ctx context.Context, name string) (string, bool)
}

// EnvSource reads secrets directly from a provided map, standing in for
// plain environment-variable configuration.
type EnvSource map[string]string

func (s EnvSource) Secret(_ context.Context, name string) (string, bool) {
	v, ok := s[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// VaultFunc adapts a vault-client lookup function (e.g. a Vault or SSM
// client's Get method) to Source.
type VaultFunc func(ctx context.Context, name string) (string, error)

func (f VaultFunc) Secret(ctx context.Context, name string) (string, bool) {
	v, err := f(ctx, name)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

// RequireSecret resolves name from src, returning an AuthMissing Error
// (never panicking, never logging the value) if absent.
func RequireSecret(ctx context.Context, src Source, provider, name string) (string, error) {
	v, ok := src.Secret(ctx, name)
	if !ok {
		return "", newError(provider, KindAuthMissing, fmt.Errorf("missing secret %q", name))
	}
	return v, nil
}

// Deadlines carries the per-kind-of-call timeouts from spec §4.1.
type Deadlines struct {
	Catalog time.Duration // default 5s
	AI      time.Duration // default 30s
	Image   time.Duration // default 10s
}

// DefaultDeadlines matches spec §4.1's stated defaults.
func DefaultDeadlines() Deadlines {
	return Deadlines{Catalog: 5 * time.Second, AI: 30 * time.Second, Image: 10 * time.Second}
}

// WithDeadline returns a context bounded by d along with its CancelFunc;
// callers must defer the cancel.
func WithDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}

// throttledTransport rate-limits outbound calls to one upstream,
// independent of the public-facing per-client limiter (spec §4.4). Adapted
// from the teacher's NewUpstream helper.
type throttledTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (t *throttledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// NewUpstream builds an *http.Client that rate-limits its own outbound
// traffic to rps requests/sec, on top of base (or http.DefaultTransport if
// base is nil).
func NewUpstream(rps float64, base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &http.Client{
		Transport: &throttledTransport{next: base, limiter: rate.NewLimiter(rate.Limit(rps), burst)},
	}
}

// classifyStatus maps an HTTP status code to an ErrorKind, per spec §4.1's
// enumerated failure kinds.
func classifyStatus(status int, retryAfter time.Duration) (ErrorKind, time.Duration) {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited, retryAfter
	case status == http.StatusNotFound:
		return KindNotFound, 0
	case status >= 500:
		return KindUnavailable, 0
	default:
		return KindTransport, 0
	}
}
