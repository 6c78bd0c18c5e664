package server

import (
	"fmt"
	"net/http"
	"time"
)

// timedWriter injects X-Response-Time just before the first byte of the
// response is committed, the latest point at which a header can still be
// added (spec §6 response header contract).
type timedWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (t *timedWriter) WriteHeader(status int) {
	if !t.wroteHeader {
		t.wroteHeader = true
		t.Header().Set("X-Response-Time", fmt.Sprintf("%dms", time.Since(t.start).Milliseconds()))
	}
	t.ResponseWriter.WriteHeader(status)
}

func (t *timedWriter) Write(b []byte) (int, error) {
	if !t.wroteHeader {
		t.WriteHeader(http.StatusOK)
	}
	return t.ResponseWriter.Write(b)
}

// responseTime is chi-compatible middleware adding X-Response-Time to every
// response.
func responseTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&timedWriter{ResponseWriter: w, start: time.Now()}, r)
	})
}

// cacheStatus values for the X-Cache-Status header (spec §6).
const (
	cacheStatusHit    = "HIT"
	cacheStatusMiss   = "MISS"
	cacheStatusBypass = "BYPASS"
	cacheStatusNone   = "NONE"
)

func setCacheStatus(w http.ResponseWriter, cached bool) {
	if cached {
		w.Header().Set("X-Cache-Status", cacheStatusHit)
	} else {
		w.Header().Set("X-Cache-Status", cacheStatusMiss)
	}
}

// cacheControl sets CDN-friendly cache headers per endpoint TTL, the
// teacher's `cacheFor` technique (root handler.go) generalized to this
// spec's provider-agnostic cache (SPEC_FULL.md supplemented feature 3).
func cacheControl(w http.ResponseWriter, ttl time.Duration, varyParams bool) {
	w.Header().Set("Cache-Control", fmt.Sprintf("public, s-maxage=%d, max-age=60", int(ttl.Seconds())))
	w.Header().Set("Vary", "Content-Type,Accept-Encoding")
	if !varyParams {
		w.Header().Set("No-Vary-Search", "params")
	}
}
