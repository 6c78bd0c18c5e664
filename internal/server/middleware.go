package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bookwyrm/core/internal/apierrors"
	"github.com/bookwyrm/core/internal/config"
	"github.com/bookwyrm/core/internal/envelope"
	"github.com/bookwyrm/core/internal/metrics"
)

// rateLimit enforces spec §4.4 at the edge of every handler it wraps: a
// per-client fixed-window check, with the required X-RateLimit-* headers
// always set and a 429+Retry-After on rejection (spec §6, §7).
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		result := s.limiter.CheckAndIncrement(r.Context(), key)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.cfg.RateLimit.Max))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			envelope.WriteError(w, apierrors.ErrRateLimitExceeded)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// analytics samples and records one AnalyticsEvent per request, skipping
// callers that opted out (spec §6 DNT/X-Skip-Analytics) and never blocking
// the response on emission (spec §9 OQ-3).
func (s *Server) analytics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusCapture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		if s.sink == nil || skipAnalytics(r) {
			return
		}
		rate := config.AnalyticsSampling[r.URL.Path]
		if rate <= 0 {
			return
		}
		s.sink.Record(metrics.AnalyticsEvent{
			Path:      r.URL.Path,
			Status:    ww.status,
			LatencyMs: time.Since(start).Milliseconds(),
			ClientIP:  anonymizeIP(clientIP(r)),
			Timestamp: start,
		}, rate)
	})
}

type statusCapture struct {
	http.ResponseWriter
	status int
}

func (s *statusCapture) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}
