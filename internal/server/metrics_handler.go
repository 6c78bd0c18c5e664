package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// jsonMetricsSummary aggregates whatever analytics events are currently
// buffered in the sink, draining them non-destructively is not possible with
// a channel, so this view is a point-in-time sample rather than a full
// counter (spec §6 "/metrics?format=json" is advisory, not authoritative --
// Prometheus remains the source of truth).
type jsonMetricsSummary struct {
	SampledRequests int            `json:"sampledRequests"`
	ByPath          map[string]int `json:"byPath"`
	ByStatus        map[int]int    `json:"byStatus"`
}

// handleMetrics serves both the authoritative Prometheus exposition format
// (default) and a lightweight JSON summary for dashboards that don't speak
// Prometheus (spec §6).
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "json" {
		s.handleMetricsJSON(w, r)
		return
	}
	promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	summary := jsonMetricsSummary{ByPath: map[string]int{}, ByStatus: map[int]int{}}
	if s.sink != nil {
		events := s.sink.Events()
	drain:
		for {
			select {
			case ev := <-events:
				summary.SampledRequests++
				summary.ByPath[ev.Path]++
				summary.ByStatus[ev.Status]++
			default:
				break drain
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = writeJSON(w, summary)
}
