package server

import "net/http"

type healthResponse struct {
	Status    string   `json:"status"`
	Endpoints []string `json:"endpoints"`
}

var healthEndpoints = []string{
	"/health",
	"/v1/search/title",
	"/v1/search/isbn",
	"/v1/search/author",
	"/v1/search/advanced",
	"/v1/books/bulk",
	"/api/enrichment/start",
	"/api/enrichment/cancel",
	"/api/scan-bookshelf",
	"/api/scan-bookshelf/batch",
	"/api/import/csv",
	"/api/token/refresh",
	"/ws/progress",
	"/metrics",
}

// handleHealth serves liveness plus an endpoint listing (spec §6).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache-Status", cacheStatusNone)
	w.WriteHeader(http.StatusOK)
	_ = writeJSON(w, healthResponse{Status: "ok", Endpoints: healthEndpoints})
}
