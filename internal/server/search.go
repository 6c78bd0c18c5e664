package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bookwyrm/core/internal/apierrors"
	"github.com/bookwyrm/core/internal/domain"
	"github.com/bookwyrm/core/internal/envelope"
	"github.com/bookwyrm/core/internal/normalize"
	"github.com/bookwyrm/core/internal/orchestrate"
)

const (
	defaultMaxResults = 20
	hardMaxResults    = 40
	bulkConcurrency   = 8
)

// parseMaxResults applies spec §6's "default 20, hard cap 40" rule to the
// maxResults query parameter.
func parseMaxResults(r *http.Request) int {
	n := defaultMaxResults
	if raw := r.URL.Query().Get("maxResults"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			n = v
		}
	}
	if n > hardMaxResults {
		n = hardMaxResults
	}
	return n
}

func (s *Server) handleSearchTitle(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("q")
	if title == "" {
		envelope.WriteError(w, apierrors.ErrInvalidRequest)
		return
	}
	res, err := s.orch.SearchTitle(r.Context(), title, parseMaxResults(r))
	s.writeSearchResult(w, res, err, s.orch.TTLs().Title)
}

func (s *Server) handleSearchISBN(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("isbn")
	if raw == "" {
		envelope.WriteError(w, apierrors.ErrInvalidRequest)
		return
	}
	isbn, err := normalize.NormalizeISBN(raw)
	if err != nil {
		envelope.WriteError(w, apierrors.InvalidISBN())
		return
	}
	res, serr := s.orch.SearchISBN(r.Context(), isbn)
	s.writeSearchResult(w, res, serr, s.orch.TTLs().ISBN)
}

func (s *Server) handleSearchAuthor(w http.ResponseWriter, r *http.Request) {
	author := r.URL.Query().Get("q")
	if author == "" {
		envelope.WriteError(w, apierrors.ErrInvalidRequest)
		return
	}
	limit := parseMaxResults(r)
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	sortBy := r.URL.Query().Get("sortBy")
	res, err := s.orch.SearchAuthor(r.Context(), author, limit, offset, sortBy)
	s.writeSearchResult(w, res, err, s.orch.TTLs().Author)
}

func (s *Server) handleSearchAdvanced(w http.ResponseWriter, r *http.Request) {
	fields := map[string]string{}
	if r.Method == http.MethodPost {
		var body map[string]string
		if err := decodeJSON(r, &body); err != nil {
			envelope.WriteError(w, apierrors.ErrInvalidRequest)
			return
		}
		fields = body
	} else {
		for _, key := range []string{"isbn", "title", "author", "q"} {
			if v := r.URL.Query().Get(key); v != "" {
				fields[key] = v
			}
		}
	}

	res, err := s.orch.SearchAdvanced(r.Context(), fields, parseMaxResults(r))
	s.writeSearchResult(w, res, err, s.orch.TTLs().Title)
}

type bulkItem struct {
	ID     string        `json:"id"`
	Works  []domain.Work `json:"works,omitempty"`
	Cached bool          `json:"cached,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// handleBulkLookup implements the supplemented `/v1/books/bulk` endpoint
// (SPEC_FULL.md supplemented feature 1): fan out bounded-concurrency
// cache-favoring lookups across repeated ?id= query params, each failure
// isolated to its own entry instead of failing the whole request.
func (s *Server) handleBulkLookup(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query()["id"]
	if len(ids) == 0 {
		envelope.WriteError(w, apierrors.ErrInvalidRequest)
		return
	}
	if len(ids) > hardMaxResults {
		ids = ids[:hardMaxResults]
	}

	results := make([]orchestrate.Result, len(ids))
	errs := make([]error, len(ids))

	fns := make([]func(context.Context) error, len(ids))
	for i, id := range ids {
		i, id := i, id
		fns[i] = func(ctx context.Context) error {
			res, err := s.orch.EnrichBook(ctx, id)
			results[i] = res
			errs[i] = err
			return nil
		}
	}
	_ = orchestrate.RunBounded(r.Context(), bulkConcurrency, fns)

	out := make([]bulkItem, len(ids))
	for i, id := range ids {
		item := bulkItem{ID: id}
		if errs[i] != nil {
			item.Error = errs[i].Error()
		} else {
			item.Cached = results[i].Cached
			item.Works = results[i].Works
		}
		out[i] = item
	}

	w.Header().Set("X-Cache-Status", cacheStatusNone)
	envelope.Write(w, http.StatusOK, out, &envelope.Metadata{Count: len(out)})
}

func (s *Server) writeSearchResult(w http.ResponseWriter, res orchestrate.Result, err error, ttl time.Duration) {
	if err != nil {
		envelope.WriteError(w, err)
		return
	}
	setCacheStatus(w, res.Cached)
	cacheControl(w, ttl, false)
	envelope.Write(w, http.StatusOK, res.Works, &envelope.Metadata{
		CacheStatus: cacheStatusFor(res.Cached),
		Count:       len(res.Works),
	})
}

func cacheStatusFor(cached bool) string {
	if cached {
		return cacheStatusHit
	}
	return cacheStatusMiss
}
