package server

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bookwyrm/core/internal/apierrors"
	"github.com/bookwyrm/core/internal/domain"
	"github.com/bookwyrm/core/internal/envelope"
	"github.com/bookwyrm/core/internal/jobs"
	"github.com/bookwyrm/core/internal/pipelines"
)

// csvScheduleDelay is the short alarm the CSV import handler uses to return
// 202 immediately while the parse/enrich work runs in the background (spec
// §4.7 "CSV import").
const csvScheduleDelay = 2 * time.Second

type startResponse struct {
	JobID string `json:"jobId"`
	Token string `json:"token"`
}

// enrichmentStartRequest decodes spec §6's documented
// `{jobId, workIds|isbns}` body: either or both of workIds/isbns may be
// supplied, and they're concatenated into one ordered ref list so
// BatchEnrichmentDriver doesn't need to know the distinction.
type enrichmentStartRequest struct {
	JobID   string   `json:"jobId"`
	WorkIDs []string `json:"workIds"`
	ISBNs   []string `json:"isbns"`
}

func (req enrichmentStartRequest) refs() []string {
	refs := make([]string, 0, len(req.WorkIDs)+len(req.ISBNs))
	refs = append(refs, req.WorkIDs...)
	refs = append(refs, req.ISBNs...)
	return refs
}

// handleEnrichmentStart dispatches BatchEnrichmentDriver in the background
// and returns 202 with the job's auth token for the WebSocket upgrade.
func (s *Server) handleEnrichmentStart(w http.ResponseWriter, r *http.Request) {
	var req enrichmentStartRequest
	refs := []string{}
	if err := decodeJSON(r, &req); err != nil || req.JobID == "" {
		envelope.WriteError(w, apierrors.ErrInvalidRequest)
		return
	}
	refs = req.refs()
	if len(refs) == 0 {
		envelope.WriteError(w, apierrors.ErrInvalidRequest)
		return
	}

	entity := s.registry.GetOrCreate(req.JobID)
	if err := entity.InitializeJobState(r.Context(), req.JobID, domain.PipelineBatchEnrichment, len(refs)); err != nil {
		writeJobInitError(w, err)
		return
	}
	token, err := entity.SetAuthToken(r.Context(), 0)
	if err != nil {
		envelope.WriteError(w, err)
		return
	}

	go s.batchenrich.Run(context.Background(), entity, req.JobID, refs)

	envelope.Write(w, http.StatusAccepted, startResponse{JobID: req.JobID, Token: token.Value}, nil)
}

type jobIDRequest struct {
	JobID  string `json:"jobId"`
	Reason string `json:"reason,omitempty"`
}

// handleEnrichmentCancel marks the job canceled; the running driver notices
// at its next checkpoint (spec §4.6, §5).
func (s *Server) handleEnrichmentCancel(w http.ResponseWriter, r *http.Request) {
	var req jobIDRequest
	if err := decodeJSON(r, &req); err != nil || req.JobID == "" {
		envelope.WriteError(w, apierrors.ErrInvalidRequest)
		return
	}
	entity, ok := s.registry.Get(req.JobID)
	if !ok {
		envelope.WriteError(w, jobErrToCoded(jobs.ErrNotFound))
		return
	}
	if err := entity.CancelJob(r.Context(), req.Reason); err != nil {
		envelope.WriteError(w, jobErrToCoded(err))
		return
	}
	envelope.Write(w, http.StatusOK, map[string]string{"status": "canceling"}, nil)
}

// handleScanBookshelf reads a single raw image body and dispatches
// AIScanDriver.Run in the background (spec §6 "/api/scan-bookshelf").
func (s *Server) handleScanBookshelf(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		envelope.WriteError(w, apierrors.ErrInvalidRequest)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImageUploadBytes+1))
	if err != nil {
		envelope.WriteError(w, apierrors.ErrInvalidRequest)
		return
	}
	if len(data) > maxImageUploadBytes {
		envelope.WriteError(w, apierrors.ErrPayloadTooLarge)
		return
	}

	entity := s.registry.GetOrCreate(jobID)
	if err := entity.InitializeJobState(r.Context(), jobID, domain.PipelineAIScan, 1); err != nil {
		writeJobInitError(w, err)
		return
	}
	token, err := entity.SetAuthToken(r.Context(), 0)
	if err != nil {
		envelope.WriteError(w, err)
		return
	}

	photo := pipelines.AIScanPhoto{Index: 0, Data: data, ContentType: r.Header.Get("Content-Type")}
	go s.aiscan.Run(context.Background(), entity, jobID, photo)

	envelope.Write(w, http.StatusAccepted, startResponse{JobID: jobID, Token: token.Value}, nil)
}

const maxImageUploadBytes = 20 << 20

type scanBatchRequest struct {
	JobID  string `json:"jobId"`
	Images []struct {
		Index       int    `json:"index"`
		Data        string `json:"data"`
		ContentType string `json:"contentType"`
	} `json:"images"`
}

// handleScanBookshelfBatch decodes a set of base64-encoded images and
// dispatches AIScanDriver.RunBatch (spec §6 "/api/scan-bookshelf/batch").
func (s *Server) handleScanBookshelfBatch(w http.ResponseWriter, r *http.Request) {
	var req scanBatchRequest
	if err := decodeJSON(r, &req); err != nil || req.JobID == "" || len(req.Images) == 0 {
		envelope.WriteError(w, apierrors.ErrInvalidRequest)
		return
	}

	photos := make([]pipelines.AIScanPhoto, len(req.Images))
	for i, img := range req.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			envelope.WriteError(w, apierrors.ErrInvalidRequest)
			return
		}
		photos[i] = pipelines.AIScanPhoto{Index: img.Index, Data: data, ContentType: img.ContentType}
	}

	entity := s.registry.GetOrCreate(req.JobID)
	if err := entity.InitializeJobState(r.Context(), req.JobID, domain.PipelineAIScan, len(photos)); err != nil {
		writeJobInitError(w, err)
		return
	}
	token, err := entity.SetAuthToken(r.Context(), 0)
	if err != nil {
		envelope.WriteError(w, err)
		return
	}

	go s.aiscan.RunBatch(context.Background(), entity, req.JobID, photos)

	envelope.Write(w, http.StatusAccepted, startResponse{JobID: req.JobID, Token: token.Value}, nil)
}

type csvImportRequest struct {
	JobID     string `json:"jobId"`
	CSVBase64 string `json:"csvBase64"`
}

// handleImportCSV decodes the CSV payload and schedules CSVImportDriver.Run
// after a short delay so the 202 response lands before the parse begins
// (spec §4.7 "CSV import").
func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	var req csvImportRequest
	if err := decodeJSON(r, &req); err != nil || req.JobID == "" || req.CSVBase64 == "" {
		envelope.WriteError(w, apierrors.ErrInvalidRequest)
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.CSVBase64)
	if err != nil {
		envelope.WriteError(w, apierrors.ErrInvalidRequest)
		return
	}

	entity := s.registry.GetOrCreate(req.JobID)
	if err := entity.InitializeJobState(r.Context(), req.JobID, domain.PipelineCSVImport, 0); err != nil {
		writeJobInitError(w, err)
		return
	}
	token, err := entity.SetAuthToken(r.Context(), 0)
	if err != nil {
		envelope.WriteError(w, err)
		return
	}

	csvText := string(raw)
	time.AfterFunc(csvScheduleDelay, func() {
		s.csvimport.Run(context.Background(), entity, req.JobID, csvText)
	})

	envelope.Write(w, http.StatusAccepted, startResponse{JobID: req.JobID, Token: token.Value}, nil)
}

type tokenRefreshRequest struct {
	JobID string `json:"jobId"`
	Token string `json:"token"`
}

// handleTokenRefresh reissues the job's auth token if the caller is within
// the refresh window (spec §4.6, §8 property 10).
func (s *Server) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	var req tokenRefreshRequest
	if err := decodeJSON(r, &req); err != nil || req.JobID == "" || req.Token == "" {
		envelope.WriteError(w, apierrors.ErrInvalidRequest)
		return
	}
	entity, ok := s.registry.Get(req.JobID)
	if !ok {
		envelope.WriteError(w, jobErrToCoded(jobs.ErrNotFound))
		return
	}
	newToken, err := entity.RefreshAuthToken(r.Context(), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrRefreshWindowNotOpen):
			envelope.WriteError(w, apierrors.Coded(http.StatusForbidden, "REFRESH_WINDOW_NOT_OPEN", err.Error()))
		default:
			envelope.WriteError(w, apierrors.ErrUnauthorized)
		}
		return
	}
	envelope.Write(w, http.StatusOK, startResponse{JobID: req.JobID, Token: newToken.Value}, nil)
}

func writeJobInitError(w http.ResponseWriter, err error) {
	if errors.Is(err, jobs.ErrConflictingInit) {
		envelope.WriteError(w, apierrors.Coded(http.StatusConflict, "CONFLICTING_INIT", err.Error()))
		return
	}
	envelope.WriteError(w, jobErrToCoded(err))
}

// jobErrToCoded maps internal/jobs sentinel errors onto spec §6's stable
// error codes; jobs.Entity has no notion of HTTP status, so the mapping
// lives at the HTTP boundary.
func jobErrToCoded(err error) error {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return apierrors.Coded(http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, jobs.ErrTerminalState):
		return apierrors.Coded(http.StatusConflict, "TERMINAL_STATE", err.Error())
	case errors.Is(err, jobs.ErrInvalidPhotoIndex):
		return apierrors.Coded(http.StatusBadRequest, "INVALID_PHOTO_INDEX", err.Error())
	case errors.Is(err, jobs.ErrWrongPipeline):
		return apierrors.Coded(http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, jobs.ErrInvalidToken):
		return apierrors.Coded(http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
	default:
		return err
	}
}
