package pipelines

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bookwyrm/core/internal/apierrors"
	"github.com/bookwyrm/core/internal/domain"
	"github.com/bookwyrm/core/internal/jobs"
	"github.com/bookwyrm/core/internal/logging"
	"github.com/bookwyrm/core/internal/normalize"
	"github.com/bookwyrm/core/internal/orchestrate"
	"github.com/bookwyrm/core/internal/providers"
)

// maxImageBytes bounds the quality check of stage 1 -- large enough for a
// phone photo, small enough to reject an accidentally-uploaded video file.
const maxImageBytes = 20 << 20

// AIScanPhoto is one unit of work for a bookshelf scan, whether it arrived
// as the single-photo endpoint (index 0) or one entry of a batch.
type AIScanPhoto struct {
	Index       int
	Data        []byte
	ContentType string
}

// AIScanCompletion is the ai_scan job_complete payload (spec §6).
type AIScanCompletion struct {
	TotalDetected int           `json:"totalDetected"`
	Approved      int           `json:"approved"`
	Books         []domain.Work `json:"books,omitempty"`
	ResultsURL    string        `json:"resultsUrl,omitempty"`
}

// AIScanDriver implements the ai_scan pipeline (spec §4.7). One driver
// instance is shared across jobs; all per-job state lives in the jobs.Entity
// passed to Run.
type AIScanDriver struct {
	vision *providers.AIVision
	orch   *orchestrate.Orchestrator
	store  ResultStore
}

// NewAIScanDriver builds a driver. store may be nil (no cold tier
// configured), in which case completion payloads are always embedded.
func NewAIScanDriver(vision *providers.AIVision, orch *orchestrate.Orchestrator, store ResultStore) *AIScanDriver {
	return &AIScanDriver{vision: vision, orch: orch, store: store}
}

// Run executes the single-photo scan (spec §4.7 "AI scan"). The caller has
// already called entity.InitializeJobState.
func (d *AIScanDriver) Run(ctx context.Context, entity *jobs.Entity, jobID string, photo AIScanPhoto) {
	books, approved := d.scanOne(ctx, entity, jobID, photo)
	if books == nil {
		return // scanOne already sent a terminal error.
	}

	payload, resultsURL := maybeOffload(ctx, d.store, jobID, books)
	completion := AIScanCompletion{
		TotalDetected: len(books),
		Approved:      approved,
		ResultsURL:    resultsURL,
	}
	if payload != nil {
		completion.Books = books
	}
	if err := entity.Complete(ctx, domain.PipelineAIScan, completion); err != nil {
		logging.Log(ctx).Error("ai_scan complete failed", "jobId", jobID, "err", err)
	}
}

// RunBatch executes a multi-photo scan (spec §6 "/api/scan-bookshelf/batch"),
// tracking each photo's status in the job's fixed-length Photos array and
// aggregating the detected books across all photos into one completion.
func (d *AIScanDriver) RunBatch(ctx context.Context, entity *jobs.Entity, jobID string, photos []AIScanPhoto) {
	if err := entity.InitBatch(ctx, len(photos)); err != nil {
		logging.Log(ctx).Error("ai_scan batch init failed", "jobId", jobID, "err", err)
		return
	}

	var all []domain.Work
	approved := 0

	for _, photo := range photos {
		if checkCanceled(entity) {
			return
		}

		books, photoApproved := d.scanPhotoForBatch(ctx, entity, jobID, photo)
		all = append(all, books...)
		approved += photoApproved
	}

	payload, resultsURL := maybeOffload(ctx, d.store, jobID, all)
	completion := AIScanCompletion{
		TotalDetected: len(all),
		Approved:      approved,
		ResultsURL:    resultsURL,
	}
	if payload != nil {
		completion.Books = all
	}
	if err := entity.Complete(ctx, domain.PipelineAIScan, completion); err != nil {
		logging.Log(ctx).Error("ai_scan batch complete failed", "jobId", jobID, "err", err)
	}
}

// scanPhotoForBatch runs one photo of a batch through the same three stages
// as Run and reports the photo's outcome into the photos[index] slot. It
// never calls Complete/SendError itself -- the caller aggregates across all
// photos first. Its enrichment step still advances top-level progress, from
// 0.5 to 1.0 for each photo.
func (d *AIScanDriver) scanPhotoForBatch(ctx context.Context, entity *jobs.Entity, jobID string, photo AIScanPhoto) ([]domain.Work, int) {
	if err := qualityCheck(photo.Data, photo.ContentType); err != nil {
		_ = entity.UpdatePhoto(ctx, photo.Index, domain.PhotoFailed, 0, err.Error())
		return nil, 0
	}

	result, err := d.vision.ScanImage(ctx, photo.Data, photo.ContentType)
	if err != nil {
		_ = entity.UpdatePhoto(ctx, photo.Index, domain.PhotoFailed, 0, err.Error())
		return nil, 0
	}

	books, approved := d.enrichDetections(ctx, entity, result.Books)
	_ = entity.UpdatePhoto(ctx, photo.Index, domain.PhotoComplete, len(books), "")
	return books, approved
}

// scanOne runs the three stages for a single photo and drives top-level
// progress directly (used by the non-batch endpoint). Returns nil books on
// any terminal failure, having already called entity.SendError.
func (d *AIScanDriver) scanOne(ctx context.Context, entity *jobs.Entity, jobID string, photo AIScanPhoto) ([]domain.Work, int) {
	// Stage 1: lightweight quality check.
	if err := qualityCheck(photo.Data, photo.ContentType); err != nil {
		_ = entity.SendError(ctx, domain.PipelineAIScan, "INVALID_REQUEST", err.Error(), false)
		return nil, 0
	}
	if err := entity.UpdateProgress(ctx, domain.PipelineAIScan, 0.1, "checking image quality", 0); err != nil {
		return nil, 0
	}

	if checkCanceled(entity) {
		return nil, 0
	}

	// Stage 2: AI-vision detection.
	result, err := d.vision.ScanImage(ctx, photo.Data, photo.ContentType)
	if err != nil {
		code, retryable := classifyProviderErr(err)
		_ = entity.SendError(ctx, domain.PipelineAIScan, code, err.Error(), retryable)
		return nil, 0
	}
	if err := entity.UpdateProgress(ctx, domain.PipelineAIScan, 0.5, fmt.Sprintf("detected %d books (model=%s, tokens=%d)", len(result.Books), result.ModelName, result.TokenUsage), 0); err != nil {
		return nil, 0
	}

	// Stage 3: per-book enrichment, sequential with short deadlines to
	// respect the provider budget (spec §4.7 stage 3).
	books, approved := d.enrichDetections(ctx, entity, result.Books)
	return books, approved
}

// enrichDetections enriches every detected book sequentially, tolerating
// individual failures (falling back to the synthetic detection itself) and
// emitting progress monotonically toward 1.0.
func (d *AIScanDriver) enrichDetections(ctx context.Context, entity *jobs.Entity, detected []providers.DetectedBook) ([]domain.Work, int) {
	books := make([]domain.Work, 0, len(detected))
	approved := 0

	for i, det := range detected {
		if checkCanceled(entity) {
			break
		}

		ref := det.Title
		if det.Author != "" {
			ref = det.Title + " " + det.Author
		}

		var work domain.Work
		err := withItemRetry(ctx, func() error {
			res, ferr := d.orch.EnrichBook(ctx, ref)
			if ferr != nil {
				return ferr
			}
			if len(res.Works) > 0 {
				work = res.Works[0]
			}
			return nil
		})
		if err != nil || work.Title == "" {
			work = normalize.DetectedBookToWork(det)
		} else {
			approved++
		}
		books = append(books, work)

		progress := 0.5 + 0.5*float64(i+1)/float64(len(detected))
		_ = entity.UpdateProgress(ctx, domain.PipelineAIScan, progress, "enriching detected books", i+1)
	}

	return books, approved
}

// qualityCheck is stage 1: size and content-type sanity (spec §4.7).
func qualityCheck(data []byte, contentType string) error {
	if len(data) == 0 {
		return fmt.Errorf("empty image")
	}
	if len(data) > maxImageBytes {
		return fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	if contentType != "" {
		mt, _, err := http.ParseMediaType(contentType)
		if err != nil || !strings.HasPrefix(mt, "image/") {
			return fmt.Errorf("unsupported content-type %q", contentType)
		}
	}
	return nil
}

// classifyProviderErr maps a provider error into the job error code/
// retryable flag surfaced in SendError (spec §7). A *providers.Error from
// the AI clients is translated to the matching apierrors Kind first.
func classifyProviderErr(err error) (code string, retryable bool) {
	var pe *apierrors.ProviderError
	if errors.As(err, &pe) {
		return pe.Code(), pe.Retryable()
	}
	var prov *providers.Error
	if errors.As(err, &prov) {
		kinds := map[providers.ErrorKind]apierrors.Kind{
			providers.KindTimeout:         apierrors.KindTimeout,
			providers.KindUnavailable:     apierrors.KindUnavailable,
			providers.KindRateLimited:     apierrors.KindRateLimited,
			providers.KindNotFound:        apierrors.KindNotFound,
			providers.KindInvalidResponse: apierrors.KindInvalidResponse,
			providers.KindAuthMissing:     apierrors.KindAuthMissing,
			providers.KindTransport:       apierrors.KindTransport,
		}
		pe = &apierrors.ProviderError{Provider: prov.Provider, Kind: kinds[prov.Kind], Err: prov.Err}
		return pe.Code(), pe.Retryable()
	}
	return "PROVIDER_ERROR", false
}
