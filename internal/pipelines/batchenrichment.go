package pipelines

import (
	"context"

	"github.com/bookwyrm/core/internal/domain"
	"github.com/bookwyrm/core/internal/jobs"
	"github.com/bookwyrm/core/internal/logging"
	"github.com/bookwyrm/core/internal/orchestrate"
)

// FailedRef is one reference that couldn't be enriched, recorded alongside
// the successful ones instead of failing the whole job (spec §4.7).
type FailedRef struct {
	Ref   string `json:"ref"`
	Error string `json:"error"`
}

// BatchEnrichmentCompletion is the batch_enrichment job_complete payload
// (spec §6).
type BatchEnrichmentCompletion struct {
	SuccessCount int           `json:"successCount"`
	FailureCount int           `json:"failureCount"`
	Results      []domain.Work `json:"results,omitempty"`
	Failed       []FailedRef   `json:"failed,omitempty"`
	ResultsURL   string        `json:"resultsUrl,omitempty"`
}

// BatchEnrichmentDriver implements the batch_enrichment pipeline (spec
// §4.7): enrich a list of work/ISBN references, tolerating individual
// failures.
type BatchEnrichmentDriver struct {
	orch  *orchestrate.Orchestrator
	store ResultStore
}

// NewBatchEnrichmentDriver builds a driver.
func NewBatchEnrichmentDriver(orch *orchestrate.Orchestrator, store ResultStore) *BatchEnrichmentDriver {
	return &BatchEnrichmentDriver{orch: orch, store: store}
}

// Run enriches every ref in refs and completes the job.
func (d *BatchEnrichmentDriver) Run(ctx context.Context, entity *jobs.Entity, jobID string, refs []string) {
	total := len(refs)
	results := make([]domain.Work, 0, total)
	var failed []FailedRef

	for i, ref := range refs {
		if checkCanceled(entity) {
			return
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
		if err != nil {
			failed = append(failed, FailedRef{Ref: ref, Error: err.Error()})
		} else {
			results = append(results, work)
		}

		progress := float64(i+1) / float64(total)
		if uerr := entity.UpdateProgress(ctx, domain.PipelineBatchEnrichment, progress, "enriching references", i+1); uerr != nil {
			return
		}
	}

	payload, resultsURL := maybeOffload(ctx, d.store, jobID, results)
	completion := BatchEnrichmentCompletion{
		SuccessCount: len(results),
		FailureCount: len(failed),
		Failed:       failed,
		ResultsURL:   resultsURL,
	}
	if payload != nil {
		completion.Results = results
	}
	if err := entity.Complete(ctx, domain.PipelineBatchEnrichment, completion); err != nil {
		logging.Log(ctx).Error("batch_enrichment complete failed", "jobId", jobID, "err", err)
	}
}
