package pipelines

import (
	"context"
	"fmt"

	"github.com/bookwyrm/core/internal/domain"
	"github.com/bookwyrm/core/internal/jobs"
	"github.com/bookwyrm/core/internal/logging"
	"github.com/bookwyrm/core/internal/normalize"
	"github.com/bookwyrm/core/internal/orchestrate"
	"github.com/bookwyrm/core/internal/providers"
)

// CSVImportCompletion is the csv_import job_complete payload (spec §6).
type CSVImportCompletion struct {
	BooksCount  int           `json:"booksCount"`
	SuccessRate string        `json:"successRate"`
	Books       []domain.Work `json:"books,omitempty"`
	ResultsURL  string        `json:"resultsUrl,omitempty"`
}

// CSVImportDriver implements the csv_import pipeline (spec §4.7).
type CSVImportDriver struct {
	parser *providers.AICSV
	orch   *orchestrate.Orchestrator
	store  ResultStore
}

// NewCSVImportDriver builds a driver.
func NewCSVImportDriver(parser *providers.AICSV, orch *orchestrate.Orchestrator, store ResultStore) *CSVImportDriver {
	return &CSVImportDriver{parser: parser, orch: orch, store: store}
}

// Run parses csvText, enriches every extracted row, and completes the job
// (spec §4.7 "CSV import"). The caller has already called
// entity.InitializeJobState and may schedule this via a short alarm so the
// HTTP handler can return 202 immediately.
func (d *CSVImportDriver) Run(ctx context.Context, entity *jobs.Entity, jobID string, csvText string) {
	parsed, err := d.parser.ParseCSV(ctx, csvText)
	if err != nil {
		code, retryable := classifyProviderErr(err)
		_ = entity.SendError(ctx, domain.PipelineCSVImport, code, err.Error(), retryable)
		return
	}
	if len(parsed.Rows) == 0 {
		_ = entity.SendError(ctx, domain.PipelineCSVImport, "INVALID_REQUEST", "no rows parsed from CSV", false)
		return
	}

	total := len(parsed.Rows)
	books := make([]domain.Work, 0, total)
	succeeded := 0

	for i, row := range parsed.Rows {
		if checkCanceled(entity) {
			return
		}

		ref := row.Title
		if row.ISBN != "" {
			ref = row.ISBN
		} else if row.Author != "" {
			ref = row.Title + " " + row.Author
		}

		var work domain.Work
		enrichErr := withItemRetry(ctx, func() error {
			res, ferr := d.orch.EnrichBook(ctx, ref)
			if ferr != nil {
				return ferr
			}
			if len(res.Works) > 0 {
				work = res.Works[0]
			}
			return nil
		})
		if enrichErr != nil || work.Title == "" {
			work = normalize.ParsedRowToWork(row)
		} else {
			succeeded++
		}
		books = append(books, work)

		progress := float64(i+1) / float64(total)
		if err := entity.UpdateProgress(ctx, domain.PipelineCSVImport, progress, "enriching parsed rows", i+1); err != nil {
			return
		}
	}

	payload, resultsURL := maybeOffload(ctx, d.store, jobID, books)
	completion := CSVImportCompletion{
		BooksCount:  total,
		SuccessRate: fmt.Sprintf("%d/%d", succeeded, total),
		ResultsURL:  resultsURL,
	}
	if payload != nil {
		completion.Books = books
	}
	if err := entity.Complete(ctx, domain.PipelineCSVImport, completion); err != nil {
		logging.Log(ctx).Error("csv_import complete failed", "jobId", jobID, "err", err)
	}
}
