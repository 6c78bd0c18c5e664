// Package domain holds the canonical DTOs shared by every provider
// normalizer, the cache, the orchestrator, and the job pipelines: Work,
// Edition, Author, and the job/token/rate-limit state records. Field names
// here are a contract (spec §3) -- they are serialized verbatim into cache
// entries and HTTP responses, so don't rename casually.
package domain

import "time"

// Format enumerates the physical/digital shape of an Edition.
type Format string

const (
	FormatHardcover   Format = "Hardcover"
	FormatPaperback   Format = "Paperback"
	FormatMassMarket  Format = "MassMarket"
	FormatEbook       Format = "Ebook"
	FormatAudiobook   Format = "Audiobook"
	FormatIllustrated Format = "Illustrated"
	FormatFirstEdition Format = "FirstEdition"
	FormatAnniversary Format = "Anniversary"
	FormatStandard    Format = "Standard"
	FormatUnknown     Format = "Unknown"
)

// Gender is an Author's enriched (optional) gender.
type Gender string

const (
	GenderMale     Gender = "Male"
	GenderFemale   Gender = "Female"
	GenderNonBinary Gender = "NonBinary"
	GenderUnknown  Gender = "Unknown"
)

// ReviewStatus tracks whether a Work's quality has been reviewed.
type ReviewStatus string

const (
	ReviewUnverified ReviewStatus = "unverified"
	ReviewVerified   ReviewStatus = "verified"
	ReviewRejected   ReviewStatus = "rejected"
)

// Provider identifies which upstream catalog supplied a piece of data.
type Provider string

const (
	ProviderCatalogA Provider = "catalog_a"
	ProviderCatalogB Provider = "catalog_b"
	ProviderCatalogC Provider = "catalog_c"
	ProviderAIVision Provider = "ai_vision"
	ProviderAICSV    Provider = "ai_csv"
)

// Author is a book contributor. Gender enrichment is a separate,
// best-effort stage and must never block the primary pipeline (spec §3).
type Author struct {
	Name   string `json:"name"`
	Gender Gender `json:"gender"`
}

// Work is a conceptual book: a title plus authors, independent of any one
// edition.
type Work struct {
	Title                string       `json:"title"`
	Authors              []Author     `json:"authors,omitempty"`
	SubjectTags          []string     `json:"subjectTags,omitempty"`
	OriginalLanguage     string       `json:"originalLanguage,omitempty"`
	FirstPublicationYear int          `json:"firstPublicationYear,omitempty"`
	Description          string       `json:"description,omitempty"`
	CoverImageURL        string       `json:"coverImageUrl,omitempty"`
	Synthetic            bool         `json:"synthetic"`
	PrimaryProvider      Provider     `json:"primaryProvider,omitempty"`
	Contributors         []Provider   `json:"contributors,omitempty"`
	GoogleBooksVolumeIDs []string     `json:"googleBooksVolumeIDs,omitempty"`
	OpenLibraryWorkID    string       `json:"openLibraryWorkID,omitempty"`
	ISBNDBQuality        int          `json:"isbndbQuality,omitempty"`
	ReviewStatus         ReviewStatus `json:"reviewStatus,omitempty"`
	Editions             []Edition    `json:"editions,omitempty"`
}

// Edition is a specific publication of a Work, keyed by ISBN.
type Edition struct {
	ISBN              string     `json:"isbn"`
	ISBNs             []string   `json:"isbns,omitempty"`
	Title             string     `json:"title"`
	Publisher         string     `json:"publisher,omitempty"`
	PublicationDate   string     `json:"publicationDate,omitempty"`
	PageCount         int        `json:"pageCount,omitempty"`
	Format            Format     `json:"format,omitempty"`
	CoverImageURL     string     `json:"coverImageUrl,omitempty"`
	EditionTitle      string     `json:"editionTitle,omitempty"`
	EditionDescription string    `json:"editionDescription,omitempty"`
	Language          string     `json:"language,omitempty"`
	Synthetic         bool       `json:"synthetic"`
	PrimaryProvider   Provider   `json:"primaryProvider,omitempty"`
	Contributors      []Provider `json:"contributors,omitempty"`

	// QualityScore is computed by the orchestrator (spec §4.5), 0-100.
	QualityScore int `json:"qualityScore,omitempty"`
}

// JobPipeline enumerates the asynchronous job types (spec §3, §4.7).
type JobPipeline string

const (
	PipelineAIScan          JobPipeline = "ai_scan"
	PipelineCSVImport       JobPipeline = "csv_import"
	PipelineBatchEnrichment JobPipeline = "batch_enrichment"
)

// JobStatus enumerates the job state machine's states (spec §4.6).
type JobStatus string

const (
	JobInitialized JobStatus = "initialized"
	JobProcessing  JobStatus = "processing"
	JobCompleted   JobStatus = "completed"
	JobFailed      JobStatus = "failed"
	JobCanceled    JobStatus = "canceled"
)

// Terminal reports whether status is one of the three terminal states.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCanceled
}

// PhotoStatus enumerates the per-photo status in a batch AI-scan job.
type PhotoStatus string

const (
	PhotoQueued     PhotoStatus = "queued"
	PhotoProcessing PhotoStatus = "processing"
	PhotoComplete   PhotoStatus = "complete"
	PhotoFailed     PhotoStatus = "failed"
)

// PhotoResult is one entry of a batch job's fixed-length photos array.
type PhotoResult struct {
	Index      int         `json:"index"`
	Status     PhotoStatus `json:"status"`
	BooksFound int         `json:"booksFound"`
	Error      string      `json:"error,omitempty"`
}

// JobError is the {code,message,retryable} shape stored on a failed job.
type JobError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// JobState is the authoritative, owned-by-exactly-one-entity record for one
// asynchronous job (spec §3, §4.6).
type JobState struct {
	JobID          string        `json:"jobId"`
	Pipeline       JobPipeline   `json:"pipeline"`
	TotalCount     int           `json:"totalCount"`
	ProcessedCount int           `json:"processedCount"`
	Progress       float64       `json:"progress"`
	Status         JobStatus     `json:"status"`
	Canceled       bool          `json:"canceled"`
	CancelReason   string        `json:"cancelReason,omitempty"`
	StartTime      int64         `json:"startTime"`
	LastUpdateTime int64         `json:"lastUpdateTime"`
	Version        int64         `json:"version"`
	Result         any           `json:"result,omitempty"`
	Error          *JobError     `json:"error,omitempty"`
	Photos         []PhotoResult `json:"photos,omitempty"`
	StatusMessage  string        `json:"statusMessage,omitempty"`
}

// AuthToken is bound to exactly one jobId (spec §3).
type AuthToken struct {
	Value     string `json:"value"`
	JobID     string `json:"jobId"`
	ExpiresAt int64  `json:"expiresAt"`
}

// ExpiresIn returns the remaining lifetime of the token relative to now.
func (t AuthToken) ExpiresIn(now time.Time) time.Duration {
	return time.UnixMilli(t.ExpiresAt).Sub(now)
}

// CacheEntry is the opaque-value-plus-provenance shape returned by every
// tier of the hierarchical cache.
type CacheEntry struct {
	Value     []byte    `json:"-"`
	Source    string    `json:"source"`
	Cached    bool      `json:"cached"`
	Timestamp time.Time `json:"timestamp"`
}

// RateLimitCounter is the per-client fixed-window counter (spec §4.4).
type RateLimitCounter struct {
	WindowStart int64 `json:"windowStart"`
	Count       int   `json:"count"`
}
