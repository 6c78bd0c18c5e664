package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bookwyrm/core/internal/domain"
)

// Peer is the thin send/close surface an Entity needs from whatever holds
// the live WebSocket connection (internal/server owns the actual
// coder/websocket.Conn; the entity only ever sees this interface, so it
// never touches transport directly).
type Peer interface {
	Send(ctx context.Context, env Envelope) error
	Close(code int, reason string) error
}

// Persister durably stores JobState/AuthToken so they survive a process
// restart, and removes them on cleanup (spec §4.6, §3 lifecycle).
type Persister interface {
	SaveState(ctx context.Context, state domain.JobState) error
	SaveToken(ctx context.Context, token domain.AuthToken) error
	DeleteState(ctx context.Context, jobID string) error
	DeleteToken(ctx context.Context, jobID string) error
}

// Scheduler arranges for fn to run at (or after) at -- the cleanup alarm of
// spec §4.6. Implemented with time.AfterFunc by the registry; an interface
// here purely so tests can inject a no-op/immediate scheduler.
type Scheduler interface {
	Schedule(at time.Time, fn func())
}

// PersistThrottle carries the throttled-persistence knobs (spec §4.6):
// persist after N accumulated updates, or T elapsed seconds, whichever
// comes first.
type PersistThrottle struct {
	N int
	T time.Duration
}

// DefaultPersistThrottle matches spec §6's JOB_PERSIST_{N,T} defaults.
func DefaultPersistThrottle() PersistThrottle { return PersistThrottle{N: 20, T: 30 * time.Second} }

// Entity owns the authoritative state for exactly one jobId (spec §4.6).
// All exported methods take the internal mutex, so callers never need their
// own locking -- this is the single-threaded-per-jobId guarantee spec §5
// requires.
type Entity struct {
	mu sync.Mutex

	state domain.JobState
	token domain.AuthToken

	peer Peer

	persister Persister
	scheduler Scheduler
	throttle  PersistThrottle

	updatesSincePersist int
	lastPersistAt       time.Time

	cleanupAfter  time.Duration
	tokenTTL      time.Duration
	refreshWindow time.Duration

	readyCh chan struct{}
	ready   bool
}

// Config carries the per-entity lifecycle knobs (spec §6 Jobs config).
type Config struct {
	Throttle      PersistThrottle
	CleanupAfter  time.Duration
	TokenTTL      time.Duration
	RefreshWindow time.Duration
}

// DefaultConfig matches spec §6's defaults.
func DefaultConfig() Config {
	return Config{
		Throttle:      DefaultPersistThrottle(),
		CleanupAfter:  24 * time.Hour,
		TokenTTL:      2 * time.Hour,
		RefreshWindow: 30 * time.Minute,
	}
}

// NewEntity constructs an uninitialized entity. InitializeJobState must be
// called before any other mutating operation.
func NewEntity(persister Persister, scheduler Scheduler, cfg Config) *Entity {
	return &Entity{
		persister:     persister,
		scheduler:     scheduler,
		throttle:      cfg.Throttle,
		cleanupAfter:  cfg.CleanupAfter,
		tokenTTL:      cfg.TokenTTL,
		refreshWindow: cfg.RefreshWindow,
	}
}

// InitializeJobState sets up a freshly-created job (spec §4.6). Idempotent
// on identical (jobId, pipeline, totalCount); a second call with different
// values fails with ErrConflictingInit.
func (e *Entity) InitializeJobState(ctx context.Context, jobID string, pipeline domain.JobPipeline, totalCount int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.JobID != "" {
		if e.state.JobID == jobID && e.state.Pipeline == pipeline && e.state.TotalCount == totalCount {
			return nil
		}
		return ErrConflictingInit
	}

	now := time.Now()
	e.state = domain.JobState{
		JobID:          jobID,
		Pipeline:       pipeline,
		TotalCount:     totalCount,
		Status:         domain.JobInitialized,
		Version:        1,
		StartTime:      now.UnixMilli(),
		LastUpdateTime: now.UnixMilli(),
	}
	return e.persistLocked(ctx, true)
}

// SetAuthToken replaces any prior token with a fresh UUID, valid for ttl (or
// the entity's configured TokenTTL if ttl is zero).
func (e *Entity) SetAuthToken(ctx context.Context, ttl time.Duration) (domain.AuthToken, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ttl <= 0 {
		ttl = e.tokenTTL
	}
	e.token = domain.AuthToken{
		Value:     uuid.NewString(),
		JobID:     e.state.JobID,
		ExpiresAt: time.Now().Add(ttl).UnixMilli(),
	}
	if err := e.persister.SaveToken(ctx, e.token); err != nil {
		return domain.AuthToken{}, err
	}
	return e.token, nil
}

// RefreshAuthToken issues a new token only if oldToken is current and
// within the last RefreshWindow of its validity (spec §4.6, §8 property 10).
func (e *Entity) RefreshAuthToken(ctx context.Context, oldToken string) (domain.AuthToken, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token.Value == "" || e.token.Value != oldToken {
		return domain.AuthToken{}, ErrInvalidToken
	}
	remaining := e.token.ExpiresIn(time.Now())
	if remaining > e.refreshWindow {
		return domain.AuthToken{}, ErrRefreshWindowNotOpen
	}
	if remaining <= 0 {
		return domain.AuthToken{}, ErrInvalidToken
	}

	e.token = domain.AuthToken{
		Value:     uuid.NewString(),
		JobID:     e.state.JobID,
		ExpiresAt: time.Now().Add(e.tokenTTL).UnixMilli(),
	}
	if err := e.persister.SaveToken(ctx, e.token); err != nil {
		return domain.AuthToken{}, err
	}
	return e.token, nil
}

// GetState returns a snapshot of the current JobState.
func (e *Entity) GetState() domain.JobState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// GetStateAndAuth returns the state plus the current token, used by the
// WebSocket upgrade handler (spec §4.6).
func (e *Entity) GetStateAndAuth() (domain.JobState, domain.AuthToken) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.token
}

// IsCanceled reports whether the job has been canceled, for pipeline
// drivers to poll at checkpoints (spec §4.6, §5).
func (e *Entity) IsCanceled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Canceled
}

// AttachPeer installs peer as the sole WebSocket owner, closing any
// previously-attached peer with the "superseded" semantics of spec §3/§4.6.
func (e *Entity) AttachPeer(peer Peer) {
	e.mu.Lock()
	old := e.peer
	e.peer = peer
	e.ready = false
	e.readyCh = make(chan struct{})
	e.mu.Unlock()

	if old != nil {
		_ = old.Close(4409, "superseded")
	}
}

// DetachPeer clears the current peer if it is still peer (a stale detach from
// an already-superseded peer is a no-op).
func (e *Entity) DetachPeer(peer Peer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.peer == peer {
		e.peer = nil
	}
}

// MarkReady records that the connected peer sent its {type:"ready"} frame
// and unblocks any WaitForReady call.
func (e *Entity) MarkReady() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		e.ready = true
		close(e.readyCh)
	}
}

// WaitForReady blocks until the connected peer has signaled ready, the
// timeout elapses, or ctx is canceled (spec §4.6).
func (e *Entity) WaitForReady(ctx context.Context, timeout time.Duration) bool {
	e.mu.Lock()
	ch := e.readyCh
	already := e.ready
	e.mu.Unlock()

	if already {
		return true
	}
	if ch == nil {
		return false
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// UpdateProgress applies a progress update (spec §4.6). pipeline must match
// the instance's own pipeline; the state must not already be terminal.
func (e *Entity) UpdateProgress(ctx context.Context, pipeline domain.JobPipeline, progress float64, status string, processedCount int) error {
	e.mu.Lock()
	if err := e.checkMutableLocked(pipeline); err != nil {
		e.mu.Unlock()
		return err
	}

	if e.state.Status == domain.JobInitialized {
		e.state.Status = domain.JobProcessing
	}
	e.state.Progress = progress
	e.state.StatusMessage = status
	if processedCount > 0 {
		e.state.ProcessedCount = processedCount
	}
	e.bumpLocked()

	persistNow := e.shouldPersistLocked()
	env := newEnvelope(EnvelopeProgress, e.state.JobID, pipeline, ProgressPayload{
		Progress:       progress,
		Status:         status,
		ProcessedCount: e.state.ProcessedCount,
		TotalCount:     e.state.TotalCount,
	})
	peer := e.peer
	e.mu.Unlock()

	e.sendBestEffort(ctx, peer, env)
	if persistNow {
		e.mu.Lock()
		err := e.persistLocked(ctx, true)
		e.mu.Unlock()
		return err
	}
	return nil
}

// Complete transitions the job to completed (spec §4.6).
func (e *Entity) Complete(ctx context.Context, pipeline domain.JobPipeline, result any) error {
	e.mu.Lock()
	if err := e.checkMutableLocked(pipeline); err != nil {
		e.mu.Unlock()
		return err
	}
	e.state.Status = domain.JobCompleted
	e.state.Progress = 1.0
	e.state.Result = result
	e.bumpLocked()
	err := e.persistLocked(ctx, true)
	env := newEnvelope(EnvelopeComplete, e.state.JobID, pipeline, result)
	peer := e.peer
	e.peer = nil
	e.mu.Unlock()

	e.sendBestEffort(ctx, peer, env)
	if peer != nil {
		_ = peer.Close(1000, "Job completed")
	}
	e.scheduleCleanup()
	return err
}

// SendError transitions the job to failed (spec §4.6).
func (e *Entity) SendError(ctx context.Context, pipeline domain.JobPipeline, code, message string, retryable bool) error {
	e.mu.Lock()
	if err := e.checkMutableLocked(pipeline); err != nil {
		e.mu.Unlock()
		return err
	}
	e.state.Status = domain.JobFailed
	e.state.Error = &domain.JobError{Code: code, Message: message, Retryable: retryable}
	e.bumpLocked()
	err := e.persistLocked(ctx, true)
	env := newEnvelope(EnvelopeError, e.state.JobID, pipeline, ErrorPayload{Code: code, Message: message, Retryable: retryable})
	peer := e.peer
	e.peer = nil
	e.mu.Unlock()

	e.sendBestEffort(ctx, peer, env)
	if peer != nil {
		_ = peer.Close(1000, "Job failed")
	}
	e.scheduleCleanup()
	return err
}

// CancelJob marks the job canceled and, if it isn't already terminal,
// transitions its own status to domain.JobCanceled and sends a terminal
// error envelope with code CANCELED (spec §3, §4.6's explicit
// processing -> canceled transition). Idempotent.
func (e *Entity) CancelJob(ctx context.Context, reason string) error {
	e.mu.Lock()
	e.state.Canceled = true
	e.state.CancelReason = reason
	if e.state.Status.Terminal() {
		e.mu.Unlock()
		return nil
	}

	pipeline := e.state.Pipeline
	message := cancelMessage(reason)
	e.state.Status = domain.JobCanceled
	e.state.Error = &domain.JobError{Code: "CANCELED", Message: message, Retryable: false}
	e.bumpLocked()
	err := e.persistLocked(ctx, true)
	env := newEnvelope(EnvelopeError, e.state.JobID, pipeline, ErrorPayload{Code: "CANCELED", Message: message, Retryable: false})
	peer := e.peer
	e.peer = nil
	e.mu.Unlock()

	e.sendBestEffort(ctx, peer, env)
	if peer != nil {
		_ = peer.Close(1000, "Job canceled")
	}
	e.scheduleCleanup()
	return err
}

func cancelMessage(reason string) string {
	if reason == "" {
		return "job canceled"
	}
	return fmt.Sprintf("job canceled: %s", reason)
}

// InitBatch sets up the fixed-length photos array for an ai_scan batch job.
func (e *Entity) InitBatch(ctx context.Context, totalPhotos int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkMutableLocked(domain.PipelineAIScan); err != nil {
		return err
	}
	photos := make([]domain.PhotoResult, totalPhotos)
	for i := range photos {
		photos[i] = domain.PhotoResult{Index: i, Status: domain.PhotoQueued}
	}
	e.state.Photos = photos
	e.state.TotalCount = totalPhotos
	e.bumpLocked()
	return e.persistLocked(ctx, true)
}

// UpdatePhoto updates one entry of the photos array and recomputes the
// aggregate booksFound total (spec §4.6).
func (e *Entity) UpdatePhoto(ctx context.Context, index int, status domain.PhotoStatus, booksFound int, photoErr string) error {
	e.mu.Lock()
	if err := e.checkMutableLocked(domain.PipelineAIScan); err != nil {
		e.mu.Unlock()
		return err
	}
	if index < 0 || index >= len(e.state.Photos) {
		e.mu.Unlock()
		return ErrInvalidPhotoIndex
	}
	e.state.Photos[index] = domain.PhotoResult{Index: index, Status: status, BooksFound: booksFound, Error: photoErr}

	processed := 0
	for _, p := range e.state.Photos {
		if p.Status == domain.PhotoComplete || p.Status == domain.PhotoFailed {
			processed++
		}
	}
	e.state.ProcessedCount = processed
	if e.state.TotalCount > 0 {
		e.state.Progress = float64(processed) / float64(e.state.TotalCount)
	}
	e.bumpLocked()

	persistNow := e.shouldPersistLocked()
	env := newEnvelope(EnvelopeProgress, e.state.JobID, e.state.Pipeline, ProgressPayload{
		Progress:       e.state.Progress,
		Status:         "processing",
		ProcessedCount: e.state.ProcessedCount,
		TotalCount:     e.state.TotalCount,
	})
	peer := e.peer
	e.mu.Unlock()

	e.sendBestEffort(ctx, peer, env)
	if persistNow {
		e.mu.Lock()
		err := e.persistLocked(ctx, true)
		e.mu.Unlock()
		return err
	}
	return nil
}

// TotalBooksFound sums booksFound across the photos array, per spec §4.6's
// "totalBooksFound is recomputed as the sum over photos[*].booksFound".
func (e *Entity) TotalBooksFound() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, p := range e.state.Photos {
		total += p.BooksFound
	}
	return total
}

func (e *Entity) checkMutableLocked(pipeline domain.JobPipeline) error {
	if e.state.JobID == "" {
		return ErrNotFound
	}
	if e.state.Pipeline != pipeline {
		return ErrWrongPipeline
	}
	if e.state.Status.Terminal() {
		return ErrTerminalState
	}
	return nil
}

func (e *Entity) bumpLocked() {
	e.state.Version++
	e.state.LastUpdateTime = time.Now().UnixMilli()
	e.updatesSincePersist++
}

func (e *Entity) shouldPersistLocked() bool {
	if e.updatesSincePersist >= e.throttle.N {
		return true
	}
	if time.Since(e.lastPersistAt) >= e.throttle.T {
		return true
	}
	return false
}

func (e *Entity) persistLocked(ctx context.Context, force bool) error {
	if !force && !e.shouldPersistLocked() {
		return nil
	}
	e.updatesSincePersist = 0
	e.lastPersistAt = time.Now()
	return e.persister.SaveState(ctx, e.state)
}

func (e *Entity) sendBestEffort(ctx context.Context, peer Peer, env Envelope) {
	if peer == nil {
		return
	}
	// Send failure never fails the calling operation (spec §4.6, §7): the
	// driver keeps going and the state is already persisted.
	_ = peer.Send(ctx, env)
}

func (e *Entity) scheduleCleanup() {
	jobID := e.state.JobID
	at := time.Now().Add(e.cleanupAfter)
	e.scheduler.Schedule(at, func() {
		ctx := context.Background()
		_ = e.persister.DeleteState(ctx, jobID)
		_ = e.persister.DeleteToken(ctx, jobID)
	})
}
