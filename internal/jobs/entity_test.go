package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookwyrm/core/internal/domain"
)

type fakePersister struct {
	states map[string]domain.JobState
	tokens map[string]domain.AuthToken
}

func newFakePersister() *fakePersister {
	return &fakePersister{states: map[string]domain.JobState{}, tokens: map[string]domain.AuthToken{}}
}

func (p *fakePersister) SaveState(_ context.Context, s domain.JobState) error {
	p.states[s.JobID] = s
	return nil
}
func (p *fakePersister) SaveToken(_ context.Context, t domain.AuthToken) error {
	p.tokens[t.JobID] = t
	return nil
}
func (p *fakePersister) DeleteState(_ context.Context, jobID string) error {
	delete(p.states, jobID)
	return nil
}
func (p *fakePersister) DeleteToken(_ context.Context, jobID string) error {
	delete(p.tokens, jobID)
	return nil
}

type inlineScheduler struct{ fns []func() }

func (s *inlineScheduler) Schedule(_ time.Time, fn func()) { s.fns = append(s.fns, fn) }

type fakePeer struct {
	sent   []Envelope
	closed bool
	code   int
	reason string
}

func (p *fakePeer) Send(_ context.Context, env Envelope) error {
	p.sent = append(p.sent, env)
	return nil
}
func (p *fakePeer) Close(code int, reason string) error {
	p.closed = true
	p.code = code
	p.reason = reason
	return nil
}

func newTestEntity() (*Entity, *fakePersister, *inlineScheduler) {
	p := newFakePersister()
	s := &inlineScheduler{}
	cfg := Config{
		Throttle:      PersistThrottle{N: 1000, T: time.Hour},
		CleanupAfter:  time.Hour,
		TokenTTL:      time.Hour,
		RefreshWindow: 5 * time.Minute,
	}
	return NewEntity(p, s, cfg), p, s
}

func TestInitializeJobState_IdempotentOnSameParams(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineCSVImport, 5))
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineCSVImport, 5))
	assert.Equal(t, domain.JobInitialized, e.GetState().Status)
}

func TestInitializeJobState_ConflictOnDifferentParams(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineCSVImport, 5))
	err := e.InitializeJobState(ctx, "job-1", domain.PipelineCSVImport, 6)
	assert.ErrorIs(t, err, ErrConflictingInit)
}

func TestUpdateProgress_TransitionsToProcessing(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineBatchEnrichment, 10))

	require.NoError(t, e.UpdateProgress(ctx, domain.PipelineBatchEnrichment, 0.5, "halfway", 5))
	state := e.GetState()
	assert.Equal(t, domain.JobProcessing, state.Status)
	assert.Equal(t, 0.5, state.Progress)
	assert.Equal(t, 5, state.ProcessedCount)
}

func TestUpdateProgress_WrongPipelineRejected(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineBatchEnrichment, 10))

	err := e.UpdateProgress(ctx, domain.PipelineCSVImport, 0.5, "x", 1)
	assert.ErrorIs(t, err, ErrWrongPipeline)
}

func TestUpdateProgress_AfterTerminalRejected(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineBatchEnrichment, 10))
	require.NoError(t, e.Complete(ctx, domain.PipelineBatchEnrichment, "done"))

	err := e.UpdateProgress(ctx, domain.PipelineBatchEnrichment, 0.9, "x", 9)
	assert.ErrorIs(t, err, ErrTerminalState)
}

func TestComplete_ClosesPeerAndSchedulesCleanup(t *testing.T) {
	e, persister, sched := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineBatchEnrichment, 10))

	peer := &fakePeer{}
	e.AttachPeer(peer)

	require.NoError(t, e.Complete(ctx, domain.PipelineBatchEnrichment, map[string]int{"found": 3}))

	assert.True(t, peer.closed)
	assert.Equal(t, 1000, peer.code)
	assert.Equal(t, domain.JobCompleted, e.GetState().Status)
	assert.Len(t, sched.fns, 1)

	sched.fns[0]()
	_, stillThere := persister.states["job-1"]
	assert.False(t, stillThere)
}

func TestAttachPeer_SupersedesPrevious(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineBatchEnrichment, 10))

	first := &fakePeer{}
	e.AttachPeer(first)
	second := &fakePeer{}
	e.AttachPeer(second)

	assert.True(t, first.closed)
	assert.Equal(t, 4409, first.code)
	assert.False(t, second.closed)
}

func TestDetachPeer_NoopIfAlreadySuperseded(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineBatchEnrichment, 10))

	first := &fakePeer{}
	e.AttachPeer(first)
	second := &fakePeer{}
	e.AttachPeer(second)

	e.DetachPeer(first) // stale detach, should not clear the current peer
	_, currentToken := e.GetStateAndAuth()
	_ = currentToken
	// second peer should still be deliverable to
	require.NoError(t, e.UpdateProgress(context.Background(), domain.PipelineBatchEnrichment, 0.1, "x", 1))
	assert.Len(t, second.sent, 1)
}

func TestCancelJob_IdempotentOnTerminalJob(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineBatchEnrichment, 10))
	require.NoError(t, e.Complete(ctx, domain.PipelineBatchEnrichment, nil))

	require.NoError(t, e.CancelJob(ctx, "too late"))
	assert.Equal(t, domain.JobCompleted, e.GetState().Status)
}

func TestCancelJob_TransitionsToCanceledWithCanceledCode(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineBatchEnrichment, 10))

	require.NoError(t, e.CancelJob(ctx, "user requested"))
	state := e.GetState()
	assert.Equal(t, domain.JobCanceled, state.Status)
	assert.Equal(t, "CANCELED", state.Error.Code)
	assert.True(t, state.Canceled)
}

func TestRefreshAuthToken_RejectsOutsideWindow(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineBatchEnrichment, 10))
	tok, err := e.SetAuthToken(ctx, time.Hour)
	require.NoError(t, err)

	_, err = e.RefreshAuthToken(ctx, tok.Value)
	assert.ErrorIs(t, err, ErrRefreshWindowNotOpen)
}

func TestRefreshAuthToken_SucceedsWithinWindow(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineBatchEnrichment, 10))
	tok, err := e.SetAuthToken(ctx, 2*time.Minute)
	require.NoError(t, err)

	fresh, err := e.RefreshAuthToken(ctx, tok.Value)
	require.NoError(t, err)
	assert.NotEqual(t, tok.Value, fresh.Value)
}

func TestRefreshAuthToken_RejectsWrongToken(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineBatchEnrichment, 10))
	_, err := e.SetAuthToken(ctx, 2*time.Minute)
	require.NoError(t, err)

	_, err = e.RefreshAuthToken(ctx, "not-the-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUpdatePhoto_RecomputesProgressAndBooksFound(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineAIScan, 0))
	require.NoError(t, e.InitBatch(ctx, 2))

	require.NoError(t, e.UpdatePhoto(ctx, 0, domain.PhotoComplete, 3, ""))
	require.NoError(t, e.UpdatePhoto(ctx, 1, domain.PhotoFailed, 0, "blurry"))

	state := e.GetState()
	assert.Equal(t, 2, state.ProcessedCount)
	assert.Equal(t, 1.0, state.Progress)
	assert.Equal(t, 3, e.TotalBooksFound())
}

func TestUpdatePhoto_InvalidIndex(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineAIScan, 0))
	require.NoError(t, e.InitBatch(ctx, 1))

	err := e.UpdatePhoto(ctx, 5, domain.PhotoComplete, 1, "")
	assert.ErrorIs(t, err, ErrInvalidPhotoIndex)
}

func TestWaitForReady_UnblocksOnMarkReady(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineBatchEnrichment, 1))
	e.AttachPeer(&fakePeer{})

	done := make(chan bool, 1)
	go func() {
		done <- e.WaitForReady(ctx, time.Second)
	}()
	time.Sleep(10 * time.Millisecond)
	e.MarkReady()

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitForReady did not unblock")
	}
}

func TestWaitForReady_TimesOut(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineBatchEnrichment, 1))
	e.AttachPeer(&fakePeer{})

	assert.False(t, e.WaitForReady(ctx, 10*time.Millisecond))
}

func TestSendError_CodeAndRetryable(t *testing.T) {
	e, _, _ := newTestEntity()
	ctx := context.Background()
	require.NoError(t, e.InitializeJobState(ctx, "job-1", domain.PipelineBatchEnrichment, 1))

	require.NoError(t, e.SendError(ctx, domain.PipelineBatchEnrichment, "PROVIDER_TIMEOUT", "timed out", true))
	state := e.GetState()
	assert.Equal(t, domain.JobFailed, state.Status)
	require.NotNil(t, state.Error)
	assert.True(t, state.Error.Retryable)
}
