package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ladleworks/reelchef/pkg/evidence"
	"github.com/ladleworks/reelchef/pkg/recipe"
	"github.com/ladleworks/reelchef/pkg/reconstruct"
	"github.com/ladleworks/reelchef/pkg/scrape"
)

// memStore is a minimal in-memory Store for coordinator tests.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]*Job{}}
}

func (s *memStore) Put(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

// recordingSink captures every published snapshot in order.
type recordingSink struct {
	mu        sync.Mutex
	snapshots []*Job
}

func (r *recordingSink) Publish(ctx context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, job.Clone())
	return nil
}

func (r *recordingSink) all() []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Job, len(r.snapshots))
	copy(out, r.snapshots)
	return out
}

type stubProvider struct {
	mu    sync.Mutex
	errs  []error
	calls int
	meta  *scrape.Metadata
}

func (p *stubProvider) Fetch(ctx context.Context, videoRef string) (*scrape.Metadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if p.meta != nil {
		return p.meta, nil
	}
	return &scrape.Metadata{Text: "stub narration"}, nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type stubExtractor struct {
	ev  *evidence.VideoEvidence
	err error
}

func (x *stubExtractor) FromMetadata(ctx context.Context, meta *scrape.Metadata) (*evidence.VideoEvidence, error) {
	if x.err != nil {
		return nil, x.err
	}
	if x.ev != nil {
		return x.ev, nil
	}
	return &evidence.VideoEvidence{Narration: meta.Text}, nil
}

type stubEngine struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (e *stubEngine) Reconstruct(ctx context.Context, ev *evidence.VideoEvidence, lang string) (*reconstruct.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.calls
	e.calls++
	if i < len(e.errs) && e.errs[i] != nil {
		return nil, e.errs[i]
	}
	return &reconstruct.Result{
		Recipe:   &recipe.Recipe{Title: "Stub Dish", Ingredients: []string{"x"}, Steps: []string{"y"}},
		Strategy: evidence.StrategyFullFrames,
	}, nil
}

type stubSaver struct {
	err   error
	calls int
}

func (s *stubSaver) Save(ctx context.Context, rec *recipe.Recipe, ownerID, sourceURL, thumbnailURL string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "rec-123", nil
}

type fixture struct {
	provider *stubProvider
	engine   *stubEngine
	saver    *stubSaver
	store    *memStore
	sink     *recordingSink
	coord    *Coordinator
	cancel   context.CancelFunc
}

func newFixture(t *testing.T, mutate func(*fixture)) *fixture {
	t.Helper()
	f := &fixture{
		provider: &stubProvider{},
		engine:   &stubEngine{},
		saver:    &stubSaver{},
		store:    newMemStore(),
		sink:     &recordingSink{},
	}
	if mutate != nil {
		mutate(f)
	}
	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.BackoffBase = time.Millisecond
	f.coord = New(f.provider, &stubExtractor{}, f.engine, f.saver, f.store, f.sink, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	t.Cleanup(cancel)
	go func() { _ = f.coord.Run(ctx) }()
	return f
}

// awaitTerminal polls the store until the job reaches a terminal state.
func (f *fixture) awaitTerminal(t *testing.T, id string) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := f.store.Get(context.Background(), id)
		require.NoError(t, err)
		if job.State.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func TestSubmit_EmptyReferenceRejected(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.coord.Submit(context.Background(), "   ", "en", "owner-1")
	require.Error(t, err)
	assert.Equal(t, CodeValidation, CodeOf(err))
	assert.Empty(t, f.sink.all())
	assert.Equal(t, 0, f.provider.callCount())
}

func TestSubmit_StatusVisibleImmediately(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.coord.Submit(context.Background(), "https://v.example/1", "de", "owner-1")
	require.NoError(t, err)

	job, err := f.coord.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "de", job.Language)
	assert.Equal(t, TotalSteps, job.TotalSteps)
}

func TestRunJob_SuccessPublishesMonotoneSteps(t *testing.T) {
	f := newFixture(t, nil)

	id, err := f.coord.Submit(context.Background(), "https://v.example/1", "en", "owner-1")
	require.NoError(t, err)

	job := f.awaitTerminal(t, id)
	assert.Equal(t, StateSuccess, job.State)
	require.NotNil(t, job.Result)
	assert.True(t, job.Result.Stored)
	assert.Equal(t, "rec-123", job.Result.RecipeID)
	assert.Equal(t, "Stub Dish", job.Result.Title)

	snaps := f.sink.all()
	require.NotEmpty(t, snaps)
	last := 0
	for _, s := range snaps {
		assert.GreaterOrEqual(t, s.Step, last)
		last = s.Step
	}
	assert.Equal(t, StateSuccess, snaps[len(snaps)-1].State)
	assert.Equal(t, TotalSteps, snaps[len(snaps)-1].Step)
}

func TestRunJob_InaccessibleSourceFailsWithoutRetry(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.provider.errs = []error{
			&scrape.ScrapeError{Op: "Fetch", Err: scrape.ErrSourceInaccessible},
		}
	})

	id, err := f.coord.Submit(context.Background(), "https://v.example/private", "en", "owner-1")
	require.NoError(t, err)

	job := f.awaitTerminal(t, id)
	assert.Equal(t, StateFailure, job.State)
	require.NotNil(t, job.Err)
	assert.Equal(t, CodeAcquisition, job.Err.Code)
	assert.Equal(t, 1, f.provider.callCount())
}

func TestRunJob_TransientAcquisitionRetriesThenSucceeds(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.provider.errs = []error{
			&scrape.ScrapeError{Op: "Fetch", Err: scrape.ErrProviderUnavailable},
			&scrape.ScrapeError{Op: "Fetch", Err: scrape.ErrProviderUnavailable},
			nil,
		}
	})

	id, err := f.coord.Submit(context.Background(), "https://v.example/1", "en", "owner-1")
	require.NoError(t, err)

	job := f.awaitTerminal(t, id)
	assert.Equal(t, StateSuccess, job.State)
	assert.Equal(t, 3, f.provider.callCount())
}

func TestRunJob_TransientAcquisitionExhaustsAttempts(t *testing.T) {
	transient := &scrape.ScrapeError{Op: "Fetch", Err: scrape.ErrProviderUnavailable}
	f := newFixture(t, func(f *fixture) {
		f.provider.errs = []error{transient, transient, transient}
	})

	id, err := f.coord.Submit(context.Background(), "https://v.example/1", "en", "owner-1")
	require.NoError(t, err)

	job := f.awaitTerminal(t, id)
	assert.Equal(t, StateFailure, job.State)
	assert.Equal(t, CodeAcquisition, job.Err.Code)
	assert.Equal(t, 3, f.provider.callCount())
}

func TestRunJob_ModelTransportRetries(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.engine.errs = []error{
			reconstruct.ErrModelTransport,
			nil,
		}
	})

	id, err := f.coord.Submit(context.Background(), "https://v.example/1", "en", "owner-1")
	require.NoError(t, err)

	job := f.awaitTerminal(t, id)
	assert.Equal(t, StateSuccess, job.State)
	assert.Equal(t, 2, f.engine.calls)
}

func TestRunJob_NonTransportReconstructionDoesNotRetry(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.engine.errs = []error{errors.New("no usable evidence")}
	})

	id, err := f.coord.Submit(context.Background(), "https://v.example/1", "en", "owner-1")
	require.NoError(t, err)

	job := f.awaitTerminal(t, id)
	assert.Equal(t, StateFailure, job.State)
	assert.Equal(t, CodeReconstruction, job.Err.Code)
	assert.Equal(t, 1, f.engine.calls)
}

func TestRunJob_PersistenceFailureStillSucceeds(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.saver.err = errors.New("database unavailable")
	})

	id, err := f.coord.Submit(context.Background(), "https://v.example/1", "en", "owner-1")
	require.NoError(t, err)

	job := f.awaitTerminal(t, id)
	assert.Equal(t, StateSuccess, job.State)
	require.NotNil(t, job.Result)
	assert.False(t, job.Result.Stored)
	assert.Empty(t, job.Result.RecipeID)
	assert.Nil(t, job.Err)
}

func TestCodeOf(t *testing.T) {
	err := NewError(CodeExtraction, "boom", errors.New("inner"))
	assert.Equal(t, CodeExtraction, CodeOf(err))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
	assert.ErrorIs(t, err, err.Err)
}

func TestMemQueue_FullRejectsWithoutBlocking(t *testing.T) {
	q := newMemQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "a"))
	assert.ErrorIs(t, q.Enqueue(ctx, "b"), ErrQueueFull)

	id, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", id)
}

func TestMemQueue_DequeueHonorsCancellation(t *testing.T) {
	q := newMemQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubmit_QueueFullMarksJobFailed(t *testing.T) {
	// No workers draining: jobs pile up in a size-1 queue.
	store := newMemStore()
	sink := &recordingSink{}
	coord := New(&stubProvider{}, &stubExtractor{}, &stubEngine{}, nil,
		store, sink, Config{QueueSize: 1}, zap.NewNop())

	ctx := context.Background()
	_, err := coord.Submit(ctx, "https://v.example/1", "en", "owner-1")
	require.NoError(t, err)

	id, err := coord.Submit(ctx, "https://v.example/2", "en", "owner-1")
	require.Error(t, err)
	assert.Empty(t, id)

	var jobErr *Error
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, CodeCapacity, jobErr.Code)
	assert.Contains(t, jobErr.Detail, "queue is full")
}

func TestRunJob_TransportExhaustionCompletesWithPlaceholder(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.engine.errs = []error{
			reconstruct.ErrModelTransport,
			reconstruct.ErrModelTransport,
			reconstruct.ErrModelTransport,
		}
	})

	id, err := f.coord.Submit(context.Background(), "https://v.example/1", "en", "owner-1")
	require.NoError(t, err)

	job := f.awaitTerminal(t, id)
	assert.Equal(t, StateSuccess, job.State)
	assert.Equal(t, 3, f.engine.calls)
	assert.Nil(t, job.Err)
	require.NotNil(t, job.Result)
	assert.Equal(t, recipe.DefaultTitle, job.Result.Title)
}
