package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ladleworks/reelchef/pkg/evidence"
	"github.com/ladleworks/reelchef/pkg/recipe"
	"github.com/ladleworks/reelchef/pkg/reconstruct"
	"github.com/ladleworks/reelchef/pkg/scrape"
)

// Store persists job snapshots. Operations on the same id are
// serialized by the implementation; different ids may proceed
// concurrently.
type Store interface {
	Put(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
}

// Sink receives a job snapshot after every state transition.
type Sink interface {
	Publish(ctx context.Context, job *Job) error
}

// Queue hands accepted job ids to workers. Implementations may be
// in-process or shared between processes.
type Queue interface {
	Enqueue(ctx context.Context, id string) error
	Dequeue(ctx context.Context) (string, error)
}

// ErrQueueFull is returned by Enqueue when the queue cannot accept
// another job right now.
var ErrQueueFull = errors.New("queue full")

type memQueue struct {
	ch chan string
}

func newMemQueue(size int) *memQueue {
	return &memQueue{ch: make(chan string, size)}
}

func (q *memQueue) Enqueue(ctx context.Context, id string) error {
	select {
	case q.ch <- id:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *memQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case id := <-q.ch:
		return id, nil
	}
}

// EvidenceExtractor builds evidence from acquired metadata.
type EvidenceExtractor interface {
	FromMetadata(ctx context.Context, meta *scrape.Metadata) (*evidence.VideoEvidence, error)
}

// Reconstructor turns evidence into a recipe.
type Reconstructor interface {
	Reconstruct(ctx context.Context, ev *evidence.VideoEvidence, lang string) (*reconstruct.Result, error)
}

// RecipeSaver writes a reconstructed recipe to durable storage and
// returns its record id.
type RecipeSaver interface {
	Save(ctx context.Context, rec *recipe.Recipe, ownerID, sourceURL, thumbnailURL string) (string, error)
}

// Config configures coordinator behavior.
type Config struct {
	// Workers is the number of jobs processed concurrently.
	// Default: 4
	Workers int

	// QueueSize bounds the number of accepted-but-unstarted jobs.
	// Default: 64
	QueueSize int

	// MaxAttempts bounds retries of transient acquisition and model
	// transport failures. Default: 3
	MaxAttempts int

	// BackoffBase is the first retry delay; each further attempt
	// doubles it. Default: 1s (production uses 60s)
	BackoffBase time.Duration

	// HardTimeout aborts a job outright. Default: 5m
	HardTimeout time.Duration

	// SoftTimeout only logs a warning so slow jobs are visible before
	// the hard limit kills them. Default: 4m
	SoftTimeout time.Duration
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		QueueSize:   64,
		MaxAttempts: 3,
		BackoffBase: time.Second,
		HardTimeout: 5 * time.Minute,
		SoftTimeout: 4 * time.Minute,
	}
}

// Coordinator accepts jobs and drives each one through acquisition,
// extraction, reconstruction and persistence.
type Coordinator struct {
	provider  scrape.Provider
	extractor EvidenceExtractor
	engine    Reconstructor
	saver     RecipeSaver
	store     Store
	sink      Sink
	config    Config
	logger    *zap.Logger

	queue Queue
}

// New creates a coordinator. saver may be nil, in which case every
// successful job completes with Stored=false.
func New(p scrape.Provider, x EvidenceExtractor, e Reconstructor, s RecipeSaver, store Store, sink Sink, cfg Config, logger *zap.Logger) *Coordinator {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.HardTimeout <= 0 {
		cfg.HardTimeout = def.HardTimeout
	}
	if cfg.SoftTimeout <= 0 {
		cfg.SoftTimeout = def.SoftTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		provider:  p,
		extractor: x,
		engine:    e,
		saver:     s,
		store:     store,
		sink:      sink,
		config:    cfg,
		logger:    logger,
		queue:     newMemQueue(cfg.QueueSize),
	}
}

// WithQueue replaces the in-process queue, e.g. with a shared one so
// submission and processing can live in different processes.
func (c *Coordinator) WithQueue(q Queue) *Coordinator {
	c.queue = q
	return c
}

// Submit validates and enqueues a job, returning its id. The job is
// stored in PENDING before Submit returns, so a Status call with the
// returned id always succeeds.
func (c *Coordinator) Submit(ctx context.Context, videoRef, language, ownerID string) (string, error) {
	if strings.TrimSpace(videoRef) == "" {
		return "", NewError(CodeValidation, "video reference must not be empty", nil)
	}

	job := &Job{
		ID:         uuid.New().String(),
		State:      StatePending,
		TotalSteps: TotalSteps,
		Message:    "Job accepted",
		VideoRef:   videoRef,
		Language:   reconstruct.NormalizeLanguage(language),
		OwnerID:    ownerID,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := c.store.Put(ctx, job); err != nil {
		return "", NewError(CodePersistence, "could not record job", err)
	}

	if err := c.queue.Enqueue(ctx, job.ID); err != nil {
		detail := "could not enqueue job"
		if errors.Is(err, ErrQueueFull) {
			detail = "queue is full, try again later"
		}
		job.State = StateFailure
		job.Err = NewError(CodeCapacity, detail, err)
		_ = c.store.Put(ctx, job)
		return "", job.Err
	}

	c.logger.Info("Job accepted",
		zap.String("job_id", job.ID),
		zap.String("owner_id", ownerID))
	return job.ID, nil
}

// Status returns the current snapshot for a job id.
func (c *Coordinator) Status(ctx context.Context, id string) (*Job, error) {
	return c.store.Get(ctx, id)
}

// Run processes queued jobs until ctx is cancelled. It blocks; run it
// in a goroutine when the caller has other work.
func (c *Coordinator) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < c.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				id, err := c.queue.Dequeue(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					c.logger.Warn("Queue receive failed", zap.Error(err))
					select {
					case <-ctx.Done():
						return
					case <-time.After(time.Second):
					}
					continue
				}
				c.runJob(ctx, id)
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// runJob drives one job to a terminal state.
func (c *Coordinator) runJob(ctx context.Context, id string) {
	job, err := c.store.Get(ctx, id)
	if err != nil {
		c.logger.Error("Queued job missing from store",
			zap.String("job_id", id), zap.Error(err))
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, c.config.HardTimeout)
	defer cancel()

	soft := time.AfterFunc(c.config.SoftTimeout, func() {
		c.logger.Warn("Job approaching time limit", zap.String("job_id", id))
	})
	defer soft.Stop()

	start := time.Now()

	c.advance(jobCtx, job, 1)
	if strings.TrimSpace(job.VideoRef) == "" {
		c.fail(jobCtx, job, NewError(CodeValidation, "video reference must not be empty", nil))
		return
	}

	c.advance(jobCtx, job, 2)
	meta, err := c.acquire(jobCtx, job)
	if err != nil {
		c.fail(jobCtx, job, NewError(CodeAcquisition, "video could not be acquired", err))
		return
	}

	c.advance(jobCtx, job, 3)
	ev, err := c.extractor.FromMetadata(jobCtx, meta)
	if err != nil {
		c.fail(jobCtx, job, NewError(CodeExtraction, "evidence extraction failed", err))
		return
	}

	c.advance(jobCtx, job, 4)
	res, err := c.reconstructWithRetry(jobCtx, job, ev)
	if err != nil {
		if !reconstruct.IsModelTransport(err) {
			c.fail(jobCtx, job, NewError(CodeReconstruction, "recipe reconstruction failed", err))
			return
		}
		// Model unreachable after every attempt. The job still
		// completes, carrying the placeholder instead of a recipe.
		c.logger.Warn("Model unreachable, completing with placeholder",
			zap.String("job_id", job.ID), zap.Error(err))
		res = &reconstruct.Result{
			Recipe: recipe.Placeholder("The recipe service could not be reached. Please try again later."),
		}
	}

	c.advance(jobCtx, job, 5)
	result := c.finalize(jobCtx, job, res.Recipe, ev.ThumbnailURL)

	job.State = StateSuccess
	job.Message = "Recipe ready"
	job.Result = result
	job.UpdatedAt = time.Now().UTC()
	c.persistAndPublish(jobCtx, job)

	c.logger.Info("Job completed",
		zap.String("job_id", job.ID),
		zap.String("strategy", string(res.Strategy)),
		zap.Int("score", res.Score),
		zap.Bool("stored", result.Stored),
		zap.Duration("duration", time.Since(start)))
}

// acquire fetches video metadata, retrying transient provider failures
// with exponential backoff. Inaccessible sources fail immediately.
func (c *Coordinator) acquire(ctx context.Context, job *Job) (*scrape.Metadata, error) {
	var lastErr error
	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			c.logger.Info("Retrying acquisition",
				zap.String("job_id", job.ID), zap.Int("attempt", attempt+1))
		}
		meta, err := c.provider.Fetch(ctx, job.VideoRef)
		if err == nil {
			return meta, nil
		}
		lastErr = err
		if !scrape.IsTransient(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", c.config.MaxAttempts, lastErr)
}

// reconstructWithRetry retries only model transport failures.
func (c *Coordinator) reconstructWithRetry(ctx context.Context, job *Job, ev *evidence.VideoEvidence) (*reconstruct.Result, error) {
	var lastErr error
	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			c.logger.Info("Retrying reconstruction",
				zap.String("job_id", job.ID), zap.Int("attempt", attempt+1))
		}
		res, err := c.engine.Reconstruct(ctx, ev, job.Language)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !reconstruct.IsModelTransport(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", c.config.MaxAttempts, lastErr)
}

// finalize persists the recipe. Persistence failure does not fail the
// job: the recipe still reaches the caller through the terminal event,
// flagged as unstored.
func (c *Coordinator) finalize(ctx context.Context, job *Job, rec *recipe.Recipe, thumbnailURL string) *ResultRef {
	result := &ResultRef{Title: rec.Title}
	if c.saver == nil {
		return result
	}
	recordID, err := c.saver.Save(ctx, rec, job.OwnerID, job.VideoRef, thumbnailURL)
	if err != nil {
		c.logger.Error("Recipe persistence failed",
			zap.String("job_id", job.ID), zap.Error(err))
		return result
	}
	result.RecipeID = recordID
	result.Stored = true
	return result
}

// backoff sleeps for BackoffBase·2^(attempt-1), honoring cancellation.
func (c *Coordinator) backoff(ctx context.Context, attempt int) error {
	d := c.config.BackoffBase << (attempt - 1)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// advance moves the job to the given step and publishes the snapshot.
func (c *Coordinator) advance(ctx context.Context, job *Job, step int) {
	job.State = StateProgress
	job.Step = step
	job.Message = stepMessages[step]
	job.UpdatedAt = time.Now().UTC()
	c.persistAndPublish(ctx, job)
}

// fail marks the job terminal with a taxonomy error.
func (c *Coordinator) fail(ctx context.Context, job *Job, jobErr *Error) {
	job.State = StateFailure
	job.Message = jobErr.Detail
	job.Err = jobErr
	job.UpdatedAt = time.Now().UTC()
	c.persistAndPublish(ctx, job)

	c.logger.Warn("Job failed",
		zap.String("job_id", job.ID),
		zap.String("code", string(jobErr.Code)),
		zap.Error(jobErr))
}

// persistAndPublish stores the snapshot, then broadcasts it. Neither
// failure interrupts the pipeline; the job keeps moving and the store
// catches up on the next transition. The write survives job-context
// cancellation so a timed-out job still lands in a terminal state.
func (c *Coordinator) persistAndPublish(ctx context.Context, job *Job) {
	ctx = context.WithoutCancel(ctx)
	snapshot := job.Clone()
	if err := c.store.Put(ctx, snapshot); err != nil {
		c.logger.Error("Job snapshot write failed",
			zap.String("job_id", job.ID), zap.Error(err))
	}
	if c.sink != nil {
		if err := c.sink.Publish(ctx, snapshot); err != nil {
			c.logger.Warn("Job event publish failed",
				zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}
