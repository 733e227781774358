package broadcast

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ladleworks/reelchef/pkg/pipeline"
)

// ErrNotOwner is returned by Attach when the caller does not own the
// job it is trying to observe.
var ErrNotOwner = errors.New("caller does not own this job")

// Subscriber receives events for one job. Send must be safe to call
// from the registry's fan-out goroutine; a non-nil return detaches the
// subscriber.
type Subscriber interface {
	Send(ev Event) error
}

// jobSubs is the subscriber set for one job id, guarded by its own
// lock. Replay and fan-out writes happen under this lock only, so a
// stalled subscriber on one job never blocks delivery for another.
type jobSubs struct {
	mu   sync.Mutex
	set  map[Subscriber]struct{}
	dead bool
}

// Registry tracks which subscribers watch which job and fans bus
// events out to them.
type Registry struct {
	store  pipeline.Store
	logger *zap.Logger

	// mu guards the map only. The per-job mutex is never acquired
	// while mu is held.
	mu   sync.RWMutex
	jobs map[string]*jobSubs
}

// NewRegistry creates a registry that validates attachments against
// the given job store.
func NewRegistry(store pipeline.Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:  store,
		logger: logger,
		jobs:   make(map[string]*jobSubs),
	}
}

// entry returns the live subscriber set for jobID with its lock held,
// creating it when absent. Retries when it loses a race with the
// removal of an emptied set.
func (r *Registry) entry(jobID string) *jobSubs {
	for {
		r.mu.Lock()
		js, ok := r.jobs[jobID]
		if !ok {
			js = &jobSubs{set: make(map[Subscriber]struct{})}
			r.jobs[jobID] = js
		}
		r.mu.Unlock()

		js.mu.Lock()
		if !js.dead {
			return js
		}
		js.mu.Unlock()
	}
}

// Attach registers sub for events on jobID after verifying the job
// exists and belongs to ownerID. The current job status is replayed to
// sub before any live event can reach it.
func (r *Registry) Attach(ctx context.Context, jobID, ownerID string, sub Subscriber) error {
	job, err := r.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.OwnerID != "" && job.OwnerID != ownerID {
		return ErrNotOwner
	}

	// Registering and replaying under the per-job lock means a live
	// event observed after the snapshot can never be older than it.
	js := r.entry(jobID)
	js.set[sub] = struct{}{}
	replayErr := sub.Send(NewStatus(job))
	js.mu.Unlock()

	if replayErr != nil {
		r.Detach(jobID, sub)
		return replayErr
	}

	r.logger.Debug("Subscriber attached", zap.String("job_id", jobID))
	return nil
}

// Detach removes sub from jobID. Unknown pairs are a no-op.
func (r *Registry) Detach(jobID string, sub Subscriber) {
	r.mu.RLock()
	js := r.jobs[jobID]
	r.mu.RUnlock()
	if js == nil {
		return
	}

	js.mu.Lock()
	delete(js.set, sub)
	emptied := len(js.set) == 0
	if emptied {
		js.dead = true
	}
	js.mu.Unlock()

	if emptied {
		r.mu.Lock()
		if r.jobs[jobID] == js {
			delete(r.jobs, jobID)
		}
		r.mu.Unlock()
	}
}

// Subscribers reports how many subscribers watch jobID.
func (r *Registry) Subscribers(jobID string) int {
	r.mu.RLock()
	js := r.jobs[jobID]
	r.mu.RUnlock()
	if js == nil {
		return 0
	}
	js.mu.Lock()
	defer js.mu.Unlock()
	return len(js.set)
}

// Start begins consuming the bus and fanning events out. The bus
// subscription is established before Start returns; the returned stop
// function detaches from the bus and waits for the fan-out loop to
// finish. Subscribers whose Send fails are pruned.
func (r *Registry) Start(ctx context.Context, bus Bus) func() {
	events, cancel := bus.Subscribe(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				r.dispatch(ev)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (r *Registry) dispatch(ev Event) {
	r.mu.RLock()
	js := r.jobs[ev.JobID]
	r.mu.RUnlock()
	if js == nil {
		return
	}

	// Holding the per-job lock across the writes keeps delivery
	// ordered with respect to an in-flight attach replay on this job.
	js.mu.Lock()
	var failed []Subscriber
	for sub := range js.set {
		if err := sub.Send(ev); err != nil {
			r.logger.Debug("Pruning dead subscriber",
				zap.String("job_id", ev.JobID), zap.Error(err))
			failed = append(failed, sub)
		}
	}
	js.mu.Unlock()

	for _, sub := range failed {
		r.Detach(ev.JobID, sub)
	}
}
