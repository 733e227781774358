// Package jobstore provides pipeline.Store implementations: a
// process-local memory store with retention pruning and a Redis store
// for multi-process deployments.
package jobstore

import (
	"context"
	"sync"
	"time"

	"github.com/ladleworks/reelchef/pkg/pipeline"
)

// DefaultRetention is how long terminal jobs stay queryable.
const DefaultRetention = time.Hour

// Memory is an in-process job store. Snapshots are copied on the way
// in and out, so callers can mutate freely.
type Memory struct {
	mu        sync.RWMutex
	jobs      map[string]*pipeline.Job
	retention time.Duration
}

// NewMemory creates a memory store. retention <= 0 uses the default.
func NewMemory(retention time.Duration) *Memory {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Memory{
		jobs:      make(map[string]*pipeline.Job),
		retention: retention,
	}
}

func (m *Memory) Put(ctx context.Context, job *pipeline.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*pipeline.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, pipeline.ErrNotFound
	}
	return job.Clone(), nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

// Len reports the number of retained jobs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

// Prune removes terminal jobs last updated before the retention
// window. It returns the number of jobs removed.
func (m *Memory) Prune(now time.Time) int {
	cutoff := now.Add(-m.retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, job := range m.jobs {
		if job.State.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

// Run prunes periodically until ctx is cancelled. Run it in a
// goroutine alongside the coordinator.
func (m *Memory) Run(ctx context.Context) {
	ticker := time.NewTicker(m.retention / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Prune(now)
		}
	}
}
