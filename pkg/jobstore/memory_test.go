package jobstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladleworks/reelchef/pkg/pipeline"
)

func testJob(id string, state pipeline.State, updated time.Time) *pipeline.Job {
	return &pipeline.Job{
		ID:         id,
		State:      state,
		TotalSteps: pipeline.TotalSteps,
		VideoRef:   "https://v.example/" + id,
		UpdatedAt:  updated,
	}
}

func TestMemory_PutGetRoundTrip(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()

	job := testJob("a", pipeline.StateProgress, time.Now())
	job.Step = 2
	require.NoError(t, s.Put(ctx, job))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Step)

	// Mutating the returned snapshot must not leak into the store.
	got.Step = 99
	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Step)
}

func TestMemory_GetUnknown(t *testing.T) {
	s := NewMemory(0)
	_, err := s.Get(context.Background(), "nope")
	assert.True(t, pipeline.IsNotFound(err))
}

func TestMemory_Delete(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, testJob("a", pipeline.StatePending, time.Now())))
	require.NoError(t, s.Delete(ctx, "a"))
	_, err := s.Get(ctx, "a")
	assert.True(t, pipeline.IsNotFound(err))
}

func TestMemory_PruneKeepsLiveAndRecentJobs(t *testing.T) {
	s := NewMemory(time.Hour)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.Put(ctx, testJob("old-done", pipeline.StateSuccess, now.Add(-2*time.Hour))))
	require.NoError(t, s.Put(ctx, testJob("old-failed", pipeline.StateFailure, now.Add(-2*time.Hour))))
	require.NoError(t, s.Put(ctx, testJob("fresh-done", pipeline.StateSuccess, now.Add(-time.Minute))))
	// A stale but non-terminal job is never pruned.
	require.NoError(t, s.Put(ctx, testJob("old-running", pipeline.StateProgress, now.Add(-2*time.Hour))))

	removed := s.Prune(now)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, s.Len())

	_, err := s.Get(ctx, "old-done")
	assert.True(t, pipeline.IsNotFound(err))
	_, err = s.Get(ctx, "old-running")
	assert.NoError(t, err)
}

func TestMemory_ConcurrentAccessByDistinctIDs(t *testing.T) {
	s := NewMemory(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("job-%d", n)
			for step := 1; step <= pipeline.TotalSteps; step++ {
				j := testJob(id, pipeline.StateProgress, time.Now())
				j.Step = step
				require.NoError(t, s.Put(ctx, j))
				got, err := s.Get(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, step, got.Step)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, s.Len())
}
