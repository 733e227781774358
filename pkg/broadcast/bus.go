package broadcast

import (
	"context"
	"sync"

	"github.com/ladleworks/reelchef/pkg/pipeline"
)

// Bus moves events between the process that runs a job and the
// processes holding its subscribers. Implementations must be safe for
// concurrent use.
type Bus interface {
	// Publish emits an event to all current bus subscribers.
	Publish(ctx context.Context, ev Event) error

	// Subscribe returns a channel of events and a cancel function.
	// The channel is closed after cancel is called.
	Subscribe(ctx context.Context) (<-chan Event, func())
}

// MemoryBus is a single-process Bus. Slow subscribers drop events
// rather than block publishers.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]chan Event)}
}

func (b *MemoryBus) Publish(ctx context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Sink adapts a Bus to the pipeline's publish hook, translating job
// snapshots into broadcast events.
type Sink struct {
	bus Bus
}

// NewSink wraps bus for use as a pipeline.Sink.
func NewSink(bus Bus) *Sink {
	return &Sink{bus: bus}
}

func (s *Sink) Publish(ctx context.Context, job *pipeline.Job) error {
	return s.bus.Publish(ctx, FromJob(job))
}
