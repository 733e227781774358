// Package broadcast delivers job progress to live subscribers.
//
// Events travel as typed envelopes over a Bus (in-process or Redis
// pub/sub) and fan out through a Registry to the subscribers attached
// to each job id. Delivery is best-effort: a subscriber that cannot
// keep up is pruned, and events published while nobody listens are
// dropped.
package broadcast

import (
	"time"

	"github.com/ladleworks/reelchef/pkg/pipeline"
)

// Event type constants define the envelope types seen by subscribers.
const (
	// TypeProgress identifies step-advance events for a running job.
	TypeProgress = "progress"

	// TypeCompletion identifies the terminal event of a successful job.
	TypeCompletion = "completion"

	// TypeError identifies the terminal event of a failed job.
	TypeError = "error"

	// TypeStatus identifies the snapshot replayed to a subscriber at
	// attach time.
	TypeStatus = "status"
)

// Event is the envelope delivered to subscribers. Exactly the fields
// relevant to its Type are populated.
type Event struct {
	// Type identifies the event type.
	Type string `json:"type"`

	// TS is when the event was created.
	TS time.Time `json:"ts"`

	// JobID is the job this event belongs to.
	JobID string `json:"job_id"`

	// State is the job state at event time.
	State pipeline.State `json:"state"`

	// Step and TotalSteps describe pipeline position. Zero Step on
	// terminal error events that never got past validation.
	Step       int `json:"step"`
	TotalSteps int `json:"total_steps"`

	// Message is a human-readable description of the current position.
	Message string `json:"message,omitempty"`

	// Result is set on completion and success-status events.
	Result *pipeline.ResultRef `json:"result,omitempty"`

	// ErrorCode and ErrorDetail are set on error events.
	ErrorCode   string `json:"error_code,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

// FromJob builds the broadcast event for a job snapshot. The event
// type follows the job state: running jobs emit progress, terminal
// jobs emit completion or error.
func FromJob(job *pipeline.Job) Event {
	ev := baseEvent(job)
	switch job.State {
	case pipeline.StateSuccess:
		ev.Type = TypeCompletion
	case pipeline.StateFailure:
		ev.Type = TypeError
	default:
		ev.Type = TypeProgress
	}
	return ev
}

// NewStatus builds the snapshot event replayed to a late joiner.
func NewStatus(job *pipeline.Job) Event {
	ev := baseEvent(job)
	ev.Type = TypeStatus
	return ev
}

func baseEvent(job *pipeline.Job) Event {
	ev := Event{
		TS:         time.Now().UTC(),
		JobID:      job.ID,
		State:      job.State,
		Step:       job.Step,
		TotalSteps: job.TotalSteps,
		Message:    job.Message,
		Result:     job.Result,
	}
	if job.Err != nil {
		ev.ErrorCode = string(job.Err.Code)
		ev.ErrorDetail = job.Err.Detail
	}
	return ev
}
