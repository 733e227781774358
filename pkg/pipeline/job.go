// Package pipeline runs video-to-recipe jobs through a bounded worker
// pool with per-step progress reporting and a transient-only retry
// policy.
package pipeline

import "time"

// State is the lifecycle state of a job.
//
// NOTE: These values appear in status responses and broadcast events
// and are part of the stable external contract.
type State string

const (
	StatePending  State = "PENDING"
	StateProgress State = "PROGRESS"
	StateSuccess  State = "SUCCESS"
	StateFailure  State = "FAILURE"
)

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// TotalSteps is the fixed number of pipeline steps a job moves through.
const TotalSteps = 5

// Step descriptions, indexed by step number.
var stepMessages = [TotalSteps + 1]string{
	"",
	"Initializing job",
	"Acquiring video",
	"Extracting evidence",
	"Reconstructing recipe",
	"Finalizing",
}

// ResultRef points at the persisted outcome of a successful job.
type ResultRef struct {
	// RecipeID is the persisted record id, empty when Stored is false.
	RecipeID string `json:"recipe_id,omitempty"`

	// Stored is false when the recipe was reconstructed but could not
	// be written to durable storage.
	Stored bool `json:"stored"`

	// Title is the reconstructed recipe title, carried for display.
	Title string `json:"title,omitempty"`
}

// Job is the externally visible record of one reconstruction run.
type Job struct {
	ID         string     `json:"id"`
	State      State      `json:"state"`
	Step       int        `json:"step"`
	TotalSteps int        `json:"total_steps"`
	Message    string     `json:"message,omitempty"`
	VideoRef   string     `json:"video_ref"`
	Language   string     `json:"language,omitempty"`
	OwnerID    string     `json:"owner_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Result     *ResultRef `json:"result,omitempty"`
	Err        *Error     `json:"error,omitempty"`
}

// Clone returns a deep copy so snapshots handed to subscribers cannot
// race with worker mutation.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Result != nil {
		r := *j.Result
		cp.Result = &r
	}
	if j.Err != nil {
		e := *j.Err
		cp.Err = &e
	}
	return &cp
}
