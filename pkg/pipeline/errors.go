package pipeline

import (
	"errors"
	"fmt"
)

// Code classifies a job failure for callers and broadcast consumers.
type Code string

const (
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeCapacity       Code = "CAPACITY_ERROR"
	CodeAcquisition    Code = "ACQUISITION_ERROR"
	CodeExtraction     Code = "EXTRACTION_ERROR"
	CodeReconstruction Code = "RECONSTRUCTION_ERROR"
	CodePersistence    Code = "PERSISTENCE_ERROR"
)

// Error is the taxonomy-coded failure carried on a terminal job.
type Error struct {
	// Code is the taxonomy classification.
	Code Code `json:"code"`

	// Detail is a human-readable description safe to surface.
	Detail string `json:"detail"`

	// Err is the underlying cause, not serialized.
	Err error `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a taxonomy code and a displayable detail.
func NewError(code Code, detail string, err error) *Error {
	return &Error{Code: code, Detail: detail, Err: err}
}

// CodeOf extracts the taxonomy code from err, or empty when err does
// not carry one.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// ErrNotFound is returned by Store implementations when no job exists
// for the given id.
var ErrNotFound = errors.New("job not found")

// IsNotFound reports whether err means the job id is unknown.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
