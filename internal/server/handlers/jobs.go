// Package handlers implements the HTTP and WebSocket endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ladleworks/reelchef/internal/server/middleware"
	"github.com/ladleworks/reelchef/pkg/pipeline"
)

// JobService is the slice of the pipeline coordinator the HTTP surface
// needs.
type JobService interface {
	Submit(ctx context.Context, videoRef, language, ownerID string) (string, error)
	Status(ctx context.Context, id string) (*pipeline.Job, error)
}

// Jobs serves job submission and status lookup.
type Jobs struct {
	svc    JobService
	logger *zap.Logger
}

// NewJobs creates the job handler set.
func NewJobs(svc JobService, logger *zap.Logger) *Jobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jobs{svc: svc, logger: logger}
}

type submitRequest struct {
	VideoURL string `json:"video_url"`
	Language string `json:"language"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// Submit handles POST /v1/jobs.
func (h *Jobs) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest,
			string(pipeline.CodeValidation), "request body is not valid JSON")
		return
	}

	jobID, err := h.svc.Submit(r.Context(), req.VideoURL, req.Language, middleware.OwnerID(r.Context()))
	if err != nil {
		var pe *pipeline.Error
		if errors.As(err, &pe) {
			switch pe.Code {
			case pipeline.CodeValidation:
				middleware.WriteError(w, r, http.StatusBadRequest, string(pe.Code), pe.Detail)
				return
			case pipeline.CodeCapacity:
				w.Header().Set("Retry-After", "5")
				middleware.WriteError(w, r, http.StatusServiceUnavailable, string(pe.Code), pe.Detail)
				return
			}
		}
		h.logger.Error("Job submission failed", zap.Error(err))
		middleware.WriteError(w, r, http.StatusInternalServerError,
			"INTERNAL_ERROR", "could not accept job")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(submitResponse{JobID: jobID})
}

// Status handles GET /v1/jobs/{id}.
func (h *Jobs) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := h.svc.Status(r.Context(), id)
	if err != nil {
		if pipeline.IsNotFound(err) {
			middleware.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "job not found")
			return
		}
		h.logger.Error("Job status lookup failed", zap.String("job_id", id), zap.Error(err))
		middleware.WriteError(w, r, http.StatusInternalServerError,
			"INTERNAL_ERROR", "could not read job")
		return
	}

	// Jobs are visible to their owner only. Unknown and foreign ids
	// are indistinguishable.
	if job.OwnerID != "" && job.OwnerID != middleware.OwnerID(r.Context()) {
		middleware.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "job not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(job)
}
