package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/runplane/internal/domain/model"
)

type jobHandlers struct {
	svc    JobsService
	logger *slog.Logger
}

// create handles POST /v1/jobs: create a job with its schedules and
// materialise each schedule's first run.
func (h *jobHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.logger.WarnContext(r.Context(), "create job failed", "error", err)
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// get handles GET /v1/jobs/{id}.
func (h *jobHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	job, err := h.svc.Get(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

// list handles GET /v1/jobs, paged and sorted by name.
func (h *jobHandlers) list(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.List(r.Context(), ParseListOptions(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list jobs failed", "error", err)
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, page)
}
