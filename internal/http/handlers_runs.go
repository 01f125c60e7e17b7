package httpx

import (
	"log/slog"
	"net/http"

	"github.com/target/runplane/internal/domain/model"
)

type runHandlers struct {
	svc    RunsService
	logger *slog.Logger
}

// list handles GET /v1/runs, paged, sorted by scheduled_at, optionally
// filtered to assignable runs.
func (h *runHandlers) list(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.List(r.Context(), ParseListOptions(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list runs failed", "error", err)
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, page)
}

// get handles GET /v1/runs/{id}.
func (h *runHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	run, err := h.svc.Get(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, run)
}

// assign handles POST /v1/runs/{id}/assign: lease the run to a worker.
func (h *runHandlers) assign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req model.AssignRunRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	run, err := h.svc.Assign(r.Context(), id, req)
	if err != nil {
		h.logger.WarnContext(r.Context(), "assign run failed", "run_id", id, "error", err)
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, run)
}

// complete handles POST /v1/runs/{id}/complete: record the result and
// materialise the schedule's next run.
func (h *runHandlers) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req model.CompleteRunRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	run, err := h.svc.Complete(r.Context(), id, req)
	if err != nil {
		h.logger.WarnContext(r.Context(), "complete run failed", "run_id", id, "error", err)
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, run)
}
