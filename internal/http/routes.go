package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/target/runplane/internal/domain/model"
)

// JobsService is the surface the job handlers need.
type JobsService interface {
	Create(ctx context.Context, req model.CreateJobRequest) (model.Job, error)
	Get(ctx context.Context, id uuid.UUID) (model.Job, error)
	List(ctx context.Context, opts model.ListOptions) (model.Page[model.Job], error)
}

// RunsService is the surface the run handlers need.
type RunsService interface {
	Assign(ctx context.Context, id uuid.UUID, req model.AssignRunRequest) (model.JobRun, error)
	Complete(ctx context.Context, id uuid.UUID, req model.CompleteRunRequest) (model.JobRun, error)
	Get(ctx context.Context, id uuid.UUID) (model.JobRun, error)
	List(ctx context.Context, opts model.ListOptions) (model.Page[model.JobRun], error)
}

// RouterServices groups the services the router exposes.
type RouterServices struct {
	Jobs   JobsService
	Runs   RunsService
	Logger *slog.Logger
}

// NewRouter builds the ServeMux for the /v1 API plus the health check.
func NewRouter(svcs RouterServices) *http.ServeMux {
	if svcs.Logger == nil {
		svcs.Logger = slog.Default()
	}

	jobs := &jobHandlers{svc: svcs.Jobs, logger: svcs.Logger}
	runs := &runHandlers{svc: svcs.Runs, logger: svcs.Logger}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)

	mux.HandleFunc("GET /v1/jobs", jobs.list)
	mux.HandleFunc("POST /v1/jobs", jobs.create)
	mux.HandleFunc("GET /v1/jobs/{id}", jobs.get)

	mux.HandleFunc("GET /v1/runs", runs.list)
	mux.HandleFunc("GET /v1/runs/{id}", runs.get)
	mux.HandleFunc("POST /v1/runs/{id}/assign", runs.assign)
	mux.HandleFunc("POST /v1/runs/{id}/complete", runs.complete)

	return mux
}

// pathID parses the {id} path parameter as a UUID. Writes a validation
// error response and returns false on malformed input.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteDetail(w, http.StatusBadRequest, "id must be a valid UUID")
		return uuid.UUID{}, false
	}
	return id, true
}
