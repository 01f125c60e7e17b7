package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/target/runplane/internal/core"
	"github.com/target/runplane/internal/cron"
	"github.com/target/runplane/internal/data"
	"github.com/target/runplane/internal/data/pgxutil"
	"github.com/target/runplane/internal/domain/model"
	domainrun "github.com/target/runplane/internal/domain/run"
	apperrors "github.com/target/runplane/internal/errors"
)

// RunServiceOptions groups dependencies for RunService.
type RunServiceOptions struct {
	DB           *sql.DB
	Runs         core.RunRepository
	Jobs         core.JobRepository
	Lease        domainrun.LeasePolicy
	Events       core.EventPublisher // Optional: run lifecycle events
	Logger       *slog.Logger        // Optional: structured logger
	TimeProvider data.TimeProvider   // Optional: defaults to the system clock
}

// RunService owns the run lifecycle: lease-based assignment, completion
// with next-run materialisation, and run queries.
type RunService struct {
	db           *sql.DB
	runs         core.RunRepository
	jobs         core.JobRepository
	lease        domainrun.LeasePolicy
	events       core.EventPublisher
	logger       *slog.Logger
	timeProvider data.TimeProvider
}

// NewRunService constructs a RunService.
func NewRunService(opts RunServiceOptions) (*RunService, error) {
	if opts.DB == nil {
		return nil, errors.New("database connection is required")
	}
	if opts.Runs == nil {
		return nil, errors.New("RunRepository is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}

	return &RunService{
		db:           opts.DB,
		runs:         opts.Runs,
		jobs:         opts.Jobs,
		lease:        opts.Lease,
		events:       opts.Events,
		logger:       opts.Logger.With("component", "run_service"),
		timeProvider: opts.TimeProvider,
	}, nil
}

// Assign leases the run to the requesting worker. The conditional
// update in the repository is the only serialisation point: of two
// workers racing on one run, exactly one succeeds. A worker re-calling
// Assign on a run it already holds renews its lease.
func (s *RunService) Assign(ctx context.Context, id uuid.UUID, req model.AssignRunRequest) (model.JobRun, error) {
	if err := req.Validate(); err != nil {
		return model.JobRun{}, err
	}
	if err := s.lease.Validate(req.LeaseDuration.Std()); err != nil {
		return model.JobRun{}, err
	}

	now := s.timeProvider.Now().UTC()
	var run model.JobRun
	err := pgxutil.WithSQLTx(ctx, s.db, func(tx *sql.Tx) error {
		assigned, assignErr := s.runs.AssignTx(ctx, tx, core.AssignRunParams{
			ID:     id,
			Worker: req.Worker,
			Until:  now.Add(req.LeaseDuration.Std()),
			Now:    now,
		})
		if assignErr != nil {
			return assignErr
		}
		run = assigned
		return nil
	})
	if errors.Is(err, data.ErrRunNotAssignable) {
		return model.JobRun{}, apperrors.AssignmentFailed("run does not exist or is not assignable")
	}
	if err != nil {
		return model.JobRun{}, err
	}

	s.logger.InfoContext(ctx, "run assigned",
		"run_id", run.ID,
		"worker", req.Worker,
		"assigned_until", run.AssignedUntil,
	)
	s.publish(ctx, model.RunEventAssigned, run)
	return run, nil
}

// Complete marks the run completed on behalf of the worker holding a
// live lease, and, when the run originates from a schedule, materialises
// that schedule's next run in the same transaction.
func (s *RunService) Complete(ctx context.Context, id uuid.UUID, req model.CompleteRunRequest) (model.JobRun, error) {
	if err := req.Validate(); err != nil {
		return model.JobRun{}, err
	}

	now := s.timeProvider.Now().UTC()
	var (
		run  model.JobRun
		next *model.JobRun
	)
	err := pgxutil.WithSQLTx(ctx, s.db, func(tx *sql.Tx) error {
		completed, completeErr := s.runs.CompleteTx(ctx, tx, core.CompleteRunParams{
			ID:     id,
			Worker: req.Worker,
			Result: req.Result,
			Now:    now,
		})
		if completeErr != nil {
			return completeErr
		}
		run = completed

		if run.JobScheduleID == nil {
			return nil
		}
		sched, schedErr := s.jobs.ScheduleByIDTx(ctx, tx, *run.JobScheduleID)
		if schedErr != nil {
			return schedErr
		}
		materialised, nextErr := s.materialiseTx(ctx, tx, sched, now)
		if nextErr != nil {
			return nextErr
		}
		next = &materialised
		return nil
	})
	if errors.Is(err, data.ErrRunNotCompletable) {
		return model.JobRun{}, apperrors.CompletionFailed("run is not in progress under a live lease held by this worker")
	}
	if err != nil {
		return model.JobRun{}, err
	}

	s.logger.InfoContext(ctx, "run completed", "run_id", run.ID, "worker", req.Worker)
	s.publish(ctx, model.RunEventCompleted, run)
	if next != nil {
		s.publish(ctx, model.RunEventScheduled, *next)
	}
	return run, nil
}

// ScheduleRunsTx materialises the next run for each schedule inside an
// open transaction. Used at job creation for first runs.
func (s *RunService) ScheduleRunsTx(
	ctx context.Context,
	tx *sql.Tx,
	schedules []model.JobSchedule,
	now time.Time,
) ([]model.JobRun, error) {
	runs := make([]model.JobRun, 0, len(schedules))
	for _, sched := range schedules {
		run, err := s.materialiseTx(ctx, tx, sched, now)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// materialiseTx computes the schedule's next trigger after now and
// inserts the corresponding scheduled run.
func (s *RunService) materialiseTx(
	ctx context.Context,
	tx *sql.Tx,
	sched model.JobSchedule,
	now time.Time,
) (model.JobRun, error) {
	next, err := cron.Next(sched.Cron, now)
	if err != nil {
		return model.JobRun{}, err
	}
	schedID := sched.ID
	return s.runs.InsertTx(ctx, tx, core.InsertRunParams{
		JobID:         sched.JobID,
		JobScheduleID: &schedID,
		ScheduledAt:   &next,
		Now:           now,
	})
}

// Get returns one run by id.
func (s *RunService) Get(ctx context.Context, id uuid.UUID) (model.JobRun, error) {
	run, err := s.runs.GetByID(ctx, id)
	if errors.Is(err, data.ErrRunNotFound) {
		return model.JobRun{}, apperrors.NotFound("run not found")
	}
	if err != nil {
		return model.JobRun{}, err
	}
	return run, nil
}

// List returns one page of runs sorted by scheduled_at.
func (s *RunService) List(ctx context.Context, opts model.ListOptions) (model.Page[model.JobRun], error) {
	return s.runs.List(ctx, opts)
}

func (s *RunService) publish(ctx context.Context, eventType model.RunEventType, run model.JobRun) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, model.RunEvent{
		Type:       eventType,
		RunID:      run.ID,
		JobID:      run.JobID,
		Worker:     run.AssignedTo,
		OccurredAt: s.timeProvider.Now().UTC(),
	})
}
