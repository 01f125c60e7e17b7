package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/target/runplane/internal/core"
	"github.com/target/runplane/internal/cron"
	"github.com/target/runplane/internal/data"
	"github.com/target/runplane/internal/data/pgxutil"
	"github.com/target/runplane/internal/domain/model"
	apperrors "github.com/target/runplane/internal/errors"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	DB           *sql.DB
	Jobs         core.JobRepository
	Runs         core.RunRepository
	Events       core.EventPublisher // Optional: run lifecycle events
	Logger       *slog.Logger        // Optional: structured logger
	TimeProvider data.TimeProvider   // Optional: defaults to the system clock
}

// JobService owns job creation and job queries. Creating a job also
// creates its schedules and materialises each schedule's first run, all
// in one transaction.
type JobService struct {
	db           *sql.DB
	jobs         core.JobRepository
	runs         core.RunRepository
	events       core.EventPublisher
	logger       *slog.Logger
	timeProvider data.TimeProvider
}

// NewJobService constructs a JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.DB == nil {
		return nil, errors.New("database connection is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Runs == nil {
		return nil, errors.New("RunRepository is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}

	return &JobService{
		db:           opts.DB,
		jobs:         opts.Jobs,
		runs:         opts.Runs,
		events:       opts.Events,
		logger:       opts.Logger.With("component", "job_service"),
		timeProvider: opts.TimeProvider,
	}, nil
}

// Create creates a job, one schedule per cron spec, and each schedule's
// first run, atomically. Cron expressions are validated before the
// transaction opens so malformed input never costs a rollback.
func (s *JobService) Create(ctx context.Context, req model.CreateJobRequest) (model.Job, error) {
	if err := req.Validate(); err != nil {
		return model.Job{}, err
	}
	for _, spec := range req.Schedules {
		if err := cron.Validate(spec.Cron); err != nil {
			return model.Job{}, err
		}
	}

	now := s.timeProvider.Now().UTC()
	var (
		job       model.Job
		firstRuns []model.JobRun
	)
	err := pgxutil.WithSQLTx(ctx, s.db, func(tx *sql.Tx) error {
		created, insertErr := s.jobs.InsertTx(ctx, tx, req.Name, now)
		if insertErr != nil {
			return insertErr
		}
		job = created

		for _, spec := range req.Schedules {
			sched, schedErr := s.jobs.InsertScheduleTx(ctx, tx, job.ID, spec.Cron, now)
			if schedErr != nil {
				return schedErr
			}
			job.Schedules = append(job.Schedules, sched)

			next, nextErr := cron.Next(sched.Cron, now)
			if nextErr != nil {
				return nextErr
			}
			schedID := sched.ID
			run, runErr := s.runs.InsertTx(ctx, tx, core.InsertRunParams{
				JobID:         job.ID,
				JobScheduleID: &schedID,
				ScheduledAt:   &next,
				Now:           now,
			})
			if runErr != nil {
				return runErr
			}
			firstRuns = append(firstRuns, run)
		}
		return nil
	})
	if err != nil {
		return model.Job{}, err
	}

	s.logger.InfoContext(ctx, "job created",
		"job_id", job.ID,
		"name", job.Name,
		"schedules", len(job.Schedules),
	)
	if s.events != nil {
		for _, run := range firstRuns {
			s.events.Publish(ctx, model.RunEvent{
				Type:       model.RunEventScheduled,
				RunID:      run.ID,
				JobID:      run.JobID,
				OccurredAt: now,
			})
		}
	}
	return job, nil
}

// Get returns one job with its schedules.
func (s *JobService) Get(ctx context.Context, id uuid.UUID) (model.Job, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if errors.Is(err, data.ErrJobNotFound) {
		return model.Job{}, apperrors.NotFound("job not found")
	}
	if err != nil {
		return model.Job{}, err
	}
	return job, nil
}

// List returns one page of jobs sorted by name.
func (s *JobService) List(ctx context.Context, opts model.ListOptions) (model.Page[model.Job], error) {
	return s.jobs.List(ctx, opts)
}
