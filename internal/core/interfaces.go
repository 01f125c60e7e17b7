package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/target/runplane/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Service implementations depend on these interfaces, not concrete implementations.
// Methods suffixed Tx run inside a transaction opened by the caller.

// JobRepository defines the interface for job and schedule data operations.
type JobRepository interface {
	InsertTx(ctx context.Context, tx *sql.Tx, name string, now time.Time) (model.Job, error)
	InsertScheduleTx(ctx context.Context, tx *sql.Tx, jobID uuid.UUID, cron string, now time.Time) (model.JobSchedule, error)
	ScheduleByIDTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (model.JobSchedule, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.Job, error)
	List(ctx context.Context, opts model.ListOptions) (model.Page[model.Job], error)
}

// InsertRunParams groups parameters for RunRepository.InsertTx.
type InsertRunParams struct {
	JobID         uuid.UUID
	JobScheduleID *uuid.UUID
	ScheduledAt   *time.Time
	Now           time.Time
}

// AssignRunParams groups parameters for RunRepository.AssignTx.
type AssignRunParams struct {
	ID     uuid.UUID
	Worker string
	Until  time.Time
	Now    time.Time
}

// CompleteRunParams groups parameters for RunRepository.CompleteTx.
type CompleteRunParams struct {
	ID     uuid.UUID
	Worker string
	Result string
	Now    time.Time
}

// RunRepository defines the interface for run data operations.
type RunRepository interface {
	InsertTx(ctx context.Context, tx *sql.Tx, p InsertRunParams) (model.JobRun, error)
	AssignTx(ctx context.Context, tx *sql.Tx, p AssignRunParams) (model.JobRun, error)
	CompleteTx(ctx context.Context, tx *sql.Tx, p CompleteRunParams) (model.JobRun, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.JobRun, error)
	List(ctx context.Context, opts model.ListOptions) (model.Page[model.JobRun], error)
}

// ReaperRepository defines the interface for run retention cleanup.
type ReaperRepository interface {
	// DeleteCompletedBefore deletes completed runs whose completion
	// instant precedes cutoff, up to batchSize rows per call. Returns
	// the number of runs deleted.
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// EventPublisher publishes run lifecycle events. Implementations must
// be safe for concurrent use; publish failures must not affect the
// operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, event model.RunEvent)
}
