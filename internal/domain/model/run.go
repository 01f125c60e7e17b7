package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/target/runplane/internal/errors"
)

// RunStatus is the lifecycle state of a run, stored lowercase.
type RunStatus string

const (
	RunStatusScheduled  RunStatus = "scheduled"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
)

// JobRun is a single materialised execution of a job. Runs created from
// a schedule carry JobScheduleID and ScheduledAt; ad-hoc runs carry
// neither and are assignable immediately.
type JobRun struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	JobID         uuid.UUID  `json:"job_id" db:"job_id"`
	JobScheduleID *uuid.UUID `json:"job_schedule_id" db:"job_schedule_id"`
	Status        RunStatus  `json:"status" db:"status"`
	ScheduledAt   *time.Time `json:"scheduled_at" db:"scheduled_at"`
	CompletedAt   *time.Time `json:"completed_at" db:"completed_at"`
	AssignedTo    *string    `json:"assigned_to" db:"assigned_to"`
	AssignedUntil *time.Time `json:"assigned_until" db:"assigned_until"`
	Result        *string    `json:"result" db:"result"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// AssignableAt reports whether the run could be handed to some worker at
// the given instant. This is the read-only form used by listings: a run
// is assignable when it is not completed, is due, and carries no live
// lease.
func (r *JobRun) AssignableAt(now time.Time) bool {
	if r.Status != RunStatusScheduled && r.Status != RunStatusInProgress {
		return false
	}
	if r.ScheduledAt != nil && r.ScheduledAt.After(now) {
		return false
	}
	if r.AssignedTo == nil || r.AssignedUntil == nil {
		return true
	}
	return r.AssignedUntil.Before(now)
}

// AssignRunRequest is the payload for leasing a run to a worker.
type AssignRunRequest struct {
	Worker        string   `json:"worker"`
	LeaseDuration Duration `json:"lease_duration"`
}

// Validate checks worker presence. Lease bounds are enforced by the
// engine's lease policy.
func (r *AssignRunRequest) Validate() error {
	if strings.TrimSpace(r.Worker) == "" {
		return apperrors.ValidationField("worker", "worker is required")
	}
	if r.LeaseDuration <= 0 {
		return apperrors.ValidationField("lease_duration", "lease_duration is required")
	}
	return nil
}

// CompleteRunRequest is the payload for completing a leased run.
type CompleteRunRequest struct {
	Worker string `json:"worker"`
	Result string `json:"result"`
}

// Validate checks worker and result presence.
func (r *CompleteRunRequest) Validate() error {
	if strings.TrimSpace(r.Worker) == "" {
		return apperrors.ValidationField("worker", "worker is required")
	}
	if r.Result == "" {
		return apperrors.ValidationField("result", "result is required")
	}
	return nil
}
