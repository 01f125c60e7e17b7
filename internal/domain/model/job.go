// Package model holds the persistence and API records for jobs, their
// cron schedules, and materialised runs.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/target/runplane/internal/errors"
)

// MaxJobNameLength caps job names at the column width.
const MaxJobNameLength = 100

// Job is a named unit of schedulable work.
type Job struct {
	ID        uuid.UUID     `json:"id" db:"id"`
	Name      string        `json:"name" db:"name"`
	Schedules []JobSchedule `json:"schedules" db:"-"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// JobSchedule binds a cron expression to a job. A job may carry any
// number of schedules, including none.
type JobSchedule struct {
	ID        uuid.UUID `json:"id" db:"id"`
	JobID     uuid.UUID `json:"job_id" db:"job_id"`
	Cron      string    `json:"cron" db:"cron"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ScheduleSpec is the inbound shape of a schedule on job creation.
type ScheduleSpec struct {
	Cron string `json:"cron"`
}

// CreateJobRequest is the payload for creating a job with its schedules.
type CreateJobRequest struct {
	Name      string         `json:"name"`
	Schedules []ScheduleSpec `json:"schedules"`
}

// Validate checks structural constraints. Cron expressions are only
// checked for presence here; the evaluator validates their syntax.
func (r *CreateJobRequest) Validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return apperrors.ValidationField("name", "name is required")
	}
	if len(name) > MaxJobNameLength {
		return apperrors.ValidationField("name", "name must be at most 100 characters")
	}
	for _, s := range r.Schedules {
		if strings.TrimSpace(s.Cron) == "" {
			return apperrors.ValidationField("cron", "cron expression is required")
		}
	}
	return nil
}
