package model

import (
	"time"

	"github.com/google/uuid"
)

// RunEventType enumerates the run lifecycle events.
type RunEventType string

const (
	RunEventScheduled RunEventType = "run_scheduled"
	RunEventAssigned  RunEventType = "run_assigned"
	RunEventCompleted RunEventType = "run_completed"
)

// RunEvent is an after-commit notification about a run lifecycle
// transition.
type RunEvent struct {
	Type       RunEventType `json:"type"`
	RunID      uuid.UUID    `json:"run_id"`
	JobID      uuid.UUID    `json:"job_id"`
	Worker     *string      `json:"worker,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}
