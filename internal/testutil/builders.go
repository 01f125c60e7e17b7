package testutil

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// JobFixture describes a job row to insert for a test.
type JobFixture struct {
	Name      string
	CreatedAt time.Time
}

// InsertJob inserts a job row and returns its id.
func InsertJob(t TestingTB, db *sql.DB, f JobFixture) uuid.UUID {
	t.Helper()

	if f.Name == "" {
		f.Name = "test-job"
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = TestTime()
	}

	var id uuid.UUID
	err := db.QueryRowContext(context.Background(),
		`INSERT INTO jobs (name, created_at) VALUES ($1, $2) RETURNING id`,
		f.Name, f.CreatedAt,
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert job fixture: %v", err)
	}
	return id
}

// ScheduleFixture describes a job schedule row to insert for a test.
type ScheduleFixture struct {
	JobID     uuid.UUID
	Cron      string
	CreatedAt time.Time
}

// InsertSchedule inserts a job schedule row and returns its id.
func InsertSchedule(t TestingTB, db *sql.DB, f ScheduleFixture) uuid.UUID {
	t.Helper()

	if f.Cron == "" {
		f.Cron = "*/5 * * * *"
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = TestTime()
	}

	var id uuid.UUID
	err := db.QueryRowContext(context.Background(),
		`INSERT INTO job_schedules (job_id, cron, created_at) VALUES ($1, $2, $3) RETURNING id`,
		f.JobID, f.Cron, f.CreatedAt,
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert schedule fixture: %v", err)
	}
	return id
}

// RunFixture describes a job run row to insert for a test. Zero-valued
// optional fields insert as NULL.
type RunFixture struct {
	JobID         uuid.UUID
	JobScheduleID *uuid.UUID
	Status        string
	ScheduledAt   *time.Time
	CompletedAt   *time.Time
	AssignedTo    *string
	AssignedUntil *time.Time
	Result        *string
	CreatedAt     time.Time
}

// InsertRun inserts a job run row and returns its id.
func InsertRun(t TestingTB, db *sql.DB, f RunFixture) uuid.UUID {
	t.Helper()

	if f.Status == "" {
		f.Status = "scheduled"
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = TestTime()
	}

	var id uuid.UUID
	err := db.QueryRowContext(context.Background(),
		`INSERT INTO job_runs
			(job_id, job_schedule_id, status, scheduled_at, completed_at, assigned_to, assigned_until, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		f.JobID, f.JobScheduleID, f.Status, f.ScheduledAt, f.CompletedAt,
		f.AssignedTo, f.AssignedUntil, f.Result, f.CreatedAt,
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert run fixture: %v", err)
	}
	return id
}

// CountRuns returns the number of job_runs rows with the given status.
func CountRuns(t TestingTB, db *sql.DB, status string) int {
	t.Helper()

	var n int
	err := db.QueryRowContext(context.Background(),
		`SELECT count(*) FROM job_runs WHERE status = $1`, status,
	).Scan(&n)
	if err != nil {
		t.Fatalf("count runs: %v", err)
	}
	return n
}
