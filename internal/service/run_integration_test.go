package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/runplane/internal/data"
	"github.com/target/runplane/internal/domain/model"
	domainrun "github.com/target/runplane/internal/domain/run"
	apperrors "github.com/target/runplane/internal/errors"
	"github.com/target/runplane/internal/testutil"
)

func newTestRunService(t *testing.T, db *sql.DB, now time.Time) (*RunService, *capturePublisher, *data.FixedTimeProvider) {
	t.Helper()

	tp := data.NewFixedTimeProvider(now)
	events := &capturePublisher{}
	lease, err := domainrun.NewLeasePolicy(30*time.Second, 120*time.Second)
	require.NoError(t, err)

	svc, err := NewRunService(RunServiceOptions{
		DB:           db,
		Runs:         data.NewRunRepoWithTimeProvider(db, tp),
		Jobs:         data.NewJobRepoWithTimeProvider(db, tp),
		Lease:        lease,
		Events:       events,
		TimeProvider: tp,
	})
	require.NoError(t, err)
	return svc, events, tp
}

func TestRunService_Integration_AssignAndComplete(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		now := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
		svc, events, tp := newTestRunService(t, db, now)

		jobID := testutil.InsertJob(t, db, testutil.JobFixture{Name: "nightly-report"})
		scheduleID := testutil.InsertSchedule(t, db, testutil.ScheduleFixture{
			JobID: jobID,
			Cron:  "0 3 * * *",
		})
		runID := testutil.InsertRun(t, db, testutil.RunFixture{
			JobID:         jobID,
			JobScheduleID: &scheduleID,
			ScheduledAt:   testutil.TimePtr(now.Add(-time.Minute)),
		})

		run, err := svc.Assign(context.Background(), runID, model.AssignRunRequest{
			Worker:        "worker-a",
			LeaseDuration: model.Duration(60 * time.Second),
		})
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusInProgress, run.Status)
		require.NotNil(t, run.AssignedUntil)
		assert.True(t, run.AssignedUntil.Equal(now.Add(60*time.Second)))

		// Complete inside the lease window.
		tp.AddTime(30 * time.Second)
		completed, err := svc.Complete(context.Background(), runID, model.CompleteRunRequest{
			Worker: "worker-a",
			Result: "exit 0",
		})
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusCompleted, completed.Status)
		require.NotNil(t, completed.Result)
		assert.Equal(t, "exit 0", *completed.Result)

		// Completing a scheduled run materialises the schedule's next run.
		runs, err := data.NewRunRepo(db).List(context.Background(), model.ListOptions{})
		require.NoError(t, err)
		require.Equal(t, 2, runs.Count)

		var next *model.JobRun
		for i := range runs.Results {
			if runs.Results[i].ID != runID {
				next = &runs.Results[i]
			}
		}
		require.NotNil(t, next)
		assert.Equal(t, model.RunStatusScheduled, next.Status)
		require.NotNil(t, next.JobScheduleID)
		assert.Equal(t, scheduleID, *next.JobScheduleID)
		require.NotNil(t, next.ScheduledAt)
		assert.True(t, next.ScheduledAt.Equal(time.Date(2024, 1, 11, 3, 0, 0, 0, time.UTC)))

		published := events.Events()
		require.Len(t, published, 3)
		assert.Equal(t, model.RunEventAssigned, published[0].Type)
		assert.Equal(t, model.RunEventCompleted, published[1].Type)
		assert.Equal(t, model.RunEventScheduled, published[2].Type)
	})
}

func TestRunService_Integration_CompleteAdhocRun(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		now := testutil.TestTime()
		svc, _, _ := newTestRunService(t, db, now)

		jobID := testutil.InsertJob(t, db, testutil.JobFixture{})
		runID := testutil.InsertRun(t, db, testutil.RunFixture{
			JobID:         jobID,
			Status:        "in_progress",
			AssignedTo:    testutil.StringPtr("worker-a"),
			AssignedUntil: testutil.TimePtr(now.Add(time.Minute)),
		})

		_, err := svc.Complete(context.Background(), runID, model.CompleteRunRequest{
			Worker: "worker-a",
			Result: "done",
		})
		require.NoError(t, err)

		// No schedule behind the run, so nothing new materialises.
		runs, err := data.NewRunRepo(db).List(context.Background(), model.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, runs.Count)
	})
}

func TestRunService_Integration_AssignFailures(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		now := testutil.TestTime()
		svc, _, _ := newTestRunService(t, db, now)
		jobID := testutil.InsertJob(t, db, testutil.JobFixture{})

		t.Run("unknown run", func(t *testing.T) {
			_, err := svc.Assign(context.Background(), uuid.New(), model.AssignRunRequest{
				Worker:        "worker-a",
				LeaseDuration: model.Duration(60 * time.Second),
			})
			require.Error(t, err)
			assert.True(t, apperrors.IsAssignmentFailed(err))
		})

		t.Run("held by another worker", func(t *testing.T) {
			runID := testutil.InsertRun(t, db, testutil.RunFixture{
				JobID:         jobID,
				Status:        "in_progress",
				AssignedTo:    testutil.StringPtr("worker-a"),
				AssignedUntil: testutil.TimePtr(now.Add(time.Minute)),
			})
			_, err := svc.Assign(context.Background(), runID, model.AssignRunRequest{
				Worker:        "worker-b",
				LeaseDuration: model.Duration(60 * time.Second),
			})
			require.Error(t, err)
			assert.True(t, apperrors.IsAssignmentFailed(err))
		})

		t.Run("lease below minimum", func(t *testing.T) {
			runID := testutil.InsertRun(t, db, testutil.RunFixture{JobID: jobID})
			_, err := svc.Assign(context.Background(), runID, model.AssignRunRequest{
				Worker:        "worker-a",
				LeaseDuration: model.Duration(10 * time.Second),
			})
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, "lease_duration", apperrors.GetField(err))
		})

		t.Run("lease above maximum", func(t *testing.T) {
			runID := testutil.InsertRun(t, db, testutil.RunFixture{JobID: jobID})
			_, err := svc.Assign(context.Background(), runID, model.AssignRunRequest{
				Worker:        "worker-a",
				LeaseDuration: model.Duration(200 * time.Second),
			})
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})

		t.Run("missing worker", func(t *testing.T) {
			runID := testutil.InsertRun(t, db, testutil.RunFixture{JobID: jobID})
			_, err := svc.Assign(context.Background(), runID, model.AssignRunRequest{
				LeaseDuration: model.Duration(60 * time.Second),
			})
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, "worker", apperrors.GetField(err))
		})
	})
}

func TestRunService_Integration_CompleteFailures(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		now := testutil.TestTime()
		svc, _, _ := newTestRunService(t, db, now)
		jobID := testutil.InsertJob(t, db, testutil.JobFixture{})

		t.Run("expired lease", func(t *testing.T) {
			runID := testutil.InsertRun(t, db, testutil.RunFixture{
				JobID:         jobID,
				Status:        "in_progress",
				AssignedTo:    testutil.StringPtr("worker-a"),
				AssignedUntil: testutil.TimePtr(now.Add(-time.Second)),
			})
			_, err := svc.Complete(context.Background(), runID, model.CompleteRunRequest{
				Worker: "worker-a",
				Result: "late",
			})
			require.Error(t, err)
			assert.True(t, apperrors.IsCompletionFailed(err))
		})

		t.Run("wrong worker", func(t *testing.T) {
			runID := testutil.InsertRun(t, db, testutil.RunFixture{
				JobID:         jobID,
				Status:        "in_progress",
				AssignedTo:    testutil.StringPtr("worker-a"),
				AssignedUntil: testutil.TimePtr(now.Add(time.Minute)),
			})
			_, err := svc.Complete(context.Background(), runID, model.CompleteRunRequest{
				Worker: "worker-b",
				Result: "stolen",
			})
			require.Error(t, err)
			assert.True(t, apperrors.IsCompletionFailed(err))
		})

		t.Run("not assigned", func(t *testing.T) {
			runID := testutil.InsertRun(t, db, testutil.RunFixture{JobID: jobID})
			_, err := svc.Complete(context.Background(), runID, model.CompleteRunRequest{
				Worker: "worker-a",
				Result: "early",
			})
			require.Error(t, err)
			assert.True(t, apperrors.IsCompletionFailed(err))
		})

		t.Run("missing result", func(t *testing.T) {
			runID := testutil.InsertRun(t, db, testutil.RunFixture{JobID: jobID})
			_, err := svc.Complete(context.Background(), runID, model.CompleteRunRequest{
				Worker: "worker-a",
			})
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, "result", apperrors.GetField(err))
		})
	})
}

func TestRunService_Integration_GetAndList(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		now := testutil.TestTime()
		svc, _, _ := newTestRunService(t, db, now)
		jobID := testutil.InsertJob(t, db, testutil.JobFixture{})

		runID := testutil.InsertRun(t, db, testutil.RunFixture{
			JobID:       jobID,
			ScheduledAt: testutil.TimePtr(now.Add(-time.Minute)),
		})
		testutil.InsertRun(t, db, testutil.RunFixture{
			JobID:       jobID,
			ScheduledAt: testutil.TimePtr(now.Add(time.Hour)),
		})

		run, err := svc.Get(context.Background(), runID)
		require.NoError(t, err)
		assert.Equal(t, runID, run.ID)

		_, err = svc.Get(context.Background(), uuid.New())
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))

		page, err := svc.List(context.Background(), model.ListOptions{AssignableOnly: true})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Count)
	})
}
