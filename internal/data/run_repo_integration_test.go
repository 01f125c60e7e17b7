package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/runplane/internal/core"
	"github.com/target/runplane/internal/data/pgxutil"
	"github.com/target/runplane/internal/domain/model"
	"github.com/target/runplane/internal/testutil"
)

// assignInTx runs AssignTx in its own committed transaction.
func assignInTx(t *testing.T, db *sql.DB, repo *RunRepo, p core.AssignRunParams) (model.JobRun, error) {
	t.Helper()
	var run model.JobRun
	err := pgxutil.WithSQLTx(context.Background(), db, func(tx *sql.Tx) error {
		assigned, assignErr := repo.AssignTx(context.Background(), tx, p)
		if assignErr != nil {
			return assignErr
		}
		run = assigned
		return nil
	})
	return run, err
}

// completeInTx runs CompleteTx in its own committed transaction.
func completeInTx(t *testing.T, db *sql.DB, repo *RunRepo, p core.CompleteRunParams) (model.JobRun, error) {
	t.Helper()
	var run model.JobRun
	err := pgxutil.WithSQLTx(context.Background(), db, func(tx *sql.Tx) error {
		completed, completeErr := repo.CompleteTx(context.Background(), tx, p)
		if completeErr != nil {
			return completeErr
		}
		run = completed
		return nil
	})
	return run, err
}

func TestRunRepo_Integration_AssignLifecycle(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewRunRepo(db)
		now := testutil.TestTime()

		jobID := testutil.InsertJob(t, db, testutil.JobFixture{Name: "nightly-report"})
		runID := testutil.InsertRun(t, db, testutil.RunFixture{
			JobID:       jobID,
			ScheduledAt: testutil.TimePtr(now.Add(-time.Minute)),
		})

		// First worker takes the run.
		run, err := assignInTx(t, db, repo, core.AssignRunParams{
			ID:     runID,
			Worker: "worker-a",
			Until:  now.Add(60 * time.Second),
			Now:    now,
		})
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusInProgress, run.Status)
		require.NotNil(t, run.AssignedTo)
		assert.Equal(t, "worker-a", *run.AssignedTo)
		require.NotNil(t, run.AssignedUntil)
		assert.True(t, run.AssignedUntil.Equal(now.Add(60*time.Second)))

		// Another worker cannot steal a live lease.
		_, err = assignInTx(t, db, repo, core.AssignRunParams{
			ID:     runID,
			Worker: "worker-b",
			Until:  now.Add(60 * time.Second),
			Now:    now.Add(30 * time.Second),
		})
		require.ErrorIs(t, err, ErrRunNotAssignable)

		// The holder renews its own lease.
		run, err = assignInTx(t, db, repo, core.AssignRunParams{
			ID:     runID,
			Worker: "worker-a",
			Until:  now.Add(120 * time.Second),
			Now:    now.Add(30 * time.Second),
		})
		require.NoError(t, err)
		require.NotNil(t, run.AssignedUntil)
		assert.True(t, run.AssignedUntil.Equal(now.Add(120*time.Second)))

		// Once the lease expires, another worker takes over.
		afterExpiry := now.Add(121 * time.Second)
		run, err = assignInTx(t, db, repo, core.AssignRunParams{
			ID:     runID,
			Worker: "worker-b",
			Until:  afterExpiry.Add(60 * time.Second),
			Now:    afterExpiry,
		})
		require.NoError(t, err)
		require.NotNil(t, run.AssignedTo)
		assert.Equal(t, "worker-b", *run.AssignedTo)
		assert.Equal(t, model.RunStatusInProgress, run.Status)
	})
}

func TestRunRepo_Integration_AssignRejections(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewRunRepo(db)
		now := testutil.TestTime()
		jobID := testutil.InsertJob(t, db, testutil.JobFixture{})

		t.Run("not yet due", func(t *testing.T) {
			runID := testutil.InsertRun(t, db, testutil.RunFixture{
				JobID:       jobID,
				ScheduledAt: testutil.TimePtr(now.Add(time.Hour)),
			})
			_, err := assignInTx(t, db, repo, core.AssignRunParams{
				ID: runID, Worker: "worker-a", Until: now.Add(time.Minute), Now: now,
			})
			require.ErrorIs(t, err, ErrRunNotAssignable)
		})

		t.Run("already completed", func(t *testing.T) {
			runID := testutil.InsertRun(t, db, testutil.RunFixture{
				JobID:       jobID,
				Status:      "completed",
				CompletedAt: testutil.TimePtr(now.Add(-time.Hour)),
				Result:      testutil.StringPtr("done"),
			})
			_, err := assignInTx(t, db, repo, core.AssignRunParams{
				ID: runID, Worker: "worker-a", Until: now.Add(time.Minute), Now: now,
			})
			require.ErrorIs(t, err, ErrRunNotAssignable)
		})

		t.Run("unknown run", func(t *testing.T) {
			_, err := assignInTx(t, db, repo, core.AssignRunParams{
				ID: uuid.New(), Worker: "worker-a", Until: now.Add(time.Minute), Now: now,
			})
			require.ErrorIs(t, err, ErrRunNotAssignable)
		})

		t.Run("null scheduled_at is immediately due", func(t *testing.T) {
			runID := testutil.InsertRun(t, db, testutil.RunFixture{JobID: jobID})
			run, err := assignInTx(t, db, repo, core.AssignRunParams{
				ID: runID, Worker: "worker-a", Until: now.Add(time.Minute), Now: now,
			})
			require.NoError(t, err)
			assert.Equal(t, model.RunStatusInProgress, run.Status)
		})
	})
}

func TestRunRepo_Integration_CompleteLifecycle(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewRunRepo(db)
		now := testutil.TestTime()
		jobID := testutil.InsertJob(t, db, testutil.JobFixture{})

		runID := testutil.InsertRun(t, db, testutil.RunFixture{
			JobID:         jobID,
			Status:        "in_progress",
			ScheduledAt:   testutil.TimePtr(now.Add(-time.Minute)),
			AssignedTo:    testutil.StringPtr("worker-a"),
			AssignedUntil: testutil.TimePtr(now.Add(time.Minute)),
		})

		// A different worker cannot complete the run.
		_, err := completeInTx(t, db, repo, core.CompleteRunParams{
			ID: runID, Worker: "worker-b", Result: "exit 0", Now: now,
		})
		require.ErrorIs(t, err, ErrRunNotCompletable)

		// The lease holder completes it while the lease is live.
		run, err := completeInTx(t, db, repo, core.CompleteRunParams{
			ID: runID, Worker: "worker-a", Result: "exit 0", Now: now,
		})
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusCompleted, run.Status)
		require.NotNil(t, run.Result)
		assert.Equal(t, "exit 0", *run.Result)
		require.NotNil(t, run.CompletedAt)
		assert.True(t, run.CompletedAt.Equal(now))

		// Completion is not idempotent: the run left in_progress.
		_, err = completeInTx(t, db, repo, core.CompleteRunParams{
			ID: runID, Worker: "worker-a", Result: "exit 0", Now: now,
		})
		require.ErrorIs(t, err, ErrRunNotCompletable)
	})
}

func TestRunRepo_Integration_CompleteExpiredLease(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewRunRepo(db)
		now := testutil.TestTime()
		jobID := testutil.InsertJob(t, db, testutil.JobFixture{})

		runID := testutil.InsertRun(t, db, testutil.RunFixture{
			JobID:         jobID,
			Status:        "in_progress",
			AssignedTo:    testutil.StringPtr("worker-a"),
			AssignedUntil: testutil.TimePtr(now.Add(-time.Second)),
		})

		// A worker whose lease lapsed may no longer report completion.
		_, err := completeInTx(t, db, repo, core.CompleteRunParams{
			ID: runID, Worker: "worker-a", Result: "exit 0", Now: now,
		})
		require.ErrorIs(t, err, ErrRunNotCompletable)
	})
}

func TestRunRepo_Integration_ConcurrentAssignment(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewRunRepo(db)
		now := testutil.TestTime()
		jobID := testutil.InsertJob(t, db, testutil.JobFixture{})
		runID := testutil.InsertRun(t, db, testutil.RunFixture{
			JobID:       jobID,
			ScheduledAt: testutil.TimePtr(now.Add(-time.Minute)),
		})

		const workers = 8
		runner := testutil.NewConcurrentTestRunner(t)

		funcs := make([]func() error, workers)
		for i := range funcs {
			worker := string(rune('a' + i))
			funcs[i] = func() error {
				_, err := assignInTx(t, db, repo, core.AssignRunParams{
					ID:     runID,
					Worker: "worker-" + worker,
					Until:  now.Add(time.Minute),
					Now:    now,
				})
				return err
			}
		}

		errs := runner.RunConcurrent(funcs...)

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				require.ErrorIs(t, err, ErrRunNotAssignable)
			}
		}
		assert.Equal(t, 1, winners, "exactly one worker should win the lease")
	})
}

func TestRunRepo_Integration_GetByID(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewRunRepo(db)
		now := testutil.TestTime()
		jobID := testutil.InsertJob(t, db, testutil.JobFixture{})
		scheduleID := testutil.InsertSchedule(t, db, testutil.ScheduleFixture{JobID: jobID})
		runID := testutil.InsertRun(t, db, testutil.RunFixture{
			JobID:         jobID,
			JobScheduleID: &scheduleID,
			ScheduledAt:   testutil.TimePtr(now),
		})

		run, err := repo.GetByID(context.Background(), runID)
		require.NoError(t, err)
		assert.Equal(t, runID, run.ID)
		assert.Equal(t, jobID, run.JobID)
		require.NotNil(t, run.JobScheduleID)
		assert.Equal(t, scheduleID, *run.JobScheduleID)
		assert.Equal(t, model.RunStatusScheduled, run.Status)

		_, err = repo.GetByID(context.Background(), uuid.New())
		require.ErrorIs(t, err, ErrRunNotFound)
	})
}

func TestRunRepo_Integration_List(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		now := testutil.TestTime()
		tp := NewFixedTimeProvider(now)
		repo := NewRunRepoWithTimeProvider(db, tp)
		jobID := testutil.InsertJob(t, db, testutil.JobFixture{})

		// Due and unleased: assignable.
		due := testutil.InsertRun(t, db, testutil.RunFixture{
			JobID:       jobID,
			ScheduledAt: testutil.TimePtr(now.Add(-2 * time.Hour)),
		})
		// Under a live lease: not assignable.
		testutil.InsertRun(t, db, testutil.RunFixture{
			JobID:         jobID,
			Status:        "in_progress",
			ScheduledAt:   testutil.TimePtr(now.Add(-time.Hour)),
			AssignedTo:    testutil.StringPtr("worker-a"),
			AssignedUntil: testutil.TimePtr(now.Add(time.Minute)),
		})
		// Expired lease: assignable again.
		expired := testutil.InsertRun(t, db, testutil.RunFixture{
			JobID:         jobID,
			Status:        "in_progress",
			ScheduledAt:   testutil.TimePtr(now.Add(-30 * time.Minute)),
			AssignedTo:    testutil.StringPtr("worker-b"),
			AssignedUntil: testutil.TimePtr(now.Add(-time.Minute)),
		})
		// Future run: not assignable yet.
		testutil.InsertRun(t, db, testutil.RunFixture{
			JobID:       jobID,
			ScheduledAt: testutil.TimePtr(now.Add(time.Hour)),
		})
		// Completed: never assignable.
		testutil.InsertRun(t, db, testutil.RunFixture{
			JobID:       jobID,
			Status:      "completed",
			ScheduledAt: testutil.TimePtr(now.Add(-3 * time.Hour)),
			CompletedAt: testutil.TimePtr(now.Add(-time.Hour)),
		})

		all, err := repo.List(context.Background(), model.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, 5, all.Count)
		assert.Len(t, all.Results, 5)

		assignable, err := repo.List(context.Background(), model.ListOptions{AssignableOnly: true})
		require.NoError(t, err)
		assert.Equal(t, 2, assignable.Count)
		require.Len(t, assignable.Results, 2)
		// Ascending by scheduled_at: the 2h-old run before the 30m-old one.
		assert.Equal(t, due, assignable.Results[0].ID)
		assert.Equal(t, expired, assignable.Results[1].ID)

		desc, err := repo.List(context.Background(), model.ListOptions{
			AssignableOnly: true,
			SortOrder:      model.SortDesc,
		})
		require.NoError(t, err)
		require.Len(t, desc.Results, 2)
		assert.Equal(t, expired, desc.Results[0].ID)

		paged, err := repo.List(context.Background(), model.ListOptions{Limit: 2, Offset: 4})
		require.NoError(t, err)
		assert.Equal(t, 5, paged.Count)
		assert.Len(t, paged.Results, 1)
	})
}

func TestRunRepo_Integration_DeleteCompletedBefore(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewRunRepo(db)
		now := testutil.TestTime()
		jobID := testutil.InsertJob(t, db, testutil.JobFixture{})

		for i := 0; i < 3; i++ {
			testutil.InsertRun(t, db, testutil.RunFixture{
				JobID:       jobID,
				Status:      "completed",
				CompletedAt: testutil.TimePtr(now.Add(-time.Duration(i+1) * 24 * time.Hour)),
			})
		}
		// Recent completion and a pending run must survive.
		testutil.InsertRun(t, db, testutil.RunFixture{
			JobID:       jobID,
			Status:      "completed",
			CompletedAt: testutil.TimePtr(now.Add(-time.Hour)),
		})
		testutil.InsertRun(t, db, testutil.RunFixture{JobID: jobID})

		cutoff := now.Add(-12 * time.Hour)

		deleted, err := repo.DeleteCompletedBefore(context.Background(), cutoff, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		deleted, err = repo.DeleteCompletedBefore(context.Background(), cutoff, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		deleted, err = repo.DeleteCompletedBefore(context.Background(), cutoff, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(0), deleted)

		assert.Equal(t, 1, testutil.CountRuns(t, db, "completed"))
		assert.Equal(t, 1, testutil.CountRuns(t, db, "scheduled"))

		_, err = repo.DeleteCompletedBefore(context.Background(), cutoff, 0)
		require.Error(t, err)
	})
}
