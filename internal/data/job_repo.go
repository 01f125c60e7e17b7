package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/target/runplane/internal/data/pgxutil"
	"github.com/target/runplane/internal/domain/model"
	apperrors "github.com/target/runplane/internal/errors"
)

// JobRepo provides database operations for jobs and their schedules.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewJobRepo creates a JobRepo using the system clock.
func NewJobRepo(db *sql.DB) *JobRepo {
	return &JobRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewJobRepoWithTimeProvider creates a JobRepo with a custom TimeProvider.
func NewJobRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *JobRepo {
	return &JobRepo{DB: db, timeProvider: tp}
}

const jobColumns = `id, name, created_at`

const jobScheduleColumns = `id, job_id, cron, created_at`

// InsertTx inserts a job inside an open transaction.
func (r *JobRepo) InsertTx(ctx context.Context, tx *sql.Tx, name string, now time.Time) (model.Job, error) {
	query := `
		INSERT INTO jobs (name, created_at)
		VALUES ($1, $2)
		RETURNING ` + jobColumns

	var job model.Job
	err := tx.QueryRowContext(ctx, query, name, now.UTC()).
		Scan(&job.ID, &job.Name, &job.CreatedAt)
	if err != nil {
		return model.Job{}, apperrors.MapDBError(fmt.Errorf("insert job: %w", err))
	}
	job.Schedules = []model.JobSchedule{}
	return job, nil
}

// InsertScheduleTx inserts one cron schedule for a job inside an open
// transaction.
func (r *JobRepo) InsertScheduleTx(
	ctx context.Context,
	tx *sql.Tx,
	jobID uuid.UUID,
	cron string,
	now time.Time,
) (model.JobSchedule, error) {
	query := `
		INSERT INTO job_schedules (job_id, cron, created_at)
		VALUES ($1, $2, $3)
		RETURNING ` + jobScheduleColumns

	var sched model.JobSchedule
	err := tx.QueryRowContext(ctx, query, jobID, cron, now.UTC()).
		Scan(&sched.ID, &sched.JobID, &sched.Cron, &sched.CreatedAt)
	if err != nil {
		return model.JobSchedule{}, apperrors.MapDBError(fmt.Errorf("insert job schedule: %w", err))
	}
	return sched, nil
}

// ScheduleByIDTx fetches one schedule inside an open transaction.
// Returns ErrScheduleNotFound when no row matches.
func (r *JobRepo) ScheduleByIDTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (model.JobSchedule, error) {
	query := `SELECT ` + jobScheduleColumns + ` FROM job_schedules WHERE id = $1`

	var sched model.JobSchedule
	err := tx.QueryRowContext(ctx, query, id).
		Scan(&sched.ID, &sched.JobID, &sched.Cron, &sched.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.JobSchedule{}, ErrScheduleNotFound
	}
	if err != nil {
		return model.JobSchedule{}, apperrors.MapDBError(fmt.Errorf("get job schedule: %w", err))
	}
	return sched, nil
}

// GetByID fetches one job with its schedules projected. Returns
// ErrJobNotFound when no row matches.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	var job model.Job
	err := r.DB.QueryRowContext(ctx, query, id).
		Scan(&job.ID, &job.Name, &job.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, ErrJobNotFound
	}
	if err != nil {
		return model.Job{}, apperrors.MapDBError(fmt.Errorf("get job: %w", err))
	}

	schedules, err := r.schedulesForJobs(ctx, []uuid.UUID{job.ID})
	if err != nil {
		return model.Job{}, err
	}
	job.Schedules = schedules[job.ID]
	if job.Schedules == nil {
		job.Schedules = []model.JobSchedule{}
	}
	return job, nil
}

// List returns one page of jobs sorted by name, with schedules
// projected, plus the total count over the unpaged query.
func (r *JobRepo) List(ctx context.Context, opts model.ListOptions) (model.Page[model.Job], error) {
	opts.Normalize()

	direction := "ASC"
	if opts.SortOrder == model.SortDesc {
		direction = "DESC"
	}

	pageQuery := fmt.Sprintf(
		`SELECT %s FROM jobs ORDER BY name %s, id %s OFFSET $1 LIMIT $2`,
		jobColumns, direction, direction,
	)

	var (
		jobs  []model.Job
		total int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pgxutil.WithPgxConn(gctx, r.DB, func(conn *pgx.Conn) error {
			rows, queryErr := conn.Query(gctx, pageQuery, opts.Offset, opts.Limit)
			if queryErr != nil {
				return queryErr
			}
			collected, collectErr := pgx.CollectRows(rows, rowToJob)
			if collectErr != nil {
				return collectErr
			}
			jobs = collected
			return nil
		})
	})
	g.Go(func() error {
		return r.DB.QueryRowContext(gctx, `SELECT COUNT(*) FROM jobs`).Scan(&total)
	})
	if err := g.Wait(); err != nil {
		return model.Page[model.Job]{}, apperrors.MapDBError(fmt.Errorf("list jobs: %w", err))
	}

	ids := make([]uuid.UUID, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	schedules, err := r.schedulesForJobs(ctx, ids)
	if err != nil {
		return model.Page[model.Job]{}, err
	}
	for i := range jobs {
		jobs[i].Schedules = schedules[jobs[i].ID]
		if jobs[i].Schedules == nil {
			jobs[i].Schedules = []model.JobSchedule{}
		}
	}

	if jobs == nil {
		jobs = []model.Job{}
	}
	return model.Page[model.Job]{Count: total, Results: jobs}, nil
}

// schedulesForJobs loads the schedules for a set of jobs in one query,
// keyed by job id.
func (r *JobRepo) schedulesForJobs(ctx context.Context, jobIDs []uuid.UUID) (map[uuid.UUID][]model.JobSchedule, error) {
	out := make(map[uuid.UUID][]model.JobSchedule, len(jobIDs))
	if len(jobIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT ` + jobScheduleColumns + `
		FROM job_schedules
		WHERE job_id = ANY($1)
		ORDER BY created_at ASC, id ASC`

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, query, jobIDs)
		if queryErr != nil {
			return queryErr
		}
		schedules, collectErr := pgx.CollectRows(rows, pgx.RowToStructByName[model.JobSchedule])
		if collectErr != nil {
			return collectErr
		}
		for _, s := range schedules {
			out[s.JobID] = append(out[s.JobID], s)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list job schedules: %w", err))
	}
	return out, nil
}

// rowToJob maps a pgx row to model.Job. Schedules are projected
// separately.
func rowToJob(row pgx.CollectableRow) (model.Job, error) {
	var job model.Job
	if err := row.Scan(&job.ID, &job.Name, &job.CreatedAt); err != nil {
		return model.Job{}, fmt.Errorf("scan job row: %w", err)
	}
	return job, nil
}
