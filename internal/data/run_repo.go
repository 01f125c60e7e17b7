package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/target/runplane/internal/core"
	"github.com/target/runplane/internal/data/pgxutil"
	"github.com/target/runplane/internal/domain/model"
	apperrors "github.com/target/runplane/internal/errors"
)

// RunRepo provides database operations for job runs.
type RunRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewRunRepo creates a RunRepo using the system clock.
func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewRunRepoWithTimeProvider creates a RunRepo with a custom TimeProvider.
func NewRunRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *RunRepo {
	return &RunRepo{DB: db, timeProvider: tp}
}

const jobRunColumns = `
  id,
  job_id,
  job_schedule_id,
  status,
  scheduled_at,
  completed_at,
  assigned_to,
  assigned_until,
  result,
  created_at
`

// assignableWhere is the read-only assignability filter used by
// listings: not completed, due (or unscheduled), and not under a live
// lease. The argument placeholder carries the evaluation instant.
func assignableWhere(nowArg string) string {
	return `status IN ('scheduled', 'in_progress')
		AND (scheduled_at IS NULL OR scheduled_at <= ` + nowArg + `)
		AND (assigned_to IS NULL OR assigned_until IS NULL OR assigned_until < ` + nowArg + `)`
}

// InsertTx inserts a new scheduled run inside an open transaction.
func (r *RunRepo) InsertTx(ctx context.Context, tx *sql.Tx, p core.InsertRunParams) (model.JobRun, error) {
	query := `
		INSERT INTO job_runs (job_id, job_schedule_id, status, scheduled_at, created_at)
		VALUES ($1, $2, 'scheduled', $3, $4)
		RETURNING ` + jobRunColumns

	row := tx.QueryRowContext(ctx, query, p.JobID, p.JobScheduleID, p.ScheduledAt, p.Now.UTC())
	run, err := scanRunFromRow(row)
	if err != nil {
		return model.JobRun{}, apperrors.MapDBError(fmt.Errorf("insert job run: %w", err))
	}
	return run, nil
}

// AssignTx executes the conditional assignment update inside an open
// transaction. The predicate admits scheduled or in-progress runs that
// are due and either unleased, expired, or already held by the same
// worker (lease renewal). Zero rows updated yields ErrRunNotAssignable.
//
// The predicate's reference time comes from the caller's TimeProvider,
// not the database's now(). Atomicity is unaffected (a single UPDATE
// still admits one winner), but under app/DB clock skew lease
// boundaries shift by the skew. All repo times flow from the same
// provider, so assign, complete and the assignable listing stay
// mutually consistent.
func (r *RunRepo) AssignTx(ctx context.Context, tx *sql.Tx, p core.AssignRunParams) (model.JobRun, error) {
	query := `
		UPDATE job_runs
		SET assigned_to = $2, assigned_until = $3, status = 'in_progress'
		WHERE id = $1
			AND status IN ('scheduled', 'in_progress')
			AND (scheduled_at IS NULL OR scheduled_at <= $4)
			AND (assigned_to IS NULL OR assigned_until IS NULL OR assigned_until < $4 OR assigned_to = $2)
		RETURNING ` + jobRunColumns

	row := tx.QueryRowContext(ctx, query, p.ID, p.Worker, p.Until.UTC(), p.Now.UTC())
	run, err := scanRunFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.JobRun{}, ErrRunNotAssignable
	}
	if err != nil {
		return model.JobRun{}, apperrors.MapDBError(fmt.Errorf("assign job run: %w", err))
	}
	return run, nil
}

// CompleteTx executes the conditional completion update inside an open
// transaction. Only the worker holding a live lease may complete. Zero
// rows updated yields ErrRunNotCompletable.
func (r *RunRepo) CompleteTx(ctx context.Context, tx *sql.Tx, p core.CompleteRunParams) (model.JobRun, error) {
	query := `
		UPDATE job_runs
		SET status = 'completed', completed_at = $3, result = $4
		WHERE id = $1
			AND status = 'in_progress'
			AND assigned_to = $2
			AND assigned_until >= $3
		RETURNING ` + jobRunColumns

	row := tx.QueryRowContext(ctx, query, p.ID, p.Worker, p.Now.UTC(), p.Result)
	run, err := scanRunFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.JobRun{}, ErrRunNotCompletable
	}
	if err != nil {
		return model.JobRun{}, apperrors.MapDBError(fmt.Errorf("complete job run: %w", err))
	}
	return run, nil
}

// GetByID fetches one run by primary key. Returns ErrRunNotFound when
// no row matches.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (model.JobRun, error) {
	query := `SELECT ` + jobRunColumns + ` FROM job_runs WHERE id = $1`

	var run model.JobRun
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, queryErr := conn.Query(ctx, query, id)
		if queryErr != nil {
			return queryErr
		}
		collected, collectErr := pgx.CollectExactlyOneRow(rows, rowToJobRun)
		if collectErr != nil {
			return collectErr
		}
		run = collected
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return model.JobRun{}, ErrRunNotFound
	}
	if err != nil {
		return model.JobRun{}, apperrors.MapDBError(fmt.Errorf("get job run: %w", err))
	}
	return run, nil
}

// List returns one page of runs plus the total count over the unpaged
// query. The page and the count are computed concurrently.
func (r *RunRepo) List(ctx context.Context, opts model.ListOptions) (model.Page[model.JobRun], error) {
	opts.Normalize()

	where := ""
	args := []any{}
	if opts.AssignableOnly {
		args = append(args, r.timeProvider.Now().UTC())
		where = "WHERE " + assignableWhere("$1")
	}

	direction := "ASC"
	if opts.SortOrder == model.SortDesc {
		direction = "DESC"
	}

	n := len(args)
	pageQuery := fmt.Sprintf(
		`SELECT %s FROM job_runs %s ORDER BY scheduled_at %s, id %s OFFSET $%d LIMIT $%d`,
		jobRunColumns, where, direction, direction, n+1, n+2,
	)
	countQuery := `SELECT COUNT(*) FROM job_runs ` + where

	var (
		runs  []model.JobRun
		total int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pageArgs := append(append([]any{}, args...), opts.Offset, opts.Limit)
		return pgxutil.WithPgxConn(gctx, r.DB, func(conn *pgx.Conn) error {
			rows, queryErr := conn.Query(gctx, pageQuery, pageArgs...)
			if queryErr != nil {
				return queryErr
			}
			collected, collectErr := pgx.CollectRows(rows, rowToJobRun)
			if collectErr != nil {
				return collectErr
			}
			runs = collected
			return nil
		})
	})
	g.Go(func() error {
		return r.DB.QueryRowContext(gctx, countQuery, args...).Scan(&total)
	})
	if err := g.Wait(); err != nil {
		return model.Page[model.JobRun]{}, apperrors.MapDBError(fmt.Errorf("list job runs: %w", err))
	}

	if runs == nil {
		runs = []model.JobRun{}
	}
	return model.Page[model.JobRun]{Count: total, Results: runs}, nil
}

// DeleteCompletedBefore removes up to batchSize completed runs whose
// completion instant precedes cutoff. Returns the number deleted.
func (r *RunRepo) DeleteCompletedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	query := `
		DELETE FROM job_runs
		WHERE id IN (
			SELECT id FROM job_runs
			WHERE status = 'completed' AND completed_at < $1
			ORDER BY completed_at ASC
			LIMIT $2
		)`

	res, err := r.DB.ExecContext(ctx, query, cutoff.UTC(), batchSize)
	if err != nil {
		return 0, apperrors.MapDBError(fmt.Errorf("delete completed job runs: %w", err))
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return deleted, nil
}

// jobRunRow matches the job_runs schema exactly so pgx.RowToStructByName
// and database/sql scanning share one shape.
type jobRunRow struct {
	ID            uuid.UUID      `db:"id"`
	JobID         uuid.UUID      `db:"job_id"`
	JobScheduleID uuid.NullUUID  `db:"job_schedule_id"`
	Status        string         `db:"status"`
	ScheduledAt   sql.NullTime   `db:"scheduled_at"`
	CompletedAt   sql.NullTime   `db:"completed_at"`
	AssignedTo    sql.NullString `db:"assigned_to"`
	AssignedUntil sql.NullTime   `db:"assigned_until"`
	Result        sql.NullString `db:"result"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (row *jobRunRow) toModel() model.JobRun {
	run := model.JobRun{
		ID:        row.ID,
		JobID:     row.JobID,
		Status:    model.RunStatus(strings.ToLower(row.Status)),
		CreatedAt: row.CreatedAt,
	}
	if row.JobScheduleID.Valid {
		id := row.JobScheduleID.UUID
		run.JobScheduleID = &id
	}
	if row.ScheduledAt.Valid {
		t := row.ScheduledAt.Time
		run.ScheduledAt = &t
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		run.CompletedAt = &t
	}
	if row.AssignedTo.Valid {
		s := row.AssignedTo.String
		run.AssignedTo = &s
	}
	if row.AssignedUntil.Valid {
		t := row.AssignedUntil.Time
		run.AssignedUntil = &t
	}
	if row.Result.Valid {
		s := row.Result.String
		run.Result = &s
	}
	return run
}

// rowToJobRun maps a pgx row to model.JobRun using pgx v5 generics.
func rowToJobRun(row pgx.CollectableRow) (model.JobRun, error) {
	dbRow, err := pgx.RowToStructByName[jobRunRow](row)
	if err != nil {
		return model.JobRun{}, fmt.Errorf("scan job run row: %w", err)
	}
	return dbRow.toModel(), nil
}

// scanRunFromRow scans a single database/sql row in jobRunColumns order.
func scanRunFromRow(row *sql.Row) (model.JobRun, error) {
	var dbRow jobRunRow
	err := row.Scan(
		&dbRow.ID,
		&dbRow.JobID,
		&dbRow.JobScheduleID,
		&dbRow.Status,
		&dbRow.ScheduledAt,
		&dbRow.CompletedAt,
		&dbRow.AssignedTo,
		&dbRow.AssignedUntil,
		&dbRow.Result,
		&dbRow.CreatedAt,
	)
	if err != nil {
		return model.JobRun{}, err
	}
	return dbRow.toModel(), nil
}
