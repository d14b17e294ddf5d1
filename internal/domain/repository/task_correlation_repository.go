package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"recruit_exec/internal/common"
	"recruit_exec/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type TaskCorrelationRepository interface {
	// ReplaceForGeneration records the dispatched task ids for one generation. It fails with
	// common.ErrSuperseded when the submission has moved past that generation.
	ReplaceForGeneration(ctx context.Context, submissionID string, generation int, rows []model.TaskCorrelation) error
	GetByTaskID(ctx context.Context, taskID string) (*model.TaskCorrelation, error)
	// ResolveIfPending writes a result only while the row is pending and its generation is still
	// the submission's current one.
	ResolveIfPending(ctx context.Context, taskID string, generation int, result model.TaskResult) (bool, error)
	ListForGeneration(ctx context.Context, submissionID string, generation int) ([]model.TaskCorrelation, error)
	DeleteSuperseded(ctx context.Context, olderThan time.Time) (int64, error)
}

type pgTaskCorrelationRepository struct {
	db *sql.DB
}

func NewPgTaskCorrelationRepository(db *sql.DB) TaskCorrelationRepository {
	return &pgTaskCorrelationRepository{db: db}
}

const correlationColumns = `submission_id, test_case_id, task_id, generation, status, run_status, actual_output, cpu_time_ms, memory_kb, created_at, updated_at`

func scanCorrelation(row interface{ Scan(dest ...any) error }) (*model.TaskCorrelation, error) {
	c := &model.TaskCorrelation{}
	err := row.Scan(
		&c.SubmissionID, &c.TestCaseID, &c.TaskID, &c.Generation, &c.Status,
		&c.RunStatus, &c.ActualOutput, &c.CPUTimeMs, &c.MemoryKb, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (r *pgTaskCorrelationRepository) ReplaceForGeneration(ctx context.Context, submissionID string, generation int, rows []model.TaskCorrelation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgTaskCorrelationRepository.ReplaceForGeneration begin: %w", err)
	}
	defer tx.Rollback()

	// Row lock serializes this against a concurrent resubmission's upsert.
	var current int
	err = tx.QueryRowContext(ctx, `SELECT generation FROM dsa_submissions WHERE id = $1 FOR UPDATE`, submissionID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		return fmt.Errorf("pgTaskCorrelationRepository.ReplaceForGeneration lock: %w", err)
	}
	if current != generation {
		return fmt.Errorf("submission %s at generation %d, dispatch was for %d: %w", submissionID, current, generation, common.ErrSuperseded)
	}

	query := `INSERT INTO dsa_task_correlations (submission_id, test_case_id, task_id, generation, status)
	          VALUES ($1, $2, $3, $4, 'pending')
	          ON CONFLICT (submission_id, test_case_id) DO UPDATE SET
	              task_id       = EXCLUDED.task_id,
	              generation    = EXCLUDED.generation,
	              status        = 'pending',
	              run_status    = NULL,
	              actual_output = NULL,
	              cpu_time_ms   = NULL,
	              memory_kb     = NULL,
	              created_at    = CURRENT_TIMESTAMP,
	              updated_at    = CURRENT_TIMESTAMP
	          WHERE dsa_task_correlations.generation <= EXCLUDED.generation`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("pgTaskCorrelationRepository.ReplaceForGeneration prepare: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, submissionID, row.TestCaseID, row.TaskID, generation); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" { // task_id reused by the runner
				return fmt.Errorf("task id %s already correlated: %w", row.TaskID, common.ErrConflict)
			}
			return fmt.Errorf("pgTaskCorrelationRepository.ReplaceForGeneration insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgTaskCorrelationRepository.ReplaceForGeneration commit: %w", err)
	}
	return nil
}

func (r *pgTaskCorrelationRepository) GetByTaskID(ctx context.Context, taskID string) (*model.TaskCorrelation, error) {
	query := `SELECT ` + correlationColumns + ` FROM dsa_task_correlations WHERE task_id = $1`
	c, err := scanCorrelation(r.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgTaskCorrelationRepository.GetByTaskID: %w", err)
	}
	return c, nil
}

func (r *pgTaskCorrelationRepository) ResolveIfPending(ctx context.Context, taskID string, generation int, result model.TaskResult) (bool, error) {
	query := `UPDATE dsa_task_correlations c
	          SET status = $1, run_status = $2, actual_output = $3, cpu_time_ms = $4, memory_kb = $5,
	              updated_at = CURRENT_TIMESTAMP
	          FROM dsa_submissions s
	          WHERE c.task_id = $6 AND c.generation = $7 AND c.status = 'pending'
	            AND s.id = c.submission_id AND s.generation = c.generation`
	res, err := r.db.ExecContext(ctx, query,
		result.Status, result.RunStatus, result.ActualOutput, result.CPUTimeMs, result.MemoryKb,
		taskID, generation)
	if err != nil {
		return false, fmt.Errorf("pgTaskCorrelationRepository.ResolveIfPending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgTaskCorrelationRepository.ResolveIfPending rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *pgTaskCorrelationRepository) ListForGeneration(ctx context.Context, submissionID string, generation int) ([]model.TaskCorrelation, error) {
	query := `SELECT ` + correlationColumns + ` FROM dsa_task_correlations
	          WHERE submission_id = $1 AND generation = $2
	          ORDER BY test_case_id`
	rows, err := r.db.QueryContext(ctx, query, submissionID, generation)
	if err != nil {
		return nil, fmt.Errorf("pgTaskCorrelationRepository.ListForGeneration: %w", err)
	}
	defer rows.Close()

	var out []model.TaskCorrelation
	for rows.Next() {
		c, err := scanCorrelation(rows)
		if err != nil {
			return nil, fmt.Errorf("pgTaskCorrelationRepository.ListForGeneration scan: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgTaskCorrelationRepository.ListForGeneration rows: %w", err)
	}
	return out, nil
}

func (r *pgTaskCorrelationRepository) DeleteSuperseded(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM dsa_task_correlations c
	          USING dsa_submissions s
	          WHERE s.id = c.submission_id AND c.generation < s.generation AND c.updated_at < $1`
	res, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("pgTaskCorrelationRepository.DeleteSuperseded: %w", err)
	}
	return res.RowsAffected()
}
