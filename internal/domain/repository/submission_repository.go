package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"recruit_exec/internal/common"
	"recruit_exec/internal/domain/model"
)

type SubmissionRepository interface {
	// UpsertForDispatch creates the submission at generation 0 or, when one already exists for the
	// (interview, question) pair, bumps its generation and resets it to pending with the new code.
	UpsertForDispatch(ctx context.Context, sub *model.Submission) (*model.Submission, error)
	GetByID(ctx context.Context, id string) (*model.Submission, error)
	GetByInterviewQuestion(ctx context.Context, interviewID, questionID string) (*model.Submission, error)
	// FinalizeAggregate moves a pending submission of the given generation to a terminal status.
	// It reports true only to the caller whose update performed the transition.
	FinalizeAggregate(ctx context.Context, submissionID string, generation int, status model.AggregateStatus) (bool, error)
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

const submissionColumns = `id, interview_id, question_id, language, source_code, status, generation, created_at, updated_at, finalized_at`

func scanSubmission(row interface{ Scan(dest ...any) error }) (*model.Submission, error) {
	sub := &model.Submission{}
	err := row.Scan(
		&sub.ID, &sub.InterviewID, &sub.QuestionID, &sub.Language, &sub.SourceCode,
		&sub.Status, &sub.Generation, &sub.CreatedAt, &sub.UpdatedAt, &sub.FinalizedAt,
	)
	return sub, err
}

func (r *pgSubmissionRepository) UpsertForDispatch(ctx context.Context, sub *model.Submission) (*model.Submission, error) {
	query := `INSERT INTO dsa_submissions (id, interview_id, question_id, language, source_code, status, generation)
	          VALUES ($1, $2, $3, $4, $5, 'pending', 0)
	          ON CONFLICT ON CONSTRAINT uq_interview_and_question DO UPDATE SET
	              language     = EXCLUDED.language,
	              source_code  = EXCLUDED.source_code,
	              status       = 'pending',
	              generation   = dsa_submissions.generation + 1,
	              finalized_at = NULL,
	              updated_at   = CURRENT_TIMESTAMP
	          RETURNING ` + submissionColumns

	stored, err := scanSubmission(r.db.QueryRowContext(ctx, query,
		sub.ID, sub.InterviewID, sub.QuestionID, sub.Language, sub.SourceCode))
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.UpsertForDispatch: %w", err)
	}
	return stored, nil
}

func (r *pgSubmissionRepository) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM dsa_submissions WHERE id = $1`
	sub, err := scanSubmission(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSubmissionRepository.GetByID: %w", err)
	}
	return sub, nil
}

func (r *pgSubmissionRepository) GetByInterviewQuestion(ctx context.Context, interviewID, questionID string) (*model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM dsa_submissions WHERE interview_id = $1 AND question_id = $2`
	sub, err := scanSubmission(r.db.QueryRowContext(ctx, query, interviewID, questionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSubmissionRepository.GetByInterviewQuestion: %w", err)
	}
	return sub, nil
}

func (r *pgSubmissionRepository) FinalizeAggregate(ctx context.Context, submissionID string, generation int, status model.AggregateStatus) (bool, error) {
	query := `UPDATE dsa_submissions
	          SET status = $1, finalized_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $2 AND generation = $3 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, status, submissionID, generation)
	if err != nil {
		return false, fmt.Errorf("pgSubmissionRepository.FinalizeAggregate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgSubmissionRepository.FinalizeAggregate rows affected: %w", err)
	}
	return n == 1, nil
}
