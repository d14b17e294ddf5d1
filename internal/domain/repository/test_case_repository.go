package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"recruit_exec/internal/common"
	"recruit_exec/internal/domain/model"
)

// TestCaseRepository is the read-only view of the question bank owned by the interview CRUD service.
type TestCaseRepository interface {
	ListByQuestionID(ctx context.Context, questionID string) ([]model.TestCase, error)
}

// InterviewRepository reads interview-level state owned by the interview CRUD service.
type InterviewRepository interface {
	GetInterviewStatus(ctx context.Context, interviewID string) (string, error)
}

type pgTestCaseRepository struct {
	db *sql.DB
}

func NewPgTestCaseRepository(db *sql.DB) TestCaseRepository {
	return &pgTestCaseRepository{db: db}
}

func (r *pgTestCaseRepository) ListByQuestionID(ctx context.Context, questionID string) ([]model.TestCase, error) {
	query := `SELECT id, question_id, input, expected_output, sort_order
	          FROM dsa_test_cases WHERE question_id = $1
	          ORDER BY sort_order, id`
	rows, err := r.db.QueryContext(ctx, query, questionID)
	if err != nil {
		return nil, fmt.Errorf("pgTestCaseRepository.ListByQuestionID: %w", err)
	}
	defer rows.Close()

	var testCases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.QuestionID, &tc.Input, &tc.ExpectedOutput, &tc.SortOrder); err != nil {
			return nil, fmt.Errorf("pgTestCaseRepository.ListByQuestionID scan: %w", err)
		}
		testCases = append(testCases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgTestCaseRepository.ListByQuestionID rows: %w", err)
	}
	return testCases, nil
}

type pgInterviewRepository struct {
	db *sql.DB
}

func NewPgInterviewRepository(db *sql.DB) InterviewRepository {
	return &pgInterviewRepository{db: db}
}

func (r *pgInterviewRepository) GetInterviewStatus(ctx context.Context, interviewID string) (string, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM interviews WHERE id = $1`, interviewID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("pgInterviewRepository.GetInterviewStatus: %w", err)
	}
	return status, nil
}
