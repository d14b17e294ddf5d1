package service

import (
	"context"
	"fmt"

	"recruit_exec/internal/domain/model"
	"recruit_exec/internal/domain/repository"
)

type TestCaseStatusView struct {
	TestCaseID     string           `json:"test_case_id"`
	Status         model.TaskStatus `json:"status"`
	Input          string           `json:"input"`
	ExpectedOutput string           `json:"expected_output"`
	ActualOutput   *string          `json:"actual_output,omitempty"`
}

type SubmissionStatusView struct {
	SubmissionID    string                `json:"submission_id"`
	Generation      int                   `json:"generation"`
	Language        string                `json:"language"`
	SourceCode      string                `json:"source_code"`
	AggregateStatus model.AggregateStatus `json:"aggregate_status"`
	PerTestCase     []TestCaseStatusView  `json:"per_test_case"`
}

// LedgerService answers status polls; it only ever surfaces the current generation.
type LedgerService struct {
	submissions  repository.SubmissionRepository
	correlations repository.TaskCorrelationRepository
	testCases    repository.TestCaseRepository
}

func NewLedgerService(
	subRepo repository.SubmissionRepository,
	corrRepo repository.TaskCorrelationRepository,
	tcRepo repository.TestCaseRepository,
) *LedgerService {
	return &LedgerService{submissions: subRepo, correlations: corrRepo, testCases: tcRepo}
}

func (s *LedgerService) GetStatus(ctx context.Context, interviewID, questionID string) (*SubmissionStatusView, error) {
	sub, err := s.submissions.GetByInterviewQuestion(ctx, interviewID, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	rows, err := s.correlations.ListForGeneration(ctx, sub.ID, sub.Generation)
	if err != nil {
		return nil, fmt.Errorf("failed to load correlations for submission %s: %w", sub.ID, err)
	}
	testCases, err := s.testCases.ListByQuestionID(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load test cases for question %s: %w", questionID, err)
	}

	view := &SubmissionStatusView{
		SubmissionID:    sub.ID,
		Generation:      sub.Generation,
		Language:        sub.Language,
		SourceCode:      sub.SourceCode,
		AggregateStatus: sub.Status,
		PerTestCase:     make([]TestCaseStatusView, 0, len(rows)),
	}

	byTestCase := make(map[string]model.TaskCorrelation, len(rows))
	for _, r := range rows {
		byTestCase[r.TestCaseID] = r
	}
	for _, tc := range testCases {
		c, ok := byTestCase[tc.ID]
		if !ok {
			continue
		}
		view.PerTestCase = append(view.PerTestCase, TestCaseStatusView{
			TestCaseID:     tc.ID,
			Status:         c.Status,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			ActualOutput:   c.ActualOutput,
		})
		delete(byTestCase, tc.ID)
	}
	// Test cases removed from the question after dispatch still count toward the verdict.
	for _, r := range rows {
		if _, ok := byTestCase[r.TestCaseID]; ok {
			view.PerTestCase = append(view.PerTestCase, TestCaseStatusView{
				TestCaseID:   r.TestCaseID,
				Status:       r.Status,
				ActualOutput: r.ActualOutput,
			})
		}
	}
	return view, nil
}
