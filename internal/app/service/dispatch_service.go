package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"recruit_exec/internal/app/runner"
	"recruit_exec/internal/common"
	"recruit_exec/internal/domain/model"
	"recruit_exec/internal/domain/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	MaxSourceBytes  = 64 * 1024
	WebhookPath     = "/api/v1/webhook/execution"
	StatusExecuting = "executing"
)

type DispatchRequest struct {
	InterviewID string `json:"-"`
	QuestionID  string `json:"-"`
	Language    string `json:"language"`
	SourceCode  string `json:"source_code"`
}

type DispatchResult struct {
	Status          string                `json:"status"`
	SubmissionID    string                `json:"submission_id"`
	Generation      int                   `json:"generation"`
	TaskCount       int                   `json:"task_count"`
	AggregateStatus model.AggregateStatus `json:"aggregate_status"`
}

type DispatchService struct {
	submissions  repository.SubmissionRepository
	correlations repository.TaskCorrelationRepository
	testCases    repository.TestCaseRepository
	interviews   repository.InterviewRepository
	runner       Runner
	notifier     Notifier
	callbackBase string
	logger       *zap.Logger
	now          func() time.Time
}

func NewDispatchService(
	subRepo repository.SubmissionRepository,
	corrRepo repository.TaskCorrelationRepository,
	tcRepo repository.TestCaseRepository,
	interviewRepo repository.InterviewRepository,
	execRunner Runner,
	notifier Notifier,
	callbackBaseURL string,
	logger *zap.Logger,
) *DispatchService {
	return &DispatchService{
		submissions:  subRepo,
		correlations: corrRepo,
		testCases:    tcRepo,
		interviews:   interviewRepo,
		runner:       execRunner,
		notifier:     notifier,
		callbackBase: strings.TrimRight(callbackBaseURL, "/"),
		logger:       logger,
		now:          time.Now,
	}
}

// Dispatch records the submission, sends every test case to the runner in one batch and returns
// without waiting for results.
func (s *DispatchService) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	runnerLang, err := validateDispatch(req)
	if err != nil {
		return nil, err
	}

	status, err := s.interviews.GetInterviewStatus(ctx, req.InterviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to load interview %s: %w", req.InterviewID, err)
	}
	if status == model.InterviewCompleted {
		return nil, fmt.Errorf("interview %s is already completed: %w", req.InterviewID, common.ErrForbidden)
	}

	sub, err := s.submissions.UpsertForDispatch(ctx, &model.Submission{
		ID:          uuid.NewString(),
		InterviewID: req.InterviewID,
		QuestionID:  req.QuestionID,
		Language:    req.Language,
		SourceCode:  req.SourceCode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record submission: %w", err)
	}
	log := s.logger.With(zap.String("submission_id", sub.ID), zap.Int("generation", sub.Generation))

	testCases, err := s.testCases.ListByQuestionID(ctx, req.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load test cases for question %s: %w", req.QuestionID, err)
	}

	result := &DispatchResult{
		Status:          StatusExecuting,
		SubmissionID:    sub.ID,
		Generation:      sub.Generation,
		TaskCount:       len(testCases),
		AggregateStatus: model.AggregatePending,
	}

	if len(testCases) == 0 {
		won, err := s.submissions.FinalizeAggregate(ctx, sub.ID, sub.Generation, model.AggregatePassed)
		if err != nil {
			return nil, fmt.Errorf("failed to finalize submission without test cases: %w", err)
		}
		if won {
			log.Info("question has no test cases, submission passed vacuously")
			s.notifier.Notify(ctx, sub.InterviewID, model.LiveEvent{
				Type:         model.EventPassed,
				InterviewID:  sub.InterviewID,
				QuestionID:   sub.QuestionID,
				SubmissionID: sub.ID,
				Generation:   sub.Generation,
				At:           s.now(),
			})
			result.AggregateStatus = model.AggregatePassed
		}
		return result, nil
	}

	callbackURL := s.callbackURL(sub.ID, sub.Generation)
	entries := make([]runner.Entry, len(testCases))
	for i, tc := range testCases {
		entries[i] = runner.Entry{
			Language:       runnerLang,
			SourceCode:     sub.SourceCode,
			Stdin:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			CallbackURL:    callbackURL,
		}
	}

	taskIDs, err := s.runner.SubmitBatch(ctx, entries)
	if err != nil {
		log.Warn("runner dispatch failed", zap.Error(err))
		return nil, err
	}

	rows := make([]model.TaskCorrelation, len(testCases))
	for i, tc := range testCases {
		rows[i] = model.TaskCorrelation{TestCaseID: tc.ID, TaskID: taskIDs[i]}
	}
	if err := s.correlations.ReplaceForGeneration(ctx, sub.ID, sub.Generation, rows); err != nil {
		if errors.Is(err, common.ErrSuperseded) {
			// A newer resubmission owns the submission now; its own dispatch reports its tasks.
			log.Info("dispatch superseded before task ids were recorded", zap.Error(err))
			return result, nil
		}
		return nil, fmt.Errorf("failed to record task correlations: %w", err)
	}

	log.Info("submission dispatched", zap.Int("tasks", len(taskIDs)))
	return result, nil
}

func validateDispatch(req DispatchRequest) (string, error) {
	if req.InterviewID == "" || req.QuestionID == "" {
		return "", fmt.Errorf("interview and question are required: %w", common.ErrBadRequest)
	}
	lang, ok := model.RunnerLanguage(req.Language)
	if !ok {
		return "", fmt.Errorf("unsupported language %q: %w", req.Language, common.ErrBadRequest)
	}
	if strings.TrimSpace(req.SourceCode) == "" {
		return "", fmt.Errorf("source code is empty: %w", common.ErrBadRequest)
	}
	if len(req.SourceCode) > MaxSourceBytes {
		return "", fmt.Errorf("source code exceeds %d bytes: %w", MaxSourceBytes, common.ErrBadRequest)
	}
	return lang, nil
}

func (s *DispatchService) callbackURL(submissionID string, generation int) string {
	q := url.Values{}
	q.Set("sid", submissionID)
	q.Set("gen", strconv.Itoa(generation))
	return s.callbackBase + WebhookPath + "?" + q.Encode()
}
