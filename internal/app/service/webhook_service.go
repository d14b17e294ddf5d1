package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recruit_exec/internal/app/runner"
	"recruit_exec/internal/common"
	"recruit_exec/internal/domain/model"
	"recruit_exec/internal/domain/repository"

	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeUnknown   Outcome = "unknown"
	OutcomeStale     Outcome = "stale"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeResolved  Outcome = "resolved"
	OutcomeFinalized Outcome = "finalized"
)

// DispatchHint is the submission and generation the dispatcher embedded in the callback URL.
// It is only used to tell a callback that outran its dispatch apart from a truly unknown task.
type DispatchHint struct {
	SubmissionID string
	Generation   int
}

func (h DispatchHint) Present() bool { return h.SubmissionID != "" }

type WebhookService struct {
	submissions  repository.SubmissionRepository
	correlations repository.TaskCorrelationRepository
	testCases    repository.TestCaseRepository
	notifier     Notifier
	logger       *zap.Logger
	now          func() time.Time
}

func NewWebhookService(
	subRepo repository.SubmissionRepository,
	corrRepo repository.TaskCorrelationRepository,
	tcRepo repository.TestCaseRepository,
	notifier Notifier,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		submissions:  subRepo,
		correlations: corrRepo,
		testCases:    tcRepo,
		notifier:     notifier,
		logger:       logger,
		now:          time.Now,
	}
}

// Reconcile applies one runner callback. Discarded callbacks return a nil error; a non-nil error
// means nothing was committed for this callback beyond what a retry will treat as a duplicate.
func (s *WebhookService) Reconcile(ctx context.Context, payload runner.CallbackPayload, hint DispatchHint) (Outcome, error) {
	taskID := payload.TaskUniqueID
	if taskID == "" {
		return OutcomeUnknown, fmt.Errorf("callback without task id: %w", common.ErrBadRequest)
	}
	log := s.logger.With(zap.String("task_id", taskID))

	corr, err := s.correlations.GetByTaskID(ctx, taskID)
	if errors.Is(err, common.ErrNotFound) {
		return s.unknownTask(ctx, log, hint)
	}
	if err != nil {
		return OutcomeUnknown, fmt.Errorf("failed to look up task %s: %w", taskID, err)
	}
	log = log.With(zap.String("submission_id", corr.SubmissionID), zap.Int("generation", corr.Generation))

	sub, err := s.submissions.GetByID(ctx, corr.SubmissionID)
	if errors.Is(err, common.ErrNotFound) {
		log.Info("discarding callback for deleted submission")
		return OutcomeUnknown, nil
	}
	if err != nil {
		return OutcomeUnknown, fmt.Errorf("failed to load submission %s: %w", corr.SubmissionID, err)
	}

	if corr.Generation != sub.Generation {
		log.Info("discarding stale callback", zap.Int("current_generation", sub.Generation))
		return OutcomeStale, nil
	}
	if corr.Status.Resolved() {
		log.Info("discarding duplicate callback", zap.String("status", string(corr.Status)))
		return s.recoverFinalization(ctx, log, sub)
	}

	result := payload.Result()
	resolved, err := s.correlations.ResolveIfPending(ctx, taskID, corr.Generation, result)
	if err != nil {
		return OutcomeUnknown, fmt.Errorf("failed to record result for task %s: %w", taskID, err)
	}
	if !resolved {
		// Lost a race with a concurrent delivery or a resubmission.
		log.Info("callback lost resolution race, discarding")
		return OutcomeDuplicate, nil
	}
	log.Info("test case resolved", zap.String("status", string(result.Status)), zap.String("run_status", result.RunStatus))

	// Separate statement from the update above so that concurrent final callbacks cannot both
	// miss each other's resolution.
	rows, err := s.correlations.ListForGeneration(ctx, sub.ID, sub.Generation)
	if err != nil {
		return OutcomeResolved, fmt.Errorf("failed to re-read correlations for submission %s: %w", sub.ID, err)
	}

	resolvedCount := 0
	for _, r := range rows {
		if r.Status.Resolved() {
			resolvedCount++
		}
	}
	s.notifier.Notify(ctx, sub.InterviewID, model.LiveEvent{
		Type:           model.EventProgress,
		InterviewID:    sub.InterviewID,
		QuestionID:     sub.QuestionID,
		SubmissionID:   sub.ID,
		Generation:     sub.Generation,
		TestCaseID:     corr.TestCaseID,
		TestCaseStatus: result.Status,
		Resolved:       resolvedCount,
		Total:          len(rows),
		At:             s.now(),
	})

	return s.finalize(ctx, log, sub, rows)
}

func (s *WebhookService) unknownTask(ctx context.Context, log *zap.Logger, hint DispatchHint) (Outcome, error) {
	if hint.Present() {
		sub, err := s.submissions.GetByID(ctx, hint.SubmissionID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return OutcomeUnknown, fmt.Errorf("failed to load hinted submission %s: %w", hint.SubmissionID, err)
		}
		if err == nil && sub.Generation == hint.Generation && sub.Status == model.AggregatePending {
			rows, err := s.correlations.ListForGeneration(ctx, sub.ID, sub.Generation)
			if err != nil {
				return OutcomeUnknown, fmt.Errorf("failed to read correlations for submission %s: %w", sub.ID, err)
			}
			if len(rows) == 0 {
				log.Warn("callback arrived before dispatch recorded its tasks, asking runner to retry",
					zap.String("submission_id", sub.ID), zap.Int("generation", sub.Generation))
				return OutcomeUnknown, common.ErrDispatchInFlight
			}
		}
	}
	log.Info("discarding callback for unknown task", zap.String("hinted_submission_id", hint.SubmissionID))
	return OutcomeUnknown, nil
}

// recoverFinalization handles a redelivered callback whose earlier delivery resolved the test case
// but failed before the aggregate was evaluated. A finalized or still-incomplete submission is
// left untouched.
func (s *WebhookService) recoverFinalization(ctx context.Context, log *zap.Logger, sub *model.Submission) (Outcome, error) {
	if sub.Status != model.AggregatePending {
		return OutcomeDuplicate, nil
	}
	rows, err := s.correlations.ListForGeneration(ctx, sub.ID, sub.Generation)
	if err != nil {
		return OutcomeDuplicate, fmt.Errorf("failed to re-read correlations for submission %s: %w", sub.ID, err)
	}
	outcome, err := s.finalize(ctx, log, sub, rows)
	if outcome == OutcomeFinalized {
		return outcome, err
	}
	return OutcomeDuplicate, err
}

func (s *WebhookService) finalize(ctx context.Context, log *zap.Logger, sub *model.Submission, rows []model.TaskCorrelation) (Outcome, error) {
	verdict := model.Aggregate(rows)
	if verdict == model.AggregatePending {
		return OutcomeResolved, nil
	}

	won, err := s.submissions.FinalizeAggregate(ctx, sub.ID, sub.Generation, verdict)
	if err != nil {
		return OutcomeResolved, fmt.Errorf("failed to finalize submission %s: %w", sub.ID, err)
	}
	if !won {
		return OutcomeResolved, nil
	}
	log.Info("submission finalized", zap.String("status", string(verdict)))

	event := model.LiveEvent{
		Type:         model.EventPassed,
		InterviewID:  sub.InterviewID,
		QuestionID:   sub.QuestionID,
		SubmissionID: sub.ID,
		Generation:   sub.Generation,
		Resolved:     len(rows),
		Total:        len(rows),
		At:           s.now(),
	}
	if verdict == model.AggregateFailed {
		event.Type = model.EventFailed
		detail, err := s.firstFailure(ctx, sub.QuestionID, rows)
		if err != nil {
			// The verdict is committed; a terminal push without detail beats no push at all.
			log.Error("failed to build failure detail", zap.Error(err))
		}
		event.Failure = detail
	}
	s.notifier.Notify(ctx, sub.InterviewID, event)
	return OutcomeFinalized, nil
}

// firstFailure picks the earliest failing test case in question order.
func (s *WebhookService) firstFailure(ctx context.Context, questionID string, rows []model.TaskCorrelation) (*model.FailureDetail, error) {
	byTestCase := make(map[string]model.TaskCorrelation, len(rows))
	var fallback *model.TaskCorrelation
	for i := range rows {
		byTestCase[rows[i].TestCaseID] = rows[i]
		if fallback == nil && rows[i].Status != model.TaskSucceeded {
			fallback = &rows[i]
		}
	}

	testCases, err := s.testCases.ListByQuestionID(ctx, questionID)
	if err != nil {
		return failureDetail(fallback, nil), err
	}
	for i := range testCases {
		c, ok := byTestCase[testCases[i].ID]
		if ok && c.Status != model.TaskSucceeded {
			return failureDetail(&c, &testCases[i]), nil
		}
	}
	return failureDetail(fallback, nil), nil
}

func failureDetail(c *model.TaskCorrelation, tc *model.TestCase) *model.FailureDetail {
	if c == nil {
		return nil
	}
	detail := &model.FailureDetail{TestCaseID: c.TestCaseID, Status: c.Status}
	if c.ActualOutput != nil {
		detail.ActualOutput = *c.ActualOutput
	}
	if tc != nil {
		detail.Input = tc.Input
		detail.ExpectedOutput = tc.ExpectedOutput
	}
	return detail
}
