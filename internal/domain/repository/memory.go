package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"recruit_exec/internal/common"
	"recruit_exec/internal/domain/model"
)

// MemoryStore keeps the whole pipeline state in process memory. Every method is atomic and
// applies the same conditional-update rules as the PostgreSQL repositories, which makes it
// usable for tests and for running the server without a database.
type MemoryStore struct {
	mu           sync.Mutex
	now          func() time.Time
	interviews   map[string]string
	testCases    map[string][]model.TestCase
	submissions  map[string]*model.Submission
	byQuestion   map[string]string // interview/question -> submission id
	correlations map[string]*model.TaskCorrelation
	byTaskID     map[string]string // task id -> correlation key
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:          time.Now,
		interviews:   make(map[string]string),
		testCases:    make(map[string][]model.TestCase),
		submissions:  make(map[string]*model.Submission),
		byQuestion:   make(map[string]string),
		correlations: make(map[string]*model.TaskCorrelation),
		byTaskID:     make(map[string]string),
	}
}

var (
	_ SubmissionRepository      = (*MemoryStore)(nil)
	_ TaskCorrelationRepository = (*MemoryStore)(nil)
	_ TestCaseRepository        = (*MemoryStore)(nil)
	_ InterviewRepository       = (*MemoryStore)(nil)
)

func questionKey(interviewID, questionID string) string { return interviewID + "/" + questionID }
func correlationKey(submissionID, testCaseID string) string { return submissionID + "/" + testCaseID }

// SetClock overrides the time source used for row timestamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// PutInterview seeds an interview with the given status.
func (m *MemoryStore) PutInterview(interviewID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interviews[interviewID] = status
}

// PutTestCases replaces the test cases of a question.
func (m *MemoryStore) PutTestCases(questionID string, testCases ...model.TestCase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]model.TestCase, len(testCases))
	copy(cp, testCases)
	for i := range cp {
		cp[i].QuestionID = questionID
	}
	sort.SliceStable(cp, func(i, j int) bool {
		if cp[i].SortOrder != cp[j].SortOrder {
			return cp[i].SortOrder < cp[j].SortOrder
		}
		return cp[i].ID < cp[j].ID
	})
	m.testCases[questionID] = cp
}

func (m *MemoryStore) GetInterviewStatus(_ context.Context, interviewID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.interviews[interviewID]
	if !ok {
		return "", common.ErrNotFound
	}
	return status, nil
}

func (m *MemoryStore) ListByQuestionID(_ context.Context, questionID string) ([]model.TestCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.TestCase, len(m.testCases[questionID]))
	copy(out, m.testCases[questionID])
	return out, nil
}

func (m *MemoryStore) UpsertForDispatch(_ context.Context, sub *model.Submission) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	key := questionKey(sub.InterviewID, sub.QuestionID)
	if id, ok := m.byQuestion[key]; ok {
		existing := m.submissions[id]
		existing.Language = sub.Language
		existing.SourceCode = sub.SourceCode
		existing.Status = model.AggregatePending
		existing.Generation++
		existing.FinalizedAt = nil
		existing.UpdatedAt = now
		cp := *existing
		return &cp, nil
	}
	stored := *sub
	stored.Status = model.AggregatePending
	stored.Generation = 0
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.FinalizedAt = nil
	m.submissions[stored.ID] = &stored
	m.byQuestion[key] = stored.ID
	cp := stored
	return &cp, nil
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (m *MemoryStore) GetByInterviewQuestion(_ context.Context, interviewID, questionID string) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byQuestion[questionKey(interviewID, questionID)]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *m.submissions[id]
	return &cp, nil
}

func (m *MemoryStore) FinalizeAggregate(_ context.Context, submissionID string, generation int, status model.AggregateStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[submissionID]
	if !ok || sub.Generation != generation || sub.Status != model.AggregatePending {
		return false, nil
	}
	now := m.now()
	sub.Status = status
	sub.FinalizedAt = &now
	sub.UpdatedAt = now
	return true, nil
}

func (m *MemoryStore) ReplaceForGeneration(_ context.Context, submissionID string, generation int, rows []model.TaskCorrelation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[submissionID]
	if !ok {
		return common.ErrNotFound
	}
	if sub.Generation != generation {
		return fmt.Errorf("submission %s at generation %d, dispatch was for %d: %w", submissionID, sub.Generation, generation, common.ErrSuperseded)
	}
	for _, row := range rows {
		if key, taken := m.byTaskID[row.TaskID]; taken && key != correlationKey(submissionID, row.TestCaseID) {
			return fmt.Errorf("task id %s already correlated: %w", row.TaskID, common.ErrConflict)
		}
	}

	now := m.now()
	for _, row := range rows {
		key := correlationKey(submissionID, row.TestCaseID)
		if prev, ok := m.correlations[key]; ok {
			if prev.Generation > generation {
				continue
			}
			delete(m.byTaskID, prev.TaskID)
		}
		m.correlations[key] = &model.TaskCorrelation{
			SubmissionID: submissionID,
			TestCaseID:   row.TestCaseID,
			TaskID:       row.TaskID,
			Generation:   generation,
			Status:       model.TaskPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		m.byTaskID[row.TaskID] = key
	}
	return nil
}

func (m *MemoryStore) GetByTaskID(_ context.Context, taskID string) (*model.TaskCorrelation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.byTaskID[taskID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *m.correlations[key]
	return &cp, nil
}

func (m *MemoryStore) ResolveIfPending(_ context.Context, taskID string, generation int, result model.TaskResult) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.byTaskID[taskID]
	if !ok {
		return false, nil
	}
	c := m.correlations[key]
	sub := m.submissions[c.SubmissionID]
	if c.Generation != generation || c.Status != model.TaskPending || sub == nil || sub.Generation != c.Generation {
		return false, nil
	}
	runStatus, output := result.RunStatus, result.ActualOutput
	c.Status = result.Status
	c.RunStatus = &runStatus
	c.ActualOutput = &output
	c.CPUTimeMs = result.CPUTimeMs
	c.MemoryKb = result.MemoryKb
	c.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryStore) ListForGeneration(_ context.Context, submissionID string, generation int) ([]model.TaskCorrelation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TaskCorrelation
	for _, c := range m.correlations {
		if c.SubmissionID == submissionID && c.Generation == generation {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestCaseID < out[j].TestCaseID })
	return out, nil
}

func (m *MemoryStore) DeleteSuperseded(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, c := range m.correlations {
		sub := m.submissions[c.SubmissionID]
		if sub != nil && c.Generation < sub.Generation && c.UpdatedAt.Before(olderThan) {
			delete(m.correlations, key)
			delete(m.byTaskID, c.TaskID)
			n++
		}
	}
	return n, nil
}
