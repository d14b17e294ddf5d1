package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"recruit_exec/internal/app/runner"
	"recruit_exec/internal/app/service"
	"recruit_exec/internal/domain/model"
	"recruit_exec/internal/domain/repository"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRunner struct {
	mu      sync.Mutex
	next    int
	batches [][]runner.Entry
	err     error
	// onSubmit runs once, after task ids are assigned and before they are returned.
	onSubmit func(taskIDs []string)
}

func (f *fakeRunner) SubmitBatch(_ context.Context, entries []runner.Entry) ([]string, error) {
	f.mu.Lock()
	f.batches = append(f.batches, entries)
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return nil, err
	}
	ids := make([]string, len(entries))
	for i := range entries {
		f.next++
		ids[i] = fmt.Sprintf("task-%d", f.next)
	}
	hook := f.onSubmit
	f.onSubmit = nil
	f.mu.Unlock()

	if hook != nil {
		hook(ids)
	}
	return ids, nil
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.LiveEvent
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, event model.LiveEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) terminal() []model.LiveEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []model.LiveEvent
	for _, e := range n.events {
		if e.Terminal() {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

const (
	interviewID = "iv-1"
	questionID  = "q-1"
)

type harness struct {
	store    *repository.MemoryStore
	runner   *fakeRunner
	notifier *recordingNotifier
	dispatch *service.DispatchService
	webhook  *service.WebhookService
	ledger   *service.LedgerService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := repository.NewMemoryStore()
	store.PutInterview(interviewID, model.InterviewIncomplete)
	store.PutTestCases(questionID,
		model.TestCase{ID: "tc-1", Input: "1 2", ExpectedOutput: "3", SortOrder: 1},
		model.TestCase{ID: "tc-2", Input: "2 2", ExpectedOutput: "4", SortOrder: 2},
		model.TestCase{ID: "tc-3", Input: "5 5", ExpectedOutput: "10", SortOrder: 3},
	)

	h := &harness{store: store, runner: &fakeRunner{}, notifier: &recordingNotifier{}}
	logger := zap.NewNop()
	h.dispatch = service.NewDispatchService(store, store, store, store, h.runner, h.notifier, "https://exec.example.com", logger)
	h.webhook = service.NewWebhookService(store, store, store, h.notifier, logger)
	h.ledger = service.NewLedgerService(store, store, store)
	return h
}

func (h *harness) submit(t *testing.T, source string) *service.DispatchResult {
	t.Helper()
	res, err := h.dispatch.Dispatch(context.Background(), service.DispatchRequest{
		InterviewID: interviewID,
		QuestionID:  questionID,
		Language:    "python",
		SourceCode:  source,
	})
	require.NoError(t, err)
	return res
}

func (h *harness) deliver(t *testing.T, taskID, runStatus, stdout string) service.Outcome {
	t.Helper()
	outcome, err := h.webhook.Reconcile(context.Background(), callback(taskID, runStatus, stdout), service.DispatchHint{})
	require.NoError(t, err)
	return outcome
}

func (h *harness) status(t *testing.T) *service.SubmissionStatusView {
	t.Helper()
	view, err := h.ledger.GetStatus(context.Background(), interviewID, questionID)
	require.NoError(t, err)
	return view
}

func callback(taskID, runStatus, stdout string) runner.CallbackPayload {
	return runner.CallbackPayload{
		TaskUniqueID: taskID,
		RunResult: runner.RunResult{
			RunStatus: runStatus,
			ProgramRunData: &runner.ProgramRunData{
				StdoutBase64URLEnc: runner.Encode(stdout),
				CPUTimeUsedMs:      10,
				MemoryUsedKb:       1024,
			},
		},
	}
}
