package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"recruit_exec/internal/api"
	"recruit_exec/internal/app/hub"
	"recruit_exec/internal/app/runner"
	"recruit_exec/internal/app/service"
	"recruit_exec/internal/common/security"
	"recruit_exec/internal/domain/model"
	"recruit_exec/internal/domain/repository"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRunnerServer answers batch requests with sequential task ids.
func fakeRunnerServer(t *testing.T) *httptest.Server {
	var mu sync.Mutex
	next := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Data []struct {
				Data struct {
					Entries []json.RawMessage `json:"entries"`
				} `json:"data"`
			} `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Data) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		ids := make([]string, len(req.Data[0].Data.Entries))
		for i := range ids {
			next++
			ids[i] = fmt.Sprintf("task-%d", next)
		}
		mu.Unlock()
		resp := []map[string]any{{"output": map[string]any{"status": "ok", "data": map[string]any{"taskIds": ids}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testServer struct {
	*httptest.Server
	hub *hub.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	security.InitJWT([]byte("test-secret"), time.Hour)

	store := repository.NewMemoryStore()
	store.PutInterview("iv-1", model.InterviewIncomplete)
	store.PutInterview("iv-2", model.InterviewIncomplete)
	store.PutTestCases("q-1",
		model.TestCase{ID: "tc-1", Input: "1", ExpectedOutput: "1", SortOrder: 1},
		model.TestCase{ID: "tc-2", Input: "2", ExpectedOutput: "2", SortOrder: 2},
	)

	logger := zap.NewNop()
	liveHub := hub.New(logger)
	client := runner.NewClient(fakeRunnerServer(t).URL, "key", time.Second)
	svcs := api.Services{
		Dispatch: service.NewDispatchService(store, store, store, store, client, liveHub, "http://callback.local", logger),
		Webhook:  service.NewWebhookService(store, store, store, liveHub, logger),
		Ledger:   service.NewLedgerService(store, store, store),
		Hub:      liveHub,
	}
	srv := httptest.NewServer(api.NewRouter(svcs, 8, logger))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, hub: liveHub}
}

func candidateToken(t *testing.T, interviewID string) string {
	t.Helper()
	token, err := security.GenerateCandidateToken(interviewID)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func callbackBody(taskID, status, stdout string) runner.CallbackPayload {
	return runner.CallbackPayload{
		TaskUniqueID: taskID,
		RunResult: runner.RunResult{
			RunStatus:      status,
			ProgramRunData: &runner.ProgramRunData{StdoutBase64URLEnc: runner.Encode(stdout)},
		},
	}
}

const submitPath = "/api/v1/interviews/iv-1/questions/q-1/submissions"

func TestSubmitRequiresToken(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.do(t, http.MethodPost, submitPath, "", map[string]string{"language": "python", "source_code": "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSubmitRejectsForeignInterview(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.do(t, http.MethodPost, submitPath, candidateToken(t, "iv-2"), map[string]string{"language": "python", "source_code": "x"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSubmitRejectsUnsupportedLanguage(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, http.MethodPost, submitPath, candidateToken(t, "iv-1"), map[string]string{"language": "brainfuck", "source_code": "+"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "unsupported language")
}

func TestSubmitCallbackAndPollFlow(t *testing.T) {
	s := newTestServer(t)
	token := candidateToken(t, "iv-1")

	resp, body := s.do(t, http.MethodPost, submitPath, token, map[string]string{"language": "python", "source_code": "print(input())"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "executing", body["status"])
	assert.EqualValues(t, 2, body["task_count"])

	for _, id := range []string{"task-2", "task-1"} {
		resp, body = s.do(t, http.MethodPost, "/api/v1/webhook/execution", "", callbackBody(id, "successful", "ok"))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, "finalized", body["outcome"])

	// redelivery is acknowledged without effect
	resp, body = s.do(t, http.MethodPost, "/api/v1/webhook/execution", "", callbackBody("task-1", "wrong-answer", "no"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "duplicate", body["outcome"])

	resp, body = s.do(t, http.MethodGet, "/api/v1/interviews/iv-1/questions/q-1/submission", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "passed", body["aggregate_status"])
	perTestCase := body["per_test_case"].([]any)
	require.Len(t, perTestCase, 2)
	assert.Equal(t, "tc-1", perTestCase[0].(map[string]any)["test_case_id"])
	assert.Equal(t, "succeeded", perTestCase[0].(map[string]any)["status"])
}

func TestWebhookRejectsUndecodableBody(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Post(s.URL+"/api/v1/webhook/execution", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookUnknownTaskIsAcknowledged(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, http.MethodPost, "/api/v1/webhook/execution?sid=nope&gen=0", "", callbackBody("forged", "successful", ""))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "unknown", body["outcome"])
}

func TestLiveConnectionReceivesEvents(t *testing.T) {
	s := newTestServer(t)
	token := candidateToken(t, "iv-1")

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/v1/interviews/iv-1/live?jwt=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var hello model.LiveEvent
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, model.EventConnected, hello.Type)
	assert.Equal(t, 1, s.hub.Connections())

	resp, _ := s.do(t, http.MethodPost, submitPath, token, map[string]string{"language": "python", "source_code": "print(input())"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	s.do(t, http.MethodPost, "/api/v1/webhook/execution", "", callbackBody("task-1", "wrong-answer", "7"))

	var progress model.LiveEvent
	require.NoError(t, conn.ReadJSON(&progress))
	assert.Equal(t, model.EventProgress, progress.Type)
	assert.Equal(t, model.TaskFailedMismatch, progress.TestCaseStatus)
	assert.Equal(t, 1, progress.Resolved)
	assert.Equal(t, 2, progress.Total)
}

func TestLiveConnectionRequiresOwnership(t *testing.T) {
	s := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/v1/interviews/iv-1/live?jwt=" + candidateToken(t, "iv-2")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
