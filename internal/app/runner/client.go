package runner

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"recruit_exec/internal/common"
)

const batchPath = "/api/public/request-dsa-code-execution-batch"

// Resource limits applied to every test-case run. They are never taken from request input.
const (
	CPUTimeLimitMs       = 2000
	WallTimeLimitMs      = 5000
	MemoryLimitKb        = 131072
	MaxProcessesThreads  = 60
	MaxFileSizeKb        = 1024
	StackSizeLimitKb     = 65536
	OutputMatcher        = "IgnoreWhitespaceAtStartAndEndForEveryLine"
	maxErrorBodyPreviewB = 512
)

// Entry is one test case of a batch.
type Entry struct {
	Language       string
	SourceCode     string
	Stdin          string
	ExpectedOutput string
	CallbackURL    string
}

type runConfig struct {
	CustomMatcher            string `json:"customMatcherToUseForExpectedOutput"`
	ExpectedOutput           string `json:"expectedOutputAsBase64UrlEncoded"`
	Stdin                    string `json:"stdinStringAsBase64UrlEncoded"`
	CallbackURL              string `json:"callbackUrlOnExecutionCompletion"`
	PerProcessCPUTimeLimit   bool   `json:"shouldEnablePerProcessAndThreadCpuTimeLimit"`
	PerProcessMemoryLimit    bool   `json:"shouldEnablePerProcessAndThreadMemoryLimit"`
	AllowInternetAccess      bool   `json:"shouldAllowInternetAccess"`
	MaxFileSizeKb            int    `json:"maxFileSizeInKilobytesFilesCreatedOrModified"`
	StackSizeLimitKb         int    `json:"stackSizeLimitInKilobytes"`
	CPUTimeLimitMs           int    `json:"cpuTimeLimitInMilliseconds"`
	WallTimeLimitMs          int    `json:"wallTimeLimitInMilliseconds"`
	MemoryLimitKb            int    `json:"memoryLimitInKilobyte"`
	MaxProcessesAndOrThreads int    `json:"maxProcessesAndOrThreads"`
}

type batchEntry struct {
	Language   string    `json:"language"`
	RunConfig  runConfig `json:"runConfig"`
	SourceCode string    `json:"sourceCodeAsBase64UrlEncoded"`
}

type batchData struct {
	Entries []batchEntry `json:"entries"`
}

type batchItem struct {
	Data batchData `json:"data"`
}

type batchRequest struct {
	Data []batchItem `json:"data"`
}

type batchResponse []struct {
	Output struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"errorMessage,omitempty"`
		Data         struct {
			TaskIDs []string `json:"taskIds"`
		} `json:"data"`
	} `json:"output"`
}

// Client submits batches to the remote code runner.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SubmitBatch sends every entry in one request and returns the runner's task ids in entry order.
// Any failure, including a short id list, is reported as common.ErrRunnerUnavailable.
func (c *Client) SubmitBatch(ctx context.Context, entries []Entry) ([]string, error) {
	var batch batchData
	for _, e := range entries {
		batch.Entries = append(batch.Entries, batchEntry{
			Language:   e.Language,
			SourceCode: Encode(e.SourceCode),
			RunConfig: runConfig{
				CustomMatcher:            OutputMatcher,
				ExpectedOutput:           Encode(e.ExpectedOutput),
				Stdin:                    Encode(e.Stdin),
				CallbackURL:              e.CallbackURL,
				MaxFileSizeKb:            MaxFileSizeKb,
				StackSizeLimitKb:         StackSizeLimitKb,
				CPUTimeLimitMs:           CPUTimeLimitMs,
				WallTimeLimitMs:          WallTimeLimitMs,
				MemoryLimitKb:            MemoryLimitKb,
				MaxProcessesAndOrThreads: MaxProcessesThreads,
			},
		})
	}

	body, err := json.Marshal(batchRequest{Data: []batchItem{{Data: batch}}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal runner batch: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+batchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build runner request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("FERMION-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("runner request failed: %v: %w", err, common.ErrRunnerUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyPreviewB))
		return nil, fmt.Errorf("runner responded %d: %s: %w", resp.StatusCode, bytes.TrimSpace(preview), common.ErrRunnerUnavailable)
	}

	var out batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("malformed runner response: %v: %w", err, common.ErrRunnerUnavailable)
	}
	if len(out) == 0 || out[0].Output.Status != "ok" {
		msg := "empty response"
		if len(out) > 0 {
			msg = out[0].Output.Status + " " + out[0].Output.ErrorMessage
		}
		return nil, fmt.Errorf("runner rejected batch: %s: %w", strings.TrimSpace(msg), common.ErrRunnerUnavailable)
	}
	taskIDs := out[0].Output.Data.TaskIDs
	if len(taskIDs) < len(entries) {
		return nil, fmt.Errorf("runner returned %d task ids for %d entries: %w", len(taskIDs), len(entries), common.ErrRunnerUnavailable)
	}
	return taskIDs[:len(entries)], nil
}

// Encode is the runner's text encoding: URL-safe base64 without padding.
func Encode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

// Decode accepts both padded and unpadded URL-safe base64.
func Decode(s string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
