package model

import "time"

type TaskStatus string

const (
	TaskPending        TaskStatus = "pending"
	TaskSucceeded      TaskStatus = "succeeded"
	TaskFailedMismatch TaskStatus = "failed-mismatch"
	TaskFailedRuntime  TaskStatus = "failed-runtime"
	TaskFailedTimeout  TaskStatus = "failed-timeout"
)

func (s TaskStatus) Resolved() bool { return s != TaskPending && s != "" }

// TaskCorrelation joins an external runner task to one test case of one submission generation.
type TaskCorrelation struct {
	SubmissionID string     `json:"submission_id"`
	TestCaseID   string     `json:"test_case_id"`
	TaskID       string     `json:"-"` // bearer credential for the callback, never exposed
	Generation   int        `json:"generation"`
	Status       TaskStatus `json:"status"`
	RunStatus    *string    `json:"run_status,omitempty"`
	ActualOutput *string    `json:"actual_output,omitempty"`
	CPUTimeMs    *int       `json:"cpu_time_ms,omitempty"`
	MemoryKb     *int       `json:"memory_kb,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TaskResult is what a valid callback writes onto a pending correlation.
type TaskResult struct {
	Status       TaskStatus
	RunStatus    string
	ActualOutput string
	CPUTimeMs    *int
	MemoryKb     *int
}
