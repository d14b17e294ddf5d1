package model

import "time"

type LiveEventType string

const (
	EventConnected LiveEventType = "connected"
	EventProgress  LiveEventType = "progress"
	EventPassed    LiveEventType = "passed"
	EventFailed    LiveEventType = "failed"
)

// LiveEvent is the server-to-client message on an interview's live channel.
type LiveEvent struct {
	Type           LiveEventType  `json:"type"`
	InterviewID    string         `json:"interview_id"`
	QuestionID     string         `json:"question_id,omitempty"`
	SubmissionID   string         `json:"submission_id,omitempty"`
	Generation     int            `json:"generation"`
	TestCaseID     string         `json:"test_case_id,omitempty"`
	TestCaseStatus TaskStatus     `json:"test_case_status,omitempty"`
	Resolved       int            `json:"resolved"`
	Total          int            `json:"total"`
	Failure        *FailureDetail `json:"failure,omitempty"`
	At             time.Time      `json:"at"`
}

func (e LiveEvent) Terminal() bool {
	return e.Type == EventPassed || e.Type == EventFailed
}

// FailureDetail is the candidate feedback for the first failing test case.
type FailureDetail struct {
	TestCaseID     string     `json:"test_case_id"`
	Input          string     `json:"input"`
	ExpectedOutput string     `json:"expected_output"`
	ActualOutput   string     `json:"actual_output"`
	Status         TaskStatus `json:"status"`
}
