package model

import "time"

type AggregateStatus string

const (
	AggregatePending AggregateStatus = "pending"
	AggregatePassed  AggregateStatus = "passed"
	AggregateFailed  AggregateStatus = "failed"
)

// Submission is a candidate's current code for one coding question of one interview.
// Generation increases on every resubmission.
type Submission struct {
	ID          string          `json:"id"`
	InterviewID string          `json:"interview_id"`
	QuestionID  string          `json:"question_id"`
	Language    string          `json:"language"`
	SourceCode  string          `json:"source_code"`
	Status      AggregateStatus `json:"status"`
	Generation  int             `json:"generation"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	FinalizedAt *time.Time      `json:"finalized_at,omitempty"`
}

// Aggregate derives the submission verdict from one generation's correlations.
// An empty set is vacuously passed.
func Aggregate(correlations []TaskCorrelation) AggregateStatus {
	verdict := AggregatePassed
	for _, c := range correlations {
		if !c.Status.Resolved() {
			return AggregatePending
		}
		if c.Status != TaskSucceeded {
			verdict = AggregateFailed
		}
	}
	return verdict
}
