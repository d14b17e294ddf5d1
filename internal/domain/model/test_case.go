package model

import "strings"

// MaxStoredOutput caps the program output kept on a correlation row and shown in failure details.
const MaxStoredOutput = 8 << 10

// TestCase belongs to a coding question; it is immutable from the pipeline's point of view.
type TestCase struct {
	ID             string `json:"id"`
	QuestionID     string `json:"question_id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	SortOrder      int    `json:"sort_order"`
}

const (
	InterviewIncomplete = "incomplete"
	InterviewCompleted  = "completed"
)

// TrimOutput drops trailing whitespace on every line and trailing blank lines, the same
// normalisation the runner's matcher applies, then truncates to MaxStoredOutput bytes.
func TrimOutput(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	out := strings.TrimRight(strings.Join(lines, "\n"), "\n")
	if len(out) > MaxStoredOutput {
		out = strings.ToValidUTF8(out[:MaxStoredOutput], "") + "…"
	}
	return out
}
