package runner

import (
	"strings"

	"recruit_exec/internal/domain/model"
)

// CallbackPayload is the body the runner posts to the completion callback URL.
type CallbackPayload struct {
	TaskUniqueID string    `json:"taskUniqueId"`
	RunResult    RunResult `json:"runResult"`
}

type RunResult struct {
	RunStatus                  string          `json:"runStatus"`
	ProgramRunData             *ProgramRunData `json:"programRunData,omitempty"`
	CompilerOutputBase64URLEnc string          `json:"compilerOutputAfterCompilationBase64UrlEncoded,omitempty"`
}

type ProgramRunData struct {
	StdoutBase64URLEnc string `json:"stdoutBase64UrlEncoded"`
	StderrBase64URLEnc string `json:"stderrBase64UrlEncoded"`
	CPUTimeUsedMs      int    `json:"cpuTimeUsedInMilliseconds"`
	WallTimeUsedMs     int    `json:"wallTimeUsedInMilliseconds"`
	MemoryUsedKb       int    `json:"memoryUsedInKilobyte"`
}

// Classify maps a runner run status onto a test-case status. Unknown values count as runtime failures.
func Classify(runStatus string) model.TaskStatus {
	switch strings.ToLower(strings.TrimSpace(runStatus)) {
	case "successful", "accepted":
		return model.TaskSucceeded
	case "wrong-answer":
		return model.TaskFailedMismatch
	case "time-limit-exceeded", "wall-time-limit-exceeded":
		return model.TaskFailedTimeout
	default:
		return model.TaskFailedRuntime
	}
}

// Result converts a callback into the stored result. Undecodable output is kept verbatim.
func (p CallbackPayload) Result() model.TaskResult {
	res := model.TaskResult{
		Status:    Classify(p.RunResult.RunStatus),
		RunStatus: p.RunResult.RunStatus,
	}
	if data := p.RunResult.ProgramRunData; data != nil {
		res.ActualOutput = decodeOrRaw(data.StdoutBase64URLEnc)
		if res.ActualOutput == "" && data.StderrBase64URLEnc != "" && res.Status == model.TaskFailedRuntime {
			res.ActualOutput = decodeOrRaw(data.StderrBase64URLEnc)
		}
		cpu, mem := data.CPUTimeUsedMs, data.MemoryUsedKb
		res.CPUTimeMs = &cpu
		res.MemoryKb = &mem
	}
	if res.ActualOutput == "" && p.RunResult.CompilerOutputBase64URLEnc != "" {
		res.ActualOutput = decodeOrRaw(p.RunResult.CompilerOutputBase64URLEnc)
	}
	res.ActualOutput = model.TrimOutput(res.ActualOutput)
	return res
}

func decodeOrRaw(s string) string {
	if out, err := Decode(s); err == nil {
		return out
	}
	return s
}
