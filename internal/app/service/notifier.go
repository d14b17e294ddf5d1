package service

import (
	"context"

	"recruit_exec/internal/app/runner"
	"recruit_exec/internal/domain/model"
)

// Notifier delivers live events to whatever connection an interview currently has.
// Delivery is best effort and must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, interviewID string, event model.LiveEvent)
}

// Runner is the part of the remote code runner the dispatcher depends on.
type Runner interface {
	SubmitBatch(ctx context.Context, entries []runner.Entry) ([]string, error)
}
