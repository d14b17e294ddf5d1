package hub

import (
	"context"
	"encoding/json"

	"recruit_exec/internal/domain/model"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// Sink is anything that can take a pushed message without blocking.
// Send reports false when the message was dropped.
type Sink interface {
	Send(msg []byte) bool
}

// Registration ties a sink to the interview it was registered for.
type Registration struct {
	interviewID string
	sink        Sink
}

func (r *Registration) InterviewID() string { return r.interviewID }

// Hub maps each interview to at most one live sink. The newest registration wins.
type Hub struct {
	conns  *xsync.MapOf[string, *Registration]
	logger *zap.Logger
}

func New(logger *zap.Logger) *Hub {
	return &Hub{
		conns:  xsync.NewMapOf[string, *Registration](),
		logger: logger,
	}
}

// Register replaces any previous registration for the interview. The replaced sink is left open;
// its transport ends it.
func (h *Hub) Register(interviewID string, sink Sink) *Registration {
	reg := &Registration{interviewID: interviewID, sink: sink}
	h.conns.Store(interviewID, reg)
	return reg
}

// Unregister removes reg only if it is still the interview's current registration.
func (h *Hub) Unregister(reg *Registration) bool {
	removed := false
	h.conns.Compute(reg.interviewID, func(current *Registration, loaded bool) (*Registration, bool) {
		if loaded && current == reg {
			removed = true
			return nil, true
		}
		return current, !loaded
	})
	return removed
}

// Push delivers the event to the interview's current sink, if any.
func (h *Hub) Push(interviewID string, event model.LiveEvent) bool {
	reg, ok := h.conns.Load(interviewID)
	if !ok {
		return false
	}
	msg, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal live event", zap.String("interview_id", interviewID), zap.Error(err))
		return false
	}
	return reg.sink.Send(msg)
}

// Notify implements the service notifier for a single instance.
func (h *Hub) Notify(_ context.Context, interviewID string, event model.LiveEvent) {
	if !h.Push(interviewID, event) {
		h.logger.Debug("live event not delivered",
			zap.String("interview_id", interviewID),
			zap.String("type", string(event.Type)),
			zap.String("submission_id", event.SubmissionID))
	}
}

func (h *Hub) Connections() int { return h.conns.Size() }
