package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"recruit_exec/internal/app/hub"
	"recruit_exec/internal/domain/model"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type LiveHandler struct {
	hub        *hub.Hub
	sendBuffer int
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

func NewLiveHandler(h *hub.Hub, sendBuffer int, logger *zap.Logger) *LiveHandler {
	return &LiveHandler{
		hub:        h,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Candidates connect from the assessment frontend's origin; the token is the gate.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *LiveHandler) RegisterRoutes(r chi.Router) {
	r.Get("/interviews/{interviewID}/live", h.connect)
}

func (h *LiveHandler) connect(w http.ResponseWriter, r *http.Request) {
	interviewID := chi.URLParam(r, "interviewID")
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("interview_id", interviewID), zap.Error(err))
		return
	}

	client := hub.NewClient(conn, h.sendBuffer, h.logger.With(zap.String("interview_id", interviewID)))
	reg := h.hub.Register(interviewID, client)
	h.logger.Info("live connection opened", zap.String("interview_id", interviewID), zap.String("remote_addr", conn.RemoteAddr().String()))

	if hello, err := json.Marshal(model.LiveEvent{Type: model.EventConnected, InterviewID: interviewID, At: time.Now()}); err == nil {
		client.Send(hello)
	}

	client.Serve(r.Context())
	h.hub.Unregister(reg)
	h.logger.Info("live connection closed", zap.String("interview_id", interviewID))
}
