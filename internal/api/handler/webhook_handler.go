package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"recruit_exec/internal/app/runner"
	"recruit_exec/internal/app/service"
	"recruit_exec/internal/common"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxCallbackBody = 4 << 20

type WebhookHandler struct {
	webhookService *service.WebhookService
	logger         *zap.Logger
}

func NewWebhookHandler(ws *service.WebhookService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{webhookService: ws, logger: logger}
}

// RegisterRoutes needs no authentication: the unguessable task id is the callback's credential.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/execution", h.handleExecutionResult)
}

func (h *WebhookHandler) handleExecutionResult(w http.ResponseWriter, r *http.Request) {
	var payload runner.CallbackPayload
	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBody)
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("invalid webhook payload", zap.Error(err))
		common.RespondWithError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	outcome, err := h.webhookService.Reconcile(r.Context(), payload, hintFromQuery(r))
	if err != nil {
		code := common.HTTPStatusFromError(err)
		if code >= http.StatusInternalServerError {
			h.logger.Error("webhook processing failed", zap.String("task_id", payload.TaskUniqueID), zap.Error(err))
		}
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

// hintFromQuery reads the sid/gen pair the dispatcher put on the callback URL. A malformed pair is
// ignored; the hint only refines how an unknown task is answered.
func hintFromQuery(r *http.Request) service.DispatchHint {
	q := r.URL.Query()
	sid := q.Get("sid")
	gen, err := strconv.Atoi(q.Get("gen"))
	if sid == "" || err != nil {
		return service.DispatchHint{}
	}
	return service.DispatchHint{SubmissionID: sid, Generation: gen}
}
