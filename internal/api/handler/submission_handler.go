package handler

import (
	"encoding/json"
	"net/http"

	"recruit_exec/internal/app/service"
	"recruit_exec/internal/common"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Request bodies are bounded by the source size limit plus room for the JSON envelope.
const maxSubmissionBody = service.MaxSourceBytes*2 + 4096

type SubmissionHandler struct {
	dispatchService *service.DispatchService
	ledgerService   *service.LedgerService
	logger          *zap.Logger
}

func NewSubmissionHandler(ds *service.DispatchService, ls *service.LedgerService, logger *zap.Logger) *SubmissionHandler {
	return &SubmissionHandler{dispatchService: ds, ledgerService: ls, logger: logger}
}

// RegisterRoutes expects the router to be mounted under an authenticated, interview-scoped group.
func (h *SubmissionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/interviews/{interviewID}/questions/{questionID}/submissions", h.submit)
	r.Get("/interviews/{interviewID}/questions/{questionID}/submission", h.status)
}

func (h *SubmissionHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req service.DispatchRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	req.InterviewID = chi.URLParam(r, "interviewID")
	req.QuestionID = chi.URLParam(r, "questionID")

	result, err := h.dispatchService.Dispatch(r.Context(), req)
	if err != nil {
		h.logger.Warn("dispatch failed",
			zap.String("interview_id", req.InterviewID),
			zap.String("question_id", req.QuestionID),
			zap.Error(err))
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusAccepted, result)
}

func (h *SubmissionHandler) status(w http.ResponseWriter, r *http.Request) {
	view, err := h.ledgerService.GetStatus(r.Context(), chi.URLParam(r, "interviewID"), chi.URLParam(r, "questionID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, view)
}
