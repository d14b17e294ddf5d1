package api

import (
	"net/http"
	"time"

	"recruit_exec/internal/api/handler"
	"recruit_exec/internal/api/middleware"
	"recruit_exec/internal/app/hub"
	"recruit_exec/internal/app/service"
	"recruit_exec/internal/common/security"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"go.uber.org/zap"
)

type Services struct {
	Dispatch *service.DispatchService
	Webhook  *service.WebhookService
	Ledger   *service.LedgerService
	Hub      *hub.Hub
}

func NewRouter(svcs Services, hubSendBuffer int, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)

	// Browsers cannot set headers on websocket upgrades, so the token may also come as ?jwt=.
	r.Use(jwtauth.Verify(security.TokenAuth, jwtauth.TokenFromHeader, jwtauth.TokenFromQuery))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(v1 chi.Router) {
		// Runner callbacks (public; the task id is the credential)
		webhookHandler := handler.NewWebhookHandler(svcs.Webhook, logger)
		v1.Route("/webhook", func(wh chi.Router) {
			wh.Use(chiMiddleware.Timeout(30 * time.Second))
			webhookHandler.RegisterRoutes(wh)
		})

		// Candidate routes (authenticated, scoped to the token's interview)
		v1.Group(func(candidate chi.Router) {
			candidate.Use(middleware.Authenticator)
			candidate.Use(middleware.RequireInterviewOwner)

			submissionHandler := handler.NewSubmissionHandler(svcs.Dispatch, svcs.Ledger, logger)
			candidate.Group(func(api chi.Router) {
				api.Use(chiMiddleware.Timeout(60 * time.Second))
				submissionHandler.RegisterRoutes(api)
			})

			// Long-lived; no request timeout.
			liveHandler := handler.NewLiveHandler(svcs.Hub, hubSendBuffer, logger)
			liveHandler.RegisterRoutes(candidate)
		})
	})

	return r
}
