package middleware

import (
	"context"
	"net/http"
	"strings"

	"recruit_exec/internal/common"
	"recruit_exec/internal/common/security"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
)

type contextKey string

const (
	InterviewIDCtxKey contextKey = "interviewID"
	RoleCtxKey        contextKey = "role"
)

// Authenticator requires a verified candidate token and stores its interview id in the context.
func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())

		if err != nil {
			if strings.Contains(err.Error(), "token not found") || token == nil {
				common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
			} else {
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token: "+err.Error())
			}
			return
		}
		if token == nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		interviewID, err := security.GetInterviewIDFromClaims(claims)
		if err != nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims: "+err.Error())
			return
		}
		role, err := security.GetRoleFromClaims(claims)
		if err != nil || role != security.RoleCandidate {
			common.RespondWithError(w, http.StatusForbidden, "Candidate access required")
			return
		}

		ctx := context.WithValue(r.Context(), InterviewIDCtxKey, interviewID)
		ctx = context.WithValue(ctx, RoleCtxKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireInterviewOwner rejects requests whose {interviewID} path parameter is not the token's interview.
func RequireInterviewOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owned, ok := GetInterviewIDFromContext(r.Context())
		if !ok || owned != chi.URLParam(r, "interviewID") {
			common.RespondWithError(w, http.StatusForbidden, "Token does not grant access to this interview")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetInterviewIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(InterviewIDCtxKey).(string)
	return id, ok
}
