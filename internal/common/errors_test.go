package common_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"recruit_exec/internal/common"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusFromError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"wrapped not found", fmt.Errorf("submission: %w", common.ErrNotFound), http.StatusNotFound},
		{"bad request", common.ErrBadRequest, http.StatusBadRequest},
		{"forbidden", common.ErrForbidden, http.StatusForbidden},
		{"runner unavailable", common.ErrRunnerUnavailable, http.StatusServiceUnavailable},
		{"dispatch in flight", common.ErrDispatchInFlight, http.StatusServiceUnavailable},
		{"superseded", common.ErrSuperseded, http.StatusConflict},
		{"unique violation", &pgconn.PgError{Code: "23505"}, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, common.HTTPStatusFromError(tc.err))
		})
	}
}

func TestRespondWithDomainErrorHidesInternalText(t *testing.T) {
	rec := httptest.NewRecorder()
	common.RespondWithDomainError(rec, errors.New("pq: connection refused to 10.0.0.3"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")

	rec = httptest.NewRecorder()
	common.RespondWithDomainError(rec, common.ErrRunnerUnavailable)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"retryable":true`)
}
