package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nrguardian/nrguardian/internal/nerdgraph"
)

func TestFromNerdGraphClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"validation", &nerdgraph.ValidationError{Message: "bad input"}, "INVALID_INPUT"},
		{"query", &nerdgraph.QueryError{Message: "bad nrql"}, "INVALID_INPUT"},
		{"auth", &nerdgraph.AuthError{Message: "bad key"}, "UNAUTHORIZED"},
		{"rate limit", &nerdgraph.RateLimitError{}, "RATE_LIMITED"},
		{"429", &nerdgraph.APIError{StatusCode: http.StatusTooManyRequests}, "RATE_LIMITED"},
		{"mutation", &nerdgraph.MutationError{Operation: "create"}, "UPSTREAM_ERROR"},
		{"transport", &nerdgraph.TransportError{Err: fmt.Errorf("refused")}, "UPSTREAM_ERROR"},
		{"timeout", context.DeadlineExceeded, "TIMEOUT"},
		{"unknown", fmt.Errorf("surprise"), "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			envelope := FromNerdGraph(tc.err)
			require.Equal(t, tc.code, envelope.Code)
		})
	}
}

func TestHTTPStatusFromCode(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, HTTPStatusFromCode("INVALID_INPUT"))
	require.Equal(t, http.StatusNotFound, HTTPStatusFromCode("NOT_FOUND"))
	require.Equal(t, http.StatusTooManyRequests, HTTPStatusFromCode("RATE_LIMITED"))
	require.Equal(t, http.StatusBadGateway, HTTPStatusFromCode("UPSTREAM_ERROR"))
	require.Equal(t, http.StatusGatewayTimeout, HTTPStatusFromCode("TIMEOUT"))
	require.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode("WHO_KNOWS"))
}

func TestResponderBodyShape(t *testing.T) {
	responder := &Responder{Logger: zap.NewNop()}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	responder.RespondWithError(rec, req, &nerdgraph.ValidationError{Message: "account id is required"})

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.Equal(t, "INVALID_INPUT", body.Code)
	require.NotEmpty(t, body.RequestID)
	require.Empty(t, body.Stack)
}

func TestResponderIncludesStackWhenEnabled(t *testing.T) {
	responder := &Responder{Logger: zap.NewNop(), IncludeStack: true}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	responder.RespondWithError(rec, req, fmt.Errorf("boom"))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Stack)
}
