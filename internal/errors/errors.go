// Package errors maps application and upstream failures onto gofulmen
// error envelopes and renders them as HTTP responses.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nrguardian/nrguardian/internal/nerdgraph"
	"github.com/nrguardian/nrguardian/internal/server/middleware"
)

// User errors (400-level).

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("INVALID_INPUT", message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("NOT_FOUND", message)
}

func NewUnauthorizedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("UNAUTHORIZED", message)
}

func NewValidationError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("VALIDATION_FAILED", message)
}

func NewRateLimitedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("RATE_LIMITED", message)
}

// Server errors (500-level).

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("INTERNAL_ERROR", message)
}

func NewUpstreamError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("UPSTREAM_ERROR", message)
}

func NewTimeoutError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("TIMEOUT", message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("CONFIG_INVALID", message)
}

// FromNerdGraph classifies a NerdGraph client error into an envelope code.
func FromNerdGraph(err error) *errors.ErrorEnvelope {
	if err == nil {
		return nil
	}

	var (
		validationErr *nerdgraph.ValidationError
		authErr       *nerdgraph.AuthError
		queryErr      *nerdgraph.QueryError
		mutationErr   *nerdgraph.MutationError
	)

	switch {
	case stderrors.As(err, &validationErr):
		return NewInvalidInputError(err.Error())
	case stderrors.As(err, &queryErr):
		return NewInvalidInputError(err.Error())
	case stderrors.As(err, &authErr):
		return NewUnauthorizedError(err.Error())
	case nerdgraph.IsRateLimited(err):
		return NewRateLimitedError(err.Error())
	case stderrors.As(err, &mutationErr):
		return withWrappedError(NewUpstreamError("NerdGraph mutation rejected"), err)
	case stderrors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError(err.Error())
	}

	var transportErr *nerdgraph.TransportError
	var apiErr *nerdgraph.APIError
	var gqlErr *nerdgraph.GraphQLError
	if stderrors.As(err, &transportErr) || stderrors.As(err, &apiErr) || stderrors.As(err, &gqlErr) {
		return withWrappedError(NewUpstreamError("NerdGraph request failed"), err)
	}

	return withWrappedError(NewInternalError("unexpected error"), err)
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope("INTERNAL_ERROR", "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		return envelope
	}

	return FromNerdGraph(err)
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	if envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}

	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	return envelope.WithCorrelationID(correlationID)
}

// HTTPStatusFromEnvelope resolves the HTTP status code corresponding to an error envelope.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// HTTPStatusFromCode resolves the HTTP status code corresponding to an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case "INVALID_INPUT", "VALIDATION_FAILED":
		return http.StatusBadRequest
	case "NOT_FOUND":
		return http.StatusNotFound
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	case "METHOD_NOT_ALLOWED":
		return http.StatusMethodNotAllowed
	case "RATE_LIMITED":
		return http.StatusTooManyRequests
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	case "UPSTREAM_ERROR":
		return http.StatusBadGateway
	case "SERVICE_UNAVAILABLE":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}

	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}

// HTTPErrorResponse is the JSON body written for failed API requests.
type HTTPErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	Stack     string `json:"stack,omitempty"`
}

// Responder writes error responses for the REST API. Stack traces are only
// included when IncludeStack is set, which production configs leave off.
type Responder struct {
	Logger       *zap.Logger
	IncludeStack bool
}

// RespondWithError normalizes the supplied error and writes a JSON response.
func (rp *Responder) RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	rp.RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope finalizes the provided envelope, logs it, and writes the response.
func (rp *Responder) RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}

	var ctx context.Context
	if r != nil {
		ctx = r.Context()
	}
	envelope = EnsureCorrelationID(envelope, ctx)

	statusCode := HTTPStatusFromEnvelope(envelope)

	response := HTTPErrorResponse{
		Success:   false,
		Error:     envelope.Message,
		Code:      envelope.Code,
		RequestID: envelope.CorrelationID,
	}
	if rp.IncludeStack {
		response.Stack = string(debug.Stack())
	}

	rp.logHTTPError(envelope, statusCode)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

func (rp *Responder) logHTTPError(envelope *errors.ErrorEnvelope, statusCode int) {
	if rp.Logger == nil || envelope == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", statusCode),
	}

	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("request_id", envelope.CorrelationID))
	}

	if statusCode >= http.StatusInternalServerError {
		rp.Logger.Error(envelope.Message, fields...)
		return
	}
	rp.Logger.Warn(envelope.Message, fields...)
}
