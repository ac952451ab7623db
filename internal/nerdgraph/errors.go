package nerdgraph

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ValidationError reports bad input rejected before any network call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "nerdgraph: " + e.Message
}

// TransportError wraps a network-level failure (DNS, connect, TLS, EOF).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("nerdgraph: transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError reports a non-2xx HTTP status from the NerdGraph endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nerdgraph: unexpected status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// RateLimitError signals a 429 response or a GraphQL rate-limit error.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return "nerdgraph: rate limited"
	}
	return "nerdgraph: rate limited: " + e.Message
}

// AuthError signals an UNAUTHENTICATED or UNAUTHORIZED GraphQL error.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "nerdgraph: authentication failed: " + e.Message
}

// GraphQLErrorDetail is one entry of the response-level errors array.
type GraphQLErrorDetail struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Code returns the extensions.code value when present.
func (d GraphQLErrorDetail) Code() string {
	if d.Extensions == nil {
		return ""
	}
	if code, ok := d.Extensions["code"].(string); ok {
		return code
	}
	if code, ok := d.Extensions["errorClass"].(string); ok {
		return code
	}
	return ""
}

// GraphQLError carries the errors array returned alongside a 200 status.
type GraphQLError struct {
	Errors []GraphQLErrorDetail
}

func (e *GraphQLError) Error() string {
	if len(e.Errors) == 0 {
		return "nerdgraph: graphql error"
	}
	messages := make([]string, 0, len(e.Errors))
	for _, detail := range e.Errors {
		messages = append(messages, detail.Message)
	}
	return "nerdgraph: graphql error: " + strings.Join(messages, "; ")
}

// MutationErrorDetail is one entry of a mutation's own errors field,
// distinct from the response-level GraphQL errors array.
type MutationErrorDetail struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// MutationError reports domain-level rejection of an otherwise successful
// mutation (e.g. a dashboard with an invalid widget). Never retried.
type MutationError struct {
	Operation string
	Errors    []MutationErrorDetail
}

func (e *MutationError) Error() string {
	messages := make([]string, 0, len(e.Errors))
	for _, detail := range e.Errors {
		if detail.Type != "" {
			messages = append(messages, detail.Type+": "+detail.Description)
		} else {
			messages = append(messages, detail.Description)
		}
	}
	return fmt.Sprintf("nerdgraph: %s rejected: %s", e.Operation, strings.Join(messages, "; "))
}

// QueryError reports an NRQL query rejected by the backend.
type QueryError struct {
	NRQL    string
	Message string
}

func (e *QueryError) Error() string {
	return "nerdgraph: query failed: " + e.Message
}

// IsRateLimited reports whether err should use the steeper backoff curve.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsRetryable reports whether err is transient. Validation errors, client
// 4xx statuses, auth failures, and mutation-level errors are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if IsRateLimited(err) {
		return true
	}

	var (
		validationErr *ValidationError
		authErr       *AuthError
		mutationErr   *MutationError
		queryErr      *QueryError
		gqlErr        *GraphQLError
		apiErr        *APIError
		transportErr  *TransportError
	)

	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &authErr),
		errors.As(err, &mutationErr),
		errors.As(err, &queryErr):
		return false
	case errors.As(err, &gqlErr):
		// Server-side execution problems (timeouts) are worth another
		// attempt; validation of the document itself is not.
		for _, detail := range gqlErr.Errors {
			if isTransientGraphQLCode(detail) {
				return true
			}
		}
		return false
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return false
		}
		return true
	case errors.As(err, &transportErr):
		return true
	}

	return false
}

func isTransientGraphQLCode(detail GraphQLErrorDetail) bool {
	switch detail.Code() {
	case "TIMEOUT", "INTERNAL_SERVER_ERROR", "SERVER_OVERLOADED":
		return true
	}
	msg := strings.ToLower(detail.Message)
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "temporarily unavailable")
}

// classifyGraphQLErrors promotes well-known error codes to typed errors so
// the retry controller can distinguish them.
func classifyGraphQLErrors(details []GraphQLErrorDetail) error {
	if len(details) == 0 {
		return nil
	}

	for _, detail := range details {
		switch detail.Code() {
		case "UNAUTHENTICATED", "UNAUTHORIZED":
			return &AuthError{Message: detail.Message}
		case "RATE_LIMITED", "TOO_MANY_REQUESTS":
			return &RateLimitError{Message: detail.Message}
		}
		msg := strings.ToLower(detail.Message)
		if strings.Contains(msg, "rate limit") {
			return &RateLimitError{Message: detail.Message}
		}
	}

	return &GraphQLError{Errors: details}
}
