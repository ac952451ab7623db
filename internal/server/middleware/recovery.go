package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// panicResponse is the body written when a handler panics. It matches the
// API error envelope without importing the errors package, which would
// create an import cycle.
type panicResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	Stack     string `json:"stack,omitempty"`
}

// Recovery returns a middleware that converts panics into 500 responses.
// Stack traces are included in the body only when includeStack is set.
func Recovery(logger *zap.Logger, includeStack bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					stack := string(debug.Stack())
					requestID := GetRequestID(r.Context())

					if logger != nil {
						logger.Error("panic recovered",
							zap.Any("panic", rec),
							zap.String("request_id", requestID),
							zap.String("stack", stack))
					}

					response := panicResponse{
						Success:   false,
						Error:     fmt.Sprintf("panic: %v", rec),
						Code:      "INTERNAL_ERROR",
						RequestID: requestID,
					}
					if includeStack {
						response.Stack = stack
					}

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(response)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
