// Package handlers implements the dashboard API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nrguardian/nrguardian/internal/dashboard"
	apperrors "github.com/nrguardian/nrguardian/internal/errors"
	"github.com/nrguardian/nrguardian/internal/schema"
	"github.com/nrguardian/nrguardian/internal/templates"
)

// Handlers carries the services the endpoints operate on. AccountID is the
// default account used when a request does not name one.
type Handlers struct {
	Dashboards *dashboard.Service
	Schema     *schema.Service
	AccountID  int
	Version    string
	Responder  *apperrors.Responder
}

// successResponse is the standard envelope for successful requests.
type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

func (h *Handlers) respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successResponse{Success: true, Data: data})
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.Responder.RespondWithError(w, r, err)
}

// accountFrom resolves the account for a request: explicit accountId query
// parameter or body value first, configured default otherwise.
func (h *Handlers) accountFrom(r *http.Request, bodyAccount int) (int, error) {
	if bodyAccount > 0 {
		return bodyAccount, nil
	}
	if raw := r.URL.Query().Get("accountId"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return 0, apperrors.NewInvalidInputError("accountId must be a positive integer")
		}
		return parsed, nil
	}
	if h.AccountID > 0 {
		return h.AccountID, nil
	}
	return 0, apperrors.NewInvalidInputError("no account id given and none configured")
}

// healthData is the /health payload.
type healthData struct {
	Status    string `json:"status"`
	Version   string `json:"version,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, healthData{
		Status:    "ok",
		Version:   h.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// templateSummary is one catalog entry in the /api/templates listing.
type templateSummary struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Widgets     int    `json:"widgets"`
}

// ListTemplates lists the embedded dashboard templates.
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	all, err := templates.LoadAll()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	summaries := make([]templateSummary, 0, len(all))
	for _, template := range all {
		widgets := 0
		for _, page := range template.Dashboard.Pages {
			widgets += len(page.Widgets)
		}
		summaries = append(summaries, templateSummary{
			Name:        template.Name,
			DisplayName: template.DisplayName,
			Description: template.Description,
			Widgets:     widgets,
		})
	}

	h.respond(w, http.StatusOK, summaries)
}

// DiscoverMetrics lists the event types reporting to the account.
func (h *Handlers) DiscoverMetrics(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.accountFrom(r, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	eventTypes, err := h.Schema.DiscoverEventTypes(r.Context(), accountID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, map[string]any{"eventTypes": eventTypes})
}

// SearchMetrics finds attributes matching the search term.
func (h *Handlers) SearchMetrics(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.accountFrom(r, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	term := chi.URLParam(r, "term")
	matches, err := h.Schema.FindAttribute(r.Context(), accountID, term, r.URL.Query()["eventType"])
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, map[string]any{"matches": matches})
}

// MetricMetadata describes the attribute keyset of one event type.
func (h *Handlers) MetricMetadata(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.accountFrom(r, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	described, err := h.Schema.DescribeEventType(r.Context(), accountID, chi.URLParam(r, "metricName"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, described)
}
