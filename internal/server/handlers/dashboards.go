package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/nrguardian/nrguardian/internal/dashboard"
	apperrors "github.com/nrguardian/nrguardian/internal/errors"
	"github.com/nrguardian/nrguardian/internal/nerdgraph"
)

// generatePayload is the request body for the generate family of endpoints.
type generatePayload struct {
	Template  string `json:"template"`
	AccountID int    `json:"accountId,omitempty"`
	Name      string `json:"name,omitempty"`
}

// deployPayload is the request body for /api/dashboards/deploy.
type deployPayload struct {
	AccountID int                 `json:"accountId,omitempty"`
	Dashboard nerdgraph.Dashboard `json:"dashboard"`
}

// validatePayload is the request body for /api/dashboards/validate.
type validatePayload struct {
	Dashboard nerdgraph.Dashboard `json:"dashboard"`
}

func decodeBody(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return apperrors.NewInvalidInputError("invalid request body: " + err.Error())
	}
	return nil
}

func (h *Handlers) decodeGenerate(r *http.Request) (dashboard.GenerateRequest, error) {
	var payload generatePayload
	if err := decodeBody(r, &payload); err != nil {
		return dashboard.GenerateRequest{}, err
	}

	accountID, err := h.accountFrom(r, payload.AccountID)
	if err != nil {
		return dashboard.GenerateRequest{}, err
	}

	return dashboard.GenerateRequest{
		Template:  payload.Template,
		AccountID: accountID,
		Name:      payload.Name,
	}, nil
}

// GenerateDashboard builds a dashboard from a template without deploying.
func (h *Handlers) GenerateDashboard(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeGenerate(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	generated, err := h.Dashboards.Generate(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusOK, map[string]any{"dashboard": generated})
}

// PreviewDashboard builds a dashboard and returns it together with its
// validation report.
func (h *Handlers) PreviewDashboard(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeGenerate(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	generated, err := h.Dashboards.Generate(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	report := dashboard.Validate(*generated)
	h.respond(w, http.StatusOK, map[string]any{
		"dashboard":  generated,
		"validation": report,
	})
}

// DeployDashboard deploys a caller-supplied dashboard definition.
func (h *Handlers) DeployDashboard(w http.ResponseWriter, r *http.Request) {
	var payload deployPayload
	if err := decodeBody(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}

	accountID, err := h.accountFrom(r, payload.AccountID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ref, err := h.Dashboards.Deploy(r.Context(), accountID, payload.Dashboard)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusCreated, map[string]any{"guid": ref.GUID, "name": ref.Name})
}

// GenerateAndDeploy builds a dashboard from a template and deploys it.
func (h *Handlers) GenerateAndDeploy(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeGenerate(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ref, err := h.Dashboards.GenerateAndDeploy(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respond(w, http.StatusCreated, map[string]any{"guid": ref.GUID, "name": ref.Name})
}

// ValidateDashboard structurally checks a dashboard definition.
func (h *Handlers) ValidateDashboard(w http.ResponseWriter, r *http.Request) {
	var payload validatePayload
	if err := decodeBody(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}

	report := dashboard.Validate(payload.Dashboard)
	h.respond(w, http.StatusOK, report)
}
