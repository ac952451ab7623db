// Package dashboard builds, validates, and deploys New Relic dashboards.
package dashboard

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nrguardian/nrguardian/internal/nerdgraph"
	"github.com/nrguardian/nrguardian/internal/templates"
)

// API is the subset of the NerdGraph client the dashboard service needs.
type API interface {
	RunNRQL(ctx context.Context, accountID int, nrql string) (*nerdgraph.NRQLResult, error)
	GetDashboard(ctx context.Context, guid string) (*nerdgraph.Dashboard, error)
	CreateDashboard(ctx context.Context, accountID int, dashboard nerdgraph.Dashboard) (*nerdgraph.DashboardRef, error)
	UpdateDashboard(ctx context.Context, guid string, dashboard nerdgraph.Dashboard) (*nerdgraph.DashboardRef, error)
	DeleteDashboard(ctx context.Context, guid string) error
	SearchEntities(ctx context.Context, query string, limit int) ([]nerdgraph.Entity, error)
}

// Service wires dashboard operations to the NerdGraph API.
type Service struct {
	api    API
	logger *zap.Logger
}

// NewService builds a dashboard service.
func NewService(api API, logger *zap.Logger) (*Service, error) {
	if api == nil {
		return nil, fmt.Errorf("nerdgraph api is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{api: api, logger: logger}, nil
}

// GenerateRequest describes a dashboard to build from a template.
type GenerateRequest struct {
	Template  string `json:"template"`
	AccountID int    `json:"accountId"`
	Name      string `json:"name,omitempty"`
}

// Generate instantiates a template dashboard for an account without
// deploying it.
func (s *Service) Generate(req GenerateRequest) (*nerdgraph.Dashboard, error) {
	if req.AccountID <= 0 {
		return nil, &nerdgraph.ValidationError{Message: "account id is required"}
	}
	if strings.TrimSpace(req.Template) == "" {
		return nil, &nerdgraph.ValidationError{Message: "template name is required"}
	}

	template, err := templates.Get(req.Template)
	if err != nil {
		return nil, &nerdgraph.ValidationError{Message: err.Error()}
	}

	dashboard := template.Instantiate(req.AccountID)
	if name := strings.TrimSpace(req.Name); name != "" {
		dashboard.Name = name
	}

	return &dashboard, nil
}

// Deploy creates the dashboard in New Relic and returns its reference.
func (s *Service) Deploy(ctx context.Context, accountID int, dashboard nerdgraph.Dashboard) (*nerdgraph.DashboardRef, error) {
	if report := Validate(dashboard); !report.Valid {
		return nil, &nerdgraph.ValidationError{Message: "dashboard is not valid: " + strings.Join(report.Errors, "; ")}
	}

	ref, err := s.api.CreateDashboard(ctx, accountID, dashboard)
	if err != nil {
		return nil, err
	}

	s.logger.Info("dashboard deployed",
		zap.String("guid", ref.GUID),
		zap.String("name", ref.Name),
		zap.Int("account_id", accountID))

	return ref, nil
}

// GenerateAndDeploy is Generate followed by Deploy.
func (s *Service) GenerateAndDeploy(ctx context.Context, req GenerateRequest) (*nerdgraph.DashboardRef, error) {
	dashboard, err := s.Generate(req)
	if err != nil {
		return nil, err
	}
	return s.Deploy(ctx, req.AccountID, *dashboard)
}

// Update replaces an existing dashboard.
func (s *Service) Update(ctx context.Context, guid string, dashboard nerdgraph.Dashboard) (*nerdgraph.DashboardRef, error) {
	if report := Validate(dashboard); !report.Valid {
		return nil, &nerdgraph.ValidationError{Message: "dashboard is not valid: " + strings.Join(report.Errors, "; ")}
	}
	return s.api.UpdateDashboard(ctx, guid, dashboard)
}

// Get fetches a dashboard by GUID. A nil dashboard means not found.
func (s *Service) Get(ctx context.Context, guid string) (*nerdgraph.Dashboard, error) {
	return s.api.GetDashboard(ctx, guid)
}

// ValidateWidgets fetches a deployed dashboard and runs the structural
// checks against it.
func (s *Service) ValidateWidgets(ctx context.Context, guid string) (ValidationReport, error) {
	dashboard, err := s.api.GetDashboard(ctx, guid)
	if err != nil {
		return ValidationReport{}, err
	}
	if dashboard == nil {
		return ValidationReport{}, &nerdgraph.ValidationError{Message: "dashboard not found: " + guid}
	}

	return Validate(*dashboard), nil
}

// Delete removes a dashboard by GUID.
func (s *Service) Delete(ctx context.Context, guid string) error {
	return s.api.DeleteDashboard(ctx, guid)
}

// List finds dashboard entities in the account.
func (s *Service) List(ctx context.Context, accountID int, limit int) ([]nerdgraph.Entity, error) {
	query := fmt.Sprintf("type = 'DASHBOARD' AND accountId = %d", accountID)
	return s.api.SearchEntities(ctx, query, limit)
}
