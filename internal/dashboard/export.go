package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nrguardian/nrguardian/internal/nerdgraph"
)

// Format is a dashboard serialization format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat normalizes a user-supplied format name.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (json or yaml)", value)
	}
}

// Export fetches a dashboard and serializes it.
func (s *Service) Export(ctx context.Context, guid string, format Format) ([]byte, error) {
	dashboard, err := s.api.GetDashboard(ctx, guid)
	if err != nil {
		return nil, err
	}
	if dashboard == nil {
		return nil, &nerdgraph.ValidationError{Message: "dashboard not found: " + guid}
	}

	return Marshal(*dashboard, format)
}

// Import deserializes a dashboard definition, validates it, and deploys it
// into the account.
func (s *Service) Import(ctx context.Context, accountID int, data []byte, format Format) (*nerdgraph.DashboardRef, error) {
	dashboard, err := Unmarshal(data, format)
	if err != nil {
		return nil, &nerdgraph.ValidationError{Message: err.Error()}
	}

	return s.Deploy(ctx, accountID, *dashboard)
}

// Marshal serializes a dashboard in the requested format.
func Marshal(dashboard nerdgraph.Dashboard, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(dashboard)
	case FormatJSON, "":
		return json.MarshalIndent(dashboard, "", "  ")
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// Unmarshal parses a dashboard in the requested format.
func Unmarshal(data []byte, format Format) (*nerdgraph.Dashboard, error) {
	var dashboard nerdgraph.Dashboard
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &dashboard); err != nil {
			return nil, fmt.Errorf("parse dashboard yaml: %w", err)
		}
	case FormatJSON, "":
		if err := json.Unmarshal(data, &dashboard); err != nil {
			return nil, fmt.Errorf("parse dashboard json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return &dashboard, nil
}
