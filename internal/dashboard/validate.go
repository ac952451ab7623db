package dashboard

import (
	"fmt"
	"strings"

	"github.com/nrguardian/nrguardian/internal/nerdgraph"
)

// Grid bounds for dashboard widget layout.
const (
	gridColumns   = 12
	maxNameLength = 255
)

// ValidationReport is the outcome of a structural dashboard check.
type ValidationReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validate checks the dashboard structure without calling the API: names,
// page and widget presence, layout bounds, and NRQL query bindings.
func Validate(dashboard nerdgraph.Dashboard) ValidationReport {
	var report ValidationReport

	if strings.TrimSpace(dashboard.Name) == "" {
		report.Errors = append(report.Errors, "dashboard name is required")
	}
	if len(dashboard.Name) > maxNameLength {
		report.Errors = append(report.Errors, fmt.Sprintf("dashboard name exceeds %d characters", maxNameLength))
	}
	if dashboard.Permissions != "" && !validPermissions(dashboard.Permissions) {
		report.Errors = append(report.Errors, fmt.Sprintf("unknown permissions value %q", dashboard.Permissions))
	}
	if len(dashboard.Pages) == 0 {
		report.Errors = append(report.Errors, "dashboard has no pages")
	}

	for pageIdx, page := range dashboard.Pages {
		pageRef := fmt.Sprintf("page %d (%s)", pageIdx+1, page.Name)
		if strings.TrimSpace(page.Name) == "" {
			report.Errors = append(report.Errors, fmt.Sprintf("page %d has no name", pageIdx+1))
		}
		if len(page.Widgets) == 0 {
			report.Warnings = append(report.Warnings, pageRef+" has no widgets")
		}

		for widgetIdx, widget := range page.Widgets {
			widgetRef := fmt.Sprintf("%s widget %d (%s)", pageRef, widgetIdx+1, widget.Title)
			report.Errors = append(report.Errors, validateWidget(widgetRef, widget)...)
		}
	}

	report.Valid = len(report.Errors) == 0
	return report
}

func validateWidget(ref string, widget nerdgraph.Widget) []string {
	var errs []string

	if strings.TrimSpace(widget.Title) == "" {
		errs = append(errs, ref+": widget title is required")
	}
	if strings.TrimSpace(widget.Visualization.ID) == "" {
		errs = append(errs, ref+": visualization id is required")
	}

	// Zero column or width means unset; the API picks the placement.
	layout := widget.Layout
	if layout.Column < 0 || layout.Column > gridColumns {
		errs = append(errs, fmt.Sprintf("%s: column %d outside 0..%d", ref, layout.Column, gridColumns))
	}
	if layout.Width < 0 || layout.Width > gridColumns {
		errs = append(errs, fmt.Sprintf("%s: width %d outside 0..%d", ref, layout.Width, gridColumns))
	}
	if layout.Column > 0 && layout.Width > 0 && layout.Column+layout.Width > gridColumns+1 {
		errs = append(errs, fmt.Sprintf("%s: column %d + width %d overflows the %d column grid", ref, layout.Column, layout.Width, gridColumns))
	}
	if layout.Row < 0 || layout.Height < 0 {
		errs = append(errs, ref+": row and height must be non-negative")
	}

	if needsQueries(widget.Visualization.ID) && len(widget.RawConfiguration.NRQLQueries) == 0 {
		errs = append(errs, ref+": visualization requires at least one NRQL query")
	}
	for queryIdx, query := range widget.RawConfiguration.NRQLQueries {
		if query.AccountID <= 0 {
			errs = append(errs, fmt.Sprintf("%s: query %d has no account id", ref, queryIdx+1))
		}
		if strings.TrimSpace(query.Query) == "" {
			errs = append(errs, fmt.Sprintf("%s: query %d is empty", ref, queryIdx+1))
		}
	}

	return errs
}

func validPermissions(permissions string) bool {
	switch permissions {
	case "PRIVATE", "PUBLIC_READ_ONLY", "PUBLIC_READ_WRITE":
		return true
	}
	return false
}

// needsQueries reports whether a visualization is data-driven. Markdown
// widgets carry text only.
func needsQueries(visualizationID string) bool {
	return visualizationID != "viz.markdown"
}
