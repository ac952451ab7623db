package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/nrguardian/nrguardian/internal/dashboard"
	"github.com/nrguardian/nrguardian/internal/nerdgraph"
	"github.com/nrguardian/nrguardian/internal/schema"
)

// FormatEntities renders an entity search result.
func FormatEntities(format Format, entities []nerdgraph.Entity) (string, error) {
	rows := make([]table.Row, 0, len(entities))
	for _, entity := range entities {
		rows = append(rows, table.Row{entity.GUID, entity.Name, entity.Type, entity.Domain, entity.AccountID})
	}
	return render(format, entities, table.Row{"GUID", "Name", "Type", "Domain", "Account"}, rows)
}

// FormatEventTypes renders a discovered event type listing.
func FormatEventTypes(format Format, eventTypes []string) (string, error) {
	rows := make([]table.Row, 0, len(eventTypes))
	for _, eventType := range eventTypes {
		rows = append(rows, table.Row{eventType})
	}
	return render(format, eventTypes, table.Row{"Event Type"}, rows)
}

// FormatSchema renders an event type keyset.
func FormatSchema(format Format, described *schema.EventTypeSchema) (string, error) {
	if described == nil {
		return "", nil
	}
	rows := make([]table.Row, 0, len(described.Attributes))
	for _, attr := range described.Attributes {
		rows = append(rows, table.Row{attr.Name, attr.Type})
	}
	return render(format, described, table.Row{"Attribute", "Type"}, rows)
}

// FormatSchemaDiff renders a schema comparison.
func FormatSchemaDiff(format Format, diff *schema.Diff) (string, error) {
	if diff == nil {
		return "", nil
	}

	var rows []table.Row
	for _, attr := range diff.OnlyInLeft {
		rows = append(rows, table.Row{attr.Name, attr.Type, "only in " + diff.Left})
	}
	for _, attr := range diff.OnlyInRight {
		rows = append(rows, table.Row{attr.Name, attr.Type, "only in " + diff.Right})
	}
	for _, attr := range diff.Common {
		rows = append(rows, table.Row{attr.Name, attr.Type, "both"})
	}
	return render(format, diff, table.Row{"Attribute", "Type", "Presence"}, rows)
}

// FormatValidationReport renders an attribute validation report.
func FormatValidationReport(format Format, report *schema.ValidationReport) (string, error) {
	if report == nil {
		return "", nil
	}

	var rows []table.Row
	for _, name := range report.Valid {
		rows = append(rows, table.Row{name, "ok"})
	}
	for _, name := range report.Missing {
		rows = append(rows, table.Row{name, "missing"})
	}
	return render(format, report, table.Row{"Attribute", "Status"}, rows)
}

// FormatAttributeMatches renders a cross-event-type attribute search.
func FormatAttributeMatches(format Format, matches []schema.AttributeMatch) (string, error) {
	rows := make([]table.Row, 0, len(matches))
	for _, match := range matches {
		rows = append(rows, table.Row{match.EventType, match.Attribute, match.Type})
	}
	return render(format, matches, table.Row{"Event Type", "Attribute", "Type"}, rows)
}

// FormatNRQLResult renders query rows. Columns are the union of row keys,
// sorted for stable output.
func FormatNRQLResult(format Format, result *nerdgraph.NRQLResult) (string, error) {
	if result == nil {
		return "", nil
	}

	columnSet := make(map[string]struct{})
	for _, row := range result.Results {
		for key := range row {
			columnSet[key] = struct{}{}
		}
	}
	columns := make([]string, 0, len(columnSet))
	for key := range columnSet {
		columns = append(columns, key)
	}
	sort.Strings(columns)

	header := make(table.Row, len(columns))
	for i, column := range columns {
		header[i] = column
	}

	rows := make([]table.Row, 0, len(result.Results))
	for _, row := range result.Results {
		cells := make(table.Row, len(columns))
		for i, column := range columns {
			if value, ok := row[column]; ok {
				cells[i] = fmt.Sprint(value)
			} else {
				cells[i] = ""
			}
		}
		rows = append(rows, cells)
	}

	return render(format, result, header, rows)
}

// FormatBrokenWidgets renders a broken widget scan.
func FormatBrokenWidgets(format Format, broken []dashboard.BrokenWidget) (string, error) {
	if len(broken) == 0 && format != FormatJSON {
		return "no broken widgets found", nil
	}

	rows := make([]table.Row, 0, len(broken))
	for _, widget := range broken {
		rows = append(rows, table.Row{widget.Page, widget.Widget, widget.Reason})
	}
	return render(format, broken, table.Row{"Page", "Widget", "Reason"}, rows)
}

// FormatPerformanceReport renders a dashboard performance analysis.
func FormatPerformanceReport(format Format, report *dashboard.PerformanceReport) (string, error) {
	if report == nil {
		return "", nil
	}

	if format == FormatJSON {
		return render(format, report, nil, nil)
	}

	rows := make([]table.Row, 0, len(report.Findings))
	for _, finding := range report.Findings {
		rows = append(rows, table.Row{finding.Page, finding.Widget, finding.Severity, finding.Message})
	}

	rendered, err := render(format, report, table.Row{"Page", "Widget", "Severity", "Finding"}, rows)
	if err != nil {
		return "", err
	}

	summary := fmt.Sprintf("%s: %d widgets, %d findings", report.Name, report.WidgetCount, len(report.Findings))
	return summary + "\n" + rendered, nil
}

// FormatDashboardValidation renders a structural validation report.
func FormatDashboardValidation(format Format, report dashboard.ValidationReport) (string, error) {
	if format == FormatJSON {
		return render(format, report, nil, nil)
	}

	var sb strings.Builder
	if report.Valid {
		sb.WriteString("dashboard is valid\n")
	} else {
		sb.WriteString("dashboard is NOT valid\n")
	}
	for _, message := range report.Errors {
		sb.WriteString("  error: " + message + "\n")
	}
	for _, message := range report.Warnings {
		sb.WriteString("  warning: " + message + "\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
