// Package output renders CLI results as tables, JSON, or markdown.
package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown):
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// render draws one tabular result. JSON output serializes source instead of
// the flattened rows so structure is preserved.
func render(format Format, source any, header table.Row, rows []table.Row) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(source, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	case FormatMarkdown:
		return renderMarkdown(header, rows), nil
	default:
		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(header)
		t.AppendRows(rows)
		return t.Render(), nil
	}
}

func renderMarkdown(header table.Row, rows []table.Row) string {
	var sb strings.Builder

	cells := make([]string, len(header))
	separators := make([]string, len(header))
	for i, cell := range header {
		cells[i] = escapeMarkdownCell(fmt.Sprint(cell))
		separators[i] = "---"
	}
	sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	sb.WriteString("| " + strings.Join(separators, " | ") + " |\n")

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = escapeMarkdownCell(fmt.Sprint(cell))
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	return sb.String()
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
