package dashboard

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nrguardian/nrguardian/internal/nerdgraph"
)

// BrokenWidget describes a widget whose query fails or returns nothing.
type BrokenWidget struct {
	Page   string `json:"page"`
	Widget string `json:"widget"`
	Query  string `json:"query"`
	Reason string `json:"reason"`
}

// FindBrokenWidgets runs every widget query on a dashboard and reports the
// ones that fail or come back empty. Transport failures abort the scan;
// query-level failures are collected.
func (s *Service) FindBrokenWidgets(ctx context.Context, guid string) ([]BrokenWidget, error) {
	dashboard, err := s.api.GetDashboard(ctx, guid)
	if err != nil {
		return nil, err
	}
	if dashboard == nil {
		return nil, &nerdgraph.ValidationError{Message: "dashboard not found: " + guid}
	}

	var broken []BrokenWidget
	for _, page := range dashboard.Pages {
		for _, widget := range page.Widgets {
			for _, query := range widget.RawConfiguration.NRQLQueries {
				reason, err := s.probeQuery(ctx, query)
				if err != nil {
					return nil, err
				}
				if reason == "" {
					continue
				}
				broken = append(broken, BrokenWidget{
					Page:   page.Name,
					Widget: widget.Title,
					Query:  query.Query,
					Reason: reason,
				})
			}
		}
	}

	return broken, nil
}

// probeQuery returns a non-empty reason when the query is broken.
func (s *Service) probeQuery(ctx context.Context, query nerdgraph.NRQLQuery) (string, error) {
	result, err := s.api.RunNRQL(ctx, query.AccountID, query.Query)
	if err != nil {
		var queryErr *nerdgraph.QueryError
		var validationErr *nerdgraph.ValidationError
		if errors.As(err, &queryErr) || errors.As(err, &validationErr) {
			return err.Error(), nil
		}
		return "", err
	}
	if len(result.Results) == 0 {
		return "query returned no results", nil
	}
	return "", nil
}

// PerformanceFinding is one performance observation about a widget query.
type PerformanceFinding struct {
	Page     string `json:"page"`
	Widget   string `json:"widget"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// PerformanceReport summarizes the analysis of one dashboard.
type PerformanceReport struct {
	Name        string               `json:"name"`
	WidgetCount int                  `json:"widgetCount"`
	Findings    []PerformanceFinding `json:"findings,omitempty"`
}

var sinceRe = regexp.MustCompile(`(?i)\bSINCE\s+(\d+)\s+(day|week|month)s?\s+ago`)

// maxWidgetsPerPage is where rendering starts to degrade noticeably.
const maxWidgetsPerPage = 20

// AnalyzePerformance statically inspects a dashboard for query patterns
// that load slowly: long time windows, unbounded facets, star selects, and
// overloaded pages.
func (s *Service) AnalyzePerformance(ctx context.Context, guid string) (*PerformanceReport, error) {
	dashboard, err := s.api.GetDashboard(ctx, guid)
	if err != nil {
		return nil, err
	}
	if dashboard == nil {
		return nil, &nerdgraph.ValidationError{Message: "dashboard not found: " + guid}
	}

	report := &PerformanceReport{Name: dashboard.Name}
	for _, page := range dashboard.Pages {
		if len(page.Widgets) > maxWidgetsPerPage {
			report.Findings = append(report.Findings, PerformanceFinding{
				Page:     page.Name,
				Severity: "warning",
				Message:  fmt.Sprintf("page has %d widgets; pages above %d render slowly", len(page.Widgets), maxWidgetsPerPage),
			})
		}
		for _, widget := range page.Widgets {
			report.WidgetCount++
			for _, query := range widget.RawConfiguration.NRQLQueries {
				report.Findings = append(report.Findings, analyzeQuery(page.Name, widget.Title, query.Query)...)
			}
		}
	}

	return report, nil
}

func analyzeQuery(page, widget, query string) []PerformanceFinding {
	var findings []PerformanceFinding
	upper := strings.ToUpper(query)

	if window, ok := parseSinceWindow(query); ok && window > 7*24*time.Hour {
		findings = append(findings, PerformanceFinding{
			Page:     page,
			Widget:   widget,
			Severity: "warning",
			Message:  fmt.Sprintf("time window of %s scans a large event range", window),
		})
	}

	if strings.Contains(upper, "SELECT *") {
		findings = append(findings, PerformanceFinding{
			Page:     page,
			Widget:   widget,
			Severity: "warning",
			Message:  "SELECT * fetches full events; select the needed attributes",
		})
	}

	if strings.Contains(upper, "FACET") && !strings.Contains(upper, "LIMIT") {
		findings = append(findings, PerformanceFinding{
			Page:     page,
			Widget:   widget,
			Severity: "info",
			Message:  "FACET without LIMIT defaults to 10 buckets; set an explicit LIMIT",
		})
	}

	if strings.Contains(upper, "LIMIT MAX") {
		findings = append(findings, PerformanceFinding{
			Page:     page,
			Widget:   widget,
			Severity: "warning",
			Message:  "LIMIT MAX returns up to 5000 rows and slows rendering",
		})
	}

	return findings
}

func parseSinceWindow(query string) (time.Duration, bool) {
	match := sinceRe.FindStringSubmatch(query)
	if match == nil {
		return 0, false
	}

	var amount int
	if _, err := fmt.Sscanf(match[1], "%d", &amount); err != nil {
		return 0, false
	}

	day := 24 * time.Hour
	switch strings.ToLower(match[2]) {
	case "day":
		return time.Duration(amount) * day, true
	case "week":
		return time.Duration(amount) * 7 * day, true
	case "month":
		return time.Duration(amount) * 30 * day, true
	}
	return 0, false
}
