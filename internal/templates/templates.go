// Package templates provides the embedded dashboard template catalog.
package templates

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/nrguardian/nrguardian/internal/nerdgraph"
)

//go:embed templates/*.json
var templatesFS embed.FS

// Template is one catalog entry. The dashboard holds placeholder account
// IDs of zero; Instantiate fills in the real account.
type Template struct {
	Name        string              `json:"name"`
	DisplayName string              `json:"displayName"`
	Description string              `json:"description"`
	Dashboard   nerdgraph.Dashboard `json:"dashboard"`
}

// Instantiate returns a copy of the template dashboard bound to the given
// account, with any zero accountId placeholders replaced.
func (t *Template) Instantiate(accountID int) nerdgraph.Dashboard {
	dashboard := t.Dashboard
	dashboard.Pages = make([]nerdgraph.DashboardPage, len(t.Dashboard.Pages))
	for i, page := range t.Dashboard.Pages {
		widgets := make([]nerdgraph.Widget, len(page.Widgets))
		for j, widget := range page.Widgets {
			queries := make([]nerdgraph.NRQLQuery, len(widget.RawConfiguration.NRQLQueries))
			for k, query := range widget.RawConfiguration.NRQLQueries {
				if query.AccountID == 0 {
					query.AccountID = accountID
				}
				queries[k] = query
			}
			widget.RawConfiguration.NRQLQueries = queries
			widgets[j] = widget
		}
		page.Widgets = widgets
		dashboard.Pages[i] = page
	}
	return dashboard
}

// LoadAll parses every embedded template, sorted by name.
func LoadAll() ([]*Template, error) {
	entries, err := templatesFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("read embedded templates: %w", err)
	}

	results := make([]*Template, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := templatesFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read embedded template %s: %w", entry.Name(), err)
		}
		var template Template
		if err := json.Unmarshal(data, &template); err != nil {
			return nil, fmt.Errorf("parse embedded template %s: %w", entry.Name(), err)
		}
		if template.Name == "" {
			return nil, fmt.Errorf("embedded template %s has no name", entry.Name())
		}
		results = append(results, &template)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	return results, nil
}

// Get returns the named template.
func Get(name string) (*Template, error) {
	all, err := LoadAll()
	if err != nil {
		return nil, err
	}
	for _, template := range all {
		if template.Name == name {
			return template, nil
		}
	}
	return nil, fmt.Errorf("unknown template: %s", name)
}

// Names lists the available template names.
func Names() ([]string, error) {
	all, err := LoadAll()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for _, template := range all {
		names = append(names, template.Name)
	}
	return names, nil
}
