package nerdgraph

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// NRQLResult is the flattened payload of an NRQL query.
type NRQLResult struct {
	Results  []map[string]any `json:"results"`
	Metadata NRQLMetadata     `json:"metadata"`
}

// NRQLMetadata carries query execution details.
type NRQLMetadata struct {
	EventTypes []string `json:"eventTypes,omitempty"`
	Facets     []string `json:"facets,omitempty"`
	TimeWindow struct {
		Begin int64 `json:"begin,omitempty"`
		End   int64 `json:"end,omitempty"`
	} `json:"timeWindow,omitempty"`
}

// Dashboard is the NerdGraph dashboard shape used by both queries and
// mutation inputs.
type Dashboard struct {
	GUID        string          `json:"guid,omitempty" yaml:"guid,omitempty"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Permissions string          `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Pages       []DashboardPage `json:"pages" yaml:"pages"`
}

// DashboardPage groups widgets.
type DashboardPage struct {
	GUID        string   `json:"guid,omitempty" yaml:"guid,omitempty"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Widgets     []Widget `json:"widgets" yaml:"widgets"`
}

// Widget is a single dashboard widget.
type Widget struct {
	ID               string              `json:"id,omitempty" yaml:"id,omitempty"`
	Title            string              `json:"title" yaml:"title"`
	Visualization    WidgetVisualization `json:"visualization" yaml:"visualization"`
	Layout           WidgetLayout        `json:"layout,omitempty" yaml:"layout,omitempty"`
	RawConfiguration WidgetConfiguration `json:"rawConfiguration" yaml:"rawConfiguration"`
}

// WidgetVisualization identifies the renderer.
type WidgetVisualization struct {
	ID string `json:"id" yaml:"id"`
}

// WidgetLayout is the grid placement.
type WidgetLayout struct {
	Column int `json:"column,omitempty" yaml:"column,omitempty"`
	Row    int `json:"row,omitempty" yaml:"row,omitempty"`
	Width  int `json:"width,omitempty" yaml:"width,omitempty"`
	Height int `json:"height,omitempty" yaml:"height,omitempty"`
}

// WidgetConfiguration holds NRQL queries plus any passthrough settings.
type WidgetConfiguration struct {
	NRQLQueries []NRQLQuery    `json:"nrqlQueries,omitempty" yaml:"nrqlQueries,omitempty"`
	Extra       map[string]any `json:"-" yaml:"-"`
}

// NRQLQuery binds one query to an account.
type NRQLQuery struct {
	AccountID int    `json:"accountId" yaml:"accountId"`
	Query     string `json:"query" yaml:"query"`
}

// MarshalJSON merges passthrough settings back into the configuration.
func (c WidgetConfiguration) MarshalJSON() ([]byte, error) {
	merged := make(map[string]any, len(c.Extra)+1)
	for key, value := range c.Extra {
		merged[key] = value
	}
	if len(c.NRQLQueries) > 0 {
		merged["nrqlQueries"] = c.NRQLQueries
	}
	return json.Marshal(merged)
}

// UnmarshalJSON splits nrqlQueries out of the configuration and keeps the
// remainder opaque.
func (c *WidgetConfiguration) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if queries, ok := raw["nrqlQueries"]; ok {
		if err := json.Unmarshal(queries, &c.NRQLQueries); err != nil {
			return err
		}
		delete(raw, "nrqlQueries")
	}

	if len(raw) > 0 {
		c.Extra = make(map[string]any, len(raw))
		for key, value := range raw {
			var decoded any
			if err := json.Unmarshal(value, &decoded); err != nil {
				return err
			}
			c.Extra[key] = decoded
		}
	}

	return nil
}

// MarshalYAML mirrors the JSON shape for YAML exports.
func (c WidgetConfiguration) MarshalYAML() (any, error) {
	merged := make(map[string]any, len(c.Extra)+1)
	for key, value := range c.Extra {
		merged[key] = value
	}
	if len(c.NRQLQueries) > 0 {
		merged["nrqlQueries"] = c.NRQLQueries
	}
	return merged, nil
}

// UnmarshalYAML mirrors the JSON split of nrqlQueries and passthrough keys.
func (c *WidgetConfiguration) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string]any
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if queries, ok := raw["nrqlQueries"]; ok {
		encoded, err := yaml.Marshal(queries)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(encoded, &c.NRQLQueries); err != nil {
			return err
		}
		delete(raw, "nrqlQueries")
	}

	if len(raw) > 0 {
		c.Extra = raw
	}

	return nil
}

// DashboardRef is the create/update mutation result.
type DashboardRef struct {
	GUID string `json:"guid"`
	Name string `json:"name"`
}

// Entity is one entitySearch result.
type Entity struct {
	GUID      string `json:"guid"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Domain    string `json:"domain"`
	AccountID int    `json:"accountId"`
}

// AlertPolicy is one alerts policy projection.
type AlertPolicy struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	IncidentPreference string `json:"incidentPreference"`
}
