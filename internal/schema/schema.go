// Package schema discovers and compares NRDB event type schemas via NRQL
// introspection queries.
package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nrguardian/nrguardian/internal/nerdgraph"
	"github.com/nrguardian/nrguardian/internal/store"
)

// NRQLRunner is the subset of the NerdGraph client the schema service needs.
type NRQLRunner interface {
	RunNRQL(ctx context.Context, accountID int, nrql string) (*nerdgraph.NRQLResult, error)
}

// Attribute describes one attribute of an event type.
type Attribute struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// EventTypeSchema is the full attribute set of one event type.
type EventTypeSchema struct {
	EventType  string      `json:"eventType"`
	Attributes []Attribute `json:"attributes"`
}

// Diff captures the differences between two event type schemas.
type Diff struct {
	Left        string      `json:"left"`
	Right       string      `json:"right"`
	OnlyInLeft  []Attribute `json:"onlyInLeft"`
	OnlyInRight []Attribute `json:"onlyInRight"`
	Common      []Attribute `json:"common"`
}

// ValidationReport lists which requested attributes exist on an event type.
type ValidationReport struct {
	EventType string   `json:"eventType"`
	Valid     []string `json:"valid"`
	Missing   []string `json:"missing"`
}

// AttributeMatch is one hit from a cross-event-type attribute search.
type AttributeMatch struct {
	EventType string `json:"eventType"`
	Attribute string `json:"attribute"`
	Type      string `json:"type"`
}

// ServiceOptions configures the schema service. Store is optional; when set,
// keysets are cached with KeysetTTL.
type ServiceOptions struct {
	Runner    NRQLRunner
	Store     *store.Store
	KeysetTTL time.Duration
	Logger    *zap.Logger
}

// Service runs schema discovery against one account.
type Service struct {
	runner    NRQLRunner
	store     *store.Store
	keysetTTL time.Duration
	logger    *zap.Logger
}

const defaultKeysetTTL = time.Hour

// NewService builds a schema service.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("nrql runner is required")
	}

	ttl := opts.KeysetTTL
	if ttl <= 0 {
		ttl = defaultKeysetTTL
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		runner:    opts.Runner,
		store:     opts.Store,
		keysetTTL: ttl,
		logger:    logger,
	}, nil
}

// DiscoverEventTypes lists all event types reporting to the account.
func (s *Service) DiscoverEventTypes(ctx context.Context, accountID int) ([]string, error) {
	result, err := s.runner.RunNRQL(ctx, accountID, "SHOW EVENT TYPES")
	if err != nil {
		return nil, err
	}

	types := make([]string, 0, len(result.Results))
	for _, row := range result.Results {
		if name, ok := row["eventType"].(string); ok && name != "" {
			types = append(types, name)
		}
	}
	sort.Strings(types)

	return types, nil
}

// DescribeEventType returns the attribute keyset of one event type. Results
// are cached in the store when one is configured.
func (s *Service) DescribeEventType(ctx context.Context, accountID int, eventType string) (*EventTypeSchema, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, &nerdgraph.ValidationError{Message: "event type is required"}
	}

	if s.store != nil {
		cached, err := s.store.GetCachedKeyset(ctx, accountID, eventType)
		if err != nil {
			s.logger.Warn("keyset cache read failed", zap.Error(err))
		} else if cached != nil {
			return &EventTypeSchema{EventType: eventType, Attributes: decodeAttributes(cached)}, nil
		}
	}

	nrql := fmt.Sprintf("SELECT keyset() FROM %s SINCE 1 week ago", quoteEventType(eventType))
	result, err := s.runner.RunNRQL(ctx, accountID, nrql)
	if err != nil {
		return nil, err
	}

	attrs := parseKeyset(result)
	if s.store != nil {
		if err := s.store.SetCachedKeyset(ctx, accountID, eventType, encodeAttributes(attrs), s.keysetTTL); err != nil {
			s.logger.Warn("keyset cache write failed", zap.Error(err))
		}
	}

	return &EventTypeSchema{EventType: eventType, Attributes: attrs}, nil
}

// CompareSchemas diffs the attribute sets of two event types.
func (s *Service) CompareSchemas(ctx context.Context, accountID int, left, right string) (*Diff, error) {
	leftSchema, err := s.DescribeEventType(ctx, accountID, left)
	if err != nil {
		return nil, err
	}
	rightSchema, err := s.DescribeEventType(ctx, accountID, right)
	if err != nil {
		return nil, err
	}

	leftSet := attributeIndex(leftSchema.Attributes)
	rightSet := attributeIndex(rightSchema.Attributes)

	diff := &Diff{Left: leftSchema.EventType, Right: rightSchema.EventType}
	for _, attr := range leftSchema.Attributes {
		if _, ok := rightSet[attr.Name]; ok {
			diff.Common = append(diff.Common, attr)
		} else {
			diff.OnlyInLeft = append(diff.OnlyInLeft, attr)
		}
	}
	for _, attr := range rightSchema.Attributes {
		if _, ok := leftSet[attr.Name]; !ok {
			diff.OnlyInRight = append(diff.OnlyInRight, attr)
		}
	}

	return diff, nil
}

// ValidateAttributes checks which of the requested attributes exist on an
// event type.
func (s *Service) ValidateAttributes(ctx context.Context, accountID int, eventType string, attributes []string) (*ValidationReport, error) {
	described, err := s.DescribeEventType(ctx, accountID, eventType)
	if err != nil {
		return nil, err
	}

	index := attributeIndex(described.Attributes)
	report := &ValidationReport{EventType: described.EventType}
	for _, attr := range attributes {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		if _, ok := index[attr]; ok {
			report.Valid = append(report.Valid, attr)
		} else {
			report.Missing = append(report.Missing, attr)
		}
	}

	return report, nil
}

// FindAttribute searches the given event types for attributes whose name
// contains the term, case-insensitively. With no event types given, all
// discovered event types are searched.
func (s *Service) FindAttribute(ctx context.Context, accountID int, term string, eventTypes []string) ([]AttributeMatch, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, &nerdgraph.ValidationError{Message: "search term is required"}
	}

	if len(eventTypes) == 0 {
		discovered, err := s.DiscoverEventTypes(ctx, accountID)
		if err != nil {
			return nil, err
		}
		eventTypes = discovered
	}

	needle := strings.ToLower(term)
	var matches []AttributeMatch
	for _, eventType := range eventTypes {
		described, err := s.DescribeEventType(ctx, accountID, eventType)
		if err != nil {
			return nil, err
		}
		for _, attr := range described.Attributes {
			if strings.Contains(strings.ToLower(attr.Name), needle) {
				matches = append(matches, AttributeMatch{
					EventType: described.EventType,
					Attribute: attr.Name,
					Type:      attr.Type,
				})
			}
		}
	}

	return matches, nil
}

// parseKeyset flattens the keyset() result rows. NRDB returns typed key
// lists (stringKeys, numericKeys, booleanKeys) plus allKeys.
func parseKeyset(result *nerdgraph.NRQLResult) []Attribute {
	if result == nil {
		return nil
	}

	byName := make(map[string]string)
	for _, row := range result.Results {
		collectKeys(byName, row, "stringKeys", "string")
		collectKeys(byName, row, "numericKeys", "numeric")
		collectKeys(byName, row, "booleanKeys", "boolean")
		collectKeys(byName, row, "allKeys", "")
	}

	attrs := make([]Attribute, 0, len(byName))
	for name, attrType := range byName {
		if attrType == "" {
			attrType = "unknown"
		}
		attrs = append(attrs, Attribute{Name: name, Type: attrType})
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name < attrs[j].Name })

	return attrs
}

func collectKeys(byName map[string]string, row map[string]any, field, attrType string) {
	raw, ok := row[field].([]any)
	if !ok {
		return
	}
	for _, entry := range raw {
		name, ok := entry.(string)
		if !ok || name == "" {
			continue
		}
		if existing, seen := byName[name]; !seen || existing == "" {
			byName[name] = attrType
		}
	}
}

func attributeIndex(attrs []Attribute) map[string]Attribute {
	index := make(map[string]Attribute, len(attrs))
	for _, attr := range attrs {
		index[attr.Name] = attr
	}
	return index
}

// quoteEventType backtick-quotes event types that are not plain identifiers.
func quoteEventType(eventType string) string {
	for _, r := range eventType {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == ':' {
			continue
		}
		return "`" + eventType + "`"
	}
	return eventType
}

// encodeAttributes flattens attributes to "name|type" strings for the cache.
func encodeAttributes(attrs []Attribute) []string {
	encoded := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		encoded = append(encoded, attr.Name+"|"+attr.Type)
	}
	return encoded
}

func decodeAttributes(encoded []string) []Attribute {
	attrs := make([]Attribute, 0, len(encoded))
	for _, entry := range encoded {
		name, attrType, found := strings.Cut(entry, "|")
		if !found {
			attrType = "unknown"
		}
		attrs = append(attrs, Attribute{Name: name, Type: attrType})
	}
	return attrs
}
