package schema

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nrguardian/nrguardian/internal/nerdgraph"
)

// stubRunner answers NRQL queries from a canned table and records what ran.
type stubRunner struct {
	responses map[string]*nerdgraph.NRQLResult
	queries   []string
}

func (r *stubRunner) RunNRQL(ctx context.Context, accountID int, nrql string) (*nerdgraph.NRQLResult, error) {
	r.queries = append(r.queries, nrql)
	for prefix, result := range r.responses {
		if strings.HasPrefix(nrql, prefix) {
			return result, nil
		}
	}
	return &nerdgraph.NRQLResult{}, nil
}

func keysetResult(stringKeys, numericKeys []string) *nerdgraph.NRQLResult {
	row := map[string]any{}
	toAny := func(keys []string) []any {
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out
	}
	row["stringKeys"] = toAny(stringKeys)
	row["numericKeys"] = toAny(numericKeys)
	all := append(append([]string{}, stringKeys...), numericKeys...)
	row["allKeys"] = toAny(all)
	return &nerdgraph.NRQLResult{Results: []map[string]any{row}}
}

func newTestService(t *testing.T, runner *stubRunner) *Service {
	t.Helper()
	svc, err := NewService(ServiceOptions{Runner: runner})
	require.NoError(t, err)
	return svc
}

func TestDiscoverEventTypes(t *testing.T) {
	runner := &stubRunner{responses: map[string]*nerdgraph.NRQLResult{
		"SHOW EVENT TYPES": {Results: []map[string]any{
			{"eventType": "Transaction"},
			{"eventType": "PageView"},
		}},
	}}
	svc := newTestService(t, runner)

	types, err := svc.DiscoverEventTypes(context.Background(), 12345)
	require.NoError(t, err)
	require.Equal(t, []string{"PageView", "Transaction"}, types)
}

func TestDescribeEventType(t *testing.T) {
	runner := &stubRunner{responses: map[string]*nerdgraph.NRQLResult{
		"SELECT keyset() FROM Transaction": keysetResult([]string{"name", "host"}, []string{"duration"}),
	}}
	svc := newTestService(t, runner)

	described, err := svc.DescribeEventType(context.Background(), 12345, "Transaction")
	require.NoError(t, err)
	require.Equal(t, "Transaction", described.EventType)
	require.Equal(t, []Attribute{
		{Name: "duration", Type: "numeric"},
		{Name: "host", Type: "string"},
		{Name: "name", Type: "string"},
	}, described.Attributes)
}

func TestDescribeEventTypeRequiresName(t *testing.T) {
	svc := newTestService(t, &stubRunner{})

	_, err := svc.DescribeEventType(context.Background(), 12345, "  ")
	var validationErr *nerdgraph.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestDescribeEventTypeQuotesOddNames(t *testing.T) {
	runner := &stubRunner{responses: map[string]*nerdgraph.NRQLResult{}}
	svc := newTestService(t, runner)

	_, err := svc.DescribeEventType(context.Background(), 12345, "My Events")
	require.NoError(t, err)
	require.Contains(t, runner.queries[0], "FROM `My Events`")
}

func TestCompareSchemas(t *testing.T) {
	runner := &stubRunner{responses: map[string]*nerdgraph.NRQLResult{
		"SELECT keyset() FROM Transaction": keysetResult([]string{"name", "host"}, []string{"duration"}),
		"SELECT keyset() FROM PageView":    keysetResult([]string{"name", "url"}, nil),
	}}
	svc := newTestService(t, runner)

	diff, err := svc.CompareSchemas(context.Background(), 12345, "Transaction", "PageView")
	require.NoError(t, err)
	require.Equal(t, "Transaction", diff.Left)
	require.Equal(t, "PageView", diff.Right)
	require.Equal(t, []Attribute{{Name: "duration", Type: "numeric"}, {Name: "host", Type: "string"}}, diff.OnlyInLeft)
	require.Equal(t, []Attribute{{Name: "url", Type: "string"}}, diff.OnlyInRight)
	require.Equal(t, []Attribute{{Name: "name", Type: "string"}}, diff.Common)
}

func TestValidateAttributes(t *testing.T) {
	runner := &stubRunner{responses: map[string]*nerdgraph.NRQLResult{
		"SELECT keyset() FROM Transaction": keysetResult([]string{"name"}, []string{"duration"}),
	}}
	svc := newTestService(t, runner)

	report, err := svc.ValidateAttributes(context.Background(), 12345, "Transaction", []string{"duration", "missing", "name"})
	require.NoError(t, err)
	require.Equal(t, []string{"duration", "name"}, report.Valid)
	require.Equal(t, []string{"missing"}, report.Missing)
}

func TestFindAttributeAcrossEventTypes(t *testing.T) {
	runner := &stubRunner{responses: map[string]*nerdgraph.NRQLResult{
		"SHOW EVENT TYPES": {Results: []map[string]any{
			{"eventType": "PageView"},
			{"eventType": "Transaction"},
		}},
		"SELECT keyset() FROM Transaction": keysetResult(nil, []string{"duration", "databaseDuration"}),
		"SELECT keyset() FROM PageView":    keysetResult(nil, []string{"duration"}),
	}}
	svc := newTestService(t, runner)

	matches, err := svc.FindAttribute(context.Background(), 12345, "Duration", nil)
	require.NoError(t, err)
	require.Equal(t, []AttributeMatch{
		{EventType: "PageView", Attribute: "duration", Type: "numeric"},
		{EventType: "Transaction", Attribute: "databaseDuration", Type: "numeric"},
		{EventType: "Transaction", Attribute: "duration", Type: "numeric"},
	}, matches)
}

func TestFindAttributeRequiresTerm(t *testing.T) {
	svc := newTestService(t, &stubRunner{})

	_, err := svc.FindAttribute(context.Background(), 12345, "", nil)
	var validationErr *nerdgraph.ValidationError
	require.ErrorAs(t, err, &validationErr)
}
