package nerdgraph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCombineRequestsAliasesAndPrefixes(t *testing.T) {
	combined, err := CombineRequests([]Request{
		{
			Query:     `query ($accountId: Int!) { actor { account(id: $accountId) { name } } }`,
			Variables: map[string]any{"accountId": 1},
		},
		{
			Query:     `query ($guid: EntityGuid!) { actor { entity(guid: $guid) { name } } }`,
			Variables: map[string]any{"guid": "abc"},
		},
	})
	require.NoError(t, err)

	require.Contains(t, combined.Query, "op0_actor")
	require.Contains(t, combined.Query, "op1_actor")
	require.Contains(t, combined.Query, "$op0_accountId")
	require.Contains(t, combined.Query, "$op1_guid")
	require.NotContains(t, combined.Query, "$accountId")

	require.Equal(t, map[string]any{"op0_accountId": 1, "op1_guid": "abc"}, combined.Variables)
}

func TestCombineRequestsSinglePassthrough(t *testing.T) {
	req := Request{Query: `{ actor { user { name } } }`}
	combined, err := CombineRequests([]Request{req})
	require.NoError(t, err)
	require.Equal(t, req, combined)
}

func TestCombineRequestsRejectsMixedOperations(t *testing.T) {
	_, err := CombineRequests([]Request{
		{Query: `query { actor { user { name } } }`},
		{Query: `mutation { dashboardDelete(guid: "g") { status } }`},
	})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestCombineRequestsRejectsInvalidDocument(t *testing.T) {
	_, err := CombineRequests([]Request{
		{Query: `query {`},
		{Query: `query { actor { user { name } } }`},
	})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func newBatchTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	transport, err := NewTransport(TransportOptions{APIKey: "test-key", URL: server.URL})
	require.NoError(t, err)
	return NewClientWithTransport(transport, nil, nil, nil), &calls
}

func TestBatcherCoalescesQueuedQueries(t *testing.T) {
	client, calls := newBatchTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Contains(t, req.Query, "op0_")
		require.Contains(t, req.Query, "op1_")
		require.Contains(t, req.Query, "op2_")

		_, _ = w.Write([]byte(`{"data":{
			"op0_actor":{"position":0},
			"op1_actor":{"position":1},
			"op2_actor":{"position":2}}}`))
	})

	batcher := NewBatcher(client, BatchOptions{BatchSize: 50, Window: 50 * time.Millisecond})

	results := make([]map[string]any, 3)
	errs := make([]error, 3)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = batcher.Queue(context.Background(), Request{
				Query: `{ actor { user { name } } }`,
			})
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, *calls)
	for i := 0; i < 3; i++ {
		require.NoError(t, errs[i])
		actor, ok := results[i]["actor"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, float64(i), actor["position"])
	}
}

func TestBatcherDeliversSingleQueryOnWindowFlush(t *testing.T) {
	client, calls := newBatchTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotContains(t, req.Query, "op0_")

		_, _ = w.Write([]byte(`{"data":{"actor":{"user":{"name":"alice"}}}}`))
	})

	batcher := NewBatcher(client, BatchOptions{BatchSize: 50, Window: 20 * time.Millisecond})

	result, err := batcher.Queue(context.Background(), Request{
		Query: `{ actor { user { name } } }`,
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, *calls)

	actor, ok := result["actor"].(map[string]any)
	require.True(t, ok)
	user, ok := actor["user"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "alice", user["name"])
}

func TestBatcherFlushesAtBatchSize(t *testing.T) {
	client, calls := newBatchTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"op0_actor":{},"op1_actor":{}}}`))
	})

	// A generous window ensures only the size trigger can flush.
	batcher := NewBatcher(client, BatchOptions{BatchSize: 2, Window: time.Hour})

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = batcher.Queue(context.Background(), Request{Query: `{ actor { user { name } } }`})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.EqualValues(t, 1, *calls)
}

func TestBatcherFlushFailureRejectsAllWaiters(t *testing.T) {
	client, _ := newBatchTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	batcher := NewBatcher(client, BatchOptions{BatchSize: 2, Window: time.Hour})

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = batcher.Queue(context.Background(), Request{Query: `{ actor { user { name } } }`})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
	}
}

func TestBatcherRejectsFragmentsUpfront(t *testing.T) {
	client, calls := newBatchTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	batcher := NewBatcher(client, BatchOptions{})

	_, err := batcher.Queue(context.Background(), Request{
		Query: `fragment f on Actor { user { name } } query { actor { ...f } }`,
	})
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.EqualValues(t, 0, *calls)
}
