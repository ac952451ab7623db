package nerdgraph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscriptionStubServer speaks just enough of the socket protocol for the
// client: it consumes the init and start frames, then hands control to the
// scenario function.
func subscriptionStubServer(t *testing.T, scenario func(conn *websocket.Conn, start wireMessage)) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close() // nolint:errcheck // test server teardown

		var init wireMessage
		if err := conn.ReadJSON(&init); err != nil || init.Type != msgConnectionInit {
			return
		}
		_ = conn.WriteJSON(wireMessage{Type: msgConnectionAck})

		var start wireMessage
		if err := conn.ReadJSON(&start); err != nil || start.Type != msgStart {
			return
		}

		scenario(conn, start)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func newTestSubscriber(t *testing.T, server *httptest.Server, maxReconnects int) *Subscriber {
	t.Helper()
	subscriber, err := NewSubscriber(SubscriberOptions{
		URL:            wsURL(server),
		APIKey:         "test-key",
		MaxReconnects:  maxReconnects,
		ReconnectDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return subscriber
}

func collectEvents(t *testing.T, sub *Subscription, timeout time.Duration) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(timeout)
	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, event)
		case <-deadline:
			t.Fatalf("timed out waiting for subscription events, got %d so far", len(events))
		}
	}
}

func TestSubscribeReceivesDataThenComplete(t *testing.T) {
	server := subscriptionStubServer(t, func(conn *websocket.Conn, start wireMessage) {
		var payload struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		_ = json.Unmarshal(start.Payload, &payload)
		if payload.Query == "" {
			return
		}

		_ = conn.WriteJSON(wireMessage{ID: start.ID, Type: msgData, Payload: json.RawMessage(`{"value":1}`)})
		_ = conn.WriteJSON(wireMessage{ID: start.ID, Type: msgData, Payload: json.RawMessage(`{"value":2}`)})
		_ = conn.WriteJSON(wireMessage{ID: start.ID, Type: msgComplete})
	})

	subscriber := newTestSubscriber(t, server, 5)
	sub, err := subscriber.Subscribe(context.Background(), `subscription { events }`, nil)
	require.NoError(t, err)

	events := collectEvents(t, sub, 5*time.Second)
	require.Len(t, events, 3)
	require.Equal(t, EventData, events[0].Type)
	require.JSONEq(t, `{"value":1}`, string(events[0].Payload))
	require.Equal(t, EventData, events[1].Type)
	require.Equal(t, EventComplete, events[2].Type)
	require.True(t, events[2].Terminal)
	require.Equal(t, 0, subscriber.Active())
}

func TestSubscribeErrorFrameIsNotTerminal(t *testing.T) {
	server := subscriptionStubServer(t, func(conn *websocket.Conn, start wireMessage) {
		_ = conn.WriteJSON(wireMessage{ID: start.ID, Type: msgError, Payload: json.RawMessage(`[{"message":"field unavailable"}]`)})
		_ = conn.WriteJSON(wireMessage{ID: start.ID, Type: msgData, Payload: json.RawMessage(`{"value":3}`)})
		_ = conn.WriteJSON(wireMessage{ID: start.ID, Type: msgComplete})
	})

	subscriber := newTestSubscriber(t, server, 5)
	sub, err := subscriber.Subscribe(context.Background(), `subscription { events }`, nil)
	require.NoError(t, err)

	events := collectEvents(t, sub, 5*time.Second)
	require.Len(t, events, 3)
	require.Equal(t, EventError, events[0].Type)
	require.False(t, events[0].Terminal)
	var gqlErr *GraphQLError
	require.ErrorAs(t, events[0].Err, &gqlErr)
	require.Equal(t, EventData, events[1].Type)
}

func TestSubscribeTerminatesAfterReconnectBudget(t *testing.T) {
	// Every accepted connection is dropped immediately after the
	// handshake, so each reconnect attempt fails again.
	server := subscriptionStubServer(t, func(conn *websocket.Conn, start wireMessage) {
		_ = conn.Close()
	})

	subscriber := newTestSubscriber(t, server, 3)
	sub, err := subscriber.Subscribe(context.Background(), `subscription { events }`, nil)
	require.NoError(t, err)

	events := collectEvents(t, sub, 5*time.Second)

	terminalErrors := 0
	for _, event := range events {
		if event.Type == EventError && event.Terminal {
			terminalErrors++
		}
	}
	require.Equal(t, 1, terminalErrors)
	require.Equal(t, 0, subscriber.Active())
}

func TestUnsubscribeReleasesUndrainedStream(t *testing.T) {
	// The first connection fills the event buffer of a consumer that never
	// reads; later connections drop immediately until the reconnect budget
	// runs out and a terminal event is pending behind the full buffer.
	var conns int32
	server := subscriptionStubServer(t, func(conn *websocket.Conn, start wireMessage) {
		if atomic.AddInt32(&conns, 1) == 1 {
			for i := 0; i < 16; i++ {
				_ = conn.WriteJSON(wireMessage{ID: start.ID, Type: msgData, Payload: json.RawMessage(`{"value":1}`)})
			}
		}
		_ = conn.Close()
	})

	subscriber := newTestSubscriber(t, server, 2)
	sub, err := subscriber.Subscribe(context.Background(), `subscription { events }`, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&conns) >= 2
	}, 5*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	sub.Unsubscribe()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				require.Equal(t, 0, subscriber.Active())
				return
			}
		case <-deadline:
			t.Fatal("events channel never closed after unsubscribe")
		}
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	hold := make(chan struct{})
	server := subscriptionStubServer(t, func(conn *websocket.Conn, start wireMessage) {
		<-hold
	})
	t.Cleanup(func() { close(hold) })

	subscriber := newTestSubscriber(t, server, 5)
	sub, err := subscriber.Subscribe(context.Background(), `subscription { events }`, nil)
	require.NoError(t, err)
	require.Equal(t, 1, subscriber.Active())

	sub.Unsubscribe()
	sub.Unsubscribe()
	subscriber.Unsubscribe(sub.ID())

	events := collectEvents(t, sub, 5*time.Second)
	for _, event := range events {
		require.NotEqual(t, EventData, event.Type)
	}
	require.Equal(t, 0, subscriber.Active())
}
