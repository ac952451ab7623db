package nerdgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Socket frame types for the graphql-ws style subscription protocol.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgKeepAlive      = "ka"
	msgStart          = "start"
	msgStop           = "stop"
	msgData           = "data"
	msgError          = "error"
	msgComplete       = "complete"
)

type wireMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventType identifies a subscription event.
type EventType string

const (
	EventData     EventType = "data"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event is one item on a subscription's stream. Terminal is set on the
// final event before the stream closes.
type Event struct {
	Type     EventType
	Payload  json.RawMessage
	Err      error
	Terminal bool
}

// SubscriberOptions configures the socket subscription client.
type SubscriberOptions struct {
	URL            string
	APIKey         string
	Dialer         *websocket.Dialer
	MaxReconnects  int
	ReconnectDelay time.Duration
	Logger         *zap.Logger
}

const (
	defaultMaxReconnects  = 5
	defaultReconnectDelay = time.Second
)

// Subscriber maintains one socket connection per subscription with
// reconnect-with-backoff on failure. Consumers read typed events from a
// channel; there are no callback registrations.
type Subscriber struct {
	url            string
	apiKey         string
	dialer         *websocket.Dialer
	maxReconnects  int
	reconnectDelay time.Duration
	logger         *zap.Logger

	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewSubscriber creates a subscription client.
func NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	if opts.URL == "" {
		return nil, &ValidationError{Message: "subscription url is required"}
	}
	if opts.APIKey == "" {
		return nil, &ValidationError{Message: "api key is required"}
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	maxReconnects := opts.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = defaultMaxReconnects
	}
	reconnectDelay := opts.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = defaultReconnectDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Subscriber{
		url:            opts.URL,
		apiKey:         opts.APIKey,
		dialer:         dialer,
		maxReconnects:  maxReconnects,
		reconnectDelay: reconnectDelay,
		logger:         logger,
		subs:           make(map[string]*Subscription),
	}, nil
}

// Subscription is an active socket subscription. The client owns the
// socket; callers hold the handle only to read events and unsubscribe.
// The events channel is written and closed exclusively by the read loop.
type Subscription struct {
	id     string
	query  string
	vars   map[string]any
	parent *Subscriber

	events   chan Event
	done     chan struct{}
	doneOnce sync.Once

	connMu sync.Mutex
	conn   *websocket.Conn
}

// Subscribe opens a socket, performs the connection-init/start handshake,
// and starts the read loop.
func (s *Subscriber) Subscribe(ctx context.Context, query string, variables map[string]any) (*Subscription, error) {
	if query == "" {
		return nil, &ValidationError{Message: "subscription query is required"}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sub := &Subscription{
		id:     uuid.New().String(),
		query:  query,
		vars:   variables,
		parent: s,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}

	conn, err := s.connect(ctx, sub)
	if err != nil {
		return nil, err
	}
	sub.setConn(conn)

	s.mu.Lock()
	s.subs[sub.id] = sub
	s.mu.Unlock()

	go sub.readLoop()
	return sub, nil
}

// Unsubscribe stops a subscription by ID. Idempotent; unknown IDs are
// ignored.
func (s *Subscriber) Unsubscribe(id string) {
	s.mu.Lock()
	sub := s.subs[id]
	s.mu.Unlock()

	if sub != nil {
		sub.stop()
	}
}

// Active returns the number of registered subscriptions.
func (s *Subscriber) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Subscriber) deregister(id string) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

// connect dials the endpoint and replays the init and start frames.
func (s *Subscriber) connect(ctx context.Context, sub *Subscription) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("API-Key", s.apiKey)

	conn, _, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	initPayload, _ := json.Marshal(map[string]string{"API-Key": s.apiKey})
	if err := conn.WriteJSON(wireMessage{Type: msgConnectionInit, Payload: initPayload}); err != nil {
		_ = conn.Close()
		return nil, &TransportError{Err: err}
	}

	startPayload, err := json.Marshal(map[string]any{
		"query":     sub.query,
		"variables": sub.vars,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("encode start frame: %w", err)
	}
	if err := conn.WriteJSON(wireMessage{ID: sub.id, Type: msgStart, Payload: startPayload}); err != nil {
		_ = conn.Close()
		return nil, &TransportError{Err: err}
	}

	return conn, nil
}

// ID returns the opaque subscription identifier.
func (sub *Subscription) ID() string {
	return sub.id
}

// Events returns the event stream. The channel closes after a terminal
// event: a complete frame, an unsubscribe, or exhausting the reconnect
// budget.
func (sub *Subscription) Events() <-chan Event {
	return sub.events
}

// Unsubscribe sends a stop frame when the socket is open and tears the
// subscription down. Safe to call more than once.
func (sub *Subscription) Unsubscribe() {
	sub.stop()
}

func (sub *Subscription) setConn(conn *websocket.Conn) {
	sub.connMu.Lock()
	old := sub.conn
	sub.conn = conn
	sub.connMu.Unlock()
	if old != nil && old != conn {
		_ = old.Close()
	}
}

func (sub *Subscription) currentConn() *websocket.Conn {
	sub.connMu.Lock()
	defer sub.connMu.Unlock()
	return sub.conn
}

// stop sends a best-effort stop frame and closes the socket. The read
// loop observes the closed socket and finishes the stream.
func (sub *Subscription) stop() {
	sub.doneOnce.Do(func() {
		close(sub.done)
		if conn := sub.currentConn(); conn != nil {
			_ = conn.WriteJSON(wireMessage{ID: sub.id, Type: msgStop})
			_ = conn.Close()
		}
	})
}

func (sub *Subscription) closed() bool {
	select {
	case <-sub.done:
		return true
	default:
		return false
	}
}

// emit delivers an event unless the subscription was stopped. Only called
// from the read loop.
func (sub *Subscription) emit(event Event) {
	select {
	case <-sub.done:
	case sub.events <- event:
	}
}

// readLoop dispatches incoming frames and reconnects with a linearly
// growing delay after socket errors. Attempts reset once a payload frame
// arrives; exhausting the reconnect budget emits exactly one terminal
// error event.
func (sub *Subscription) readLoop() {
	defer func() {
		sub.parent.deregister(sub.id)
		sub.doneOnce.Do(func() {
			close(sub.done)
			if conn := sub.currentConn(); conn != nil {
				_ = conn.Close()
			}
		})
		close(sub.events)
	}()

	reconnects := 0

	for {
		if sub.closed() {
			return
		}

		conn := sub.currentConn()
		if conn == nil {
			return
		}

		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if sub.closed() {
				return
			}

			reconnects++
			if reconnects >= sub.parent.maxReconnects {
				terminal := &TransportError{Err: fmt.Errorf("subscription failed after %d reconnect attempts: %w", reconnects, err)}
				sub.emit(Event{Type: EventError, Err: terminal, Terminal: true})
				return
			}

			sub.parent.logger.Debug("subscription socket error, reconnecting",
				zap.String("subscription_id", sub.id),
				zap.Int("attempt", reconnects),
				zap.Error(err))

			delay := time.Duration(reconnects) * sub.parent.reconnectDelay
			select {
			case <-sub.done:
				return
			case <-time.After(delay):
			}

			newConn, dialErr := sub.parent.connect(context.Background(), sub)
			if dialErr != nil {
				continue
			}
			sub.setConn(newConn)
			continue
		}

		switch msg.Type {
		case msgData:
			reconnects = 0
			sub.emit(Event{Type: EventData, Payload: msg.Payload})
		case msgError:
			reconnects = 0
			sub.emit(Event{Type: EventError, Err: decodeFrameError(msg.Payload)})
		case msgComplete:
			sub.emit(Event{Type: EventComplete, Terminal: true})
			return
		case msgConnectionAck, msgKeepAlive:
			// Housekeeping frames arrive during every reconnect handshake,
			// so they do not reset the attempt counter.
		}
	}
}

func decodeFrameError(payload json.RawMessage) error {
	var details []GraphQLErrorDetail
	if err := json.Unmarshal(payload, &details); err == nil && len(details) > 0 {
		return &GraphQLError{Errors: details}
	}
	var single GraphQLErrorDetail
	if err := json.Unmarshal(payload, &single); err == nil && single.Message != "" {
		return &GraphQLError{Errors: []GraphQLErrorDetail{single}}
	}
	return &GraphQLError{Errors: []GraphQLErrorDetail{{Message: string(payload)}}}
}
