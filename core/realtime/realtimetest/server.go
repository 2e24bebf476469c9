// Package realtimetest provides an in-process realtime service for tests:
// a token endpoint and a websocket endpoint that records what clients send.
package realtimetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const (
	Token        = "test-token"
	RealtimePath = "/v1/realtime"
)

// Message is one message received from a client.
type Message struct {
	Type string
	Raw  json.RawMessage
}

type Server struct {
	// BackendURL serves the token endpoint.
	BackendURL string
	// RealtimeURL is the websocket endpoint.
	RealtimeURL string

	server   *httptest.Server
	upgrader websocket.Upgrader

	tokenStatus int

	mu           sync.Mutex
	conn         *websocket.Conn
	subprotocols []string
	messages     []Message
	tokenCalls   int
	updated      chan struct{}
}

type ServerOption func(*Server)

// WithTokenStatus makes the token endpoint answer with status.
func WithTokenStatus(status int) ServerOption {
	return func(s *Server) { s.tokenStatus = status }
}

func NewServer(t testing.TB, opts ...ServerOption) *Server {
	t.Helper()

	s := &Server{
		tokenStatus: http.StatusOK,
		upgrader: websocket.Upgrader{
			CheckOrigin:  func(r *http.Request) bool { return true },
			Subprotocols: []string{"realtime"},
		},
		updated: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", s.handleToken)
	mux.HandleFunc(RealtimePath, s.handleRealtime)
	s.server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	s.BackendURL = s.server.URL
	s.RealtimeURL = "ws" + strings.TrimPrefix(s.server.URL, "http") + RealtimePath
	return s
}

func (s *Server) handleToken(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.tokenCalls++
	status := s.tokenStatus
	s.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, "token refused", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"client_secret": map[string]any{"value": Token},
	})
}

func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.subprotocols = websocket.Subprotocols(r)
	s.mu.Unlock()
	s.notify()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var header struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(data, &header)

		s.mu.Lock()
		s.messages = append(s.messages, Message{Type: header.Type, Raw: data})
		s.mu.Unlock()
		s.notify()
	}
}

func (s *Server) notify() {
	select {
	case s.updated <- struct{}{}:
	default:
	}
}

// Emit writes a message to the connected client.
func (s *Server) Emit(t testing.TB, msg any) {
	t.Helper()
	conn := s.waitForConn(t)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("expected to write to client, got %v", err)
	}
}

// EmitRaw writes a raw text frame to the connected client.
func (s *Server) EmitRaw(t testing.TB, data string) {
	t.Helper()
	conn := s.waitForConn(t)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(data)); err != nil {
		t.Fatalf("expected to write to client, got %v", err)
	}
}

// CloseClient closes the client connection with a close frame.
func (s *Server) CloseClient(t testing.TB, code int) {
	t.Helper()
	conn := s.waitForConn(t)

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), time.Now().Add(time.Second))
	_ = conn.Close()
}

// WaitForMessages blocks until at least n messages were received.
func (s *Server) WaitForMessages(t testing.TB, n int) []Message {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		if messages := s.Messages(); len(messages) >= n {
			return messages
		}
		select {
		case <-s.updated:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("expected %d messages, got %d", n, len(s.Messages()))
		}
	}
}

func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Subprotocols returns the subprotocols the last client offered.
func (s *Server) Subprotocols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subprotocols...)
}

func (s *Server) TokenCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenCalls
}

func (s *Server) waitForConn(t testing.TB) *websocket.Conn {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			return conn
		}
		select {
		case <-s.updated:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("expected a client to connect")
		}
	}
}

func (s *Server) Close() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	s.server.Close()
}
