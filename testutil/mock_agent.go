// Package testutil holds websocket fakes of the page agent and of OBS for
// package tests.
package testutil

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// AgentHandler answers one agent method. Returning a non-nil AgentError
// produces an ok:false response.
type AgentHandler func(params json.RawMessage) (interface{}, *AgentError)

// AgentError mirrors the error object of a failed response.
type AgentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type agentFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	OK     bool            `json:"ok"`
	Result interface{}     `json:"result,omitempty"`
	Error  *AgentError     `json:"error,omitempty"`
}

// MockAgent simulates the page agent over a websocket.
type MockAgent struct {
	server *httptest.Server

	mu       sync.Mutex
	handlers map[string]AgentHandler
	silent   map[string]bool
	calls    []string
	authz    string
	conns    []*websocket.Conn
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewMockAgent starts a mock agent. Methods without a handler answer ok
// with an empty result.
func NewMockAgent() *MockAgent {
	m := &MockAgent{
		handlers: make(map[string]AgentHandler),
		silent:   make(map[string]bool),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handleWebSocket))
	return m
}

// NewMockAgentAt starts a mock agent listening on addr, for tests where the
// client is already dialing that address before the agent exists.
func NewMockAgentAt(addr string) (*MockAgent, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	m := &MockAgent{
		handlers: make(map[string]AgentHandler),
		silent:   make(map[string]bool),
	}
	m.server = httptest.NewUnstartedServer(http.HandlerFunc(m.handleWebSocket))
	_ = m.server.Listener.Close()
	m.server.Listener = l
	m.server.Start()
	return m, nil
}

// URL is the ws:// address of the agent.
func (m *MockAgent) URL() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http")
}

// Close drops every connection and stops the server.
func (m *MockAgent) Close() {
	m.DropConnections()
	m.server.Close()
}

// Handle registers h for method.
func (m *MockAgent) Handle(method string, h AgentHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method] = h
}

// Respond registers a fixed successful result for method.
func (m *MockAgent) Respond(method string, result interface{}) {
	m.Handle(method, func(json.RawMessage) (interface{}, *AgentError) { return result, nil })
}

// Fail registers a fixed error for method.
func (m *MockAgent) Fail(method, code, message string) {
	m.Handle(method, func(json.RawMessage) (interface{}, *AgentError) {
		return nil, &AgentError{Code: code, Message: message}
	})
}

// Ignore makes the agent never answer method.
func (m *MockAgent) Ignore(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.silent[method] = true
}

// Calls returns the methods received so far, in order.
func (m *MockAgent) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Authorization is the Authorization header of the last handshake.
func (m *MockAgent) Authorization() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authz
}

// Connections counts handshakes accepted so far.
func (m *MockAgent) Connections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// DropConnections closes every open connection from the server side.
func (m *MockAgent) DropConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		_ = c.Close()
	}
}

func (m *MockAgent) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m.mu.Lock()
	m.authz = r.Header.Get("Authorization")
	m.conns = append(m.conns, conn)
	m.mu.Unlock()
	defer conn.Close()

	for {
		var req agentFrame
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		m.mu.Lock()
		m.calls = append(m.calls, req.Method)
		h, ok := m.handlers[req.Method]
		silent := m.silent[req.Method]
		m.mu.Unlock()

		if silent {
			continue
		}

		resp := agentFrame{Type: "response", ID: req.ID, OK: true}
		if ok {
			result, agentErr := h(req.Params)
			if agentErr != nil {
				resp.OK = false
				resp.Error = agentErr
			} else {
				resp.Result = result
			}
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}
