package testutil

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// OBS failure modes
const (
	ModeNormal  = "normal"
	ModeCode204 = "code204" // InvalidRequest, unknown request type
	ModeCode203 = "code203" // RequestProcessingFailed
	ModeSilent  = "silent"  // never answer requests
)

const (
	obsChallenge = "testchallenge"
	obsSalt      = "testsalt"
)

type obsMessage struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

// MockOBS simulates an OBS WebSocket v5 server.
type MockOBS struct {
	server *httptest.Server

	mu         sync.Mutex
	mode       string
	password   string
	version    string
	recording  bool
	outputPath string
	requests   []string
	conns      []*websocket.Conn
	authFailed bool
}

// NewMockOBS starts a mock OBS without authentication.
func NewMockOBS() *MockOBS {
	m := &MockOBS{
		mode:       ModeNormal,
		version:    "30.0.2",
		outputPath: "/recordings/2026-03-02 14-30-00.mkv",
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handleWebSocket))
	return m
}

// URL is the ws:// address of the server.
func (m *MockOBS) URL() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http")
}

// Close drops connections and stops the server.
func (m *MockOBS) Close() {
	m.DropConnections()
	m.server.Close()
}

// RequirePassword makes Hello carry an auth challenge for password.
func (m *MockOBS) RequirePassword(password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.password = password
}

// SetVersion sets the OBS version reported by GetVersion.
func (m *MockOBS) SetVersion(v string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version = v
}

// SetOutputPath sets the file StopRecord reports.
func (m *MockOBS) SetOutputPath(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputPath = p
}

// SetFailureMode configures how the server responds to requests
func (m *MockOBS) SetFailureMode(mode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// Recording reports whether StartRecord was called without a later StopRecord.
func (m *MockOBS) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

// Requests returns the request types received so far, in order.
func (m *MockOBS) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}

// AuthFailed reports whether a client sent a wrong Identify secret.
func (m *MockOBS) AuthFailed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authFailed
}

// Connections counts accepted handshakes.
func (m *MockOBS) Connections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// DropConnections closes every open connection from the server side.
func (m *MockOBS) DropConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		_ = c.Close()
	}
}

// SendRecordStateChanged pushes a RecordStateChanged event to every client.
func (m *MockOBS) SendRecordStateChanged(active bool, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := json.Marshal(map[string]interface{}{
		"eventType": "RecordStateChanged",
		"eventData": map[string]interface{}{"outputActive": active, "outputPath": path},
	})
	for _, c := range m.conns {
		_ = c.WriteJSON(obsMessage{Op: 5, D: data})
	}
}

func (m *MockOBS) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	m.mu.Lock()
	password := m.password
	m.mu.Unlock()

	hello := map[string]interface{}{"obsWebSocketVersion": "5.1.0", "rpcVersion": 1}
	if password != "" {
		hello["authentication"] = map[string]string{"challenge": obsChallenge, "salt": obsSalt}
	}
	if err := m.write(conn, 0, hello); err != nil {
		return
	}

	var identify obsMessage
	if err := conn.ReadJSON(&identify); err != nil || identify.Op != 1 {
		return
	}
	if password != "" {
		var d struct {
			Authentication string `json:"authentication"`
		}
		_ = json.Unmarshal(identify.D, &d)
		if d.Authentication != obsAuth(password) {
			m.mu.Lock()
			m.authFailed = true
			m.mu.Unlock()
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4009, "Authentication failed"))
			return
		}
	}

	m.mu.Lock()
	m.conns = append(m.conns, conn)
	m.mu.Unlock()

	if err := m.write(conn, 2, map[string]int{"negotiatedRpcVersion": 1}); err != nil {
		return
	}

	for {
		var msg obsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Op != 6 {
			continue
		}
		var req struct {
			RequestType string `json:"requestType"`
			RequestID   string `json:"requestId"`
		}
		if err := json.Unmarshal(msg.D, &req); err != nil {
			return
		}
		resp, ok := m.respond(req.RequestType, req.RequestID)
		if !ok {
			continue
		}
		if err := m.write(conn, 7, resp); err != nil {
			return
		}
	}
}

// write serializes writes with the event pusher.
func (m *MockOBS) write(conn *websocket.Conn, op int, d interface{}) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return conn.WriteJSON(obsMessage{Op: op, D: raw})
}

func (m *MockOBS) respond(requestType, requestID string) (map[string]interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, requestType)

	status := map[string]interface{}{"result": true, "code": 100}
	resp := map[string]interface{}{
		"requestType":   requestType,
		"requestId":     requestID,
		"requestStatus": status,
	}

	switch m.mode {
	case ModeSilent:
		return nil, false
	case ModeCode204:
		status["result"], status["code"], status["comment"] = false, 204, "InvalidRequestType"
		return resp, true
	case ModeCode203:
		status["result"], status["code"], status["comment"] = false, 203, "RequestProcessingFailed"
		return resp, true
	}

	switch requestType {
	case "GetVersion":
		resp["responseData"] = map[string]string{"obsVersion": m.version, "obsWebSocketVersion": "5.1.0"}
	case "GetRecordStatus":
		resp["responseData"] = map[string]interface{}{"outputActive": m.recording, "outputDuration": 0, "outputBytes": 0}
	case "StartRecord":
		if m.recording {
			status["result"], status["code"], status["comment"] = false, 500, "OutputRunning"
			break
		}
		m.recording = true
	case "StopRecord":
		if !m.recording {
			status["result"], status["code"], status["comment"] = false, 501, "OutputNotRunning"
			break
		}
		m.recording = false
		resp["responseData"] = map[string]string{"outputPath": m.outputPath}
	}
	return resp, true
}

func obsAuth(password string) string {
	secret := sha256.Sum256([]byte(password + obsSalt))
	auth := sha256.Sum256([]byte(base64.StdEncoding.EncodeToString(secret[:]) + obsChallenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}
