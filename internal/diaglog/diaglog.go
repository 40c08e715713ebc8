// Package diaglog writes the structured NDJSON diagnostic log of meetjoin.
// It is switched on with MEETJOIN_DEBUG=true; otherwise every Log call is a
// no-op and no file is created.
package diaglog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ── Components ───────────────────────────────────────────────────────────────

const (
	ComponentEngine     = "engine"
	ComponentCatalog    = "catalog"
	ComponentSession    = "session"
	ComponentMembership = "membership"
	ComponentBridge     = "page-bridge"
	ComponentOBSClient  = "obs-ws-client"
	ComponentReconnect  = "reconnect-handler"
	ComponentCore       = "meetjoin-core"
)

// ── Events ───────────────────────────────────────────────────────────────────

const (
	EventCycle            = "cycle"
	EventSearchPaused     = "search_paused"
	EventCatalogBuilt     = "catalog_built"
	EventHeaderSkipped    = "header_skipped"
	EventChannelSkipped   = "channel_skipped"
	EventMeetingSelected  = "meeting_selected"
	EventJoinStart        = "join_start"
	EventJoinSuccess      = "join_success"
	EventJoinFailed       = "join_failed"
	EventDeviceToggled    = "device_toggled"
	EventHangup           = "hangup"
	EventHangupFailed     = "hangup_failed"
	EventAutoLeaveArmed   = "auto_leave_armed"
	EventAutoLeaveFired   = "auto_leave_fired"
	EventAttendeesSampled = "attendees_sampled"
	EventLeaveThreshold   = "leave_threshold"
	EventCommand          = "command"

	EventWSSend             = "ws_send"
	EventWSRecv             = "ws_recv"
	EventWSConnect          = "ws_connect"
	EventWSDisconnect       = "ws_disconnect"
	EventWSReconnectAttempt = "ws_reconnect_attempt"
	EventWSReconnectSuccess = "ws_reconnect_success"
	EventWSReconnectFailed  = "ws_reconnect_failed"
	EventRecordingStart     = "recording_start"
	EventRecordingStop      = "recording_stop"
	EventRecordingFailed    = "recording_failed"
)

// LogEntry is one event, written as a single JSON line.
type LogEntry struct {
	Timestamp string      `json:"ts"` // RFC3339Nano, filled in by Log
	Component string      `json:"component"`
	Event     string      `json:"event"`
	SessionID string      `json:"session_id,omitempty"`
	MeetingID string      `json:"meeting_id,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Payload   interface{} `json:"payload,omitempty"` // redacted before write
}

// Logger appends LogEntry values to a rolling NDJSON file.
type Logger struct {
	mu      sync.Mutex
	w       *rollingWriter
	enabled bool
}

// New opens the log at path when debug mode is on, and returns a disabled
// logger otherwise.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return NewNoOp(), nil
	}
	w, err := openRolling(path, 10*1024*1024)
	if err != nil {
		return nil, err
	}
	return &Logger{w: w, enabled: true}, nil
}

// NewNoOp returns a logger that drops everything. Nil *Logger values behave
// the same way.
func NewNoOp() *Logger {
	return &Logger{}
}

// Log writes entry. Sensitive payload keys are redacted first.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if entry.Payload != nil {
		entry.Payload = Redact(entry.Payload)
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(append(line, '\n'))
}

// Close releases the file. Safe on nil and disabled loggers.
func (l *Logger) Close() error {
	if l == nil || !l.enabled {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}

// IsDebugEnabled reports whether MEETJOIN_DEBUG is "true".
func IsDebugEnabled() bool {
	return os.Getenv("MEETJOIN_DEBUG") == "true"
}

// PathFor returns MEETJOIN_LOG_PATH if set, else <stateDir>/meetjoin-debug.log.
func PathFor(stateDir string) string {
	if p := os.Getenv("MEETJOIN_LOG_PATH"); p != "" {
		return p
	}
	return filepath.Join(stateDir, "meetjoin-debug.log")
}
