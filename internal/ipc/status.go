// Package ipc is the file-based control channel between meetjoin-core and
// meetjoin-ctl: a command file the daemon consumes and a status snapshot it
// rewrites every cycle.
package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// StatusFile is the name of the snapshot inside the state dir.
const StatusFile = "status.json"

// SessionStatus describes the joined meeting
type SessionStatus struct {
	ID        string    `json:"id"`
	MeetingID string    `json:"meeting_id"`
	Title     string    `json:"title"`
	StartTime int64     `json:"start_time"`
	JoinedAt  time.Time `json:"joined_at"`
	Deadline  time.Time `json:"deadline,omitzero"`
	HasToken  bool      `json:"has_token"`
}

// CandidateStatus is one meeting seen in the last catalog
type CandidateStatus struct {
	Title     string `json:"title"`
	MeetingID string `json:"meeting_id"`
	StartTime int64  `json:"start_time"`
}

// StatusSnapshot represents the complete daemon state at a point in time
type StatusSnapshot struct {
	State         string            `json:"state"`          // Session controller state
	SearchPaused  bool              `json:"search_paused"`  // Paused by command
	Cycle         int               `json:"cycle"`          // Completed poll cycles
	Session       *SessionStatus    `json:"session"`        // nil when idle
	Candidates    []CandidateStatus `json:"candidates"`     // Last catalog
	History       []string          `json:"history"`        // Joined meeting ids, in order
	Attendees     *int              `json:"attendees"`      // nil when unknown
	PeakAttendees *int              `json:"peak_attendees"` // nil when unknown
	LastAction    string            `json:"last_action"`    // Last action taken
	LastError     string            `json:"last_error"`     // Last error message
	Timestamp     time.Time         `json:"timestamp"`      // Snapshot time
}

// WriteStatus persists StatusSnapshot to <dir>/status.json using atomic write
func WriteStatus(dir string, status *StatusSnapshot) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return atomicWriteJSON(filepath.Join(dir, StatusFile), status)
}

// ReadStatus loads StatusSnapshot from <dir>/status.json
func ReadStatus(dir string) (*StatusSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, StatusFile))
	if err != nil {
		return nil, err
	}

	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// atomicWriteJSON writes data to a file atomically using temp file + rename
func atomicWriteJSON(path string, data interface{}) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	// Ensure cleanup on error
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil // Prevent defer cleanup

	return os.Rename(tmpPath, path)
}
