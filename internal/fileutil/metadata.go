// Package fileutil names recordings and writes the per-session JSON record.
package fileutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SessionsDir is the subdirectory of the state dir holding session records.
const SessionsDir = "sessions"

// SessionRecord is written once for every session that ended.
type SessionRecord struct {
	Version         string    `json:"version"`
	SessionID       string    `json:"session_id"`
	MeetingID       string    `json:"meeting_id"`
	Title           string    `json:"title"`
	ChannelID       string    `json:"channel_id"`
	MeetingStart    int64     `json:"meeting_start"`
	JoinedAt        time.Time `json:"joined_at"`
	LeftAt          time.Time `json:"left_at"`
	Duration        string    `json:"duration"`
	DurationMs      int64     `json:"duration_ms"`
	PeakAttendees   *int      `json:"peak_attendees"` // nil if never sampled
	LeaveReason     string    `json:"leave_reason"`
	RecorderBackend string    `json:"recorder_backend"`
}

// WriteSessionRecord writes rec to <stateDir>/sessions/<BaseName>.json with
// an atomic temp + rename, and returns the path.
func WriteSessionRecord(stateDir string, rec *SessionRecord) (string, error) {
	dir := filepath.Join(stateDir, SessionsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create sessions dir: %w", err)
	}
	path := filepath.Join(dir, BaseName(rec.JoinedAt, rec.Title)+".json")
	if err := writeJSONAtomic(path, rec); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSONAtomic(path string, v interface{}) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "record-*.tmp")
	if err != nil {
		return fmt.Errorf("create record temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Ensure cleanup on error.
	success := false
	defer func() {
		if !success {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync record: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close record temp: %w", err)
	}
	success = true

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename record: %w", err)
	}
	return nil
}
