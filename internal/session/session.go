// Package session owns the single meeting this client is in: joining it,
// leaving it, and the optional auto-leave deadline.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of the Controller.
type State int

const (
	Idle State = iota
	Joining
	InSession
	Leaving
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Joining:
		return "joining"
	case InSession:
		return "in_session"
	case Leaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// Leave reasons carried into logs and session records.
const (
	ReasonSwitch    = "switch_meeting"
	ReasonAutoLeave = "auto_leave"
	ReasonThreshold = "leave_threshold"
	ReasonShutdown  = "shutdown"
)

var (
	// ErrNoHangupControl means the call has no reachable hangup control.
	// The session is kept and the hangup can be retried.
	ErrNoHangupControl = errors.New("hangup control not found")
	// ErrHangupFailed wraps any other hangup failure.
	ErrHangupFailed = errors.New("hangup failed")
)

// Session is the meeting currently joined.
type Session struct {
	ID        string    `json:"id"`
	MeetingID string    `json:"meeting_id"`
	Title     string    `json:"title"`
	ChannelID string    `json:"channel_id"`
	StartTime int64     `json:"start_time"`
	Token     string    `json:"token,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
	Deadline  time.Time `json:"deadline"` // zero when auto-leave is off
}

// Ended describes a session after a successful hangup.
type Ended struct {
	Session Session
	LeftAt  time.Time
	Reason  string
}

// JoinRequest asks the page to join one meeting. Mute and CameraOff turn the
// devices off on the pre-join surface if they are on.
type JoinRequest struct {
	ChannelID string `json:"channel_id"`
	MeetingID string `json:"meeting_id"`
	Mute      bool   `json:"mute"`
	CameraOff bool   `json:"camera_off"`
}

// JoinResult is what the page saw while joining.
type JoinResult struct {
	TrackData    string   `json:"track_data"` // tracking attribute of the confirm control
	MicWasOn     bool     `json:"mic_was_on"`
	VideoWasOn   bool     `json:"video_was_on"`
	ToggleErrors []string `json:"toggle_errors,omitempty"`
}

// Actions performs join and hangup in the page. Both calls are bounded by
// the implementation's own timeout.
type Actions interface {
	Join(ctx context.Context, req JoinRequest) (JoinResult, error)
	// Hangup returns ErrNoHangupControl (possibly wrapped) when there is
	// nothing to click.
	Hangup(ctx context.Context) error
}

// Recorder is started when a session begins and stopped when it ends.
// Failures stay inside the recorder.
type Recorder interface {
	Start(title string)
	Stop()
}

// History is the append-only set of meetings joined by this process.
type History struct {
	mu  sync.RWMutex
	ids []string
	set map[string]struct{}
}

// NewHistory returns an empty History.
func NewHistory() *History {
	return &History{set: make(map[string]struct{})}
}

// Add records id. Adding an id twice has no effect.
func (h *History) Add(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.set[id]; ok {
		return
	}
	h.set[id] = struct{}{}
	h.ids = append(h.ids, id)
}

// Contains reports whether id was joined before.
func (h *History) Contains(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.set[id]
	return ok
}

// IDs returns the joined ids in join order.
func (h *History) IDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.ids))
	copy(out, h.ids)
	return out
}

// Len returns the number of joined meetings.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.ids)
}
