// Package bridge talks to the agent script running inside the chat web
// page. The agent owns every DOM detail; meetjoin only sends it named
// requests over a websocket and reads back plain JSON.
//
// Every frame is one JSON object:
//
//	-> {"type":"request","id":"7","method":"list_teams","params":{}}
//	<- {"type":"response","id":"7","ok":true,"result":{"teams":[...]}}
//	<- {"type":"response","id":"8","ok":false,"error":{"code":"not_found","message":"no hangup button"}}
//
// The agent may also push {"type":"event","event":"..."} frames, which are
// logged and otherwise ignored.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame types
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// Methods understood by the page agent
const (
	MethodReady          = "ready"
	MethodListTeams      = "list_teams"
	MethodMeetingHeaders = "meeting_headers"
	MethodJoin           = "join"
	MethodHangup         = "hangup"
	MethodAttendeeCount  = "attendee_count"
)

// Error codes reported by the agent
const (
	CodeNotFound = "not_found" // element did not appear within the agent's wait budget
	CodeTimeout  = "timeout"
	CodeInternal = "internal"
)

var (
	// ErrNotFound means the page affordance did not appear in time.
	ErrNotFound = errors.New("element not found")
	// ErrTimeout means no answer arrived within the action timeout.
	ErrTimeout = errors.New("page agent timeout")
	// ErrNotConnected is returned while there is no live connection.
	ErrNotConnected = errors.New("page agent not connected")
	// ErrAlreadyConnected is returned by Connect while a connection is live.
	ErrAlreadyConnected = errors.New("page agent already connected")
	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("page agent client closed")
)

// Frame is the envelope of every message in both directions.
type Frame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	OK     bool            `json:"ok,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *FrameError     `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
}

// FrameError is a failed response.
type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap maps agent codes onto the package sentinels.
func (e *FrameError) Unwrap() error {
	switch e.Code {
	case CodeNotFound:
		return ErrNotFound
	case CodeTimeout:
		return ErrTimeout
	default:
		return nil
	}
}

// ReadyResult answers MethodReady.
type ReadyResult struct {
	Ready bool   `json:"ready"`
	Mode  string `json:"mode"` // teams list layout, "grid" when usable
}

type teamsResult struct {
	Teams []teamWire `json:"teams"`
}

type teamWire struct {
	Name     string        `json:"name"`
	ID       string        `json:"id"`
	Channels []channelWire `json:"channels"`
}

type channelWire struct {
	Name       string `json:"name"`
	ID         string `json:"id"`
	HasMeeting bool   `json:"has_meeting"`
}

type headersParams struct {
	ChannelID string `json:"channel_id"`
}

type headersResult struct {
	Headers []headerWire `json:"headers"`
}

type headerWire struct {
	ID            string `json:"id"`
	JoinControlID string `json:"join_control_id"`
}

// rosterResult carries the two roster section labels verbatim, e.g.
// "Participants (3)". Either may be empty when that section is absent.
type rosterResult struct {
	ParticipantsLabel string `json:"participants_label"`
	AttendeesLabel    string `json:"attendees_label"`
}
