// Package workspace describes the chat workspace as the page agent reports
// it: teams, their channels, and the live meeting headers of a channel.
package workspace

import "context"

// Team is one team in the sidebar, with its channels resolved eagerly.
type Team struct {
	Name     string    `json:"name"`
	ID       string    `json:"id"`
	Channels []Channel `json:"channels"`
}

// Channel belongs to exactly one Team.
type Channel struct {
	Name       string `json:"name"`
	ID         string `json:"id"`
	HasMeeting bool   `json:"has_meeting"` // active-calls badge seen at listing time
}

// RawHeader is a live meeting header exactly as scraped from the page.
type RawHeader struct {
	ID            string `json:"id"`              // "m<epoch-millis>"
	JoinControlID string `json:"join_control_id"` // id of the header's join button
}

// Header is a decoded RawHeader.
type Header struct {
	ID               string
	StartTime        int64 // unix seconds, minute granularity in practice
	CorrelationToken string
}

// Roster holds the two disjoint attendee counts of the active call.
type Roster struct {
	Participants int `json:"participants"`
	Attendees    int `json:"attendees"`
}

// Total is the number of people in the call.
func (r Roster) Total() int {
	return r.Participants + r.Attendees
}

// Provider lists the workspace for one poll cycle.
type Provider interface {
	ListTeams(ctx context.Context) ([]Team, error)
	MeetingHeaders(ctx context.Context, channelID string) ([]RawHeader, error)
}
