// Package catalog turns one workspace snapshot into the list of meetings
// that could be joined this poll cycle.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/tiroq/meetjoin/internal/diaglog"
	"github.com/tiroq/meetjoin/internal/workspace"
)

// ErrNoTeams means the page shows no teams at all. The web app is then not
// in the list layout the agent understands, which no retry will fix.
var ErrNoTeams = errors.New("no teams visible, is the teams list in grid mode?")

// Candidate is a live meeting seen this cycle.
type Candidate struct {
	Title            string `json:"title"` // "<team> -> <channel>"
	MeetingID        string `json:"meeting_id"`
	StartTime        int64  `json:"start_time"`
	ChannelID        string `json:"channel_id"`
	CorrelationToken string `json:"-"`
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s %d [%s]", c.Title, c.StartTime, c.MeetingID)
}

// Builder queries a workspace.Provider for candidates.
type Builder struct {
	provider workspace.Provider
	logger   *diaglog.Logger
}

// NewBuilder returns a Builder reading from provider.
func NewBuilder(provider workspace.Provider) *Builder {
	return &Builder{provider: provider}
}

// SetLogger wires the diagnostic log. A nil logger disables it.
func (b *Builder) SetLogger(l *diaglog.Logger) {
	b.logger = l
}

// Build lists every team, visits each channel that shows a live meeting and
// returns one Candidate per meeting header. Headers belonging to the call
// identified by activeToken are left out, as are duplicate meeting ids.
//
// A channel whose headers cannot be read is skipped for this cycle only.
func (b *Builder) Build(ctx context.Context, activeToken string) ([]Candidate, error) {
	teams, err := b.provider.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	if len(teams) == 0 {
		return nil, ErrNoTeams
	}

	seen := make(map[string]bool)
	var out []Candidate
	for _, team := range teams {
		for _, channel := range team.Channels {
			if !channel.HasMeeting {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			raws, err := b.provider.MeetingHeaders(ctx, channel.ID)
			if err != nil {
				b.logger.Log(diaglog.LogEntry{
					Component: diaglog.ComponentCatalog,
					Event:     diaglog.EventChannelSkipped,
					Reason:    err.Error(),
					Payload:   map[string]interface{}{"channel_id": channel.ID},
				})
				continue
			}

			for _, raw := range raws {
				h, err := workspace.DecodeHeader(raw)
				if err != nil {
					b.logger.Log(diaglog.LogEntry{
						Component: diaglog.ComponentCatalog,
						Event:     diaglog.EventHeaderSkipped,
						Reason:    err.Error(),
						Payload:   map[string]interface{}{"channel_id": channel.ID},
					})
					continue
				}
				if workspace.TokenMatches(h.CorrelationToken, activeToken) {
					continue
				}
				if seen[h.ID] {
					continue
				}
				seen[h.ID] = true
				out = append(out, Candidate{
					Title:            team.Name + " -> " + channel.Name,
					MeetingID:        h.ID,
					StartTime:        h.StartTime,
					ChannelID:        channel.ID,
					CorrelationToken: h.CorrelationToken,
				})
			}
		}
	}

	b.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCatalog,
		Event:     diaglog.EventCatalogBuilt,
		Payload:   map[string]interface{}{"teams": len(teams), "candidates": len(out)},
	})
	return out, nil
}
