package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tiroq/meetjoin/internal/membership"
	"github.com/tiroq/meetjoin/internal/session"
	"github.com/tiroq/meetjoin/internal/workspace"
)

var (
	_ workspace.Provider = (*Client)(nil)
	_ session.Actions    = (*Client)(nil)
	_ membership.Counter = (*Client)(nil)
)

// Ready asks the agent whether the page has finished loading its teams list.
func (c *Client) Ready(ctx context.Context) (ReadyResult, error) {
	var res ReadyResult
	if err := c.call(ctx, MethodReady, nil, &res); err != nil {
		return ReadyResult{}, err
	}
	return res, nil
}

// WaitReady connects if needed and polls Ready every interval until the page
// reports ready or timeout passes. Dial failures and agent errors are retried
// until then, so the agent may come up after the wait has started.
func (c *Client) WaitReady(ctx context.Context, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		if err := c.ensureConnected(ctx); err != nil {
			lastErr = err
		} else if res, err := c.Ready(ctx); err != nil {
			lastErr = err
		} else if res.Ready {
			return nil
		} else {
			lastErr = fmt.Errorf("page not ready (mode %q)", res.Mode)
		}

		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return fmt.Errorf("page agent not ready after %s: %w", timeout, lastErr)
		case <-time.After(interval):
		}
	}
}

func (c *Client) ensureConnected(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}
	if err := c.Connect(ctx); err != nil && !errors.Is(err, ErrAlreadyConnected) {
		return err
	}
	return nil
}

// ListTeams returns every team with its channels.
func (c *Client) ListTeams(ctx context.Context) ([]workspace.Team, error) {
	var res teamsResult
	if err := c.call(ctx, MethodListTeams, nil, &res); err != nil {
		return nil, err
	}

	teams := make([]workspace.Team, 0, len(res.Teams))
	for _, t := range res.Teams {
		team := workspace.Team{Name: t.Name, ID: t.ID, Channels: make([]workspace.Channel, 0, len(t.Channels))}
		for _, ch := range t.Channels {
			team.Channels = append(team.Channels, workspace.Channel{Name: ch.Name, ID: ch.ID, HasMeeting: ch.HasMeeting})
		}
		teams = append(teams, team)
	}
	return teams, nil
}

// MeetingHeaders opens channelID and returns its live meeting headers.
func (c *Client) MeetingHeaders(ctx context.Context, channelID string) ([]workspace.RawHeader, error) {
	var res headersResult
	if err := c.call(ctx, MethodMeetingHeaders, headersParams{ChannelID: channelID}, &res); err != nil {
		return nil, err
	}

	headers := make([]workspace.RawHeader, 0, len(res.Headers))
	for _, h := range res.Headers {
		headers = append(headers, workspace.RawHeader{ID: h.ID, JoinControlID: h.JoinControlID})
	}
	return headers, nil
}

// Join clicks through the pre-join surface of one meeting.
func (c *Client) Join(ctx context.Context, req session.JoinRequest) (session.JoinResult, error) {
	var res session.JoinResult
	if err := c.call(ctx, MethodJoin, req, &res); err != nil {
		return session.JoinResult{}, err
	}
	return res, nil
}

// Hangup clicks the hangup control of the active call.
func (c *Client) Hangup(ctx context.Context) error {
	err := c.call(ctx, MethodHangup, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %w", session.ErrNoHangupControl, err)
	}
	return err
}

// AttendeeCount opens the roster and parses its two section labels.
func (c *Client) AttendeeCount(ctx context.Context) (workspace.Roster, error) {
	var res rosterResult
	if err := c.call(ctx, MethodAttendeeCount, nil, &res); err != nil {
		return workspace.Roster{}, err
	}
	return workspace.Roster{
		Participants: workspace.ParseRosterLabel(res.ParticipantsLabel),
		Attendees:    workspace.ParseRosterLabel(res.AttendeesLabel),
	}, nil
}
