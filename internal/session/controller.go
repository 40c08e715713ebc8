package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/tiroq/meetjoin/internal/catalog"
	"github.com/tiroq/meetjoin/internal/diaglog"
	"github.com/tiroq/meetjoin/internal/workspace"
)

// Options configure a Controller.
type Options struct {
	// AutoLeaveAfter arms a deadline on every join. Zero disables it.
	AutoLeaveAfter time.Duration
}

// Controller is the join/leave state machine. Join, Hangup and the auto-leave
// deadline are serialized, so at most one of two racing hangups reaches the
// page; the other finds no session and returns.
type Controller struct {
	actions Actions
	clock   clockwork.Clock
	opts    Options
	history *History

	recorder Recorder
	logger   *diaglog.Logger
	onEnd    func(Ended)

	opMu sync.Mutex // held for the whole of Join, Hangup and auto-leave

	mu     sync.RWMutex // guards the fields below for readers
	state  State
	active *Session
	timer  clockwork.Timer
}

// NewController returns an idle Controller.
func NewController(actions Actions, clk clockwork.Clock, opts Options) *Controller {
	return &Controller{
		actions: actions,
		clock:   clk,
		opts:    opts,
		history: NewHistory(),
		state:   Idle,
	}
}

// SetRecorder sets the recorder started and stopped with each session.
func (c *Controller) SetRecorder(r Recorder) { c.recorder = r }

// SetLogger wires the diagnostic log.
func (c *Controller) SetLogger(l *diaglog.Logger) { c.logger = l }

// SetEndHook registers f to run after every successful hangup. f runs with
// the controller's operation lock held and must not call back into it.
func (c *Controller) SetEndHook(f func(Ended)) { c.onEnd = f }

// History returns the set of meetings joined so far.
func (c *Controller) History() *History { return c.history }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Active returns a copy of the current session, or nil.
func (c *Controller) Active() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == nil {
		return nil
	}
	s := *c.active
	return &s
}

// Token returns the correlation token of the current call, or "".
func (c *Controller) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == nil {
		return ""
	}
	return c.active.Token
}

// Join leaves the current meeting, if any, and joins cand. If the old
// meeting cannot be left the join is not attempted. A failed join leaves the
// controller idle and cand out of the history, so it can be tried again.
func (c *Controller) Join(ctx context.Context, cand catalog.Candidate) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.active != nil {
		if _, err := c.hangupLocked(ctx, ReasonSwitch); err != nil {
			return fmt.Errorf("leave current meeting before joining %s: %w", cand.MeetingID, err)
		}
	}

	c.setState(Joining)
	c.log(diaglog.EventJoinStart, "", cand.MeetingID, "", map[string]interface{}{
		"title":      cand.Title,
		"channel_id": cand.ChannelID,
		"start_time": cand.StartTime,
	})

	res, err := c.actions.Join(ctx, JoinRequest{
		ChannelID: cand.ChannelID,
		MeetingID: cand.MeetingID,
		Mute:      true,
		CameraOff: true,
	})
	if err != nil {
		c.setState(Idle)
		c.log(diaglog.EventJoinFailed, "", cand.MeetingID, err.Error(), nil)
		return fmt.Errorf("join %s: %w", cand.MeetingID, err)
	}

	now := c.clock.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		MeetingID: cand.MeetingID,
		Title:     cand.Title,
		ChannelID: cand.ChannelID,
		StartTime: cand.StartTime,
		Token:     workspace.ExtractCorrelationToken(res.TrackData),
		JoinedAt:  now,
	}

	// Device toggles never undo a join.
	if res.MicWasOn || res.VideoWasOn || len(res.ToggleErrors) > 0 {
		c.log(diaglog.EventDeviceToggled, sess.ID, sess.MeetingID, "", map[string]interface{}{
			"mic_was_on":    res.MicWasOn,
			"video_was_on":  res.VideoWasOn,
			"toggle_errors": res.ToggleErrors,
		})
	}

	c.history.Add(cand.MeetingID)

	var timer clockwork.Timer
	if d := c.opts.AutoLeaveAfter; d > 0 {
		sess.Deadline = now.Add(d)
		id := sess.ID
		timer = c.clock.AfterFunc(d, func() { c.autoLeave(id) })
		c.log(diaglog.EventAutoLeaveArmed, sess.ID, sess.MeetingID, "", map[string]interface{}{
			"deadline": sess.Deadline.Format(time.RFC3339),
		})
	}

	c.mu.Lock()
	c.active = sess
	c.timer = timer
	c.state = InSession
	c.mu.Unlock()

	c.log(diaglog.EventJoinSuccess, sess.ID, sess.MeetingID, "", map[string]interface{}{
		"title":     sess.Title,
		"has_token": sess.Token != "",
	})

	if c.recorder != nil {
		c.recorder.Start(sess.Title)
	}
	return nil
}

// Hangup leaves the current meeting. It reports false with a nil error when
// there was nothing to leave. On error the session is kept.
func (c *Controller) Hangup(ctx context.Context, reason string) (bool, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.hangupLocked(ctx, reason)
}

// Close cancels the auto-leave deadline and leaves the current meeting.
func (c *Controller) Close(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.stopTimer()
	_, err := c.hangupLocked(ctx, ReasonShutdown)
	return err
}

// CancelDeadline stops the pending auto-leave deadline, if any. The session
// itself is kept.
func (c *Controller) CancelDeadline() {
	c.stopTimer()
}

func (c *Controller) hangupLocked(ctx context.Context, reason string) (bool, error) {
	c.mu.RLock()
	sess := c.active
	c.mu.RUnlock()
	if sess == nil {
		return false, nil
	}

	c.setState(Leaving)
	if err := c.actions.Hangup(ctx); err != nil {
		c.setState(InSession)
		c.log(diaglog.EventHangupFailed, sess.ID, sess.MeetingID, err.Error(), map[string]interface{}{
			"trigger": reason,
		})
		if errors.Is(err, ErrNoHangupControl) {
			return false, err
		}
		return false, fmt.Errorf("%w: %w", ErrHangupFailed, err)
	}

	c.stopTimer()
	if c.recorder != nil {
		c.recorder.Stop()
	}

	leftAt := c.clock.Now()
	c.mu.Lock()
	c.active = nil
	c.state = Idle
	c.mu.Unlock()

	c.log(diaglog.EventHangup, sess.ID, sess.MeetingID, reason, map[string]interface{}{
		"duration_seconds": int(leftAt.Sub(sess.JoinedAt).Seconds()),
	})

	if c.onEnd != nil {
		c.onEnd(Ended{Session: *sess, LeftAt: leftAt, Reason: reason})
	}
	return true, nil
}

// autoLeave runs when the deadline armed for sessionID expires. A deadline
// that outlived its session does nothing.
func (c *Controller) autoLeave(sessionID string) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	current := c.active
	c.mu.RUnlock()
	if current == nil || current.ID != sessionID {
		return
	}

	c.log(diaglog.EventAutoLeaveFired, current.ID, current.MeetingID, "", nil)
	_, _ = c.hangupLocked(context.Background(), ReasonAutoLeave)
}

func (c *Controller) stopTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) log(event, sessionID, meetingID, reason string, payload map[string]interface{}) {
	entry := diaglog.LogEntry{
		Component: diaglog.ComponentSession,
		Event:     event,
		SessionID: sessionID,
		MeetingID: meetingID,
		Reason:    reason,
	}
	if payload != nil {
		entry.Payload = payload
	}
	c.logger.Log(entry)
}
