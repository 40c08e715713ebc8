// Package engine runs the poll loop: each cycle it builds the meeting
// catalog, picks at most one meeting, joins it, samples the roster and
// applies the leave rule.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/jonboulle/clockwork"

	"github.com/tiroq/meetjoin/internal/catalog"
	"github.com/tiroq/meetjoin/internal/config"
	"github.com/tiroq/meetjoin/internal/diaglog"
	"github.com/tiroq/meetjoin/internal/ipc"
	"github.com/tiroq/meetjoin/internal/membership"
	"github.com/tiroq/meetjoin/internal/metrics"
	"github.com/tiroq/meetjoin/internal/selection"
	"github.com/tiroq/meetjoin/internal/session"
)

// CatalogBuilder lists the live meetings of one cycle.
type CatalogBuilder interface {
	Build(ctx context.Context, activeToken string) ([]catalog.Candidate, error)
}

// EngineState is everything the loop carries from one cycle to the next.
// It is owned by the goroutine running Run.
type EngineState struct {
	Cycle      int // completed cycles
	Paused     bool
	Candidates []catalog.Candidate

	Count      int
	CountKnown bool

	LastAction string
	LastError  string
}

// Deps are the collaborators of an Engine. Out, Err, Diag and Metrics may be
// nil. StateDir "" disables the status file and session records.
type Deps struct {
	Catalog  CatalogBuilder
	Session  *session.Controller
	Counter  membership.Counter
	Tracker  *membership.Tracker
	Clock    clockwork.Clock
	Metrics  *metrics.Metrics
	Diag     *diaglog.Logger
	Out      *log.Logger
	Err      *log.Logger
	StateDir string

	RecorderBackend string
	Version         string
}

// Engine drives the session controller from the poll loop.
type Engine struct {
	cfg      *config.Config
	catalog  CatalogBuilder
	session  *session.Controller
	counter  membership.Counter
	tracker  *membership.Tracker
	clock    clockwork.Clock
	metrics  *metrics.Metrics
	diag     *diaglog.Logger
	out      *log.Logger
	errLog   *log.Logger
	stateDir string

	recorderBackend string
	version         string
}

// New returns an Engine and registers it for session-end notifications.
func New(cfg *config.Config, d Deps) *Engine {
	discard := log.New(io.Discard, "", 0)
	e := &Engine{
		cfg:             cfg,
		catalog:         d.Catalog,
		session:         d.Session,
		counter:         d.Counter,
		tracker:         d.Tracker,
		clock:           d.Clock,
		metrics:         d.Metrics,
		diag:            d.Diag,
		out:             d.Out,
		errLog:          d.Err,
		stateDir:        d.StateDir,
		recorderBackend: d.RecorderBackend,
		version:         d.Version,
	}
	if e.out == nil {
		e.out = discard
	}
	if e.errLog == nil {
		e.errLog = discard
	}
	if e.tracker == nil {
		e.tracker = membership.NewTracker()
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	e.session.SetEndHook(e.onSessionEnd)
	return e
}

// Run polls until ctx is done or a quit command arrives, both of which
// return nil. The first cycle runs immediately. catalog.ErrNoTeams ends the
// loop and is returned. The auto-leave deadline is cancelled on the way out;
// leaving the meeting is up to the caller.
func (e *Engine) Run(ctx context.Context, cmds <-chan ipc.Command) error {
	defer e.session.CancelDeadline()

	st := &EngineState{}
	if err := e.Cycle(ctx, st); err != nil {
		return err
	}

	interval := e.cfg.PollInterval()
	wait := e.clock.After(interval)
	for {
		select {
		case <-ctx.Done():
			return nil

		case cmd, ok := <-cmds:
			if !ok {
				cmds = nil
				continue
			}
			if quit := e.HandleCommand(st, cmd); quit {
				return nil
			}

		case <-wait:
			if err := e.Cycle(ctx, st); err != nil {
				return err
			}
			wait = e.clock.After(interval)
		}
	}
}

// Cycle runs one poll cycle against st. Only catalog.ErrNoTeams is returned;
// every other failure is logged, kept in st.LastError, and retried next cycle.
func (e *Engine) Cycle(ctx context.Context, st *EngineState) error {
	started := e.clock.Now()
	failed := false
	st.Count, st.CountKnown = 0, false
	st.Candidates = nil

	active := e.session.Active()
	switch {
	case st.Paused:
		e.logEvent(diaglog.EventSearchPaused, "command", nil)
	case e.cfg.PauseSearch && active != nil:
		e.logEvent(diaglog.EventSearchPaused, "in_session", nil)
	default:
		if err := e.search(ctx, st, active); err != nil {
			if errors.Is(err, catalog.ErrNoTeams) {
				e.errLog.Printf("[CYCLE %d] %v", st.Cycle, err)
				return err
			}
			failed = true
		}
	}

	if !e.expireDeadline(ctx, st) {
		failed = true
	}

	if e.session.Active() != nil {
		st.Count, st.CountKnown = e.tracker.Sample(ctx, e.counter)
		if !e.checkLeave(ctx, st) {
			failed = true
		}
	}

	st.Cycle++
	e.metrics.ObserveCycle(e.clock.Now().Sub(started), failed)
	e.publish(st)
	return nil
}

func (e *Engine) search(ctx context.Context, st *EngineState, active *session.Session) error {
	candidates, err := e.catalog.Build(ctx, e.session.Token())
	if err != nil {
		if !errors.Is(err, catalog.ErrNoTeams) {
			e.errLog.Printf("[CYCLE %d] Catalog failed: %v", st.Cycle, err)
			st.LastError = err.Error()
		}
		return err
	}
	st.Candidates = candidates

	pick, ok := selection.Decide(candidates, active, e.session.History())
	if !ok {
		return nil
	}

	e.out.Printf("[CYCLE %d] Joining %s (start=%d)", st.Cycle, pick.Title, pick.StartTime)
	e.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentEngine,
		Event:     diaglog.EventMeetingSelected,
		MeetingID: pick.MeetingID,
		Payload: map[string]interface{}{
			"title":      pick.Title,
			"start_time": pick.StartTime,
			"candidates": len(candidates),
		},
	})

	err = e.session.Join(ctx, pick)
	e.metrics.ObserveJoin(err)
	if err != nil {
		e.errLog.Printf("[CYCLE %d] Join failed: %v", st.Cycle, err)
		st.LastError = err.Error()
		return err
	}
	e.tracker.Reset()
	st.LastAction = fmt.Sprintf("joined %s", pick.Title)
	return nil
}

// expireDeadline leaves a session whose auto-leave deadline has passed. It
// covers a deadline whose own hangup failed. It reports false on failure.
func (e *Engine) expireDeadline(ctx context.Context, st *EngineState) bool {
	sess := e.session.Active()
	if sess == nil || sess.Deadline.IsZero() || e.clock.Now().Before(sess.Deadline) {
		return true
	}
	return e.hangup(ctx, st, session.ReasonAutoLeave)
}

// checkLeave applies the leave rule on check cycles. It reports false when a
// triggered hangup failed.
func (e *Engine) checkLeave(ctx context.Context, st *EngineState) bool {
	if !e.cfg.LeaveIfLast || !st.CountKnown || !membership.IsCheckCycle(st.Cycle, e.cfg.LeaveCheckEvery) {
		return true
	}
	leave := membership.ShouldLeave(e.cfg.LeaveThreshold, st.Count)
	e.logEvent(diaglog.EventLeaveThreshold, "", map[string]interface{}{
		"cycle":     st.Cycle,
		"count":     st.Count,
		"threshold": e.cfg.LeaveThreshold.String(),
		"leave":     leave,
	})
	if !leave {
		return true
	}
	e.out.Printf("[CYCLE %d] %d attendees left (threshold %s), leaving", st.Cycle, st.Count, e.cfg.LeaveThreshold)
	ok := e.hangup(ctx, st, session.ReasonThreshold)
	// A triggered rule forgets the peak even when the hangup failed.
	e.tracker.Reset()
	return ok
}

func (e *Engine) hangup(ctx context.Context, st *EngineState, reason string) bool {
	left, err := e.session.Hangup(ctx, reason)
	if err != nil {
		e.metrics.ObserveHangup(reason, err)
		e.errLog.Printf("[CYCLE %d] Hangup (%s) failed: %v", st.Cycle, reason, err)
		st.LastError = err.Error()
		return false
	}
	if left {
		st.LastAction = "left meeting: " + reason
	}
	return true
}

// HandleCommand applies a control command to st and reports whether the
// daemon should stop. Pausing only stops the search; the current meeting is
// kept.
func (e *Engine) HandleCommand(st *EngineState, cmd ipc.Command) bool {
	e.out.Printf("Received command: %s", cmd)
	e.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentEngine,
		Event:     diaglog.EventCommand,
		Payload:   map[string]interface{}{"command": string(cmd)},
	})

	switch cmd {
	case ipc.CmdPause:
		st.Paused = true
		st.LastAction = "search paused"
	case ipc.CmdResume:
		st.Paused = false
		st.LastAction = "search resumed"
	case ipc.CmdQuit:
		e.out.Println("Quit command received - shutting down")
		return true
	default:
		e.errLog.Printf("Unknown command: %s", cmd)
		return false
	}
	e.publish(st)
	return false
}

func (e *Engine) logEvent(event, reason string, payload map[string]interface{}) {
	entry := diaglog.LogEntry{
		Component: diaglog.ComponentEngine,
		Event:     event,
		Reason:    reason,
	}
	if payload != nil {
		entry.Payload = payload
	}
	e.diag.Log(entry)
}
