package engine

import (
	"time"

	"github.com/tiroq/meetjoin/internal/fileutil"
	"github.com/tiroq/meetjoin/internal/ipc"
	"github.com/tiroq/meetjoin/internal/metrics"
	"github.com/tiroq/meetjoin/internal/session"
)

// Snapshot describes the engine for the status file.
func (e *Engine) Snapshot(st *EngineState) *ipc.StatusSnapshot {
	snap := &ipc.StatusSnapshot{
		State:        e.session.State().String(),
		SearchPaused: st.Paused,
		Cycle:        st.Cycle,
		Candidates:   make([]ipc.CandidateStatus, 0, len(st.Candidates)),
		History:      e.session.History().IDs(),
		LastAction:   st.LastAction,
		LastError:    st.LastError,
		Timestamp:    e.clock.Now(),
	}
	for _, c := range st.Candidates {
		snap.Candidates = append(snap.Candidates, ipc.CandidateStatus{
			Title:     c.Title,
			MeetingID: c.MeetingID,
			StartTime: c.StartTime,
		})
	}
	if sess := e.session.Active(); sess != nil {
		snap.Session = &ipc.SessionStatus{
			ID:        sess.ID,
			MeetingID: sess.MeetingID,
			Title:     sess.Title,
			StartTime: sess.StartTime,
			JoinedAt:  sess.JoinedAt,
			Deadline:  sess.Deadline,
			HasToken:  sess.Token != "",
		}
	}
	if st.CountKnown {
		n := st.Count
		snap.Attendees = &n
	}
	if peak, ok := e.tracker.Peak(); ok {
		snap.PeakAttendees = &peak
	}
	return snap
}

func (e *Engine) publish(st *EngineState) {
	peak, peakOK := e.tracker.Peak()
	e.metrics.SetGauges(metrics.Snapshot{
		Candidates:   len(st.Candidates),
		InSession:    e.session.State() == session.InSession,
		Attendees:    st.Count,
		AttendeesOK:  st.CountKnown,
		Peak:         peak,
		PeakOK:       peakOK,
		HistorySize:  e.session.History().Len(),
		SearchPaused: st.Paused,
	})

	if e.stateDir == "" {
		return
	}
	if err := ipc.WriteStatus(e.stateDir, e.Snapshot(st)); err != nil {
		e.errLog.Printf("Failed to write status: %v", err)
	}
}

// onSessionEnd runs after every successful hangup, from the poll loop or the
// auto-leave timer.
func (e *Engine) onSessionEnd(ended session.Ended) {
	peak, peakOK := e.tracker.Peak()
	e.tracker.Reset()
	e.metrics.ObserveHangup(ended.Reason, nil)

	duration := ended.LeftAt.Sub(ended.Session.JoinedAt)
	e.out.Printf("[SESSION] Left %s after %s (reason=%s)", ended.Session.Title, duration.Round(time.Second), ended.Reason)

	if e.stateDir == "" {
		return
	}
	rec := &fileutil.SessionRecord{
		Version:         e.version,
		SessionID:       ended.Session.ID,
		MeetingID:       ended.Session.MeetingID,
		Title:           ended.Session.Title,
		ChannelID:       ended.Session.ChannelID,
		MeetingStart:    ended.Session.StartTime,
		JoinedAt:        ended.Session.JoinedAt,
		LeftAt:          ended.LeftAt,
		Duration:        duration.String(),
		DurationMs:      duration.Milliseconds(),
		LeaveReason:     ended.Reason,
		RecorderBackend: e.recorderBackend,
	}
	if peakOK {
		rec.PeakAttendees = &peak
	}
	path, err := fileutil.WriteSessionRecord(e.stateDir, rec)
	if err != nil {
		e.errLog.Printf("Failed to write session record: %v", err)
		return
	}
	e.out.Printf("[SESSION] Record written: %s", path)
}
