// Package membership tracks how many people are in the active call and
// decides when the call has emptied out enough to leave.
package membership

import (
	"context"
	"sync"

	"github.com/tiroq/meetjoin/internal/config"
	"github.com/tiroq/meetjoin/internal/diaglog"
	"github.com/tiroq/meetjoin/internal/workspace"
)

// defaultLeaveBelow is the exclusive upper bound of the rule used when no
// threshold is configured: leave when 0 < count < 3.
const defaultLeaveBelow = 3

// Counter reads the roster of the active call.
type Counter interface {
	AttendeeCount(ctx context.Context) (workspace.Roster, error)
}

// Tracker keeps the peak attendee count of the current session. It is read
// from the auto-leave path as well as the poll loop.
type Tracker struct {
	mu     sync.Mutex
	peak   int
	known  bool
	logger *diaglog.Logger
}

// NewTracker returns a Tracker with an unknown peak.
func NewTracker() *Tracker {
	return &Tracker{}
}

// SetLogger wires the diagnostic log.
func (t *Tracker) SetLogger(l *diaglog.Logger) {
	t.logger = l
}

// Sample queries counter once. When the query fails the count is unknown
// and the peak is left alone.
func (t *Tracker) Sample(ctx context.Context, counter Counter) (int, bool) {
	roster, err := counter.AttendeeCount(ctx)
	if err != nil {
		t.logger.Log(diaglog.LogEntry{
			Component: diaglog.ComponentMembership,
			Event:     diaglog.EventAttendeesSampled,
			Reason:    err.Error(),
		})
		return 0, false
	}

	count := roster.Total()
	t.mu.Lock()
	if !t.known || count > t.peak {
		t.peak = count
		t.known = true
	}
	peak := t.peak
	t.mu.Unlock()

	t.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentMembership,
		Event:     diaglog.EventAttendeesSampled,
		Payload: map[string]interface{}{
			"participants": roster.Participants,
			"attendees":    roster.Attendees,
			"peak":         peak,
		},
	})
	return count, true
}

// Peak returns the highest count seen since the last Reset.
func (t *Tracker) Peak() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak, t.known
}

// Reset forgets the peak.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peak = 0
	t.known = false
}

// IsCheckCycle reports whether the leave rule runs on this poll cycle.
// Cycle 0 never checks. The cadence counts cycles, so it stretches with the
// poll interval.
func IsCheckCycle(cycle, every int) bool {
	return every > 0 && cycle > 0 && cycle%every == 0
}

// ShouldLeave applies the leave rule to the current count. Without a
// configured threshold it leaves when 0 < count < 3, so an empty roster
// read is not taken as everyone having gone.
func ShouldLeave(threshold config.LeaveThreshold, count int) bool {
	if !threshold.Set {
		return count > 0 && count < defaultLeaveBelow
	}
	return float64(count) < threshold.Value
}
