// Package selection picks at most one meeting to join per poll cycle.
package selection

import (
	"sort"

	"github.com/tiroq/meetjoin/internal/catalog"
	"github.com/tiroq/meetjoin/internal/session"
)

// History reports whether a meeting was joined before.
type History interface {
	Contains(meetingID string) bool
}

// Decide returns the newest candidate when it is worth joining.
//
// Candidates are ordered by start time, newest first, keeping input order
// for equal times. The first of the newest set is the only one considered.
// It is returned when nothing is active, or when it started strictly after
// the active session's meeting and is a different meeting. A meeting that
// was joined before is never returned. candidates is not modified.
func Decide(candidates []catalog.Candidate, active *session.Session, history History) (catalog.Candidate, bool) {
	if len(candidates) == 0 {
		return catalog.Candidate{}, false
	}

	sorted := make([]catalog.Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime > sorted[j].StartTime
	})

	// Ties on the newest start time keep input order, so the pick is stable.
	pick := sorted[0]

	if active != nil {
		if pick.StartTime <= active.StartTime || pick.MeetingID == active.MeetingID {
			return catalog.Candidate{}, false
		}
	}
	if history != nil && history.Contains(pick.MeetingID) {
		return catalog.Candidate{}, false
	}
	return pick, true
}
