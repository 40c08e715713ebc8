package membership

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tiroq/meetjoin/internal/config"
	"github.com/tiroq/meetjoin/internal/workspace"
)

type scriptedCounter struct {
	rosters []workspace.Roster
	errs    []error
	i       int
}

func (s *scriptedCounter) AttendeeCount(ctx context.Context) (workspace.Roster, error) {
	i := s.i
	s.i++
	if i < len(s.errs) && s.errs[i] != nil {
		return workspace.Roster{}, s.errs[i]
	}
	return s.rosters[i], nil
}

func TestTracker_peak(t *testing.T) {
	counter := &scriptedCounter{
		rosters: []workspace.Roster{
			{Participants: 3, Attendees: 2},
			{Participants: 1, Attendees: 1},
			{},
			{Participants: 6},
		},
		errs: []error{nil, nil, errors.New("roster closed")},
	}
	tr := NewTracker()

	_, known := tr.Peak()
	assert.False(t, known)

	count, ok := tr.Sample(context.Background(), counter)
	assert.True(t, ok)
	assert.Equal(t, 5, count)

	count, ok = tr.Sample(context.Background(), counter)
	assert.True(t, ok)
	assert.Equal(t, 2, count)
	peak, _ := tr.Peak()
	assert.Equal(t, 5, peak)

	_, ok = tr.Sample(context.Background(), counter)
	assert.False(t, ok)
	peak, known = tr.Peak()
	assert.True(t, known)
	assert.Equal(t, 5, peak, "failed query leaves the peak alone")

	count, _ = tr.Sample(context.Background(), counter)
	assert.Equal(t, 6, count)
	peak, _ = tr.Peak()
	assert.Equal(t, 6, peak)

	tr.Reset()
	_, known = tr.Peak()
	assert.False(t, known)
}

func TestTracker_firstSampleOfZeroIsKnown(t *testing.T) {
	tr := NewTracker()
	tr.Sample(context.Background(), &scriptedCounter{rosters: []workspace.Roster{{}}})
	peak, known := tr.Peak()
	assert.True(t, known)
	assert.Equal(t, 0, peak)
}

func TestIsCheckCycle(t *testing.T) {
	tests := []struct {
		cycle, every int
		want         bool
	}{
		{0, 5, false},
		{1, 5, false},
		{4, 5, false},
		{5, 5, true},
		{10, 5, true},
		{11, 5, false},
		{3, 1, true},
		{5, 0, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsCheckCycle(tt.cycle, tt.every), "cycle %d every %d", tt.cycle, tt.every)
	}
}

func TestShouldLeave(t *testing.T) {
	blank := config.LeaveThreshold{}
	two := config.LeaveThreshold{Value: 2, Set: true}
	half := config.LeaveThreshold{Value: 2.5, Set: true}

	tests := []struct {
		name      string
		threshold config.LeaveThreshold
		count     int
		want      bool
	}{
		{"default empty roster", blank, 0, false},
		{"default one", blank, 1, true},
		{"default two", blank, 2, true},
		{"default three", blank, 3, false},
		{"default five", blank, 5, false},
		{"set below", two, 1, true},
		{"set equal", two, 2, false},
		{"set zero count", two, 0, true},
		{"fractional", half, 2, true},
		{"fractional above", half, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldLeave(tt.threshold, tt.count))
		})
	}
}

// Counts 5, 2, 1 seen at cycles 0, 5 and 10: the default rule fires at 5.
func TestShouldLeave_defaultRuleSequence(t *testing.T) {
	samples := map[int]int{0: 5, 5: 2, 10: 1}
	fired := -1
	for cycle := 0; cycle <= 10; cycle++ {
		count, ok := samples[cycle]
		if !ok || !IsCheckCycle(cycle, 5) {
			continue
		}
		if ShouldLeave(config.LeaveThreshold{}, count) {
			fired = cycle
			break
		}
	}
	assert.Equal(t, 5, fired)
}
