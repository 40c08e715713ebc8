package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCycle(time.Second, true)
	m.ObserveJoin(nil)
	m.ObserveHangup("auto_leave", nil)
	m.SetGauges(Snapshot{InSession: true})
	assert.Nil(t, m.Registry())
}

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveCycle(20*time.Millisecond, false)
	m.ObserveCycle(30*time.Millisecond, true)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Cycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CycleErrors))

	m.ObserveJoin(nil)
	m.ObserveJoin(errors.New("timeout"))
	m.ObserveJoin(nil)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Joins.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Joins.WithLabelValues("failure")))

	m.ObserveHangup("leave_threshold", nil)
	m.ObserveHangup("leave_threshold", errors.New("no control"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Hangups.WithLabelValues("leave_threshold")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HangupFailures))
}

func TestSetGauges(t *testing.T) {
	m := New()
	m.SetGauges(Snapshot{Candidates: 3, InSession: true, Attendees: 4, AttendeesOK: true, Peak: 7, PeakOK: true, HistorySize: 2})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Candidates))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InSession))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Attendees))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.PeakAttendees))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HistorySize))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SearchPaused))

	// Unknown count keeps the last known value.
	m.SetGauges(Snapshot{SearchPaused: true})
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Attendees))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PeakAttendees))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchPaused))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveCycle(time.Millisecond, false)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "meetjoin_poll_cycles_total 1"))
}
