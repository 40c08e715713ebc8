package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiroq/meetjoin/internal/session"
	"github.com/tiroq/meetjoin/internal/workspace"
	"github.com/tiroq/meetjoin/testutil"
)

func connect(t *testing.T, agent *testutil.MockAgent, timeout time.Duration) *Client {
	t.Helper()
	c := NewClient(agent.URL(), "secret", timeout)
	c.SetReconnectEnabled(false)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Close)
	return c
}

func TestConnect_sendsBearerToken(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()

	c := connect(t, agent, time.Second)
	assert.True(t, c.IsConnected())
	assert.Equal(t, "Bearer secret", agent.Authorization())
}

func TestConnect_twice(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()

	c := connect(t, agent, time.Second)
	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)
	assert.Equal(t, 1, agent.Connections())
}

func TestConnect_afterClose(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()

	c := NewClient(agent.URL(), "", time.Second)
	c.Close()

	assert.ErrorIs(t, c.Connect(context.Background()), ErrClosed)
	assert.False(t, c.IsConnected())
	assert.Equal(t, 0, agent.Connections())
}

func TestCall_notConnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/agent", "", time.Second)
	_, err := c.ListTeams(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestListTeams(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()
	agent.Respond(MethodListTeams, map[string]interface{}{
		"teams": []map[string]interface{}{
			{"name": "Physics", "id": "t1", "channels": []map[string]interface{}{
				{"name": "General", "id": "c1", "has_meeting": true},
				{"name": "Labs", "id": "c2", "has_meeting": false},
			}},
			{"name": "Empty", "id": "t2", "channels": []map[string]interface{}{}},
		},
	})

	c := connect(t, agent, time.Second)
	teams, err := c.ListTeams(context.Background())
	require.NoError(t, err)

	want := []workspace.Team{
		{Name: "Physics", ID: "t1", Channels: []workspace.Channel{
			{Name: "General", ID: "c1", HasMeeting: true},
			{Name: "Labs", ID: "c2"},
		}},
		{Name: "Empty", ID: "t2", Channels: []workspace.Channel{}},
	}
	assert.Equal(t, want, teams)
}

func TestMeetingHeaders_passesChannel(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()

	gotChannel := make(chan string, 1)
	agent.Handle(MethodMeetingHeaders, func(params json.RawMessage) (interface{}, *testutil.AgentError) {
		var p struct {
			ChannelID string `json:"channel_id"`
		}
		_ = json.Unmarshal(params, &p)
		gotChannel <- p.ChannelID
		return map[string]interface{}{
			"headers": []map[string]string{{"id": "m1741000000000", "join_control_id": "join-btn-1"}},
		}, nil
	})

	c := connect(t, agent, time.Second)
	headers, err := c.MeetingHeaders(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", <-gotChannel)
	assert.Equal(t, []workspace.RawHeader{{ID: "m1741000000000", JoinControlID: "join-btn-1"}}, headers)
}

func TestJoin(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()

	gotReq := make(chan session.JoinRequest, 1)
	agent.Handle(MethodJoin, func(params json.RawMessage) (interface{}, *testutil.AgentError) {
		var req session.JoinRequest
		_ = json.Unmarshal(params, &req)
		gotReq <- req
		return map[string]interface{}{"track_data": `{"callId":"abc"}`, "mic_was_on": true}, nil
	})

	c := connect(t, agent, time.Second)
	res, err := c.Join(context.Background(), session.JoinRequest{ChannelID: "c1", MeetingID: "m1", Mute: true, CameraOff: true})
	require.NoError(t, err)
	assert.Equal(t, session.JoinRequest{ChannelID: "c1", MeetingID: "m1", Mute: true, CameraOff: true}, <-gotReq)
	assert.Equal(t, `{"callId":"abc"}`, res.TrackData)
	assert.True(t, res.MicWasOn)
	assert.False(t, res.VideoWasOn)
}

func TestJoin_notFound(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()
	agent.Fail(MethodJoin, CodeNotFound, "no join button")

	c := connect(t, agent, time.Second)
	_, err := c.Join(context.Background(), session.JoinRequest{MeetingID: "m1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "no join button")
}

func TestHangup(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()

	c := connect(t, agent, time.Second)
	require.NoError(t, c.Hangup(context.Background()))
	assert.Equal(t, []string{MethodHangup}, agent.Calls())
}

func TestHangup_noControl(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()
	agent.Fail(MethodHangup, CodeNotFound, "no hangup button")

	c := connect(t, agent, time.Second)
	err := c.Hangup(context.Background())
	assert.ErrorIs(t, err, session.ErrNoHangupControl)
}

func TestHangup_internalErrorIsNotMissingControl(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()
	agent.Fail(MethodHangup, CodeInternal, "boom")

	c := connect(t, agent, time.Second)
	err := c.Hangup(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, session.ErrNoHangupControl))
}

func TestAttendeeCount(t *testing.T) {
	tests := []struct {
		name   string
		result map[string]string
		want   workspace.Roster
	}{
		{"both sections", map[string]string{"participants_label": "Participants (3)", "attendees_label": "Attendees (12)"}, workspace.Roster{Participants: 3, Attendees: 12}},
		{"participants only", map[string]string{"participants_label": "In this meeting (2)"}, workspace.Roster{Participants: 2}},
		{"no labels", map[string]string{}, workspace.Roster{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := testutil.NewMockAgent()
			defer agent.Close()
			agent.Respond(MethodAttendeeCount, tt.result)

			c := connect(t, agent, time.Second)
			got, err := c.AttendeeCount(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCall_timeout(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()
	agent.Ignore(MethodAttendeeCount)

	c := connect(t, agent, 100*time.Millisecond)
	start := time.Now()
	_, err := c.AttendeeCount(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCall_contextCancelled(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()
	agent.Ignore(MethodListTeams)

	c := connect(t, agent, 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := c.ListTeams(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCall_concurrentRequests(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()
	agent.Respond(MethodAttendeeCount, map[string]string{"participants_label": "Participants (4)"})

	c := connect(t, agent, time.Second)
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			r, err := c.AttendeeCount(context.Background())
			if err == nil && r.Total() != 4 {
				err = errors.New("wrong total")
			}
			errs <- err
		}()
	}
	for i := 0; i < 10; i++ {
		assert.NoError(t, <-errs)
	}
}

func TestWaitReady(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()

	var calls atomic.Int32
	agent.Handle(MethodReady, func(json.RawMessage) (interface{}, *testutil.AgentError) {
		n := calls.Add(1)
		return ReadyResult{Ready: n >= 3, Mode: "grid"}, nil
	})

	c := connect(t, agent, time.Second)
	require.NoError(t, c.WaitReady(context.Background(), 2*time.Second, 10*time.Millisecond))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitReady_timesOut(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()
	agent.Respond(MethodReady, ReadyResult{Ready: false, Mode: "list"})

	c := connect(t, agent, time.Second)
	err := c.WaitReady(context.Background(), 100*time.Millisecond, 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `mode "list"`)
}

func TestWaitReady_dialsAgentThatStartsLate(t *testing.T) {
	// Reserve a free port, then leave it closed until the client is waiting.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c := NewClient("ws://"+addr+"/agent", "", time.Second)
	c.SetReconnectEnabled(false)
	defer c.Close()

	done := make(chan error, 1)
	go func() { done <- c.WaitReady(context.Background(), 3*time.Second, 20*time.Millisecond) }()

	time.Sleep(150 * time.Millisecond)
	assert.False(t, c.IsConnected())

	agent, err := testutil.NewMockAgentAt(addr)
	require.NoError(t, err)
	defer agent.Close()
	agent.Respond(MethodReady, ReadyResult{Ready: true, Mode: "grid"})

	require.NoError(t, <-done)
	assert.True(t, c.IsConnected())
	assert.Equal(t, 1, agent.Connections())

	_, err = c.ListTeams(context.Background())
	assert.NoError(t, err)
}

func TestWaitReady_unreachableAgentTimesOut(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/agent", "", time.Second)
	c.SetReconnectEnabled(false)
	defer c.Close()

	err := c.WaitReady(context.Background(), 100*time.Millisecond, 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial page agent")
}

func TestReconnect_stopsWhenClosedMidway(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()

	c := NewClient(agent.URL(), "", time.Second)
	c.reconnectDelay = 50 * time.Millisecond
	require.NoError(t, c.Connect(context.Background()))

	agent.DropConnections()
	require.Eventually(t, func() bool { return !c.IsConnected() }, time.Second, 5*time.Millisecond)
	c.Close()

	time.Sleep(200 * time.Millisecond)
	assert.False(t, c.IsConnected())
	assert.Equal(t, 1, agent.Connections(), "no dial after Close")
}

func TestReconnect_afterServerDrop(t *testing.T) {
	agent := testutil.NewMockAgent()
	defer agent.Close()

	c := NewClient(agent.URL(), "", time.Second)
	c.reconnectDelay = 10 * time.Millisecond
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	agent.DropConnections()

	require.Eventually(t, func() bool {
		return agent.Connections() >= 2 && c.IsConnected()
	}, 3*time.Second, 10*time.Millisecond)

	_, err := c.ListTeams(context.Background())
	assert.NoError(t, err)
}

func TestFrameError_unwrap(t *testing.T) {
	assert.ErrorIs(t, &FrameError{Code: CodeNotFound}, ErrNotFound)
	assert.ErrorIs(t, &FrameError{Code: CodeTimeout}, ErrTimeout)
	assert.False(t, errors.Is(&FrameError{Code: CodeInternal}, ErrNotFound))
}
