package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tiroq/meetjoin/internal/config"
	"github.com/tiroq/meetjoin/internal/obsws"
	"github.com/tiroq/meetjoin/testutil"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Name() string { return "mock" }

func (m *mockBackend) Connect(ctx context.Context) error { return m.Called().Error(0) }

func (m *mockBackend) Disconnect() { m.Called() }

func (m *mockBackend) StartRecording(ctx context.Context) error { return m.Called().Error(0) }

func (m *mockBackend) StopRecording(ctx context.Context) (RecordingResult, error) {
	args := m.Called()
	return args.Get(0).(RecordingResult), args.Error(1)
}

func (m *mockBackend) HealthCheck(ctx context.Context) error { return m.Called().Error(0) }

func (m *mockBackend) Recording() bool { return m.Called().Bool(0) }

var joinedAt = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func TestSessionRecorder_startStopRenames(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "2026-03-02 14-30-00.mkv")
	require.NoError(t, os.WriteFile(raw, []byte("video"), 0644))

	b := new(mockBackend)
	b.On("StartRecording").Return(nil).Once()
	b.On("StopRecording").Return(RecordingResult{OutputPath: raw}, nil).Once()
	b.On("Recording").Return(false)

	r := NewSessionRecorder(b, clockwork.NewFakeClockAt(joinedAt), time.Second)
	r.Start("Physics -> General")
	r.Stop()
	r.Close()

	want := filepath.Join(dir, "2026-03-02_1430_Physics-General.mkv")
	assert.Equal(t, want, r.LastFile())
	assert.FileExists(t, want)
	assert.NoFileExists(t, raw)
	b.AssertExpectations(t)
}

func TestSessionRecorder_failuresAreContained(t *testing.T) {
	b := new(mockBackend)
	b.On("StartRecording").Return(errors.New("obs offline"))
	b.On("StopRecording").Return(RecordingResult{}, errors.New("obs offline"))
	b.On("Recording").Return(false)

	r := NewSessionRecorder(b, clockwork.NewFakeClockAt(joinedAt), time.Second)
	r.Start("A")
	r.Stop()
	r.Close()

	assert.Empty(t, r.LastFile())
	b.AssertNumberOfCalls(t, "StartRecording", 1)
	b.AssertNumberOfCalls(t, "StopRecording", 1)
}

func TestSessionRecorder_closeStopsDanglingRecording(t *testing.T) {
	b := new(mockBackend)
	b.On("StartRecording").Return(nil)
	b.On("Recording").Return(true)
	b.On("StopRecording").Return(RecordingResult{}, nil).Once()

	r := NewSessionRecorder(b, clockwork.NewFakeClockAt(joinedAt), time.Second)
	r.Start("A")
	r.Close()
	r.Close()

	b.AssertExpectations(t)
}

func TestSessionRecorder_ignoresCallsAfterClose(t *testing.T) {
	b := new(mockBackend)
	b.On("Recording").Return(false)

	r := NewSessionRecorder(b, clockwork.NewFakeClockAt(joinedAt), time.Second)
	r.Close()
	r.Start("late")
	r.Stop()

	b.AssertNotCalled(t, "StartRecording")
	b.AssertNotCalled(t, "StopRecording")
}

func TestNew(t *testing.T) {
	b, err := New(config.RecorderConfig{Backend: config.RecorderOBS, OBSURL: "ws://localhost:4455"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OBSAdapter{}, b)
	assert.Equal(t, "obs", b.Name())

	b, err = New(config.RecorderConfig{Backend: config.RecorderNone}, nil)
	require.NoError(t, err)
	assert.Equal(t, "none", b.Name())

	_, err = New(config.RecorderConfig{Backend: "quicktime"}, nil)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var n Nop
	ctx := context.Background()
	assert.NoError(t, n.Connect(ctx))
	assert.NoError(t, n.StartRecording(ctx))
	res, err := n.StopRecording(ctx)
	assert.NoError(t, err)
	assert.Empty(t, res.OutputPath)
	assert.False(t, n.Recording())
}

func TestOBSAdapter(t *testing.T) {
	obs := testutil.NewMockOBS()
	defer obs.Close()
	obs.SetOutputPath("/rec/out.mkv")

	client := obsws.NewClient(obs.URL(), "")
	client.SetReconnectEnabled(false)
	a := NewOBSAdapter(client)
	ctx := context.Background()

	require.NoError(t, a.Connect(ctx))
	defer a.Disconnect()
	require.NoError(t, a.HealthCheck(ctx))

	require.NoError(t, a.StartRecording(ctx))
	assert.True(t, a.Recording())

	res, err := a.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/rec/out.mkv", res.OutputPath)
	assert.False(t, res.StartedAt.IsZero())
	assert.False(t, a.Recording())

	assert.Equal(t, []string{"GetVersion", "GetRecordStatus", "StartRecord", "StopRecord"}, obs.Requests())
}

func TestOBSAdapter_rejectsOldOBS(t *testing.T) {
	obs := testutil.NewMockOBS()
	defer obs.Close()
	obs.SetVersion("27.1.3")

	client := obsws.NewClient(obs.URL(), "")
	client.SetReconnectEnabled(false)
	a := NewOBSAdapter(client)
	defer a.Disconnect()

	err := a.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too old")
}
