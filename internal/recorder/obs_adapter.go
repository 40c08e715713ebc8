package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/tiroq/meetjoin/internal/config"
	"github.com/tiroq/meetjoin/internal/obsws"
)

var _ Backend = (*OBSAdapter)(nil)

// OBSAdapter records through OBS over obs-websocket.
type OBSAdapter struct {
	client *obsws.Client
}

// NewOBSAdapter wraps client.
func NewOBSAdapter(client *obsws.Client) *OBSAdapter {
	return &OBSAdapter{client: client}
}

func (a *OBSAdapter) Name() string { return config.RecorderOBS }

// Connect connects to OBS and checks its version.
func (a *OBSAdapter) Connect(ctx context.Context) error {
	if err := a.client.Connect(ctx); err != nil {
		return err
	}
	version, _, err := a.client.GetVersion(ctx)
	if err != nil {
		return fmt.Errorf("read OBS version: %w", err)
	}
	return obsws.CheckVersion(version)
}

func (a *OBSAdapter) Disconnect() {
	a.client.Disconnect()
}

func (a *OBSAdapter) StartRecording(ctx context.Context) error {
	return a.client.StartRecord(ctx)
}

// StopRecording stops OBS and reports the written file.
func (a *OBSAdapter) StopRecording(ctx context.Context) (RecordingResult, error) {
	startedAt := a.client.RecordingState().StartTime

	outputPath, err := a.client.StopRecord(ctx)
	if err != nil {
		return RecordingResult{}, fmt.Errorf("stop recording: %w", err)
	}

	var duration time.Duration
	if !startedAt.IsZero() {
		duration = time.Since(startedAt)
	}
	return RecordingResult{OutputPath: outputPath, Duration: duration, StartedAt: startedAt}, nil
}

// HealthCheck queries the record status to verify the connection.
func (a *OBSAdapter) HealthCheck(ctx context.Context) error {
	if _, err := a.client.GetRecordStatus(ctx); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

func (a *OBSAdapter) Recording() bool {
	return a.client.RecordingState().Recording
}
