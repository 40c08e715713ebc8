package obsws

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// GetRecordStatus queries OBS for current recording status
func (c *Client) GetRecordStatus(ctx context.Context) (RecordingState, error) {
	resp, err := c.sendRequest(ctx, "GetRecordStatus", nil)
	if err != nil {
		return RecordingState{}, err
	}

	var data struct {
		OutputActive   bool  `json:"outputActive"`
		OutputDuration int   `json:"outputDuration"` // milliseconds
		OutputBytes    int64 `json:"outputBytes"`
	}
	if err := json.Unmarshal(resp.ResponseData, &data); err != nil {
		return RecordingState{}, fmt.Errorf("parse record status: %w", err)
	}

	c.stateMu.Lock()
	c.recordingState.Recording = data.OutputActive
	c.recordingState.Duration = data.OutputDuration / 1000
	c.recordingState.LastUpdated = time.Now()
	state := c.recordingState
	c.stateMu.Unlock()

	return state, nil
}

// StartRecord starts the OBS recording output.
func (c *Client) StartRecord(ctx context.Context) error {
	if _, err := c.sendRequest(ctx, "StartRecord", nil); err != nil {
		return err
	}

	c.stateMu.Lock()
	c.recordingState.Recording = true
	c.recordingState.StartTime = time.Now()
	c.recordingState.OutputPath = ""
	c.recordingState.LastUpdated = time.Now()
	c.stateMu.Unlock()
	return nil
}

// StopRecord stops the recording and returns the file OBS wrote.
func (c *Client) StopRecord(ctx context.Context) (string, error) {
	resp, err := c.sendRequest(ctx, "StopRecord", nil)
	if err != nil {
		return "", err
	}

	var data struct {
		OutputPath string `json:"outputPath"`
	}
	if err := json.Unmarshal(resp.ResponseData, &data); err != nil {
		return "", fmt.Errorf("parse stop response: %w", err)
	}

	c.stateMu.Lock()
	c.recordingState.Recording = false
	c.recordingState.OutputPath = data.OutputPath
	c.recordingState.Duration = 0
	c.recordingState.LastUpdated = time.Now()
	c.stateMu.Unlock()

	return data.OutputPath, nil
}

// RecordingState returns the cached recording state
func (c *Client) RecordingState() RecordingState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.recordingState
}

// GetVersion returns the OBS and obs-websocket versions.
func (c *Client) GetVersion(ctx context.Context) (obsVersion, wsVersion string, err error) {
	resp, err := c.sendRequest(ctx, "GetVersion", nil)
	if err != nil {
		return "", "", err
	}

	var data struct {
		OBSVersion          string `json:"obsVersion"`
		OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	}
	if err := json.Unmarshal(resp.ResponseData, &data); err != nil {
		return "", "", fmt.Errorf("parse version: %w", err)
	}
	return data.OBSVersion, data.OBSWebSocketVersion, nil
}

// MinOBSMajor is the first OBS release with obs-websocket v5 built in.
const MinOBSMajor = 28

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

// CheckVersion validates an OBS version string such as "30.0.2" or
// "30.1.0-beta1".
func CheckVersion(version string) error {
	m := versionPattern.FindStringSubmatch(version)
	if m == nil {
		return fmt.Errorf("could not parse OBS version %q", version)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	if major < MinOBSMajor {
		return fmt.Errorf("OBS %d.%d is too old, %d.0 or later is required", major, minor, MinOBSMajor)
	}
	return nil
}
