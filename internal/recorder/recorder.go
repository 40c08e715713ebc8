// Package recorder records meetings while a session is active. Recording is
// best effort: a backend failure is logged and never affects joining or
// leaving.
package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/tiroq/meetjoin/internal/config"
	"github.com/tiroq/meetjoin/internal/diaglog"
	"github.com/tiroq/meetjoin/internal/obsws"
)

// RecordingResult contains the outcome of a completed recording.
type RecordingResult struct {
	OutputPath string
	Duration   time.Duration
	StartedAt  time.Time
}

// Backend is a recording backend.
type Backend interface {
	Name() string
	Connect(ctx context.Context) error
	Disconnect()
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) (RecordingResult, error)
	HealthCheck(ctx context.Context) error
	Recording() bool
}

// New builds the backend selected by cfg.Backend.
func New(cfg config.RecorderConfig, logger *diaglog.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.RecorderOBS:
		client := obsws.NewClient(cfg.OBSURL, cfg.OBSPassword)
		client.SetLogger(logger)
		return NewOBSAdapter(client), nil
	case config.RecorderNone, "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown recorder backend %q", cfg.Backend)
	}
}

// Nop is the "none" backend.
type Nop struct{}

func (Nop) Name() string { return config.RecorderNone }

func (Nop) Connect(context.Context) error { return nil }

func (Nop) Disconnect() {}

func (Nop) StartRecording(context.Context) error { return nil }

func (Nop) StopRecording(context.Context) (RecordingResult, error) { return RecordingResult{}, nil }

func (Nop) HealthCheck(context.Context) error { return nil }

func (Nop) Recording() bool { return false }
