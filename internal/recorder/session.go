package recorder

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tiroq/meetjoin/internal/diaglog"
	"github.com/tiroq/meetjoin/internal/fileutil"
	"github.com/tiroq/meetjoin/internal/session"
)

var _ session.Recorder = (*SessionRecorder)(nil)

// SessionRecorder drives a Backend from session start/stop notifications.
// Start and Stop return immediately; the backend calls run in order on a
// single worker goroutine.
type SessionRecorder struct {
	backend Backend
	clock   clockwork.Clock
	timeout time.Duration

	out  *log.Logger
	diag *diaglog.Logger

	jobs chan func()
	done chan struct{}

	mu        sync.Mutex
	closed    bool
	title     string
	startedAt time.Time
	lastFile  string
}

// NewSessionRecorder starts the worker. timeout bounds each backend call.
func NewSessionRecorder(backend Backend, clk clockwork.Clock, timeout time.Duration) *SessionRecorder {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	r := &SessionRecorder{
		backend: backend,
		clock:   clk,
		timeout: timeout,
		out:     log.New(io.Discard, "", 0),
		jobs:    make(chan func(), 16),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// SetLoggers wires the daemon log and the diagnostic log.
func (r *SessionRecorder) SetLoggers(out *log.Logger, diag *diaglog.Logger) {
	if out != nil {
		r.out = out
	}
	r.diag = diag
}

func (r *SessionRecorder) run() {
	defer close(r.done)
	for job := range r.jobs {
		job()
	}
}

func (r *SessionRecorder) enqueue(job func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.jobs <- job:
	default:
		r.out.Printf("[RECORDER] queue full, dropping request")
	}
}

// Start begins recording the meeting titled title.
func (r *SessionRecorder) Start(title string) {
	r.mu.Lock()
	r.title = title
	r.startedAt = r.clock.Now()
	r.mu.Unlock()

	r.enqueue(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.backend.StartRecording(ctx); err != nil {
			r.out.Printf("[RECORDER] start %q failed: %v", title, err)
			r.diag.Log(diaglog.LogEntry{
				Component: diaglog.ComponentSession,
				Event:     diaglog.EventRecordingFailed,
				Reason:    "start",
				Payload:   map[string]interface{}{"backend": r.backend.Name(), "error": err.Error()},
			})
			return
		}
		r.diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentSession,
			Event:     diaglog.EventRecordingStart,
			Payload:   map[string]interface{}{"backend": r.backend.Name(), "title": title},
		})
	})
}

// Stop ends the recording and renames the file after the meeting.
func (r *SessionRecorder) Stop() {
	r.mu.Lock()
	title, startedAt := r.title, r.startedAt
	r.mu.Unlock()

	r.enqueue(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		res, err := r.backend.StopRecording(ctx)
		if err != nil {
			r.out.Printf("[RECORDER] stop %q failed: %v", title, err)
			r.diag.Log(diaglog.LogEntry{
				Component: diaglog.ComponentSession,
				Event:     diaglog.EventRecordingFailed,
				Reason:    "stop",
				Payload:   map[string]interface{}{"backend": r.backend.Name(), "error": err.Error()},
			})
			return
		}

		path, err := fileutil.RenameRecording(res.OutputPath, fileutil.BaseName(startedAt, title))
		if err != nil {
			r.out.Printf("[RECORDER] rename %s failed: %v", res.OutputPath, err)
		}
		if path != "" {
			r.out.Printf("[RECORDER] saved %s", path)
		}

		r.mu.Lock()
		r.lastFile = path
		r.mu.Unlock()

		r.diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentSession,
			Event:     diaglog.EventRecordingStop,
			Payload:   map[string]interface{}{"backend": r.backend.Name(), "file": path, "duration_ms": res.Duration.Milliseconds()},
		})
	})
}

// LastFile is the path of the most recently saved recording.
func (r *SessionRecorder) LastFile() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastFile
}

// Close runs the queued calls and stops the worker. If the backend is still
// recording afterwards it is stopped.
func (r *SessionRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()
	<-r.done

	if r.backend.Recording() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if _, err := r.backend.StopRecording(ctx); err != nil {
			r.out.Printf("[RECORDER] stop on close failed: %v", err)
		}
	}
}
