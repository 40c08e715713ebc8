// Package pidfile keeps a single meetjoin-core running per state dir.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned by New when the PID file names a live process.
var ErrAlreadyRunning = errors.New("another instance is already running")

// PIDFile is a PID file owned by this process
type PIDFile struct {
	path string
	pid  int
}

// Path returns <dir>/<appName>.pid
func Path(dir, appName string) string {
	return filepath.Join(dir, appName+".pid")
}

// New claims path for the current process. A PID file left behind by a dead
// process is replaced.
func New(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create PID directory: %w", err)
	}

	if pid, running := Running(path); running {
		return nil, fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, pid)
	} else if pid != 0 {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale PID file: %w", err)
		}
	}

	currentPID := os.Getpid()
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", currentPID)), 0644); err != nil {
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return &PIDFile{path: path, pid: currentPID}, nil
}

// Running reads path and reports the PID in it and whether that process is
// alive. The PID is 0 when the file is missing or unreadable.
func Running(path string) (int, bool) {
	pid, err := readPID(path)
	if err != nil {
		return 0, false
	}
	return pid, isProcessRunning(pid)
}

// Remove deletes the PID file if it still holds our PID
func (p *PIDFile) Remove() error {
	if p == nil {
		return nil
	}
	if pid, err := readPID(p.path); err == nil && pid == p.pid {
		return os.Remove(p.path)
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// isProcessRunning sends signal 0, which only checks the process exists
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true
	case errors.Is(err, syscall.EPERM):
		// Exists, owned by someone else
		return true
	default:
		return false
	}
}
