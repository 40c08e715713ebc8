package pidfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func readPIDOrFail(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read PID file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("invalid PID in file: %q", data)
	}
	return pid
}

func TestNew_writesOwnPID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "nested", "meetjoin-core.pid")

	pf, err := New(pidPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer pf.Remove()

	if got := readPIDOrFail(t, pidPath); got != os.Getpid() {
		t.Errorf("PID = %d, want %d", got, os.Getpid())
	}
}

func TestNew_refusesSecondInstance(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "meetjoin-core.pid")

	pf, err := New(pidPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer pf.Remove()

	_, err = New(pidPath)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second New error = %v, want ErrAlreadyRunning", err)
	}
}

func TestNew_replacesStaleFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "meetjoin-core.pid")
	if err := os.WriteFile(pidPath, []byte("99999\n"), 0644); err != nil {
		t.Fatal(err)
	}

	pf, err := New(pidPath)
	if err != nil {
		t.Fatalf("New with stale file: %v", err)
	}
	defer pf.Remove()

	if got := readPIDOrFail(t, pidPath); got != os.Getpid() {
		t.Errorf("PID after stale removal = %d, want %d", got, os.Getpid())
	}
}

func TestRemove(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "meetjoin-core.pid")
	pf, err := New(pidPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := pf.Remove(); err != nil {
		t.Errorf("Remove: %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("PID file still exists after Remove")
	}

	var nilPF *PIDFile
	if err := nilPF.Remove(); err != nil {
		t.Errorf("nil Remove: %v", err)
	}
}

func TestRemove_keepsForeignPID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "meetjoin-core.pid")
	pf, err := New(pidPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	other := os.Getpid() + 1
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(other)+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	pf.Remove()

	if got := readPIDOrFail(t, pidPath); got != other {
		t.Errorf("PID = %d, want %d", got, other)
	}
}

func TestRunning(t *testing.T) {
	dir := t.TempDir()

	if pid, ok := Running(filepath.Join(dir, "missing.pid")); pid != 0 || ok {
		t.Errorf("missing file: got (%d, %v)", pid, ok)
	}

	pidPath := Path(dir, "meetjoin-core")
	pf, err := New(pidPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer pf.Remove()

	if pid, ok := Running(pidPath); pid != os.Getpid() || !ok {
		t.Errorf("own file: got (%d, %v)", pid, ok)
	}
}

func TestPath(t *testing.T) {
	if got, want := Path("/tmp/state", "meetjoin-core"), "/tmp/state/meetjoin-core.pid"; got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("current process not detected as running")
	}
	if isProcessRunning(99999) {
		t.Error("PID 99999 detected as running")
	}
	if isProcessRunning(0) {
		t.Error("PID 0 detected as running")
	}
}
