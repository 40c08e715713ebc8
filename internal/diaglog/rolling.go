package diaglog

import (
	"fmt"
	"os"
)

// rollingWriter appends to path and, once the next write would push the file
// past maxSize, moves it aside to path+".1" (replacing any older one) and
// starts a fresh file. At most 2*maxSize bytes are kept on disk.
type rollingWriter struct {
	path    string
	maxSize int64
	f       *os.File
	size    int64
}

func openRolling(path string, maxSize int64) (*rollingWriter, error) {
	w := &rollingWriter{path: path, maxSize: maxSize}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *rollingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open diag log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat diag log: %w", err)
	}
	w.f = f
	w.size = info.Size()
	return nil
}

// Write is not safe for concurrent use; Logger serialises calls.
func (w *rollingWriter) Write(p []byte) (int, error) {
	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.roll(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *rollingWriter) roll() error {
	if err := w.f.Close(); err != nil {
		return err
	}
	if err := os.Rename(w.path, w.path+".1"); err != nil {
		return fmt.Errorf("roll diag log: %w", err)
	}
	return w.open()
}

func (w *rollingWriter) Close() error {
	_ = w.f.Sync()
	return w.f.Close()
}
