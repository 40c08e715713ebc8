package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Version is set by the binaries at startup.
var Version = "dev"

// Bundle is the header line of an exported diagnostics file.
type Bundle struct {
	ExportedAt string `json:"exported_at"`
	Version    string `json:"meetjoin_version"`
	GoVersion  string `json:"go_version"`
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	LogFile    string `json:"log_file"`
	EntryCount int    `json:"entry_count"`
}

// Export copies the log at logPath (preceded by its rolled-over ".1" file,
// if any) into destDir/meetjoin-diag-<ts>.ndjson behind a Bundle header.
// It returns the written path and the number of log lines copied.
func Export(logPath, destDir string) (string, int, error) {
	var lines [][]byte
	for _, p := range []string{logPath + ".1", logPath} {
		got, err := readLines(p)
		if errors.Is(err, os.ErrNotExist) && p != logPath {
			continue
		}
		if err != nil {
			return "", 0, err
		}
		lines = append(lines, got...)
	}

	now := time.Now().UTC()
	outPath := filepath.Join(destDir, "meetjoin-diag-"+now.Format("20060102T150405")+".ndjson")
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("create export file: %w", err)
	}
	defer func() { _ = out.Close() }()

	header, err := json.Marshal(Bundle{
		ExportedAt: now.Format(time.RFC3339),
		Version:    Version,
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		LogFile:    logPath,
		EntryCount: len(lines),
	})
	if err != nil {
		return "", 0, err
	}

	bw := bufio.NewWriter(out)
	if _, err := bw.Write(append(header, '\n')); err != nil {
		return "", 0, err
	}
	for _, line := range lines {
		if _, err := bw.Write(append(line, '\n')); err != nil {
			return "", 0, err
		}
	}
	if err := bw.Flush(); err != nil {
		return "", 0, err
	}
	return outPath, len(lines), nil
}

func readLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("log file not found at %s: %w", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("log file unreadable: %w", err)
	}
	defer func() { _ = f.Close() }()

	var lines [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for sc.Scan() {
		lines = append(lines, append([]byte(nil), sc.Bytes()...))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("log file unreadable: %w", err)
	}
	return lines, nil
}
