package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

const (
	logPrefix  = "[meetjoin-core]"
	maxLogSize = 10 * 1024 * 1024
)

// initLogging opens <dir>/meetjoin-core.{out,err}.log, rotating either one
// that has grown past maxLogSize.
func initLogging(dir string) (outLog, errLog *log.Logger, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}

	outLogPath := filepath.Join(dir, "meetjoin-core.out.log")
	errLogPath := filepath.Join(dir, "meetjoin-core.err.log")

	if err := rotateLogIfNeeded(outLogPath, maxLogSize); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate out log: %v\n", err)
	}
	if err := rotateLogIfNeeded(errLogPath, maxLogSize); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate err log: %v\n", err)
	}

	outFile, err := os.OpenFile(outLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	errFile, err := os.OpenFile(errLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		_ = outFile.Close()
		return nil, nil, err
	}

	outLog = log.New(outFile, logPrefix+" ", log.LstdFlags)
	errLog = log.New(errFile, logPrefix+" ERROR: ", log.LstdFlags)
	return outLog, errLog, nil
}

// rotateLogIfNeeded moves logPath to logPath.old once it reaches maxSize
// bytes, replacing any previous .old file.
func rotateLogIfNeeded(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < maxSize {
		return nil
	}

	oldPath := logPath + ".old"
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old log: %w", err)
	}
	return os.Rename(logPath, oldPath)
}
