package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tiroq/meetjoin/internal/ipc"
)

const commandPollInterval = time.Second

// watchCommands forwards commands written to <dir>/cmd.txt into cmds until
// ctx is done. It watches the directory with fsnotify and also polls the
// file's mtime, and drops to polling alone if the watcher fails.
func watchCommands(ctx context.Context, dir string, cmds chan<- ipc.Command, outLog, errLog *log.Logger) {
	cmdPath := filepath.Join(dir, ipc.CommandFile)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errLog.Printf("fsnotify not available, falling back to polling: %v", err)
		pollCommands(ctx, dir, cmds, outLog, errLog)
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			errLog.Printf("Failed to close watcher: %v", err)
		}
	}()

	if err := watcher.Add(dir); err != nil {
		errLog.Printf("Failed to watch command directory, falling back to polling: %v", err)
		pollCommands(ctx, dir, cmds, outLog, errLog)
		return
	}
	outLog.Println("Command watcher started (using fsnotify)")

	pollTicker := time.NewTicker(commandPollInterval)
	defer pollTicker.Stop()
	lastCheck := time.Now()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				outLog.Println("fsnotify watcher closed, switching to polling")
				pollCommands(ctx, dir, cmds, outLog, errLog)
				return
			}
			if event.Name == cmdPath && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// let the writer finish
				time.Sleep(50 * time.Millisecond)
				if deliverCommand(ctx, dir, cmds, errLog) {
					lastCheck = time.Now()
				}
			}

		case <-pollTicker.C:
			if info, err := os.Stat(cmdPath); err == nil && info.ModTime().After(lastCheck) {
				deliverCommand(ctx, dir, cmds, errLog)
				lastCheck = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				outLog.Println("fsnotify error channel closed, switching to polling")
				pollCommands(ctx, dir, cmds, outLog, errLog)
				return
			}
			errLog.Printf("File watcher error: %v", err)
		}
	}
}

// pollCommands is the polling-only fallback.
func pollCommands(ctx context.Context, dir string, cmds chan<- ipc.Command, outLog, errLog *log.Logger) {
	outLog.Printf("Command watcher started (using polling fallback, %s interval)", commandPollInterval)
	cmdPath := filepath.Join(dir, ipc.CommandFile)

	ticker := time.NewTicker(commandPollInterval)
	defer ticker.Stop()
	lastCheck := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(cmdPath)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastCheck) {
				time.Sleep(50 * time.Millisecond)
				deliverCommand(ctx, dir, cmds, errLog)
				lastCheck = time.Now()
			}
		}
	}
}

// deliverCommand reads and clears the command file and sends what it held.
func deliverCommand(ctx context.Context, dir string, cmds chan<- ipc.Command, errLog *log.Logger) bool {
	cmd, err := ipc.ReadCommand(dir)
	if err != nil {
		errLog.Printf("Failed to read command: %v", err)
		return false
	}
	if cmd == "" {
		return false
	}
	select {
	case cmds <- cmd:
		return true
	case <-ctx.Done():
		return false
	}
}
