package main

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tiroq/meetjoin/internal/ipc"
)

var discard = log.New(io.Discard, "", 0)

func TestRotateLogIfNeeded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meetjoin-core.out.log")

	if err := rotateLogIfNeeded(path, 10); err != nil {
		t.Fatalf("missing log: %v", err)
	}

	if err := os.WriteFile(path, []byte("short"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := rotateLogIfNeeded(path, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".old"); !os.IsNotExist(err) {
		t.Error("small log was rotated")
	}

	if err := os.WriteFile(path+".old", []byte("previous"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 20)), 0644); err != nil {
		t.Fatal(err)
	}
	if err := rotateLogIfNeeded(path, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("large log still in place")
	}
	data, err := os.ReadFile(path + ".old")
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 20 {
		t.Errorf(".old holds %d bytes, want 20", len(data))
	}
}

func TestInitLogging(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	outLog, errLog, err := initLogging(dir)
	if err != nil {
		t.Fatalf("initLogging: %v", err)
	}
	outLog.Println("hello")
	errLog.Println("boom")

	out, _ := os.ReadFile(filepath.Join(dir, "meetjoin-core.out.log"))
	if !strings.Contains(string(out), "[meetjoin-core] ") || !strings.Contains(string(out), "hello") {
		t.Errorf("out log = %q", out)
	}
	errData, _ := os.ReadFile(filepath.Join(dir, "meetjoin-core.err.log"))
	if !strings.Contains(string(errData), "ERROR: ") {
		t.Errorf("err log = %q", errData)
	}
}

func TestWatchCommands(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmds := make(chan ipc.Command, 1)
	go watchCommands(ctx, dir, cmds, discard, discard)
	time.Sleep(100 * time.Millisecond)

	if err := ipc.WriteCommand(dir, ipc.CmdPause); err != nil {
		t.Fatal(err)
	}

	select {
	case cmd := <-cmds:
		if cmd != ipc.CmdPause {
			t.Errorf("got %q, want pause", cmd)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("command not delivered")
	}

	data, _ := os.ReadFile(filepath.Join(dir, ipc.CommandFile))
	if len(data) != 0 {
		t.Errorf("command file not cleared: %q", data)
	}
}

func TestPollCommands(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmds := make(chan ipc.Command, 1)
	go pollCommands(ctx, dir, cmds, discard, discard)
	time.Sleep(50 * time.Millisecond)

	// mtime must move past the poller's start
	if err := ipc.WriteCommand(dir, ipc.CmdQuit); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Second)
	if err := os.Chtimes(filepath.Join(dir, ipc.CommandFile), future, future); err != nil {
		t.Fatal(err)
	}

	select {
	case cmd := <-cmds:
		if cmd != ipc.CmdQuit {
			t.Errorf("got %q, want quit", cmd)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("command not delivered")
	}
}

func TestDeliverCommand_ignoresUnknown(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ipc.CommandFile), []byte("record"), 0644); err != nil {
		t.Fatal(err)
	}
	cmds := make(chan ipc.Command, 1)
	if deliverCommand(context.Background(), dir, cmds, discard) {
		t.Error("unknown command delivered")
	}
}

func TestDisplayPath(t *testing.T) {
	if displayPath("") != "(defaults)" || displayPath("/x.json") != "/x.json" {
		t.Error("displayPath")
	}
}
