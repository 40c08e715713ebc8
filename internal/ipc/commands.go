package ipc

import (
	"os"
	"path/filepath"
	"strings"
)

// Command is a control request from meetjoin-ctl to the daemon
type Command string

const (
	CmdPause  Command = "pause"  // Stop searching for meetings (never hangs up)
	CmdResume Command = "resume" // Search again
	CmdQuit   Command = "quit"   // Shutdown daemon
)

// CommandFile is the name of the control file inside the state dir.
const CommandFile = "cmd.txt"

// ParseCommand returns the command named by s, or false if s is not one.
func ParseCommand(s string) (Command, bool) {
	cmd := Command(strings.ToLower(strings.TrimSpace(s)))
	switch cmd {
	case CmdPause, CmdResume, CmdQuit:
		return cmd, true
	default:
		return "", false
	}
}

// WriteCommand writes a command to <dir>/cmd.txt
func WriteCommand(dir string, cmd Command) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, CommandFile), []byte(string(cmd)), 0644)
}

// ReadCommand reads and clears <dir>/cmd.txt
// Returns empty string if no command or file doesn't exist
func ReadCommand(dir string) (Command, error) {
	cmdPath := filepath.Join(dir, CommandFile)

	data, err := os.ReadFile(cmdPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil // No command pending
		}
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}

	// Clear the file immediately to prevent re-execution
	if err := os.WriteFile(cmdPath, []byte(""), 0644); err != nil {
		return "", err
	}

	// Unknown commands are dropped
	cmd, _ := ParseCommand(string(data))
	return cmd, nil
}
