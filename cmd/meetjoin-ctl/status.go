package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiroq/meetjoin/internal/ipc"
	"github.com/tiroq/meetjoin/internal/pidfile"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's last published state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := opts.resolveStateDir()
			if err != nil {
				return err
			}
			st, err := ipc.ReadStatus(dir)
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no status in %s; has meetjoin-core run yet?", dir)
			}
			if err != nil {
				return fmt.Errorf("read status: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			pid, running := pidfile.Running(pidfile.Path(dir, "meetjoin-core"))
			return writeStatus(cmd.OutOrStdout(), st, pid, running, time.Now())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw status.json")
	return cmd
}

func writeStatus(w io.Writer, st *ipc.StatusSnapshot, pid int, running bool, now time.Time) error {
	var b strings.Builder

	if running {
		fmt.Fprintf(&b, "Daemon:     running (PID %d)\n", pid)
	} else {
		fmt.Fprintf(&b, "Daemon:     not running\n")
	}
	fmt.Fprintf(&b, "Updated:    %s ago (cycle %d)\n", now.Sub(st.Timestamp).Round(time.Second), st.Cycle)
	state := st.State
	if st.SearchPaused {
		state += ", search paused"
	}
	fmt.Fprintf(&b, "State:      %s\n", state)

	if s := st.Session; s != nil {
		fmt.Fprintf(&b, "Meeting:    %s (%s)\n", s.Title, s.MeetingID)
		fmt.Fprintf(&b, "Joined:     %s\n", s.JoinedAt.Local().Format("15:04:05"))
		if !s.Deadline.IsZero() {
			fmt.Fprintf(&b, "Auto-leave: %s\n", s.Deadline.Local().Format("15:04:05"))
		}
	}
	fmt.Fprintf(&b, "Attendees:  %s (peak %s)\n", optInt(st.Attendees), optInt(st.PeakAttendees))

	if len(st.Candidates) > 0 {
		fmt.Fprintf(&b, "Live:\n")
		for _, c := range st.Candidates {
			fmt.Fprintf(&b, "  %s  %s\n", time.Unix(c.StartTime, 0).Local().Format("15:04"), c.Title)
		}
	}
	fmt.Fprintf(&b, "Joined so far: %d\n", len(st.History))
	if st.LastAction != "" {
		fmt.Fprintf(&b, "Last action: %s\n", st.LastAction)
	}
	if st.LastError != "" {
		fmt.Fprintf(&b, "Last error:  %s\n", st.LastError)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func optInt(v *int) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprint(*v)
}
