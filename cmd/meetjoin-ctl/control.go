package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tiroq/meetjoin/internal/ipc"
	"github.com/tiroq/meetjoin/internal/pidfile"
)

func newControlCmd(opts *rootOptions, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			command, ok := ipc.ParseCommand(name)
			if !ok {
				return fmt.Errorf("unknown command %q", name)
			}
			dir, err := opts.resolveStateDir()
			if err != nil {
				return err
			}
			if _, running := pidfile.Running(pidfile.Path(dir, "meetjoin-core")); !running {
				return fmt.Errorf("meetjoin-core is not running (state dir %s)", dir)
			}
			if err := ipc.WriteCommand(dir, command); err != nil {
				return fmt.Errorf("send %s: %w", name, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", name)
			return err
		},
	}
}
