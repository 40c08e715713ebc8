package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tiroq/meetjoin/internal/diaglog"
)

func newExportDiagCmd(opts *rootOptions) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "export-diag",
		Short: "Bundle the diagnostic log for a bug report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := opts.resolveStateDir()
			if err != nil {
				return err
			}
			diaglog.Version = Version
			path, n, err := diaglog.Export(diaglog.PathFor(dir), dest)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("%w (run meetjoin-core with MEETJOIN_DEBUG=true to enable the log)", err)
				}
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote: %s (%d lines)\n", path, n)
			return err
		},
	}
	cmd.Flags().StringVar(&dest, "out", ".", "directory for the bundle")
	return cmd
}
