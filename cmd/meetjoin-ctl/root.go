package main

import (
	"github.com/spf13/cobra"

	"github.com/tiroq/meetjoin/internal/config"
)

type rootOptions struct {
	configPath string
	stateDir   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "meetjoin-ctl",
		Short:         "Control and inspect a running meetjoin-core",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file used to find the state dir")
	rootCmd.PersistentFlags().StringVar(&opts.stateDir, "state-dir", "", "state dir of meetjoin-core (overrides --config)")

	rootCmd.AddCommand(
		newStatusCmd(opts),
		newControlCmd(opts, "pause", "Stop searching for meetings (the current meeting is kept)"),
		newControlCmd(opts, "resume", "Search for meetings again"),
		newControlCmd(opts, "quit", "Leave the current meeting and stop meetjoin-core"),
		newExportDiagCmd(opts),
	)
	return rootCmd
}

// resolveStateDir picks --state-dir, then state_dir from the config.
func (o *rootOptions) resolveStateDir() (string, error) {
	if o.stateDir != "" {
		return o.stateDir, nil
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return "", err
	}
	return cfg.StateDir, nil
}
