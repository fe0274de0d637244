package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rclouned/rclouned/internal/sync"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
}

func newSyncCmd() *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync <folder>",
		Short: "Run a single sync cycle and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, args[0])
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			setupLogging(logLevel(), cfg.LogPath())

			engine, err := sync.NewEngine(cfg)
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.Probe(cmd.Context()); err != nil {
				return err
			}

			res, err := engine.RunSync(cmd.Context())
			if err != nil {
				return err
			}
			if !res.Clean() {
				return fmt.Errorf("%w: %d of %d", errPartialFailure, len(res.Failed), res.Planned())
			}
			return nil
		},
	}

	addSyncFlags(syncCmd)
	return syncCmd
}
