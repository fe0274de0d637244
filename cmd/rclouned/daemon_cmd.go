package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rclouned/rclouned/internal/sync"
	"github.com/rclouned/rclouned/internal/version"
)

func init() {
	rootCmd.AddCommand(newDaemonCmd())
}

func newDaemonCmd() *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon <folder>",
		Short: "Sync continuously on an interval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			showHeader()
			slog.Info("rclouned", "version", version.Version, "revision", version.Revision)

			// the root may live on a mount that is not there yet
			if err := waitForFolder(cmd.Context(), args[0]); err != nil {
				return err
			}

			cfg, err := loadConfig(cmd, args[0])
			if err != nil {
				return err
			}
			setupLogging(logLevel(), cfg.LogPath())

			engine, err := sync.NewEngine(cfg)
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.Probe(cmd.Context()); err != nil {
				return err
			}

			defer slog.Info("Bye!")
			if err := engine.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	addSyncFlags(daemonCmd)
	return daemonCmd
}
