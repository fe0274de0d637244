package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rclouned/rclouned/internal/sync"
)

func init() {
	rootCmd.AddCommand(newHistoryCmd())
}

func newHistoryCmd() *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history <folder>",
		Short: "Show recent sync cycles for a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, args[0])
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			engine, err := sync.NewEngine(cfg)
			if err != nil {
				return err
			}
			defer engine.Close()

			records, err := engine.History(limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no sync cycles recorded yet")
				return nil
			}

			red := color.New(color.FgHiRed).SprintfFunc()
			for _, rec := range records {
				status := "ok"
				if rec.Failures > 0 {
					status = red("%d failed", rec.Failures)
				}
				if rec.DryRun {
					status += " (dry-run)"
				}
				fmt.Printf("%s  %-14s  up:%-3d down:%-3d trash:%-3d conflicts:%-2d  %s\n",
					rec.ID,
					humanize.Time(rec.Started),
					rec.Uploads,
					rec.Downloads,
					rec.LocalDeletes+rec.RemoteDeletes,
					rec.Conflicts,
					status,
				)
			}
			return nil
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of cycles to show")
	addSyncFlags(historyCmd)
	return historyCmd
}
