package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rclouned/rclouned/internal/config"
	"github.com/rclouned/rclouned/internal/utils"
	"github.com/rclouned/rclouned/internal/version"
)

// errPartialFailure maps to a distinct exit code so scripts can tell "some
// paths failed and will be retried" apart from "the cycle never ran".
var errPartialFailure = errors.New("some sync actions failed")

var verbosity int

var rootCmd = &cobra.Command{
	Use:     "rclouned",
	Short:   "Two-way sync daemon for rclone remotes",
	Long:    "rclouned keeps a local folder and an rclone remote in two-way agreement,\nsurfacing conflicts as renamed files instead of silently picking a winner.",
	Version: version.Detailed(),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(logLevel(), "")
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v debug)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errPartialFailure) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func logLevel() slog.Level {
	if verbosity > 0 {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// setupLogging installs a tinted stdout handler plus, once the sync root is
// known, a plain text handler appending to the log file under the state dir.
func setupLogging(level slog.Level, logFile string) {
	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})

	handlers := []slog.Handler{stdoutHandler}
	if logFile != "" {
		if err := utils.EnsureParent(logFile); err == nil {
			if file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{Level: level}))
			} else {
				fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			}
		}
	}

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(handlers...)))
}

// loadConfig reads <folder>/.rclouned/config.yaml, layers RCLOUNED_ env vars
// and command flags on top, and returns the validated immutable config.
func loadConfig(cmd *cobra.Command, folderArg string) (*config.Config, error) {
	folder, err := utils.ResolvePath(folderArg)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(folder, config.StateDirName, config.ConfigFileName))
	v.SetDefault("interval", int(config.DefaultInterval.Seconds()))
	v.SetDefault("conflict_suffix", config.DefaultConflictSuffix)
	v.SetDefault("max_transfers", config.DefaultMaxTransfers)

	v.SetEnvPrefix("RCLOUNED")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config '%s': %w", v.ConfigFileUsed(), err)
	}

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config '%s': %w", v.ConfigFileUsed(), err)
	}
	cfg.Folder = folder

	// flags win over config file and env
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun, _ = cmd.Flags().GetBool("dry-run")
	}
	if cmd.Flags().Changed("careful") {
		cfg.Careful, _ = cmd.Flags().GetBool("careful")
	}
	if cmd.Flags().Changed("interval") {
		cfg.IntervalSeconds, _ = cmd.Flags().GetInt("interval")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// addSyncFlags registers the flags shared by the sync and daemon commands.
func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("dry-run", false, "log the plan without changing either side")
	cmd.Flags().Bool("careful", false, "pull a local copy of remote files before deleting them remotely")
	cmd.Flags().Int("interval", int(config.DefaultInterval.Seconds()), "seconds between cycles in daemon mode")
}

// waitForFolder blocks until the sync root exists, sleeping progressively
// longer between checks. Lets the daemon start before a network mount does.
func waitForFolder(ctx context.Context, folder string) error {
	for i := 0; !utils.DirExists(folder); i++ {
		wait := time.Duration(10+i*i) * time.Second
		slog.Info("sync folder does not exist yet, waiting", "folder", folder, "next_check_in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}

func showHeader() {
	color.New(color.FgHiCyan, color.Bold).Printf("rclouned %s\n", version.Short())
}
