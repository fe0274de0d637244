package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rclouned/rclouned/internal/utils"
)

const (
	// StateDirName is the dot-folder under the sync root holding all of
	// rclouned's own state. It is always excluded from syncing.
	StateDirName = ".rclouned"

	ConfigFileName   = "config.yaml"
	IgnoreFileName   = "ignore"
	baselineFileName = "lastsync.txt"
	historyFileName  = "history.db"
	lockFileName     = "sync.lock"
	logFileName      = "rclouned.log"
	backupsDirName   = "backups"
)

var (
	DefaultInterval       = 90 * time.Second
	DefaultConflictSuffix = "_conflict"
	DefaultMaxTransfers   = 4
)

var (
	ErrNoRemote = errors.New("no remote configured")
)

// Config is the immutable configuration for one sync root. It is built once
// at startup (file + flags + env) and passed down into the engine.
type Config struct {
	// Folder is the absolute path of the local sync root.
	Folder string `mapstructure:"-"`

	// Remote is the rclone remote name, e.g. "gdrive".
	Remote string `mapstructure:"remote"`

	// Subdir is an optional path on the remote to sync against.
	Subdir string `mapstructure:"subdir"`

	// Options holds extra rclone flags, space separated.
	Options string `mapstructure:"options"`

	// IntervalSeconds is the pause between sync cycles in daemon mode.
	IntervalSeconds int `mapstructure:"interval"`

	// DryRun logs the plan and passes --dry-run to every mutating rclone call.
	DryRun bool `mapstructure:"dryrun"`

	// Careful additionally copies remote files into the local backup area
	// before they are removed from the remote.
	Careful bool `mapstructure:"careful"`

	// ConflictSuffix is appended (with a timestamp) to the local copy of a
	// conflicted file.
	ConflictSuffix string `mapstructure:"conflict_suffix"`

	// MaxTransfers bounds the number of concurrently executing actions.
	MaxTransfers int `mapstructure:"max_transfers"`
}

func (c *Config) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return DefaultInterval
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// RcloneOptions splits the configured extra options into argv form.
func (c *Config) RcloneOptions() []string {
	return strings.Fields(c.Options)
}

func (c *Config) StateDir() string {
	return filepath.Join(c.Folder, StateDirName)
}

func (c *Config) ConfigPath() string {
	return filepath.Join(c.StateDir(), ConfigFileName)
}

func (c *Config) IgnorePath() string {
	return filepath.Join(c.StateDir(), IgnoreFileName)
}

func (c *Config) BaselinePath() string {
	return filepath.Join(c.StateDir(), baselineFileName)
}

func (c *Config) HistoryPath() string {
	return filepath.Join(c.StateDir(), historyFileName)
}

func (c *Config) LockPath() string {
	return filepath.Join(c.StateDir(), lockFileName)
}

func (c *Config) LogPath() string {
	return filepath.Join(c.StateDir(), logFileName)
}

// BackupsDir is the local trash/backup area, relative to the sync root.
func (c *Config) BackupsDir() string {
	return filepath.Join(c.StateDir(), backupsDirName)
}

// RemoteBackupsPrefix is the trash/backup prefix on the remote side,
// expressed as a remote-relative path.
func (c *Config) RemoteBackupsPrefix() string {
	return StateDirName + "/" + backupsDirName
}

func (c *Config) Validate() error {
	if c.Folder == "" {
		return errors.New("no sync folder configured")
	}
	if !utils.DirExists(c.Folder) {
		return fmt.Errorf("sync folder does not exist: %s", c.Folder)
	}
	if c.Remote == "" {
		return ErrNoRemote
	}
	if strings.Contains(c.Remote, ":") {
		return fmt.Errorf("remote %q must be a bare rclone remote name, without ':'", c.Remote)
	}
	if c.ConflictSuffix == "" {
		c.ConflictSuffix = DefaultConflictSuffix
	}
	if strings.ContainsAny(c.ConflictSuffix, "/\\") {
		return fmt.Errorf("conflict suffix %q must not contain path separators", c.ConflictSuffix)
	}
	if c.MaxTransfers <= 0 {
		c.MaxTransfers = DefaultMaxTransfers
	}
	return nil
}
