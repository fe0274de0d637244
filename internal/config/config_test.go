package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Folder: t.TempDir(),
		Remote: "gdrive",
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid with defaults", func(t *testing.T) {
		cfg := validConfig(t)
		require.NoError(t, cfg.Validate())
		assert.Equal(t, DefaultConflictSuffix, cfg.ConflictSuffix)
		assert.Equal(t, DefaultMaxTransfers, cfg.MaxTransfers)
	})

	t.Run("missing folder", func(t *testing.T) {
		cfg := &Config{Remote: "gdrive"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("nonexistent folder", func(t *testing.T) {
		cfg := &Config{Folder: filepath.Join(t.TempDir(), "gone"), Remote: "gdrive"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing remote", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Remote = ""
		assert.ErrorIs(t, cfg.Validate(), ErrNoRemote)
	})

	t.Run("remote with colon", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Remote = "gdrive:docs"
		assert.Error(t, cfg.Validate())
	})

	t.Run("conflict suffix with separator", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.ConflictSuffix = "a/b"
		assert.Error(t, cfg.Validate())
	})
}

func TestConfigInterval(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, DefaultInterval, cfg.Interval())

	cfg.IntervalSeconds = 30
	assert.Equal(t, 30*time.Second, cfg.Interval())
}

func TestConfigPaths(t *testing.T) {
	cfg := &Config{Folder: "/data/notes"}

	assert.Equal(t, filepath.Join("/data/notes", ".rclouned"), cfg.StateDir())
	assert.Equal(t, filepath.Join("/data/notes", ".rclouned", "lastsync.txt"), cfg.BaselinePath())
	assert.Equal(t, filepath.Join("/data/notes", ".rclouned", "backups"), cfg.BackupsDir())
	assert.Equal(t, ".rclouned/backups", cfg.RemoteBackupsPrefix())
}

func TestRcloneOptions(t *testing.T) {
	cfg := &Config{Options: " --transfers 8  --fast-list "}
	assert.Equal(t, []string{"--transfers", "8", "--fast-list"}, cfg.RcloneOptions())

	cfg.Options = ""
	assert.Empty(t, cfg.RcloneOptions())
}
