package sync

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rclouned/rclouned/internal/utils"
)

// baselineTimeLayout is the on-disk timestamp format, second precision in
// the local timezone.
const baselineTimeLayout = "2006-01-02 15:04:05"

// ErrBaselineCorrupt means the baseline file exists but cannot be parsed.
// This is fatal and needs operator intervention: falling back to the epoch
// would reclassify every one-sided difference as new and every two-sided
// one as a conflict.
var ErrBaselineCorrupt = errors.New("baseline file is corrupt")

// BaselineStore persists the last-successful-sync timestamp for one root.
type BaselineStore struct {
	path string
}

func NewBaselineStore(path string) *BaselineStore {
	return &BaselineStore{path: path}
}

// Get returns the recorded baseline. A root that has never been synced
// yields the epoch, which sorts before every real modification time.
func (s *BaselineStore) Get() (time.Time, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Unix(0, 0), nil
		}
		return time.Time{}, fmt.Errorf("read baseline %s: %w", s.path, err)
	}

	line, _, _ := strings.Cut(string(data), "\n")
	t, err := time.ParseInLocation(baselineTimeLayout, strings.TrimSpace(line), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrBaselineCorrupt, s.path, err)
	}

	return t, nil
}

// Set atomically replaces the baseline: written to a temp file in the same
// directory, synced, then renamed over the old one. A crash mid-write can
// never leave a partially written baseline behind.
func (s *BaselineStore) Set(t time.Time) error {
	if err := utils.EnsureParent(s.path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "lastsync-*.tmp")
	if err != nil {
		return fmt.Errorf("create baseline temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.WriteString(t.Format(baselineTimeLayout) + "\n"); err != nil {
		return fmt.Errorf("write baseline: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync baseline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close baseline: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace baseline: %w", err)
	}

	success = true
	return nil
}
