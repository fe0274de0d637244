package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/rclouned/rclouned/internal/rclone"
)

// comparer is the slice of the rclone client the scanner needs.
type comparer interface {
	Check(ctx context.Context) (*rclone.CheckResult, error)
	ListPaths(ctx context.Context, side rclone.Side, paths []string) (map[string]rclone.PathInfo, error)
}

// Scanner turns the comparison tool's raw three-way diff into normalized
// Difference records carrying both sides' metadata. A thin adapter: the
// heavy lifting happens inside rclone.
type Scanner struct {
	rc     comparer
	ignore *IgnoreList
}

func NewScanner(rc comparer, ignore *IgnoreList) *Scanner {
	return &Scanner{rc: rc, ignore: ignore}
}

// Scan runs one comparison snapshot and resolves per-side modification
// times for every differing path. Paths that vanish between the comparison
// and the metadata query are skipped; the next cycle sees them again with
// fresh timestamps.
func (s *Scanner) Scan(ctx context.Context) ([]Difference, error) {
	check, err := s.rc.Check(ctx)
	if err != nil {
		return nil, fmt.Errorf("compare trees: %w", err)
	}

	differ := s.dropIgnored(check.Differ)
	localOnly := s.dropIgnored(check.LocalOnly)
	remoteOnly := s.dropIgnored(check.RemoteOnly)

	localPaths := append(append([]string{}, differ...), localOnly...)
	remotePaths := append(append([]string{}, differ...), remoteOnly...)

	localInfo, err := s.rc.ListPaths(ctx, rclone.Local, localPaths)
	if err != nil {
		return nil, fmt.Errorf("stat local paths: %w", err)
	}
	remoteInfo, err := s.rc.ListPaths(ctx, rclone.Remote, remotePaths)
	if err != nil {
		return nil, fmt.Errorf("stat remote paths: %w", err)
	}

	diffs := make([]Difference, 0, len(differ)+len(localOnly)+len(remoteOnly))

	for _, path := range differ {
		local, localOK := localInfo[path]
		remote, remoteOK := remoteInfo[path]
		if !localOK || !remoteOK {
			slog.Warn("path vanished during scan, deferring to next cycle", "path", path)
			continue
		}
		diffs = append(diffs, Difference{
			Path:   path,
			Kind:   DiffBoth,
			Local:  sideState(local),
			Remote: sideState(remote),
		})
	}

	for _, path := range localOnly {
		local, ok := localInfo[path]
		if !ok {
			slog.Warn("path vanished during scan, deferring to next cycle", "path", path)
			continue
		}
		diffs = append(diffs, Difference{
			Path:  path,
			Kind:  DiffLocalOnly,
			Local: sideState(local),
		})
	}

	for _, path := range remoteOnly {
		remote, ok := remoteInfo[path]
		if !ok {
			slog.Warn("path vanished during scan, deferring to next cycle", "path", path)
			continue
		}
		diffs = append(diffs, Difference{
			Path:   path,
			Kind:   DiffRemoteOnly,
			Remote: sideState(remote),
		})
	}

	// deterministic order keeps logs and tests stable
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Path < diffs[j].Path })

	return diffs, nil
}

func (s *Scanner) dropIgnored(paths []string) []string {
	kept := paths[:0]
	for _, path := range paths {
		if s.ignore.ShouldIgnore(path) {
			slog.Debug("scan ignore", "path", path)
			continue
		}
		kept = append(kept, path)
	}
	return kept
}

func sideState(info rclone.PathInfo) SideState {
	return SideState{Exists: true, Size: info.Size, ModTime: info.ModTime}
}
