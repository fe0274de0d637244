package rclone

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rclouned/rclouned/internal/config"
)

// CheckResult is the raw three-way diff reported by `rclone check`.
// Paths are remote-relative (slash separated).
type CheckResult struct {
	// Differ lists paths present on both sides with different content.
	Differ []string
	// LocalOnly lists paths present locally but missing on the remote.
	LocalOnly []string
	// RemoteOnly lists paths present on the remote but missing locally.
	RemoteOnly []string
}

// Check runs `rclone check` between the remote and the local folder and
// collects the difference reports it writes. rclone exits 1 when any
// difference exists, which is the expected outcome here; only other non-zero
// exits count as failures.
func (c *Client) Check(ctx context.Context) (*CheckResult, error) {
	tmpDir, err := os.MkdirTemp("", "rclouned-check-")
	if err != nil {
		return nil, fmt.Errorf("create check dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	differFile, err := writePathList(tmpDir, "differ.txt", nil)
	if err != nil {
		return nil, err
	}
	localOnlyFile, err := writePathList(tmpDir, "local_only.txt", nil)
	if err != nil {
		return nil, err
	}
	remoteOnlyFile, err := writePathList(tmpDir, "remote_only.txt", nil)
	if err != nil {
		return nil, err
	}

	// source = remote, dest = local folder: missing-on-dst means the file
	// only exists on the remote, missing-on-src that it only exists locally.
	_, runErr := c.run(ctx, false, "check",
		"--differ", differFile,
		"--missing-on-dst", remoteOnlyFile,
		"--missing-on-src", localOnlyFile,
		"--exclude", config.StateDirName+"/**",
		c.Endpoint(Remote),
		c.Endpoint(Local),
	)
	// exit code 1 means differences were found, which is exactly what we
	// asked for; anything else is a real failure (remote unreachable, bad
	// flags, missing directory).
	if runErr != nil && exitCode(runErr) != 1 {
		return nil, fmt.Errorf("check did not complete: %w", runErr)
	}

	result := &CheckResult{}
	if result.Differ, err = readPathList(differFile); err != nil {
		return nil, fmt.Errorf("read check report: %w", err)
	}
	if result.LocalOnly, err = readPathList(localOnlyFile); err != nil {
		return nil, fmt.Errorf("read check report: %w", err)
	}
	if result.RemoteOnly, err = readPathList(remoteOnlyFile); err != nil {
		return nil, fmt.Errorf("read check report: %w", err)
	}

	return result, nil
}

// PathInfo is one entry of an `rclone lsf` listing.
type PathInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// lsf prints modification times in this layout, in the local timezone.
const lsfTimeLayout = "2006-01-02 15:04:05.999999999"

// ListPaths queries size and modification time for the given remote-relative
// paths on one side. Paths that no longer exist on that side are simply
// absent from the returned map.
func (c *Client) ListPaths(ctx context.Context, side Side, paths []string) (map[string]PathInfo, error) {
	infos := make(map[string]PathInfo, len(paths))
	if len(paths) == 0 {
		return infos, nil
	}

	tmpDir, err := os.MkdirTemp("", "rclouned-lsf-")
	if err != nil {
		return nil, fmt.Errorf("create lsf dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	listFile, err := writePathList(tmpDir, "paths.txt", paths)
	if err != nil {
		return nil, err
	}

	out, err := c.run(ctx, false, "lsf",
		"--format", "pst",
		"-R",
		"--files-from", listFile,
		c.Endpoint(side),
	)
	if err != nil {
		return nil, fmt.Errorf("list %s paths: %w", side, err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		info, err := parseLsfLine(line)
		if err != nil {
			return nil, fmt.Errorf("parse lsf line %q: %w", line, err)
		}
		infos[info.Path] = info
	}

	return infos, nil
}

// parseLsfLine parses one `lsf --format pst` line: `path;size;modtime`.
// The path itself may contain semicolons, so size and time are taken from
// the right.
func parseLsfLine(line string) (PathInfo, error) {
	fields := strings.Split(line, ";")
	if len(fields) < 3 {
		return PathInfo{}, fmt.Errorf("expected path;size;modtime")
	}

	pathPart := strings.Join(fields[:len(fields)-2], ";")
	sizePart := fields[len(fields)-2]
	timePart := fields[len(fields)-1]

	size, err := strconv.ParseInt(sizePart, 10, 64)
	if err != nil {
		return PathInfo{}, fmt.Errorf("size: %w", err)
	}

	modTime, err := time.ParseInLocation(lsfTimeLayout, timePart, time.Local)
	if err != nil {
		return PathInfo{}, fmt.Errorf("modtime: %w", err)
	}

	return PathInfo{Path: pathPart, Size: size, ModTime: modTime}, nil
}
