package rclone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/rclouned/rclouned/internal/config"
)

// Side identifies one replica of the synced tree.
type Side string

const (
	Local  Side = "local"
	Remote Side = "remote"
)

func (s Side) Other() Side {
	if s == Local {
		return Remote
	}
	return Local
}

// commandRunner abstracts process execution so tests can fake the rclone binary.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// CommandError carries the argv and combined output of a failed rclone call.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("rclone %s: %v", strings.Join(e.Args, " "), e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Client shells out to the rclone binary for all remote operations. Copies
// performed by rclone preserve the source file's modification time on the
// destination, which the reconciler's timestamp comparisons depend on.
type Client struct {
	bin    string
	folder string
	remote string
	subdir string
	opts   []string
	dryRun bool
	runner commandRunner
}

func New(cfg *config.Config) *Client {
	return &Client{
		bin:    "rclone",
		folder: cfg.Folder,
		remote: cfg.Remote,
		subdir: cfg.Subdir,
		opts:   cfg.RcloneOptions(),
		dryRun: cfg.DryRun,
		runner: execRunner{},
	}
}

// Endpoint returns the rclone path argument for a whole side.
func (c *Client) Endpoint(side Side) string {
	if side == Local {
		return c.folder
	}
	return c.remote + ":" + c.subdir
}

// PathOn returns the rclone path argument for one file on a side.
func (c *Client) PathOn(side Side, relPath string) string {
	if side == Local {
		return filepath.Join(c.folder, filepath.FromSlash(relPath))
	}
	return c.remote + ":" + path.Join(c.subdir, relPath)
}

// Copy transfers one file between sides, into the same relative path.
func (c *Client) Copy(ctx context.Context, relPath string, from, to Side) error {
	_, err := c.run(ctx, true, "copyto", c.PathOn(from, relPath), c.PathOn(to, relPath))
	return err
}

// CopyTo transfers one file between sides into a different relative path.
func (c *Client) CopyTo(ctx context.Context, from Side, fromRel string, to Side, toRel string) error {
	_, err := c.run(ctx, true, "copyto", c.PathOn(from, fromRel), c.PathOn(to, toRel))
	return err
}

// CopyAbs copies one file from a side to an arbitrary local filesystem
// path, outside the synced tree mapping. Used for pulling remote backups.
func (c *Client) CopyAbs(ctx context.Context, from Side, fromRel string, destAbs string) error {
	_, err := c.run(ctx, true, "copyto", c.PathOn(from, fromRel), destAbs)
	return err
}

// Delete removes one file from a side.
func (c *Client) Delete(ctx context.Context, relPath string, side Side) error {
	_, err := c.run(ctx, true, "deletefile", c.PathOn(side, relPath))
	return err
}

// MoveRemote renames a file within the remote, server-side where the backend
// supports it. Used to move remote files into the remote trash area.
func (c *Client) MoveRemote(ctx context.Context, fromRel, toRel string) error {
	_, err := c.run(ctx, true, "moveto", c.PathOn(Remote, fromRel), c.PathOn(Remote, toRel))
	return err
}

// Version probes the rclone binary. Used at startup to fail fast when the
// binary is missing from PATH.
func (c *Client) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, false, "version")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

func (c *Client) run(ctx context.Context, mutating bool, args ...string) ([]byte, error) {
	argv := make([]string, 0, len(c.opts)+len(args)+1)
	argv = append(argv, c.opts...)
	if mutating && c.dryRun {
		argv = append(argv, "--dry-run")
	}
	argv = append(argv, args...)

	slog.Debug("rclone exec", "args", argv)
	out, err := c.runner.Run(ctx, c.bin, argv...)
	if len(out) > 0 {
		slog.Debug("rclone output", "cmd", args[0], "output", string(out))
	}
	if err != nil {
		return out, &CommandError{Args: argv, Output: string(out), Err: err}
	}
	return out, nil
}

// exitCode extracts the process exit code from a failed run, or -1 when the
// command never ran.
func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

func writePathList(dir, name string, paths []string) (string, error) {
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(strings.Join(paths, "\n")), 0o644); err != nil {
		return "", err
	}
	return p, nil
}

func readPathList(p string) ([]string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}
