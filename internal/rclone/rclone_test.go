package rclone

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls   [][]string
	handler func(args []string) ([]byte, error)
}

func (f *fakeRunner) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, args)
	if f.handler != nil {
		return f.handler(args)
	}
	return nil, nil
}

func newTestClient(folder string, runner commandRunner) *Client {
	return &Client{
		bin:    "rclone",
		folder: folder,
		remote: "gdrive",
		subdir: "notes",
		runner: runner,
	}
}

// flagValue returns the argument following the given flag, or "".
func flagValue(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func TestEndpointsAndPaths(t *testing.T) {
	c := newTestClient("/data/sync", nil)

	assert.Equal(t, "/data/sync", c.Endpoint(Local))
	assert.Equal(t, "gdrive:notes", c.Endpoint(Remote))
	assert.Equal(t, filepath.Join("/data/sync", "a", "b.txt"), c.PathOn(Local, "a/b.txt"))
	assert.Equal(t, "gdrive:notes/a/b.txt", c.PathOn(Remote, "a/b.txt"))
}

func TestSideOther(t *testing.T) {
	assert.Equal(t, Remote, Local.Other())
	assert.Equal(t, Local, Remote.Other())
}

func TestCopyAndDeleteArgs(t *testing.T) {
	runner := &fakeRunner{}
	c := newTestClient("/data/sync", runner)

	require.NoError(t, c.Copy(context.Background(), "a.txt", Local, Remote))
	require.NoError(t, c.Delete(context.Background(), "b.txt", Remote))
	require.NoError(t, c.MoveRemote(context.Background(), "c.txt", ".rclouned/backups/1/c.txt"))

	assert.Equal(t, []string{"copyto", filepath.Join("/data/sync", "a.txt"), "gdrive:notes/a.txt"}, runner.calls[0])
	assert.Equal(t, []string{"deletefile", "gdrive:notes/b.txt"}, runner.calls[1])
	assert.Equal(t, []string{"moveto", "gdrive:notes/c.txt", "gdrive:notes/.rclouned/backups/1/c.txt"}, runner.calls[2])
}

func TestDryRunOnlyOnMutatingCommands(t *testing.T) {
	runner := &fakeRunner{handler: func(args []string) ([]byte, error) {
		return []byte("rclone v1.66.0\n"), nil
	}}
	c := newTestClient("/data/sync", runner)
	c.dryRun = true

	require.NoError(t, c.Copy(context.Background(), "a.txt", Local, Remote))
	_, err := c.Version(context.Background())
	require.NoError(t, err)

	assert.Contains(t, runner.calls[0], "--dry-run")
	assert.NotContains(t, runner.calls[1], "--dry-run")
}

func TestExtraOptionsPrecedeSubcommand(t *testing.T) {
	runner := &fakeRunner{}
	c := newTestClient("/data/sync", runner)
	c.opts = []string{"--transfers", "8"}

	require.NoError(t, c.Copy(context.Background(), "a.txt", Remote, Local))
	assert.Equal(t, []string{"--transfers", "8", "copyto", "gdrive:notes/a.txt", filepath.Join("/data/sync", "a.txt")}, runner.calls[0])
}

func TestVersion(t *testing.T) {
	runner := &fakeRunner{handler: func(args []string) ([]byte, error) {
		return []byte("rclone v1.66.0\n- os/version: linux\n"), nil
	}}
	c := newTestClient("/data/sync", runner)

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rclone v1.66.0", v)
}

func TestParseLsfLine(t *testing.T) {
	cases := []struct {
		name    string
		line    string
		want    PathInfo
		wantErr bool
	}{
		{
			name: "plain",
			line: "docs/a.txt;120;2024-05-01 10:30:00",
			want: PathInfo{
				Path:    "docs/a.txt",
				Size:    120,
				ModTime: time.Date(2024, 5, 1, 10, 30, 0, 0, time.Local),
			},
		},
		{
			name: "fractional seconds",
			line: "a.txt;5;2024-05-01 10:30:00.123456789",
			want: PathInfo{
				Path:    "a.txt",
				Size:    5,
				ModTime: time.Date(2024, 5, 1, 10, 30, 0, 123456789, time.Local),
			},
		},
		{
			name: "semicolon in path",
			line: "odd;name.txt;5;2024-05-01 10:30:00",
			want: PathInfo{
				Path:    "odd;name.txt",
				Size:    5,
				ModTime: time.Date(2024, 5, 1, 10, 30, 0, 0, time.Local),
			},
		},
		{name: "too few fields", line: "a.txt;5", wantErr: true},
		{name: "bad size", line: "a.txt;big;2024-05-01 10:30:00", wantErr: true},
		{name: "bad time", line: "a.txt;5;yesterday", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseLsfLine(tc.line)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want.Path, got.Path)
			assert.Equal(t, tc.want.Size, got.Size)
			assert.True(t, got.ModTime.Equal(tc.want.ModTime))
		})
	}
}

func TestListPaths(t *testing.T) {
	runner := &fakeRunner{handler: func(args []string) ([]byte, error) {
		// verify the requested paths made it into the files-from list
		listFile := flagValue(args, "--files-from")
		data, err := os.ReadFile(listFile)
		if err != nil {
			return nil, err
		}
		if string(data) != "a.txt\nb/c.txt" {
			return nil, errors.New("unexpected files-from content: " + string(data))
		}
		return []byte("a.txt;10;2024-05-01 10:30:00\nb/c.txt;20;2024-05-02 11:00:00\n"), nil
	}}
	c := newTestClient("/data/sync", runner)

	infos, err := c.ListPaths(context.Background(), Remote, []string{"a.txt", "b/c.txt"})
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, int64(10), infos["a.txt"].Size)
	assert.Equal(t, int64(20), infos["b/c.txt"].Size)

	// vanished paths are simply absent
	runner.handler = func(args []string) ([]byte, error) { return []byte("a.txt;10;2024-05-01 10:30:00\n"), nil }
	infos, err = c.ListPaths(context.Background(), Local, []string{"a.txt", "gone.txt"})
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestListPathsEmpty(t *testing.T) {
	runner := &fakeRunner{}
	c := newTestClient("/data/sync", runner)

	infos, err := c.ListPaths(context.Background(), Local, nil)
	require.NoError(t, err)
	assert.Empty(t, infos)
	assert.Empty(t, runner.calls, "no rclone call for an empty path set")
}

func TestCheck(t *testing.T) {
	runner := &fakeRunner{handler: func(args []string) ([]byte, error) {
		require.Equal(t, "check", args[0])
		// rclone writes the three report files; the fake does the same
		require.NoError(t, os.WriteFile(flagValue(args, "--differ"), []byte("changed.txt\n"), 0o644))
		require.NoError(t, os.WriteFile(flagValue(args, "--missing-on-src"), []byte("local_only.txt\n"), 0o644))
		require.NoError(t, os.WriteFile(flagValue(args, "--missing-on-dst"), []byte("remote_only.txt\n\n"), 0o644))
		return nil, exitOneError(t)
	}}
	c := newTestClient("/data/sync", runner)

	res, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"changed.txt"}, res.Differ)
	assert.Equal(t, []string{"local_only.txt"}, res.LocalOnly)
	assert.Equal(t, []string{"remote_only.txt"}, res.RemoteOnly)

	// remote endpoint is the source, local folder the destination
	args := runner.calls[0]
	assert.Equal(t, "gdrive:notes", args[len(args)-2])
	assert.Equal(t, "/data/sync", args[len(args)-1])
	assert.Contains(t, args, ".rclouned/**")
}

func TestCheckEmptyReports(t *testing.T) {
	runner := &fakeRunner{handler: func(args []string) ([]byte, error) {
		return nil, nil // no differences, exit 0, reports stay empty
	}}
	c := newTestClient("/data/sync", runner)

	res, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Differ)
	assert.Empty(t, res.LocalOnly)
	assert.Empty(t, res.RemoteOnly)
}

func TestCheckUnreachable(t *testing.T) {
	runner := &fakeRunner{handler: func(args []string) ([]byte, error) {
		return []byte("Failed to create file system"), errors.New("connection refused")
	}}
	c := newTestClient("/data/sync", runner)

	_, err := c.Check(context.Background())
	require.Error(t, err)

	var cmdErr *CommandError
	assert.ErrorAs(t, err, &cmdErr)
	assert.Contains(t, cmdErr.Output, "Failed to create file system")
}

// exitOneError produces a real *exec.ExitError with code 1, the code rclone
// check uses to report that differences were found.
func exitOneError(t *testing.T) error {
	t.Helper()
	err := exec.Command("sh", "-c", "exit 1").Run()
	require.Error(t, err)
	return err
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(exitOneError(t)))
	assert.Equal(t, -1, exitCode(errors.New("plain")))
	assert.Equal(t, 1, exitCode(&CommandError{Err: exitOneError(t)}))
}
