package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rclouned/rclouned/internal/rclone"
	"github.com/rclouned/rclouned/internal/utils"
)

// transferer is the slice of the rclone client the executor needs.
type transferer interface {
	Copy(ctx context.Context, relPath string, from, to rclone.Side) error
	CopyTo(ctx context.Context, from rclone.Side, fromRel string, to rclone.Side, toRel string) error
	CopyAbs(ctx context.Context, from rclone.Side, fromRel string, destAbs string) error
	Delete(ctx context.Context, relPath string, side rclone.Side) error
	MoveRemote(ctx context.Context, fromRel, toRel string) error
}

// Executor applies reconciled actions with side-effect safety: every
// overwrite or delete stashes the doomed version in the backup area first,
// and a failed backup aborts the destructive half entirely.
type Executor struct {
	rc             transferer
	folder         string // local sync root, absolute
	backups        *BackupArea
	conflictSuffix string // per-cycle, e.g. "_conflict-20240501-103000"
	careful        bool
	dryRun         bool
	maxTransfers   int
}

// Apply executes all actions with bounded concurrency. Actions touch
// disjoint paths and disjoint backup keys, so they never contend; a failed
// action is recorded and does not block the rest.
func (e *Executor) Apply(ctx context.Context, actions []Action) []ActionFailure {
	var g errgroup.Group
	g.SetLimit(e.maxTransfers)

	errs := make([]error, len(actions))
	for i, action := range actions {
		g.Go(func() error {
			if err := e.apply(ctx, action); err != nil {
				slog.Warn("sync", "op", action.Op, "path", action.Path, "error", err)
				errs[i] = err
			} else {
				slog.Info("sync", "op", action.Op, "path", action.Path)
			}
			return nil
		})
	}
	g.Wait()

	var failed []ActionFailure
	for i, err := range errs {
		if err != nil {
			failed = append(failed, ActionFailure{Op: actions[i].Op, Path: actions[i].Path, Err: err})
		}
	}
	return failed
}

func (e *Executor) apply(ctx context.Context, a Action) error {
	switch a.Op {
	case OpUpload:
		return e.upload(ctx, a)
	case OpDownload:
		return e.download(ctx, a)
	case OpDeleteLocal:
		return e.deleteLocal(a)
	case OpDeleteRemote:
		return e.deleteRemote(ctx, a)
	case OpConflict:
		return e.resolveConflict(ctx, a)
	default:
		return fmt.Errorf("unknown op %d", a.Op)
	}
}

// upload copies the local version over the remote one. An existing remote
// version is stashed in the remote trash first; if that fails, the upload
// is aborted rather than overwriting unreplaceable data.
func (e *Executor) upload(ctx context.Context, a Action) error {
	if a.Remote.Exists {
		if err := e.backups.StashRemote(ctx, a.Path); err != nil {
			return fmt.Errorf("backup before overwrite: %w", err)
		}
	}
	return e.rc.Copy(ctx, a.Path, rclone.Local, rclone.Remote)
}

// download copies the remote version over the local one, stashing any
// existing local version in the trash first.
func (e *Executor) download(ctx context.Context, a Action) error {
	if a.Local.Exists {
		if err := e.backups.StashLocal(e.localPath(a.Path), a.Path); err != nil {
			return fmt.Errorf("backup before overwrite: %w", err)
		}
	}
	return e.rc.Copy(ctx, a.Path, rclone.Remote, rclone.Local)
}

// deleteLocal never removes anything outright: the file is moved into the
// local trash. A file that is already gone counts as deleted.
func (e *Executor) deleteLocal(a Action) error {
	return e.backups.StashLocal(e.localPath(a.Path), a.Path)
}

// deleteRemote moves the remote file into the remote trash, which both
// deletes it from the tree and retains its content. In careful mode a copy
// is pulled into the local trash first, so the data survives even losing
// access to the remote.
func (e *Executor) deleteRemote(ctx context.Context, a Action) error {
	if e.careful {
		if err := e.backups.FetchRemoteCopy(ctx, a.Path); err != nil {
			return fmt.Errorf("fetch copy before remote delete: %w", err)
		}
	}
	return e.backups.StashRemote(ctx, a.Path)
}

// resolveConflict keeps both versions: the local file is renamed with the
// conflict suffix and the remote version lands in the original path. The
// renamed copy is then uploaded, so both replicas end up carrying both
// versions and the next comparison finds nothing to re-litigate. A copy of
// the pre-conflict local content also goes into the trash, in case the
// suffixed file is later overwritten or mislaid.
func (e *Executor) resolveConflict(ctx context.Context, a Action) error {
	conflictRel := conflictName(a.Path, e.conflictSuffix)
	localPath := e.localPath(a.Path)
	conflictPath := e.localPath(conflictRel)

	renamed := utils.FileExists(conflictPath) // a previous attempt got this far

	if a.Local.Exists && !renamed && utils.FileExists(localPath) {
		if err := e.backups.KeepLocalCopy(localPath, a.Path); err != nil {
			return fmt.Errorf("backup before conflict rename: %w", err)
		}
		if e.dryRun {
			slog.Info("dry-run: would rename conflicting local file", "path", a.Path, "renamed", conflictRel)
		} else {
			if err := os.Rename(localPath, conflictPath); err != nil {
				return fmt.Errorf("rename conflicting local file: %w", err)
			}
			renamed = true
		}
	}

	if err := e.rc.Copy(ctx, a.Path, rclone.Remote, rclone.Local); err != nil {
		return fmt.Errorf("download winning version: %w", err)
	}

	if renamed || utils.FileExists(conflictPath) {
		if err := e.rc.CopyTo(ctx, rclone.Local, conflictRel, rclone.Remote, conflictRel); err != nil {
			return fmt.Errorf("upload conflict copy: %w", err)
		}
	}

	return nil
}

func (e *Executor) localPath(relPath string) string {
	return filepath.Join(e.folder, filepath.FromSlash(relPath))
}

// conflictName inserts the suffix before the extension:
// "docs/a.txt" + "_conflict-20240501-103000" -> "docs/a_conflict-20240501-103000.txt".
func conflictName(relPath, suffix string) string {
	ext := filepath.Ext(relPath)
	base := strings.TrimSuffix(relPath, ext)
	return base + suffix + ext
}
