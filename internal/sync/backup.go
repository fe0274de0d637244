package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"

	"github.com/rclouned/rclouned/internal/rclone"
	"github.com/rclouned/rclouned/internal/utils"
)

// backupStampLayout keys one cycle's backups under a shared timestamp, so
// a retried action in a later cycle produces at most one additional backup
// instead of piling up duplicates.
const backupStampLayout = "20060102-150405"

// BackupArea is the trash/backup location for one sync cycle. Everything
// about to be overwritten or deleted lands here first; nothing is ever
// pruned automatically.
type BackupArea struct {
	localDir     string // absolute: <root>/.rclouned/backups/<stamp>
	remotePrefix string // remote-relative: .rclouned/backups/<stamp>
	rc           transferer
	dryRun       bool
}

func NewBackupArea(backupsDir, remotePrefix, stamp string, rc transferer, dryRun bool) *BackupArea {
	return &BackupArea{
		localDir:     filepath.Join(backupsDir, stamp),
		remotePrefix: path.Join(remotePrefix, stamp),
		rc:           rc,
		dryRun:       dryRun,
	}
}

// StashLocal moves a local file into the backup area. The move doubles as
// the local delete: files leave the tree only by entering the trash.
// A file that is already gone is treated as stashed.
func (b *BackupArea) StashLocal(absPath, relPath string) error {
	if !utils.FileExists(absPath) {
		return nil
	}
	target := filepath.Join(b.localDir, filepath.FromSlash(relPath))

	if b.dryRun {
		slog.Info("dry-run: would move to local trash", "path", relPath, "trash", target)
		return nil
	}

	if err := utils.MoveFile(absPath, target); err != nil {
		return fmt.Errorf("stash %s: %w", relPath, err)
	}
	return nil
}

// KeepLocalCopy copies (not moves) a local file into the backup area,
// preserving the original in place.
func (b *BackupArea) KeepLocalCopy(absPath, relPath string) error {
	if !utils.FileExists(absPath) {
		return nil
	}
	target := filepath.Join(b.localDir, filepath.FromSlash(relPath))

	if b.dryRun {
		slog.Info("dry-run: would copy to local trash", "path", relPath, "trash", target)
		return nil
	}

	if err := utils.CopyFile(absPath, target); err != nil {
		return fmt.Errorf("keep copy of %s: %w", relPath, err)
	}
	return nil
}

// StashRemote moves a remote file into the remote backup prefix,
// server-side. The move doubles as the remote delete while retaining the
// data: this system never issues an unrecoverable remote removal.
func (b *BackupArea) StashRemote(ctx context.Context, relPath string) error {
	if err := b.rc.MoveRemote(ctx, relPath, path.Join(b.remotePrefix, relPath)); err != nil {
		return fmt.Errorf("stash remote %s: %w", relPath, err)
	}
	return nil
}

// FetchRemoteCopy downloads a remote file into the local backup area,
// leaving the remote untouched. Used in careful mode before remote
// deletions so a local copy provably retains the data.
func (b *BackupArea) FetchRemoteCopy(ctx context.Context, relPath string) error {
	target := filepath.Join(b.localDir, filepath.FromSlash(relPath))
	if err := b.rc.CopyAbs(ctx, rclone.Remote, relPath, target); err != nil {
		return fmt.Errorf("fetch remote copy of %s: %w", relPath, err)
	}
	return nil
}
