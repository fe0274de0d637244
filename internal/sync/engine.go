package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/rclouned/rclouned/internal/config"
	"github.com/rclouned/rclouned/internal/rclone"
	"github.com/rclouned/rclouned/internal/utils"
)

const (
	// watchDebounce batches bursts of local writes into one early cycle.
	watchDebounce = 2 * time.Second

	// maxBackoff caps the delay between retries after consecutive failures.
	maxBackoff = 30 * time.Minute

	// persistentFailureThreshold is how many consecutive failed cycles it
	// takes before the daemon flags the condition as needing intervention.
	persistentFailureThreshold = 3
)

var (
	ErrSyncAlreadyRunning = errors.New("sync already running")
	ErrRootLocked         = errors.New("sync root is locked by another rclouned instance")
)

// client is everything the engine needs from the rclone binary.
type client interface {
	comparer
	transferer
	Version(ctx context.Context) (string, error)
}

// Engine runs sync cycles against one root: scan differences, reconcile
// them into actions, apply the actions, then advance the baseline. Cycles
// are strictly serial per engine, and a file lock keeps a second rclouned
// process off the same root.
type Engine struct {
	cfg     *config.Config
	rc      client
	scanner *Scanner
	store   *BaselineStore
	history *History
	lock    *flock.Flock

	muSync sync.Mutex
}

func NewEngine(cfg *config.Config) (*Engine, error) {
	if err := utils.EnsureDir(cfg.StateDir()); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	rc := rclone.New(cfg)
	history, err := NewHistory(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("open sync history: %w", err)
	}

	return &Engine{
		cfg:     cfg,
		rc:      rc,
		scanner: NewScanner(rc, NewIgnoreList(cfg.IgnorePath())),
		store:   NewBaselineStore(cfg.BaselinePath()),
		history: history,
		lock:    flock.New(cfg.LockPath()),
	}, nil
}

func (e *Engine) Close() error {
	return e.history.Close()
}

// Probe verifies the rclone binary is reachable. Called once at startup so
// a missing binary fails fast instead of on the first cycle.
func (e *Engine) Probe(ctx context.Context) error {
	v, err := e.rc.Version(ctx)
	if err != nil {
		return fmt.Errorf("rclone not available: %w", err)
	}
	slog.Debug("rclone probe", "version", v)
	return nil
}

// RunSync executes one full cycle. The returned result is non-nil whenever
// the cycle ran to completion, even if some individual actions failed; a
// non-nil error means the cycle itself could not complete (comparison
// unreachable, baseline unreadable) and nothing was advanced.
func (e *Engine) RunSync(ctx context.Context) (*CycleResult, error) {
	if !e.muSync.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer e.muSync.Unlock()

	locked, err := e.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !locked {
		return nil, ErrRootLocked
	}
	defer e.lock.Unlock()

	started := time.Now()
	cycleID := uuid.NewString()[:8]

	baseline, err := e.store.Get()
	if err != nil {
		return nil, err
	}
	slog.Info("cycle start", "cycle", cycleID, "baseline", baselineLabel(baseline))

	diffs, err := e.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	reconciler := &Reconciler{Baseline: baseline}
	result := &CycleResult{ID: cycleID, Started: started, DryRun: e.cfg.DryRun}

	actions := make([]Action, 0, len(diffs))
	for _, d := range diffs {
		action := reconciler.Reconcile(d)
		actions = append(actions, action)
		result.TransferBytes += action.TransferBytes()

		switch action.Op {
		case OpUpload:
			result.Uploads++
		case OpDownload:
			result.Downloads++
		case OpDeleteLocal:
			result.LocalDeletes++
		case OpDeleteRemote:
			result.RemoteDeletes++
		case OpConflict:
			result.Conflicts++
		}
		if action.Anomalous {
			result.Anomalies++
			slog.Warn("difference reported but neither side changed since last sync, keeping both versions",
				"cycle", cycleID, "path", action.Path)
		}
		slog.Debug("plan", "cycle", cycleID, "op", action.Op, "path", action.Path)
	}

	slog.Info("sync plan",
		"cycle", cycleID,
		"uploads", result.Uploads,
		"downloads", result.Downloads,
		"local_trash", result.LocalDeletes,
		"remote_trash", result.RemoteDeletes,
		"conflicts", result.Conflicts,
		"transfer", humanize.IBytes(uint64(result.TransferBytes)),
		"dryrun", e.cfg.DryRun,
	)

	stamp := started.Format(backupStampLayout)
	executor := &Executor{
		rc:             e.rc,
		folder:         e.cfg.Folder,
		backups:        NewBackupArea(e.cfg.BackupsDir(), e.cfg.RemoteBackupsPrefix(), stamp, e.rc, e.cfg.DryRun),
		conflictSuffix: e.cfg.ConflictSuffix + "-" + stamp,
		careful:        e.cfg.Careful,
		dryRun:         e.cfg.DryRun,
		maxTransfers:   e.cfg.MaxTransfers,
	}

	// in-flight transfers run to completion even during shutdown; aborting
	// a copy midway is how half-written files happen
	result.Failed = executor.Apply(context.WithoutCancel(ctx), actions)

	if !e.cfg.DryRun {
		// the baseline records the cycle start: anything modified while the
		// cycle ran lands after it and is picked up next time. Advancement
		// is global even when individual actions failed; their differences
		// persist and are retried next cycle.
		if err := e.store.Set(started); err != nil {
			return result, fmt.Errorf("advance baseline: %w", err)
		}
	}

	result.Finished = time.Now()
	if err := e.history.Record(result); err != nil {
		slog.Warn("record cycle history", "cycle", cycleID, "error", err)
	}

	slog.Info("cycle done",
		"cycle", cycleID,
		"took", result.Finished.Sub(started).Round(time.Millisecond),
		"actions", result.Planned(),
		"failed", len(result.Failed),
	)

	return result, nil
}

// History exposes the persisted cycle log.
func (e *Engine) History(limit int) ([]CycleRecord, error) {
	return e.history.Recent(limit)
}

// Run loops sync cycles until the context is cancelled. Consecutive cycle
// failures back off exponentially up to a cap; local writes observed by the
// watcher pull the next cycle forward.
func (e *Engine) Run(ctx context.Context) error {
	watcher := NewWatcher(e.cfg.Folder)
	trigger := make(chan struct{}, 1)
	if err := watcher.Start(); err != nil {
		slog.Warn("file watcher unavailable, relying on interval only", "error", err)
	} else {
		defer watcher.Stop()
		go e.watchLoop(ctx, watcher, trigger)
	}

	interval := e.cfg.Interval()
	failures := 0

	// a timer instead of a ticker: cycles that outlast the interval must
	// not queue up behind each other
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown requested")
			return nil
		case <-trigger:
			slog.Debug("local changes detected, starting cycle early")
		case <-timer.C:
		}

		res, err := e.RunSync(ctx)

		delay := interval
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			failures++
			delay = backoffDelay(interval, failures)
			slog.Error("sync cycle failed", "error", err, "consecutive", failures, "retry_in", delay)
			if failures >= persistentFailureThreshold {
				slog.Error("sync is failing persistently, operator attention needed", "consecutive", failures)
			}
		case !res.Clean():
			failures = 0
			slog.Warn("cycle finished with failed actions, differences will be retried", "failed", len(res.Failed))
		default:
			failures = 0
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(delay)
	}
}

// watchLoop debounces watcher events into cycle triggers, ignoring writes
// inside the state dir (backups and logs would otherwise retrigger sync
// forever).
func (e *Engine) watchLoop(ctx context.Context, w *Watcher, trigger chan<- struct{}) {
	debounce := time.NewTimer(watchDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			if strings.HasPrefix(ev.Path(), e.cfg.StateDir()) {
				continue
			}
			debounce.Reset(watchDebounce)
		case <-debounce.C:
			select {
			case trigger <- struct{}{}:
			default:
			}
		}
	}
}

func backoffDelay(interval time.Duration, failures int) time.Duration {
	delay := interval
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

func baselineLabel(t time.Time) string {
	if t.Unix() == 0 {
		return "never"
	}
	return t.Format(baselineTimeLayout)
}
