package sync

import (
	"log/slog"

	"github.com/rjeczalik/notify"
)

// Watcher reports local writes under the sync root so daemon mode can pull
// the next cycle forward instead of waiting out the full interval.
type Watcher struct {
	watchDir string
	events   chan notify.EventInfo
}

func NewWatcher(watchDir string) *Watcher {
	return &Watcher{
		watchDir: watchDir,
		events:   make(chan notify.EventInfo, 16),
	}
}

func (w *Watcher) Start() error {
	slog.Info("file watcher start", "dir", w.watchDir)

	recursivePath := w.watchDir + "/..."
	return notify.Watch(recursivePath, w.events, notify.Write, notify.Remove, notify.Rename)
}

func (w *Watcher) Stop() {
	notify.Stop(w.events)
	close(w.events)
	slog.Info("file watcher stop")
}

func (w *Watcher) Events() <-chan notify.EventInfo {
	return w.events
}
