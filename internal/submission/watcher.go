package submission

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/workflow"
)

const watcherDebounce = 100 * time.Millisecond

// Watcher retries queued submissions when new entries appear in the local
// queue directory. Only local storage is watched; with S3 storage the
// queue is flushed on demand instead.
type Watcher struct {
	pipeline *Pipeline
	queueDir string

	mu      sync.Mutex
	pending *time.Timer
}

func NewWatcher(pipeline *Pipeline, baseDir string) *Watcher {
	return &Watcher{
		pipeline: pipeline,
		queueDir: filepath.Join(baseDir, filepath.FromSlash(workflow.QueuePrefix)),
	}
}

// Run watches the queue directory until ctx is cancelled. It flushes once
// at startup to pick up entries queued while the process was down.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.queueDir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(w.queueDir); err != nil {
		return err
	}

	w.flush(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			w.schedule(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "queue watcher error", "error", err)
		}
	}
}

// schedule coalesces bursts of filesystem events into one flush.
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(watcherDebounce, func() {
		w.flush(ctx)
	})
}

func (w *Watcher) flush(ctx context.Context) {
	delivered, err := w.pipeline.FlushQueued(ctx)
	if err != nil {
		slog.WarnContext(ctx, "queue flush failed", "error", err)
		return
	}
	if delivered > 0 {
		slog.InfoContext(ctx, "delivered queued submissions", "count", delivered)
	}
}
