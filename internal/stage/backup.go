package stage

import (
	"context"
	"log/slog"
	"time"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/workflow"
)

// backupFreshness is how long an emergency backup stays restorable.
const backupFreshness = 10 * time.Minute

// backupEnvelope wraps the snapshot with the time it was captured.
type backupEnvelope struct {
	CapturedAt time.Time          `json:"capturedAt"`
	Snapshot   *workflow.Fragment `json:"snapshot"`
}

// BackupGuard captures and restores a last-resort snapshot around
// uncontrolled page exits. A backup is single-use: restoring consumes it,
// and a backup past the freshness threshold is never replayed.
type BackupGuard struct {
	store *workflow.StateStore
	now   func() time.Time
}

func NewBackupGuard(store *workflow.StateStore) *BackupGuard {
	return &BackupGuard{store: store, now: time.Now}
}

// Capture writes the snapshot to the task's backup key, tagged with the
// current time. Empty snapshots are not captured.
func (g *BackupGuard) Capture(ctx context.Context, taskID string, snapshot *workflow.Fragment) error {
	if snapshot.Empty() {
		return nil
	}
	return g.store.Set(ctx, workflow.BackupKey(taskID), &backupEnvelope{
		CapturedAt: g.now(),
		Snapshot:   snapshot,
	})
}

// Restore returns the backed-up snapshot if one exists and is still fresh,
// deleting the backup key either way so it cannot be replayed twice.
// It returns nil when nothing is restorable.
func (g *BackupGuard) Restore(ctx context.Context, taskID string) (*workflow.Fragment, error) {
	key := workflow.BackupKey(taskID)
	var env backupEnvelope
	ok, err := g.store.Get(ctx, key, &env)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if err := g.store.Remove(ctx, key); err != nil {
		return nil, err
	}
	if env.Snapshot == nil || g.now().Sub(env.CapturedAt) > backupFreshness {
		slog.DebugContext(ctx, "discarding expired emergency backup", "task_id", taskID, "captured_at", env.CapturedAt)
		return nil, nil
	}
	slog.InfoContext(ctx, "restored emergency backup", "task_id", taskID, "captured_at", env.CapturedAt)
	return env.Snapshot, nil
}
