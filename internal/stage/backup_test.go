package stage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/workflow"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/storage"
)

func newTestGuard(t *testing.T) (*BackupGuard, *workflow.StateStore) {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := workflow.NewStateStore(local)
	return NewBackupGuard(store), store
}

func snapshotWithAttempt() *workflow.Fragment {
	return &workflow.Fragment{
		PromptAttempts: []workflow.PromptAttempt{{ID: "a1", Text: "prompt"}},
	}
}

func TestBackupGuard_RestoreFresh(t *testing.T) {
	ctx := context.Background()
	guard, _ := newTestGuard(t)

	captured := time.Now()
	guard.now = func() time.Time { return captured }
	require.NoError(t, guard.Capture(ctx, "T-1", snapshotWithAttempt()))

	guard.now = func() time.Time { return captured.Add(5 * time.Minute) }
	restored, err := guard.Restore(ctx, "T-1")
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, "prompt", restored.PromptAttempts[0].Text)
}

func TestBackupGuard_RestoreIsSingleUse(t *testing.T) {
	ctx := context.Background()
	guard, _ := newTestGuard(t)

	require.NoError(t, guard.Capture(ctx, "T-1", snapshotWithAttempt()))

	first, err := guard.Restore(ctx, "T-1")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := guard.Restore(ctx, "T-1")
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestBackupGuard_ExpiredBackupDiscarded(t *testing.T) {
	ctx := context.Background()
	guard, store := newTestGuard(t)

	captured := time.Now()
	guard.now = func() time.Time { return captured }
	require.NoError(t, guard.Capture(ctx, "T-1", snapshotWithAttempt()))

	guard.now = func() time.Time { return captured.Add(15 * time.Minute) }
	restored, err := guard.Restore(ctx, "T-1")
	require.NoError(t, err)
	assert.Nil(t, restored)

	// expired backup is consumed, not left behind
	exists, err := store.Exists(ctx, workflow.BackupKey("T-1"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBackupGuard_EmptySnapshotNotCaptured(t *testing.T) {
	ctx := context.Background()
	guard, store := newTestGuard(t)

	require.NoError(t, guard.Capture(ctx, "T-1", &workflow.Fragment{}))

	exists, err := store.Exists(ctx, workflow.BackupKey("T-1"))
	require.NoError(t, err)
	assert.False(t, exists)
}
