package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/workflow"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/storage"
)

func newTestStore(t *testing.T) (*Store, storage.Storage) {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewStore(local), local
}

func TestStore_UnknownTaskIsNotStarted(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	status, err := store.GetStatus(ctx, "T-unknown")
	require.NoError(t, err)
	assert.Equal(t, StatusNotStarted, status)
}

func TestStore_SetAndGet(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.SetStatus(ctx, "T-1", StatusInProgress))
	status, err := store.GetStatus(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, status)
}

func TestStore_InvalidStoredValueTreatedAsNotStarted(t *testing.T) {
	ctx := context.Background()
	store, backing := newTestStore(t)

	require.NoError(t, backing.Write(ctx, workflow.StatusKey("T-1"), []byte("EXPLODED")))
	status, err := store.GetStatus(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, StatusNotStarted, status)
}

func TestStore_SubmittedIsTerminal(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.SetStatus(ctx, "T-1", StatusSubmitted))

	err := store.SetStatus(ctx, "T-1", StatusInProgress)
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))

	// re-setting the same terminal status is harmless
	assert.NoError(t, store.SetStatus(ctx, "T-1", StatusSubmitted))
}

func TestStore_RejectsInvalidStatus(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	err := store.SetStatus(ctx, "T-1", Status("BOGUS"))
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
}

func TestStatus_Predicates(t *testing.T) {
	assert.True(t, StatusSubmitted.Terminal())
	assert.False(t, StatusSubmissionQueued.Terminal())
	assert.True(t, StatusNotStarted.Valid())
	assert.False(t, Status("?").Valid())
}
