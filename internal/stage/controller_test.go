package stage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/task"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/workflow"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/storage"
)

type fixture struct {
	store *workflow.StateStore
	tasks *task.Store
	guard *BackupGuard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := workflow.NewStateStore(local)
	return &fixture{
		store: store,
		tasks: task.NewStore(local),
		guard: NewBackupGuard(store),
	}
}

func (f *fixture) controller(taskID string, st Stage) *Controller {
	return NewController(taskID, "user-1", st, f.store, f.tasks, f.guard)
}

func TestController_EnterStartsTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller("T-1", StageAuthoring)

	result, err := c.Enter(ctx)
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, result.Status)
	assert.Equal(t, 1, result.StepOrder)
	assert.False(t, result.ReadOnly)
	assert.True(t, result.Snapshot.Empty())

	status, err := f.tasks.GetStatus(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, status)
}

func TestController_AddAttemptPersistsAndMirrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller("T-1", StageAuthoring)
	_, err := c.Enter(ctx)
	require.NoError(t, err)

	attempt, err := c.AddAttempt(ctx, "translate faithfully", "v1")
	require.NoError(t, err)
	require.NotEmpty(t, attempt.ID)

	authoring, err := f.store.GetFragment(ctx, workflow.ClassAuthoring, "T-1")
	require.NoError(t, err)
	require.NotNil(t, authoring)
	require.Len(t, authoring.PromptAttempts, 1)
	assert.Equal(t, 1, authoring.TotalPromptCount)

	// every persist mirrors the merged result to the canonical review key
	review, err := f.store.GetFragment(ctx, workflow.ClassReview, "T-1")
	require.NoError(t, err)
	require.NotNil(t, review)
	require.Len(t, review.PromptAttempts, 1)
	assert.Equal(t, attempt.ID, review.PromptAttempts[0].ID)
}

func TestController_AddAttemptClearsDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller("T-1", StageAuthoring)
	_, err := c.Enter(ctx)
	require.NoError(t, err)

	require.NoError(t, c.SaveDraft(ctx, "half-typed prom"))
	_, err = c.AddAttempt(ctx, "half-typed prompt, finished", "")
	require.NoError(t, err)
	assert.Empty(t, c.Snapshot().DraftPrompt)
}

func TestController_FlushSupersedesDebouncedDraftSave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller("T-1", StageAuthoring)
	_, err := c.Enter(ctx)
	require.NoError(t, err)
	_, err = c.AddAttempt(ctx, "first prompt", "")
	require.NoError(t, err)

	// SaveDraft only schedules a write; nothing lands until the delay.
	require.NoError(t, c.SaveDraft(ctx, "half-typed follow-up"))
	stored, err := f.store.GetFragment(ctx, workflow.ClassAuthoring, "T-1")
	require.NoError(t, err)
	assert.Empty(t, stored.DraftPrompt)

	// Flush persists synchronously and cancels the pending timer.
	require.NoError(t, c.Flush(ctx))
	stored, err = f.store.GetFragment(ctx, workflow.ClassAuthoring, "T-1")
	require.NoError(t, err)
	assert.Equal(t, "half-typed follow-up", stored.DraftPrompt)

	c.mu.Lock()
	assert.Nil(t, c.debounce)
	c.mu.Unlock()
}

func TestController_CommentRequiresLike(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller("T-1", StageReview)
	_, err := c.Enter(ctx)
	require.NoError(t, err)

	a, err := c.AddAttempt(ctx, "prompt", "")
	require.NoError(t, err)

	err = c.SetComment(ctx, a.ID, "great rhythm in the dialogue")
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))

	require.NoError(t, c.SetLiked(ctx, a.ID, true))
	require.NoError(t, c.SetComment(ctx, a.ID, "great rhythm in the dialogue"))
	assert.Equal(t, "great rhythm in the dialogue", c.Snapshot().Comments[a.ID])
}

func TestController_DislikeDeletesComment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller("T-1", StageReview)
	_, err := c.Enter(ctx)
	require.NoError(t, err)

	a, err := c.AddAttempt(ctx, "prompt", "")
	require.NoError(t, err)
	require.NoError(t, c.SetLiked(ctx, a.ID, true))
	require.NoError(t, c.SetComment(ctx, a.ID, "solid work"))

	require.NoError(t, c.SetLiked(ctx, a.ID, false))
	snapshot := c.Snapshot()
	_, hasComment := snapshot.Comments[a.ID]
	assert.False(t, hasComment)

	// the deletion must survive a re-entry merge against stored fragments
	c2 := f.controller("T-1", StageReview)
	result, err := c2.Enter(ctx)
	require.NoError(t, err)
	_, hasComment = result.Snapshot.Comments[a.ID]
	assert.False(t, hasComment)
}

func TestController_EvaluationScoreBounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller("T-1", StageBestSelection)
	_, err := c.Enter(ctx)
	require.NoError(t, err)

	a, err := c.AddAttempt(ctx, "prompt", "")
	require.NoError(t, err)

	assert.True(t, cerr.IsCode(c.SetEvaluation(ctx, a.ID, "text", 0), cerr.OutOfRange))
	assert.True(t, cerr.IsCode(c.SetEvaluation(ctx, a.ID, "text", 6), cerr.OutOfRange))
	require.NoError(t, c.SetEvaluation(ctx, a.ID, "text", 5))
	assert.Equal(t, 5, c.Snapshot().QualityEvaluations[a.ID].Score)
}

func TestController_SubmittedTaskIsReadOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.tasks.SetStatus(ctx, "T-1", task.StatusSubmitted))

	c := f.controller("T-1", StageReview)
	result, err := c.Enter(ctx)
	require.NoError(t, err)
	assert.True(t, result.ReadOnly)
	assert.Equal(t, 2, result.StepOrder)

	_, err = c.AddAttempt(ctx, "prompt", "")
	assert.True(t, cerr.IsCode(err, cerr.FailedPrecondition))
	assert.NoError(t, c.Flush(ctx))
}

func TestController_EnterRestoresFreshBackup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	backup := &workflow.Fragment{
		PromptAttempts: []workflow.PromptAttempt{{ID: "a1", Text: "rescued"}},
	}
	require.NoError(t, f.guard.Capture(ctx, "T-1", backup))

	c := f.controller("T-1", StageAuthoring)
	result, err := c.Enter(ctx)
	require.NoError(t, err)
	require.Len(t, result.Snapshot.PromptAttempts, 1)
	assert.Equal(t, "rescued", result.Snapshot.PromptAttempts[0].Text)
}

func TestController_BackupIgnoredWhenFragmentsExist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.store.SetFragment(ctx, workflow.ClassReview, "T-1", &workflow.Fragment{
		PromptAttempts: []workflow.PromptAttempt{{ID: "a1", Text: "canonical"}},
	}))
	require.NoError(t, f.guard.Capture(ctx, "T-1", &workflow.Fragment{
		PromptAttempts: []workflow.PromptAttempt{{ID: "a9", Text: "stale backup"}},
	}))

	c := f.controller("T-1", StageReview)
	result, err := c.Enter(ctx)
	require.NoError(t, err)
	require.Len(t, result.Snapshot.PromptAttempts, 1)
	assert.Equal(t, "canonical", result.Snapshot.PromptAttempts[0].Text)
}

func TestController_FlushCapturesBackup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller("T-1", StageAuthoring)
	_, err := c.Enter(ctx)
	require.NoError(t, err)
	_, err = c.AddAttempt(ctx, "prompt", "")
	require.NoError(t, err)

	require.NoError(t, c.Flush(ctx))

	exists, err := f.store.Exists(ctx, workflow.BackupKey("T-1"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestController_EmptySnapshotNotPersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.controller("T-1", StageAuthoring)
	_, err := c.Enter(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Flush(ctx))

	exists, err := f.store.Exists(ctx, workflow.FragmentKey(workflow.ClassAuthoring, "T-1"))
	require.NoError(t, err)
	assert.False(t, exists)
}
