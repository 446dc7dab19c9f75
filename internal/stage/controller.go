package stage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/task"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/workflow"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
)

// Stage is one of the four sequential pages a task passes through.
type Stage string

const (
	StageAuthoring         Stage = "authoring"
	StageReview            Stage = "review"
	StageBestSelection     Stage = "best-selection"
	StageSubmissionPreview Stage = "submission-preview"
)

func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageAuthoring, StageReview, StageBestSelection, StageSubmissionPreview:
		return Stage(s), nil
	}
	return "", cerr.NewError(cerr.InvalidArgument, "unknown stage", nil)
}

func (s Stage) Ordinal() int {
	switch s {
	case StageAuthoring:
		return 1
	case StageReview:
		return 2
	case StageBestSelection:
		return 3
	case StageSubmissionPreview:
		return 4
	}
	return 0
}

// keyClass is the fragment key class this stage persists to. The
// best-selection stage shares the canonical review key; the preview stage
// owns the submission/audit key.
func (s Stage) keyClass() workflow.KeyClass {
	switch s {
	case StageAuthoring:
		return workflow.ClassAuthoring
	case StageSubmissionPreview:
		return workflow.ClassSubmission
	default:
		return workflow.ClassReview
	}
}

// draftSaveDelay debounces keystroke-driven draft saves.
const draftSaveDelay = 750 * time.Millisecond

var errReadOnly = cerr.NewError(cerr.FailedPrecondition, "task already submitted", nil)

// Controller drives one stage of one task. On entry it loads and merges
// all fragments; on every mutation it re-reads fragments, merges and
// persists; on exit it performs a final flush plus an emergency backup.
type Controller struct {
	taskID string
	userID string
	stage  Stage

	store *workflow.StateStore
	tasks *task.Store
	guard *BackupGuard

	mu       sync.Mutex
	snapshot *workflow.Fragment
	readOnly bool
	debounce *time.Timer
}

func NewController(taskID, userID string, st Stage, store *workflow.StateStore, tasks *task.Store, guard *BackupGuard) *Controller {
	return &Controller{
		taskID:   taskID,
		userID:   userID,
		stage:    st,
		store:    store,
		tasks:    tasks,
		guard:    guard,
		snapshot: &workflow.Fragment{},
	}
}

func (c *Controller) TaskID() string { return c.taskID }
func (c *Controller) UserID() string { return c.userID }
func (c *Controller) Stage() Stage   { return c.stage }

type EnterResult struct {
	Snapshot  *workflow.Fragment `json:"snapshot"`
	Status    task.Status        `json:"status"`
	StepOrder int                `json:"stepOrder"`
	ReadOnly  bool               `json:"readOnly"`
}

// Enter loads the merged working snapshot for this stage. When every
// canonical fragment is absent but a fresh emergency backup exists, the
// backup is adopted as the canonical state for this load.
func (c *Controller) Enter(ctx context.Context) (*EnterResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status, err := c.tasks.GetStatus(ctx, c.taskID)
	if err != nil {
		return nil, err
	}
	c.readOnly = status.Terminal()

	existing, err := c.readExisting(ctx)
	if err != nil {
		return nil, err
	}
	if allAbsent(existing) {
		restored, err := c.guard.Restore(ctx, c.taskID)
		if err != nil {
			return nil, err
		}
		if restored != nil {
			existing = []*workflow.Fragment{restored}
		}
	}

	c.snapshot = workflow.Merge(nil, existing...)
	enforceCommentInvariant(c.snapshot)

	if !c.readOnly && status == task.StatusNotStarted {
		if err := c.tasks.SetStatus(ctx, c.taskID, task.StatusInProgress); err != nil {
			return nil, err
		}
		status = task.StatusInProgress
	}

	return &EnterResult{
		Snapshot:  c.snapshot.Clone(),
		Status:    status,
		StepOrder: c.stage.Ordinal(),
		ReadOnly:  c.readOnly,
	}, nil
}

// Snapshot returns a copy of the current working snapshot.
func (c *Controller) Snapshot() *workflow.Fragment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.Clone()
}

// AddAttempt records a new prompt the instant it is entered; the result is
// attached later when the translation call resolves.
func (c *Controller) AddAttempt(ctx context.Context, text, versionLabel string) (*workflow.PromptAttempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return nil, errReadOnly
	}
	if text == "" {
		return nil, cerr.NewError(cerr.InvalidArgument, "prompt text is required", nil)
	}
	attempt := workflow.PromptAttempt{
		ID:           ulid.Make().String(),
		Text:         text,
		VersionLabel: versionLabel,
		CreatedAt:    time.Now(),
	}
	c.snapshot.PromptAttempts = append(c.snapshot.PromptAttempts, attempt)
	c.snapshot.TotalPromptCount++
	c.snapshot.DraftPrompt = ""
	if err := c.persistLocked(ctx); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// AttachResult stores the translation produced for an attempt.
func (c *Controller) AttachResult(ctx context.Context, attemptID, result string) error {
	return c.mutateAttempt(ctx, attemptID, func(a *workflow.PromptAttempt) {
		a.Result = &result
	})
}

// SetLiked flips the like flag. Disliking an attempt deletes any comment
// attached to it; the browser confirms with the user before calling.
func (c *Controller) SetLiked(ctx context.Context, attemptID string, liked bool) error {
	return c.mutateAttempt(ctx, attemptID, func(a *workflow.PromptAttempt) {
		a.Liked = &liked
		if !liked {
			delete(c.snapshot.Comments, attemptID)
		}
	})
}

// SetComment stores review feedback for a liked attempt.
func (c *Controller) SetComment(ctx context.Context, attemptID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return errReadOnly
	}
	attempt := c.snapshot.Attempt(attemptID)
	if attempt == nil {
		return cerr.NewError(cerr.NotFound, "prompt attempt not found", nil)
	}
	if attempt.Liked == nil || !*attempt.Liked {
		return cerr.NewError(cerr.FailedPrecondition, "like the result before commenting on it", nil)
	}
	if c.snapshot.Comments == nil {
		c.snapshot.Comments = make(map[string]string)
	}
	c.snapshot.Comments[attemptID] = text
	attempt.UpdatedAt = time.Now()
	return c.persistLocked(ctx)
}

// SetBestSelection designates the single best attempt for the task.
func (c *Controller) SetBestSelection(ctx context.Context, attemptID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return errReadOnly
	}
	if c.snapshot.Attempt(attemptID) == nil {
		return cerr.NewError(cerr.NotFound, "prompt attempt not found", nil)
	}
	c.snapshot.BestSelection = attemptID
	return c.persistLocked(ctx)
}

// SetEvaluation stores the quality evaluation for an attempt. The score is
// validated at input, not at submission time.
func (c *Controller) SetEvaluation(ctx context.Context, attemptID, text string, score int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return errReadOnly
	}
	if score < 1 || score > 5 {
		return cerr.NewError(cerr.OutOfRange, "score must be an integer between 1 and 5", nil)
	}
	if c.snapshot.Attempt(attemptID) == nil {
		return cerr.NewError(cerr.NotFound, "prompt attempt not found", nil)
	}
	if c.snapshot.QualityEvaluations == nil {
		c.snapshot.QualityEvaluations = make(map[string]workflow.QualityEvaluation)
	}
	c.snapshot.QualityEvaluations[attemptID] = workflow.QualityEvaluation{Text: text, Score: score}
	return c.persistLocked(ctx)
}

// SetSourceTexts stores the retrieved source text and baseline translation.
func (c *Controller) SetSourceTexts(ctx context.Context, original, baseline string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return errReadOnly
	}
	c.snapshot.OriginalText = original
	c.snapshot.BaselineTranslation = baseline
	return c.persistLocked(ctx)
}

// SaveDraft keeps a half-typed prompt in the working snapshot and
// schedules a debounced persist so typing does not cause a write per
// keystroke. Flush forces the pending write through immediately.
func (c *Controller) SaveDraft(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return errReadOnly
	}
	c.snapshot.DraftPrompt = text
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounce = time.AfterFunc(draftSaveDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.debounce = nil
		if err := c.persistLocked(context.Background()); err != nil {
			slog.Error("debounced draft save failed", "task_id", c.taskID, "stage", c.stage, "error", err)
		}
	})
	return nil
}

// Flush performs the final merge-and-persist for exit/unload paths and
// captures an emergency backup. A pending debounced save is superseded by
// the synchronous write. Flushing a submitted task is a no-op.
func (c *Controller) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return nil
	}
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	if err := c.persistLocked(ctx); err != nil {
		return err
	}
	return c.guard.Capture(ctx, c.taskID, c.snapshot)
}

func (c *Controller) mutateAttempt(ctx context.Context, attemptID string, apply func(*workflow.PromptAttempt)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readOnly {
		return errReadOnly
	}
	attempt := c.snapshot.Attempt(attemptID)
	if attempt == nil {
		return cerr.NewError(cerr.NotFound, "prompt attempt not found", nil)
	}
	apply(attempt)
	attempt.UpdatedAt = time.Now()
	return c.persistLocked(ctx)
}

// persistLocked is the single merge-and-persist path every mutation goes
// through: build the update from the fields this stage owns plus the full
// attempts array, merge it against freshly re-read fragments, and write
// the merged result to this stage's key and the canonical review key.
// An empty merge result is never persisted.
func (c *Controller) persistLocked(ctx context.Context) error {
	proposed := c.proposedUpdate()
	existing, err := c.readExisting(ctx)
	if err != nil {
		return err
	}
	merged := workflow.Merge(proposed, existing...)
	enforceCommentInvariant(merged)
	if merged.Empty() {
		slog.DebugContext(ctx, "skipping persist of empty snapshot", "task_id", c.taskID, "stage", c.stage)
		return nil
	}
	own := c.stage.keyClass()
	if err := c.store.SetFragment(ctx, own, c.taskID, merged); err != nil {
		return err
	}
	if own != workflow.ClassReview {
		if err := c.store.SetFragment(ctx, workflow.ClassReview, c.taskID, merged); err != nil {
			return err
		}
	}
	c.snapshot = merged
	return nil
}

// proposedUpdate carries only the fields this stage owns, plus the full
// current attempts array so no stage ever wholesale-replaces another's
// attempt edits.
func (c *Controller) proposedUpdate() *workflow.Fragment {
	proposed := &workflow.Fragment{
		PromptAttempts: c.snapshot.Clone().PromptAttempts,
		SavedAt:        time.Now(),
	}
	switch c.stage {
	case StageAuthoring:
		proposed.OriginalText = c.snapshot.OriginalText
		proposed.BaselineTranslation = c.snapshot.BaselineTranslation
		proposed.TotalPromptCount = c.snapshot.TotalPromptCount
		proposed.DraftPrompt = c.snapshot.DraftPrompt
	case StageReview:
		proposed.Comments = c.snapshot.Clone().Comments
	case StageBestSelection:
		proposed.BestSelection = c.snapshot.BestSelection
		proposed.QualityEvaluations = c.snapshot.Clone().QualityEvaluations
	case StageSubmissionPreview:
	}
	return proposed
}

// readExisting returns the persisted fragments relevant to this task,
// most-authoritative first. Absent fragments come back nil and contribute
// nothing to the merge.
func (c *Controller) readExisting(ctx context.Context) ([]*workflow.Fragment, error) {
	classes := []workflow.KeyClass{workflow.ClassReview, workflow.ClassAuthoring}
	if c.stage == StageSubmissionPreview {
		classes = append([]workflow.KeyClass{workflow.ClassSubmission}, classes...)
	}
	fragments := make([]*workflow.Fragment, 0, len(classes))
	for _, class := range classes {
		f, err := c.store.GetFragment(ctx, class, c.taskID)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, f)
	}
	return fragments, nil
}

// enforceCommentInvariant removes comments attached to disliked attempts.
// A merge of stale fragments may otherwise resurrect a comment deleted
// when its attempt was disliked.
func enforceCommentInvariant(f *workflow.Fragment) {
	for i := range f.PromptAttempts {
		a := &f.PromptAttempts[i]
		if a.Liked != nil && !*a.Liked {
			delete(f.Comments, a.ID)
		}
	}
}

func allAbsent(fragments []*workflow.Fragment) bool {
	for _, f := range fragments {
		if f != nil {
			return false
		}
	}
	return true
}
