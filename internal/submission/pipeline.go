package submission

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/docs"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/eventbus"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/task"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/workflow"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
)

const minFeedbackLength = 20

// envelope wraps the outgoing record for the dedupe marker and the offline
// queue. The marker is the durable proof that this user already submitted
// this task; the queue entry is the same payload waiting for delivery.
type envelope struct {
	UserID      string    `json:"userId"`
	TaskID      string    `json:"taskId"`
	SubmittedAt time.Time `json:"submittedAt"`
	Record      *Record   `json:"record"`
}

// Pipeline drives a submission from pre-flight validation through delivery.
// Submission is a one-way door: once a task reaches SUBMITTED the pipeline
// refuses to run again for it, and a concurrent run for the same task is
// rejected while the first is still in flight.
type Pipeline struct {
	store   *workflow.StateStore
	tasks   *task.Store
	catalog *docs.Catalog
	sender  Sender
	bus     *eventbus.Bus
	now     func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewPipeline(store *workflow.StateStore, tasks *task.Store, catalog *docs.Catalog, sender Sender, bus *eventbus.Bus) *Pipeline {
	return &Pipeline{
		store:    store,
		tasks:    tasks,
		catalog:  catalog,
		sender:   sender,
		bus:      bus,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

// Submit validates, builds and delivers the record for a task. When
// overrideWarnings is false, soft validation findings block the submission
// so the caller can ask the user to confirm; a second call with the flag
// set proceeds past them. Hard findings always block.
func (p *Pipeline) Submit(ctx context.Context, userID, taskID string, overrideWarnings bool) (*Record, error) {
	if err := p.acquire(taskID); err != nil {
		return nil, err
	}
	defer p.release(taskID)

	rec, err := p.prepare(ctx, userID, taskID, overrideWarnings)
	if err != nil {
		return nil, err
	}
	if err := p.sender.Send(ctx, rec); err != nil {
		return nil, err
	}
	if err := p.finalize(ctx, userID, taskID, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Queue validates and persists the record for later delivery instead of
// sending it, used when the collector is unreachable. The task moves to
// SUBMISSION_QUEUED and stays locally editable-looking but is treated as
// committed: no dedupe marker is written until actual delivery.
func (p *Pipeline) Queue(ctx context.Context, userID, taskID string, overrideWarnings bool) (*Record, error) {
	if err := p.acquire(taskID); err != nil {
		return nil, err
	}
	defer p.release(taskID)

	rec, err := p.prepare(ctx, userID, taskID, overrideWarnings)
	if err != nil {
		return nil, err
	}
	env := &envelope{UserID: userID, TaskID: taskID, SubmittedAt: p.now().UTC(), Record: rec}
	if err := p.store.Set(ctx, workflow.QueueKey(taskID), env); err != nil {
		return nil, err
	}
	if err := p.tasks.SetStatus(ctx, taskID, task.StatusSubmissionQueued); err != nil {
		return nil, err
	}
	p.bus.PublishNew(eventbus.EventSubmissionQueued, taskID, rec.BestPromptID, "", map[string]string{"userId": userID})
	return rec, nil
}

// Cancel removes a queued submission and returns the task to IN_PROGRESS.
func (p *Pipeline) Cancel(ctx context.Context, taskID string) error {
	status, err := p.tasks.GetStatus(ctx, taskID)
	if err != nil {
		return err
	}
	if status != task.StatusSubmissionQueued {
		return cerr.NewError(cerr.FailedPrecondition, "no queued submission for this task", nil)
	}
	if err := p.store.Remove(ctx, workflow.QueueKey(taskID)); err != nil {
		return err
	}
	return p.tasks.SetStatus(ctx, taskID, task.StatusInProgress)
}

// FlushQueued attempts delivery of every queued submission. A delivery
// failure leaves that entry queued and moves on; the first storage failure
// aborts the pass.
func (p *Pipeline) FlushQueued(ctx context.Context) (int, error) {
	keys, err := p.store.ListKeys(ctx, workflow.QueuePrefix)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, key := range keys {
		var env envelope
		ok, err := p.store.Get(ctx, key, &env)
		if err != nil {
			return delivered, err
		}
		if !ok || env.Record == nil {
			continue
		}
		if err := p.sender.Send(ctx, env.Record); err != nil {
			slog.WarnContext(ctx, "queued submission delivery failed", "taskID", env.TaskID, "error", err)
			continue
		}
		if err := p.finalize(ctx, env.UserID, env.TaskID, env.Record); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

func (p *Pipeline) acquire(taskID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inFlight[taskID]; ok {
		return cerr.NewError(cerr.FailedPrecondition, "already submitting", nil)
	}
	p.inFlight[taskID] = struct{}{}
	return nil
}

func (p *Pipeline) release(taskID string) {
	p.mu.Lock()
	delete(p.inFlight, taskID)
	p.mu.Unlock()
}

// prepare runs the shared pre-flight path: status and dedupe checks, the
// merged snapshot read and record construction.
func (p *Pipeline) prepare(ctx context.Context, userID, taskID string, overrideWarnings bool) (*Record, error) {
	status, err := p.tasks.GetStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if status.Terminal() {
		return nil, cerr.NewError(cerr.FailedPrecondition, "task already submitted", nil)
	}
	marked, err := p.store.Exists(ctx, workflow.DedupeKey(userID, taskID))
	if err != nil {
		return nil, cerr.WrapStorageReadError("dedupe marker", err)
	}
	if marked {
		return nil, cerr.NewError(cerr.AlreadyExists, "task already submitted by this user", nil)
	}

	snapshot, err := p.mergedSnapshot(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := validate(snapshot, overrideWarnings); err != nil {
		return nil, err
	}

	entry, err := p.catalog.Get(taskID)
	if err != nil {
		// Tasks outside the catalog still submit, just without labels.
		if !cerr.IsCode(err, cerr.NotFound) {
			return nil, err
		}
		entry = nil
	}
	return BuildRecord(userID, taskID, entry, snapshot, p.now()), nil
}

// finalize applies the durable effects of a delivered submission: the
// dedupe marker, the audit copy, the terminal status, queue cleanup and
// the submitted event.
func (p *Pipeline) finalize(ctx context.Context, userID, taskID string, rec *Record) error {
	env := &envelope{UserID: userID, TaskID: taskID, SubmittedAt: p.now().UTC(), Record: rec}
	if err := p.store.Set(ctx, workflow.DedupeKey(userID, taskID), env); err != nil {
		return err
	}
	snapshot, err := p.mergedSnapshot(ctx, taskID)
	if err != nil {
		return err
	}
	if err := p.store.SetFragment(ctx, workflow.ClassSubmission, taskID, snapshot); err != nil {
		return err
	}
	if err := p.tasks.SetStatus(ctx, taskID, task.StatusSubmitted); err != nil {
		return err
	}
	if err := p.store.Remove(ctx, workflow.QueueKey(taskID)); err != nil {
		return err
	}
	p.bus.PublishNew(eventbus.EventSubmissionSubmitted, taskID, rec.BestPromptID, "", map[string]string{"userId": userID})
	return nil
}

func (p *Pipeline) mergedSnapshot(ctx context.Context, taskID string) (*workflow.Fragment, error) {
	review, err := p.store.GetFragment(ctx, workflow.ClassReview, taskID)
	if err != nil {
		return nil, err
	}
	authoring, err := p.store.GetFragment(ctx, workflow.ClassAuthoring, taskID)
	if err != nil {
		return nil, err
	}
	return workflow.Merge(nil, review, authoring), nil
}

// validate enforces the pre-flight rules before anything leaves the
// machine. Missing best selection, missing score and short comments on
// liked prompts block outright; a short evaluation text only warns and can
// be overridden after user confirmation.
func validate(f *workflow.Fragment, overrideWarnings bool) error {
	if f.Empty() || f.BestSelection == "" {
		return cerr.NewError(cerr.FailedPrecondition, "select a best prompt before submitting", nil)
	}
	best := f.Attempt(f.BestSelection)
	if best == nil {
		return cerr.NewError(cerr.FailedPrecondition, "the selected best prompt no longer exists", nil)
	}
	for _, a := range f.PromptAttempts {
		if a.Liked == nil || !*a.Liked {
			continue
		}
		if len(strings.TrimSpace(f.Comments[a.ID])) < minFeedbackLength {
			return cerr.NewError(cerr.FailedPrecondition,
				fmt.Sprintf("liked prompts need a comment of at least %d characters", minFeedbackLength), nil)
		}
	}
	eval, ok := f.QualityEvaluations[f.BestSelection]
	if !ok || eval.Score < 1 || eval.Score > 5 {
		return cerr.NewError(cerr.FailedPrecondition, "score the best prompt from 1 to 5 before submitting", nil)
	}
	if len(strings.TrimSpace(eval.Text)) < minFeedbackLength && !overrideWarnings {
		return cerr.NewError(cerr.FailedPrecondition,
			fmt.Sprintf("the evaluation text is shorter than %d characters", minFeedbackLength), nil).
			AddDetail("overridable", "true")
	}
	return nil
}
