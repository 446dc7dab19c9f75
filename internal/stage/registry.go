package stage

import (
	"context"
	"fmt"
	"sync"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/task"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/workflow"
)

// Registry hands out one controller per (task, stage) and tracks which one
// is active. External navigation triggers call FlushActive synchronously
// before leaving a page, replacing the original implicit cross-page "save
// current work" hook with an explicit, typed slot.
type Registry struct {
	store *workflow.StateStore
	tasks *task.Store
	guard *BackupGuard

	mu          sync.Mutex
	controllers map[string]*Controller
	active      *Controller
}

func NewRegistry(store *workflow.StateStore, tasks *task.Store, guard *BackupGuard) *Registry {
	return &Registry{
		store:       store,
		tasks:       tasks,
		guard:       guard,
		controllers: make(map[string]*Controller),
	}
}

// Acquire returns the controller for (taskID, stage), creating it on first
// use. The userID of the first acquirer is kept for the session.
func (r *Registry) Acquire(taskID, userID string, st Stage) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("%s/%s", taskID, st)
	if c, ok := r.controllers[key]; ok {
		return c
	}
	c := NewController(taskID, userID, st, r.store, r.tasks, r.guard)
	r.controllers[key] = c
	return c
}

// Activate makes c the active controller, flushing the previously active
// one first so a stage transition never abandons unsaved work.
func (r *Registry) Activate(ctx context.Context, c *Controller) error {
	r.mu.Lock()
	prev := r.active
	r.active = c
	r.mu.Unlock()
	if prev != nil && prev != c {
		return prev.Flush(ctx)
	}
	return nil
}

// FlushActive flushes the active controller, if any.
func (r *Registry) FlushActive(ctx context.Context) error {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if active == nil {
		return nil
	}
	return active.Flush(ctx)
}

// Deactivate clears the active slot if c currently holds it.
func (r *Registry) Deactivate(c *Controller) {
	r.mu.Lock()
	if r.active == c {
		r.active = nil
	}
	r.mu.Unlock()
}
