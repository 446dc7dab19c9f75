package task

import (
	"context"
	"errors"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/workflow"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/storage"
)

// Store persists task status as a plain string enum value under its own
// key class.
type Store struct {
	storage storage.Storage
}

func NewStore(s storage.Storage) *Store {
	return &Store{storage: s}
}

// GetStatus returns the stored status for a task. A task with no stored
// status has not been started; an unrecognized stored value is treated the
// same way rather than failing the caller.
func (s *Store) GetStatus(ctx context.Context, taskID string) (Status, error) {
	data, err := s.storage.Read(ctx, workflow.StatusKey(taskID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return StatusNotStarted, nil
		}
		return "", cerr.WrapStorageReadError("task status", err)
	}
	status := Status(data)
	if !status.Valid() {
		return StatusNotStarted, nil
	}
	return status, nil
}

// SetStatus stores a new status. Transitions out of Submitted are refused.
func (s *Store) SetStatus(ctx context.Context, taskID string, status Status) error {
	if !status.Valid() {
		return cerr.NewError(cerr.InvalidArgument, "invalid task status", nil)
	}
	current, err := s.GetStatus(ctx, taskID)
	if err != nil {
		return err
	}
	if current.Terminal() && status != current {
		return cerr.NewError(cerr.FailedPrecondition, "task already submitted", nil)
	}
	if err := s.storage.Write(ctx, workflow.StatusKey(taskID), []byte(status)); err != nil {
		return cerr.WrapStorageWriteError("task status", err)
	}
	return nil
}
