package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/storage"
)

// StateStore is a typed JSON wrapper over storage.Storage. A value that
// fails to parse is treated as absent and the corrupt entry is dropped, so
// a reader never fails because of a half-written or garbled fragment.
type StateStore struct {
	storage storage.Storage
}

func NewStateStore(s storage.Storage) *StateStore {
	return &StateStore{storage: s}
}

// Get unmarshals the value at key into out. It returns false when the key
// is absent or corrupt; an error is returned only for storage failures.
func (s *StateStore) Get(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.storage.Read(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		slog.WarnContext(ctx, "dropping corrupt state entry", "key", key, "error", err)
		if derr := s.storage.Delete(ctx, key); derr != nil && !errors.Is(derr, storage.ErrNotFound) {
			slog.WarnContext(ctx, "failed to drop corrupt state entry", "key", key, "error", derr)
		}
		return false, nil
	}
	return true, nil
}

func (s *StateStore) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.storage.Write(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Remove deletes the value at key. Removing an absent key is not an error.
func (s *StateStore) Remove(ctx context.Context, key string) error {
	if err := s.storage.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// ListKeys returns every stored key under prefix.
func (s *StateStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.storage.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return keys, nil
}

// Exists reports whether a value is stored at key, without parsing it.
func (s *StateStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.storage.Exists(ctx, key)
}

// GetFragment reads a fragment key class for a task. Absent or corrupt
// fragments yield nil.
func (s *StateStore) GetFragment(ctx context.Context, class KeyClass, taskID string) (*Fragment, error) {
	var f Fragment
	ok, err := s.Get(ctx, FragmentKey(class, taskID), &f)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &f, nil
}

// SetFragment persists a fragment under a key class for a task.
func (s *StateStore) SetFragment(ctx context.Context, class KeyClass, taskID string, f *Fragment) error {
	return s.Set(ctx, FragmentKey(class, taskID), f)
}
