package translate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/eventbus"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/stage"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/panicerr"
)

const generateTimeout = 5 * time.Minute

// Service runs translations in the background and attaches the result to
// the originating prompt attempt when it resolves. One generation per
// attempt can be in flight at a time.
type Service struct {
	generator Generator
	registry  *stage.Registry
	bus       *eventbus.Bus

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewService(generator Generator, registry *stage.Registry, bus *eventbus.Bus) *Service {
	return &Service{
		generator: generator,
		registry:  registry,
		bus:       bus,
		inFlight:  make(map[string]struct{}),
	}
}

// Start kicks off an asynchronous generation for an attempt. It returns
// immediately; completion and failure are announced on the event bus, and
// the result lands on the attempt through the authoring controller.
func (s *Service) Start(userID string, req *Request) error {
	s.mu.Lock()
	if _, ok := s.inFlight[req.AttemptID]; ok {
		s.mu.Unlock()
		return cerr.NewError(cerr.FailedPrecondition, "a translation for this prompt is already running", nil)
	}
	s.inFlight[req.AttemptID] = struct{}{}
	s.mu.Unlock()

	// Detached from the request context: the browser tab may navigate away
	// while the model is still working.
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, req.AttemptID)
			s.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), generateTimeout)
		defer cancel()
		if err := panicerr.Safe(func() error {
			return s.run(ctx, userID, req)
		})(); err != nil {
			slog.Error("translation failed", "task_id", req.TaskID, "attempt_id", req.AttemptID, "error", err)
			s.bus.PublishNew(eventbus.EventTranslationFailed, req.TaskID, req.AttemptID,
				userFacing(err), map[string]string{"userId": userID})
		}
	}()
	return nil
}

func (s *Service) run(ctx context.Context, userID string, req *Request) error {
	result, err := s.generator.Generate(ctx, req)
	if err != nil {
		return err
	}
	controller := s.registry.Acquire(req.TaskID, userID, stage.StageAuthoring)
	if err := controller.AttachResult(ctx, req.AttemptID, result); err != nil {
		return err
	}
	s.bus.PublishNew(eventbus.EventTranslationCompleted, req.TaskID, req.AttemptID,
		"", map[string]string{"userId": userID})
	return nil
}

// Running reports whether a generation for the attempt is in flight.
func (s *Service) Running(attemptID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[attemptID]
	return ok
}

func userFacing(err error) string {
	var cErr *cerr.Error
	if errors.As(err, &cErr) {
		return cErr.Msg
	}
	return "translation failed, please retry"
}
