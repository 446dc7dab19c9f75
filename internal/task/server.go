package task

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/workflow"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
)

type Server struct {
	store *Store
	state *workflow.StateStore
}

func NewServer(store *Store, state *workflow.StateStore) *Server {
	return &Server{store: store, state: state}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/tasks/{taskID}", s.getTask)
	r.Get("/tasks/{taskID}/status", s.getStatus)
}

type statusResponse struct {
	TaskID string `json:"taskId"`
	Status Status `json:"status"`
}

func (s *Server) getStatus(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")
	status, err := s.store.GetStatus(ctx, taskID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, statusResponse{TaskID: taskID, Status: status})
}

func (s *Server) getTask(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")

	status, err := s.store.GetStatus(ctx, taskID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	t := &Task{ID: taskID, Status: status, StepOrder: 1}
	review, err := s.state.GetFragment(ctx, workflow.ClassReview, taskID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	// Step order is derived from how far the persisted state has advanced.
	switch {
	case status.Terminal():
		t.StepOrder = 4
	case review != nil && review.BestSelection != "":
		t.StepOrder = 3
	case review != nil && len(review.Comments) > 0:
		t.StepOrder = 2
	}
	cerr.SetJSONResponse(ctx, t)
}
