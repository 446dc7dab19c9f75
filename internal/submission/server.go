package submission

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/stage"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
)

// Server exposes the submission pipeline over HTTP. Every submit and queue
// call flushes the active stage first so the delivered record is built from
// fully persisted state.
type Server struct {
	pipeline *Pipeline
	registry *stage.Registry
}

func NewServer(pipeline *Pipeline, registry *stage.Registry) *Server {
	return &Server{pipeline: pipeline, registry: registry}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Post("/tasks/{taskID}/submit", s.submit)
	r.Post("/tasks/{taskID}/queue", s.queue)
	r.Post("/tasks/{taskID}/cancel-queue", s.cancel)
}

type submitRequest struct {
	UserID           string `json:"userId"`
	OverrideWarnings bool   `json:"overrideWarnings,omitempty"`
}

type submitResponse struct {
	Status string  `json:"status"`
	Record *Record `json:"record"`
}

func (s *Server) submit(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, taskID, err := s.decode(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.registry.FlushActive(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	rec, err := s.pipeline.Submit(ctx, req.UserID, taskID, req.OverrideWarnings)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &submitResponse{Status: "submitted", Record: rec})
}

func (s *Server) queue(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, taskID, err := s.decode(r)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.registry.FlushActive(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	rec, err := s.pipeline.Queue(ctx, req.UserID, taskID, req.OverrideWarnings)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, &submitResponse{Status: "queued", Record: rec})
}

func (s *Server) cancel(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "task id is required", nil)
		return
	}
	if err := s.pipeline.Cancel(ctx, taskID); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"status": "cancelled"})
}

func (s *Server) decode(r *http.Request) (*submitRequest, string, error) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		return nil, "", cerr.NewError(cerr.InvalidArgument, "task id is required", nil)
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, "", cerr.NewError(cerr.InvalidArgument, "invalid request body", err)
	}
	if req.UserID == "" {
		return nil, "", cerr.NewError(cerr.InvalidArgument, "user id is required", nil)
	}
	return &req, taskID, nil
}
