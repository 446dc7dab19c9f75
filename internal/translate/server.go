package translate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/docs"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/stage"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/workflow"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
)

// Server starts translations for prompt attempts. Generation is
// asynchronous; the browser polls the attempt for its result and listens
// for completion notifications.
type Server struct {
	service    *Service
	registry   *stage.Registry
	catalog    *docs.Catalog
	docsClient *docs.Client
}

func NewServer(service *Service, registry *stage.Registry, catalog *docs.Catalog, docsClient *docs.Client) *Server {
	return &Server{service: service, registry: registry, catalog: catalog, docsClient: docsClient}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Post("/tasks/{taskID}/attempts/{attemptID}/translate", s.translate)
	r.Get("/tasks/{taskID}/attempts/{attemptID}/translate", s.status)
}

type translateRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) translate(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := chi.URLParam(r, "taskID")
	attemptID := chi.URLParam(r, "attemptID")
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}

	controller := s.registry.Acquire(taskID, req.UserID, stage.StageAuthoring)
	snapshot := controller.Snapshot()
	attempt := snapshot.Attempt(attemptID)
	if attempt == nil {
		cerr.SetNewJSONError(ctx, cerr.NotFound, "prompt attempt not found", nil)
		return
	}

	genReq := s.buildRequest(ctx, taskID, attemptID, attempt.Text, snapshot)

	if err := s.service.Start(req.UserID, genReq); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"status": "started"})
}

// buildRequest assembles the generation request from the merged snapshot,
// the task catalog, and the task's document. Document retrieval failures
// only cost the prompt its settings and context sections; generation still
// proceeds.
func (s *Server) buildRequest(ctx context.Context, taskID, attemptID, prompt string, snapshot *workflow.Fragment) *Request {
	genReq := &Request{
		TaskID:              taskID,
		AttemptID:           attemptID,
		Prompt:              prompt,
		SourceText:          snapshot.OriginalText,
		BaselineTranslation: snapshot.BaselineTranslation,
	}
	entry, err := s.catalog.Get(taskID)
	if err != nil {
		return genReq
	}
	genReq.SourceLanguage = entry.SourceLanguage
	genReq.TargetLanguage = entry.TargetLanguage

	doc, err := s.docsClient.Fetch(ctx, entry.DocumentKey)
	if err != nil {
		slog.WarnContext(ctx, "document fetch failed, translating without settings", "taskId", taskID, "error", err)
		return genReq
	}
	genReq.SettingsText = doc.SettingsText
	genReq.ContextAnalysisText = doc.ContextAnalysisText
	return genReq
}

func (s *Server) status(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	attemptID := chi.URLParam(r, "attemptID")
	cerr.SetJSONResponse(ctx, map[string]bool{"running": s.service.Running(attemptID)})
}
