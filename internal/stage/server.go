package stage

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/docs"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/workflow"
	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
)

// Server exposes the stage lifecycle over HTTP. The browser calls enter on
// page mount, actions for every user mutation, and flush from both the
// teardown hook and the before-unload hook.
type Server struct {
	registry   *Registry
	catalog    *docs.Catalog
	docsClient *docs.Client
}

func NewServer(registry *Registry, catalog *docs.Catalog, docsClient *docs.Client) *Server {
	return &Server{registry: registry, catalog: catalog, docsClient: docsClient}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Post("/tasks/{taskID}/stages/{stage}/enter", s.enter)
	r.Post("/tasks/{taskID}/stages/{stage}/actions", s.action)
	r.Post("/tasks/{taskID}/stages/{stage}/flush", s.flush)
}

type enterRequest struct {
	UserID string `json:"userId"`
}

type enterResponse struct {
	*EnterResult
	Document      *docs.Document `json:"document,omitempty"`
	DocumentError string         `json:"documentError,omitempty"`
}

func (s *Server) enter(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req enterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	c, st, err := s.controller(r, req.UserID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := s.registry.Activate(ctx, c); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	result, err := c.Enter(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	resp := &enterResponse{EnterResult: result}
	// The authoring stage needs the source text and baseline translation;
	// a retrieval failure is surfaced as a retry prompt, never a crash.
	if st == StageAuthoring && result.Snapshot.OriginalText == "" && !result.ReadOnly {
		doc, docErr := s.loadDocument(r, c)
		if docErr != nil {
			resp.DocumentError = userMessage(docErr)
		} else {
			resp.Document = doc
			resp.Snapshot = c.Snapshot()
		}
	}
	cerr.SetJSONResponse(ctx, resp)
}

func (s *Server) loadDocument(r *http.Request, c *Controller) (*docs.Document, error) {
	ctx := r.Context()
	entry, err := s.catalog.Get(c.TaskID())
	if err != nil {
		return nil, err
	}
	doc, err := s.docsClient.Fetch(ctx, entry.DocumentKey)
	if err != nil {
		return nil, err
	}
	if err := c.SetSourceTexts(ctx, doc.SourceText, doc.BaselineTranslationText); err != nil {
		return nil, err
	}
	return doc, nil
}

type actionRequest struct {
	UserID       string `json:"userId"`
	Action       string `json:"action"`
	AttemptID    string `json:"attemptId,omitempty"`
	Text         string `json:"text,omitempty"`
	VersionLabel string `json:"versionLabel,omitempty"`
	Liked        *bool  `json:"liked,omitempty"`
	Score        int    `json:"score,omitempty"`
}

type actionResponse struct {
	Snapshot *workflow.Fragment      `json:"snapshot"`
	Attempt  *workflow.PromptAttempt `json:"attempt,omitempty"`
}

func (s *Server) action(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	c, _, err := s.controller(r, req.UserID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}

	resp := &actionResponse{}
	switch req.Action {
	case "add_attempt":
		attempt, err := c.AddAttempt(ctx, req.Text, req.VersionLabel)
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		resp.Attempt = attempt
	case "save_draft":
		err = c.SaveDraft(ctx, req.Text)
	case "set_liked":
		if req.Liked == nil {
			err = cerr.NewError(cerr.InvalidArgument, "liked is required", nil)
		} else {
			err = c.SetLiked(ctx, req.AttemptID, *req.Liked)
		}
	case "set_comment":
		err = c.SetComment(ctx, req.AttemptID, req.Text)
	case "set_best":
		err = c.SetBestSelection(ctx, req.AttemptID)
	case "set_evaluation":
		err = c.SetEvaluation(ctx, req.AttemptID, req.Text, req.Score)
	default:
		err = cerr.NewError(cerr.InvalidArgument, "unknown action", nil)
	}
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	resp.Snapshot = c.Snapshot()
	cerr.SetJSONResponse(ctx, resp)
}

type flushRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) flush(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req flushRequest
	// Before-unload beacons may carry no body; flush anyway.
	_ = json.NewDecoder(r.Body).Decode(&req)
	c, _, err := s.controller(r, req.UserID)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if err := c.Flush(ctx); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	s.registry.Deactivate(c)
	cerr.SetJSONResponse(ctx, map[string]string{"status": "flushed"})
}

func (s *Server) controller(r *http.Request, userID string) (*Controller, Stage, error) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		return nil, "", cerr.NewError(cerr.InvalidArgument, "task id is required", nil)
	}
	st, err := ParseStage(chi.URLParam(r, "stage"))
	if err != nil {
		return nil, "", err
	}
	return s.registry.Acquire(taskID, userID, st), st, nil
}

func userMessage(err error) string {
	var cErr *cerr.Error
	if errors.As(err, &cErr) {
		return cErr.Msg
	}
	return "failed to load the document, please retry"
}
