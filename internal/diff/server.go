package diff

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
)

// Server exposes text comparison for the side-by-side result view.
type Server struct{}

func NewServer() *Server {
	return &Server{}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Post("/diff", s.compare)
}

type compareRequest struct {
	Mode   string `json:"mode,omitempty"`
	Before string `json:"before"`
	After  string `json:"after"`
}

func (s *Server) compare(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	mode, err := ParseMode(req.Mode)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, Compare(mode, req.Before, req.After))
}
