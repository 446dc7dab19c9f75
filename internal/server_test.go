package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/config"
)

func newAuthServer() *Server {
	// Several sub-configs carry their own APIKey; only the base one guards
	// incoming requests.
	return &Server{env: &config.Env{
		BaseEnv:      config.BaseEnv{APIKey: "service-key"},
		DocsEnv:      config.DocsEnv{APIKey: "docs-key"},
		CollectorEnv: config.CollectorEnv{APIKey: "collector-key"},
	}}
}

func TestAPIKeyMiddleware(t *testing.T) {
	s := newAuthServer()
	handler := s.apiKeyMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		path   string
		header map[string]string
		status int
	}{
		{
			name:   "valid x-api-key",
			path:   "/api/tasks/T-1",
			header: map[string]string{"X-API-Key": "service-key"},
			status: http.StatusOK,
		},
		{
			name:   "valid bearer token",
			path:   "/api/tasks/T-1",
			header: map[string]string{"Authorization": "Bearer service-key"},
			status: http.StatusOK,
		},
		{
			name:   "missing key",
			path:   "/api/tasks/T-1",
			status: http.StatusUnauthorized,
		},
		{
			name:   "docs key does not authenticate",
			path:   "/api/tasks/T-1",
			header: map[string]string{"X-API-Key": "docs-key"},
			status: http.StatusUnauthorized,
		},
		{
			name:   "collector key does not authenticate",
			path:   "/api/tasks/T-1",
			header: map[string]string{"X-API-Key": "collector-key"},
			status: http.StatusUnauthorized,
		},
		{
			name:   "health skips the check",
			path:   "/health",
			status: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
