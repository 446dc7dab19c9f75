package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/docs"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/workflow"
)

const catalogYAML = `
tasks:
  - id: T-1
    document_key: doc-1
    source_language: Korean
    target_language: English
`

func newCatalog(t *testing.T) *docs.Catalog {
	t.Helper()
	catalog, err := docs.LoadCatalogFromBytes([]byte(catalogYAML))
	require.NoError(t, err)
	return catalog
}

func TestBuildRequest_ThreadsDocumentTexts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents/doc-1", r.URL.Path)
		json.NewEncoder(w).Encode(docs.Document{
			SettingsText:        "glossary: Jiho is the protagonist",
			ContextAnalysisText: "chapter 12, confrontation scene",
		})
	}))
	defer ts.Close()

	s := &Server{catalog: newCatalog(t), docsClient: docs.NewClient(ts.URL, "key")}
	snapshot := &workflow.Fragment{
		OriginalText:        "원문",
		BaselineTranslation: "baseline",
	}

	req := s.buildRequest(context.Background(), "T-1", "a1", "translate faithfully", snapshot)
	assert.Equal(t, "translate faithfully", req.Prompt)
	assert.Equal(t, "원문", req.SourceText)
	assert.Equal(t, "baseline", req.BaselineTranslation)
	assert.Equal(t, "Korean", req.SourceLanguage)
	assert.Equal(t, "English", req.TargetLanguage)
	assert.Equal(t, "glossary: Jiho is the protagonist", req.SettingsText)
	assert.Equal(t, "chapter 12, confrontation scene", req.ContextAnalysisText)
}

func TestBuildRequest_DocumentFetchFailureIsNonFatal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	s := &Server{catalog: newCatalog(t), docsClient: docs.NewClient(ts.URL, "key")}
	req := s.buildRequest(context.Background(), "T-1", "a1", "prompt", &workflow.Fragment{OriginalText: "원문"})
	assert.Equal(t, "Korean", req.SourceLanguage)
	assert.Empty(t, req.SettingsText)
	assert.Empty(t, req.ContextAnalysisText)
}

func TestBuildRequest_UnknownTask(t *testing.T) {
	s := &Server{catalog: newCatalog(t), docsClient: docs.NewClient("http://localhost:0", "key")}
	req := s.buildRequest(context.Background(), "T-missing", "a1", "prompt", &workflow.Fragment{OriginalText: "원문"})
	assert.Empty(t, req.SourceLanguage)
	assert.Empty(t, req.SettingsText)
}
