package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
)

// Document is the bundle of texts retrieved for one task from the remote
// document store.
type Document struct {
	SourceText              string `json:"sourceText"`
	BaselineTranslationText string `json:"baselineTranslationText"`
	SettingsText            string `json:"settingsText"`
	ContextAnalysisText     string `json:"contextAnalysisText"`
	GuidePromptURL          string `json:"guidePromptUrl"`
	BasecampPromptURL       string `json:"basecampPromptUrl"`
}

// Client retrieves documents over HTTP. Failures are classified into
// user-facing categories and must never crash a stage controller; callers
// surface them as a retry prompt.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

func (c *Client) Fetch(ctx context.Context, documentKey string) (*Document, error) {
	endpoint := fmt.Sprintf("%s/documents/%s", c.baseURL, url.PathEscape(documentKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, cerr.NewError(cerr.Unavailable, "could not reach the document service, please retry", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, cerr.NewError(cerr.Unauthenticated, "document service rejected the credentials", nil)
	case resp.StatusCode == http.StatusForbidden:
		return nil, cerr.NewError(cerr.PermissionDenied, "no access to this document", nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, cerr.NewError(cerr.NotFound, "document not found", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, cerr.NewError(cerr.ResourceExhausted, "document service quota exceeded, please retry later", nil)
	case resp.StatusCode >= 400:
		return nil, cerr.NewError(cerr.Unavailable, "document service unavailable, please retry", fmt.Errorf("status %d", resp.StatusCode))
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, cerr.NewError(cerr.Unavailable, "document service returned an unreadable response, please retry", err)
	}
	return &doc, nil
}
