package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
)

// Sender delivers a finished submission record to the remote collector.
type Sender interface {
	Send(ctx context.Context, rec *Record) error
}

// Collector posts records to the collection endpoint as JSON.
type Collector struct {
	endpointURL string
	apiKey      string
	httpClient  *http.Client
}

func NewCollector(endpointURL, apiKey string) *Collector {
	return &Collector{
		endpointURL: endpointURL,
		apiKey:      apiKey,
		httpClient:  &http.Client{},
	}
}

func (c *Collector) Send(ctx context.Context, rec *Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(body))
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return cerr.NewError(cerr.Unavailable, "could not reach the submission service", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return cerr.NewError(cerr.Unauthenticated, "submission service rejected the credentials", nil)
	case resp.StatusCode == http.StatusForbidden:
		return cerr.NewError(cerr.PermissionDenied, "no access to the submission service", nil)
	case resp.StatusCode >= 400:
		return cerr.NewError(cerr.Unavailable, "submission service unavailable", fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}
