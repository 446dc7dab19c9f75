package translate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		code cerr.Code
	}{
		{
			name: "invalid api key",
			raw:  "Error: invalid x-api-key provided",
			code: cerr.Unauthenticated,
		},
		{
			name: "not logged in",
			raw:  "Not logged in. Please run /login",
			code: cerr.Unauthenticated,
		},
		{
			name: "credits exhausted",
			raw:  "Your credit balance is too low to access the API",
			code: cerr.ResourceExhausted,
		},
		{
			name: "rate limited",
			raw:  "429 Too Many Requests: rate limit exceeded",
			code: cerr.ResourceExhausted,
		},
		{
			name: "overloaded",
			raw:  "overloaded_error: the API is temporarily overloaded",
			code: cerr.ResourceExhausted,
		},
		{
			name: "network unreachable",
			raw:  "dial tcp: lookup api.example.com: no such host",
			code: cerr.Unavailable,
		},
		{
			name: "timeout",
			raw:  "request timed out after 60s",
			code: cerr.Unavailable,
		},
		{
			name: "unknown failure",
			raw:  "something unexpected happened",
			code: cerr.Internal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.raw, nil)
			assert.Equal(t, tt.code, err.Code)
			assert.NotEmpty(t, err.Msg)
			// the raw message is for logs, never for the user
			assert.NotContains(t, strings.ToLower(err.Msg), "dial tcp")
		})
	}
}

func TestBuildUserPrompt(t *testing.T) {
	req := &Request{
		Prompt:              "Translate naturally.",
		SourceText:          "원문",
		BaselineTranslation: "baseline",
	}
	prompt := buildUserPrompt(req)
	assert.Contains(t, prompt, "Translate naturally.")
	assert.Contains(t, prompt, "원문")
	assert.Contains(t, prompt, "baseline")
	assert.Less(t, strings.Index(prompt, "Translate naturally."), strings.Index(prompt, "원문"))
}

func TestBuildSystemPrompt_Languages(t *testing.T) {
	withLangs := buildSystemPrompt(&Request{SourceLanguage: "Korean", TargetLanguage: "English"})
	assert.Contains(t, withLangs, "Korean")
	assert.Contains(t, withLangs, "English")

	withoutLangs := buildSystemPrompt(&Request{})
	assert.Contains(t, withoutLangs, "the source language")
}
