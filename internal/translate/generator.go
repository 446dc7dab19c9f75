package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	claudeagent "github.com/kazz187/claude-agent-sdk-go"

	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
)

// Request carries everything the model needs to produce one translation.
type Request struct {
	TaskID              string
	AttemptID           string
	Prompt              string
	SourceText          string
	BaselineTranslation string
	SourceLanguage      string
	TargetLanguage      string
	SettingsText        string
	ContextAnalysisText string
}

// Generator produces a translation for one prompt attempt.
type Generator interface {
	Generate(ctx context.Context, req *Request) (string, error)
}

// ClaudeGenerator runs the user's prompt through the Claude agent SDK.
type ClaudeGenerator struct {
	workDir  string
	maxTurns int
}

func NewClaudeGenerator(workDir string, maxTurns int) *ClaudeGenerator {
	if maxTurns <= 0 {
		maxTurns = 1
	}
	return &ClaudeGenerator{workDir: workDir, maxTurns: maxTurns}
}

func (g *ClaudeGenerator) Generate(ctx context.Context, req *Request) (string, error) {
	opts := &claudeagent.ClaudeAgentOptions{
		SystemPrompt:   buildSystemPrompt(req),
		Cwd:            g.workDir,
		PermissionMode: claudeagent.PermissionModeBypassPermissions,
		MaxTurns:       &g.maxTurns,
		StderrCallback: func(line string) {
			slog.Debug("claude stderr", "task_id", req.TaskID, "line", line)
		},
	}
	result, err := claudeagent.RunQuerySync(ctx, buildUserPrompt(req), opts)
	if err != nil {
		return "", Classify(err.Error(), err)
	}
	if result.Result == nil {
		return "", cerr.NewError(cerr.Internal, "the translation service returned no result", nil)
	}
	if result.Result.IsError {
		return "", Classify(result.Result.Result, nil)
	}
	return strings.TrimSpace(result.Result.Result), nil
}

func buildSystemPrompt(req *Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional webnovel translator. Translate from %s to %s.\n",
		orUnknown(req.SourceLanguage), orUnknown(req.TargetLanguage))
	b.WriteString("Output only the translated text, with no commentary.\n")
	if req.SettingsText != "" {
		fmt.Fprintf(&b, "\nSeries settings:\n%s\n", req.SettingsText)
	}
	if req.ContextAnalysisText != "" {
		fmt.Fprintf(&b, "\nContext analysis:\n%s\n", req.ContextAnalysisText)
	}
	return b.String()
}

func buildUserPrompt(req *Request) string {
	var b strings.Builder
	b.WriteString(req.Prompt)
	b.WriteString("\n\n--- Source text ---\n")
	b.WriteString(req.SourceText)
	if req.BaselineTranslation != "" {
		b.WriteString("\n\n--- Baseline translation (reference only) ---\n")
		b.WriteString(req.BaselineTranslation)
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "the source language"
	}
	return s
}

// Classify maps a raw failure from the model runtime to a user-facing
// category. The raw message is kept for logs; the user sees the category
// message only.
func Classify(raw string, underlying error) *cerr.Error {
	if underlying == nil && raw != "" {
		underlying = fmt.Errorf("%s", raw)
	}
	msg := strings.ToLower(raw)
	switch {
	case containsAny(msg, "api key", "authentication", "unauthorized", "not logged in", "invalid x-api-key"):
		return cerr.NewError(cerr.Unauthenticated, "translation service authentication failed, check the credentials", underlying)
	case containsAny(msg, "credit balance", "billing", "payment"):
		return cerr.NewError(cerr.ResourceExhausted, "translation service credits exhausted", underlying)
	case containsAny(msg, "rate limit", "quota", "overloaded", "too many requests"):
		return cerr.NewError(cerr.ResourceExhausted, "translation service is busy, please retry shortly", underlying)
	case containsAny(msg, "connection", "network", "timeout", "timed out", "dial tcp", "no such host"):
		return cerr.NewError(cerr.Unavailable, "could not reach the translation service, please retry", underlying)
	default:
		return cerr.NewError(cerr.Internal, "translation failed, please retry", underlying)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
