package providers

import (
	"context"
	"fmt"
	"strings"
)

// GenerateRequest describes one LLM generation call. When JSONMode is set
// the provider asks the backend for a JSON-only response where the API
// supports it; callers must still parse defensively.
type GenerateRequest struct {
	System    string
	Prompt    string
	JSONMode  bool
	MaxTokens int
}

// Provider is the minimal generation surface the pipeline stages depend
// on. Implementations wrap one backend SDK each.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Name() string
}

// LocalProvider is a deterministic fallback used when no backend API key
// is configured. It lets the service boot and the pipeline exercise its
// plumbing without a network dependency.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (l *LocalProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("no prompt provided")
	}
	if req.JSONMode {
		return "[]", nil
	}
	return "[local-stub] " + strings.TrimSpace(req.Prompt), nil
}

func (l *LocalProvider) Name() string {
	return "local"
}
