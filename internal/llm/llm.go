package llm

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/generative-ai-go/genai"
	openai "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	"google.golang.org/api/option"

	"github.com/korhaliv/projectlens/internal/common"
	"github.com/korhaliv/projectlens/internal/llm/providers"
)

type GenerateRequest = providers.GenerateRequest

type Provider = providers.Provider

// NewProvider selects a generation backend. The preferred name wins when
// its API key is configured; otherwise the first backend with a key is
// used, and with no keys at all the deterministic local provider keeps the
// service bootable.
func NewProvider(ctx context.Context, preferred string) Provider {
	logger := common.Logger()
	preferred = strings.ToLower(strings.TrimSpace(preferred))

	order := []string{"openai", "anthropic", "gemini"}
	if preferred != "" && preferred != "local" {
		reordered := []string{preferred}
		for _, name := range order {
			if name != preferred {
				reordered = append(reordered, name)
			}
		}
		order = reordered
	}
	if preferred == "local" {
		logger.Info("llm: local provider selected by configuration")
		return providers.NewLocalProvider()
	}

	for _, name := range order {
		switch name {
		case "openai":
			if provider := newOpenAI(logger); provider != nil {
				return provider
			}
		case "anthropic":
			if provider := newAnthropic(logger); provider != nil {
				return provider
			}
		case "gemini":
			if provider := newGemini(ctx, logger); provider != nil {
				return provider
			}
		default:
			logger.Warn("llm: unknown provider name ignored", "name", name)
		}
	}
	logger.Warn("llm: no provider API key set; falling back to local provider")
	return providers.NewLocalProvider()
}

func newOpenAI(logger *slog.Logger) Provider {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil
	}
	opts := []openaioption.RequestOption{openaioption.WithAPIKey(apiKey)}
	if timeoutStr := strings.TrimSpace(os.Getenv("OPENAI_HTTP_TIMEOUT")); timeoutStr != "" {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			logger.Warn("llm: invalid OPENAI_HTTP_TIMEOUT, using default", "value", timeoutStr, "error", err)
		} else {
			opts = append(opts, openaioption.WithRequestTimeout(timeout))
		}
	}
	if endpoint := strings.TrimSpace(os.Getenv("OPENAI_ENDPOINT")); endpoint != "" {
		logger.Info("llm: configuring OpenAI client with custom endpoint", "endpoint", endpoint)
		opts = append(opts, openaioption.WithBaseURL(endpoint))
	}
	logger.Info("llm: OpenAI provider selected")
	return providers.NewOpenAIProvider(openai.NewClient(opts...))
}

func newAnthropic(logger *slog.Logger) Provider {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil
	}
	logger.Info("llm: Anthropic provider selected")
	return providers.NewAnthropicProvider(anthropic.NewClient(anthropicoption.WithAPIKey(apiKey)))
}

func newGemini(ctx context.Context, logger *slog.Logger) Provider {
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		logger.Warn("llm: gemini client construction failed", "error", err)
		return nil
	}
	logger.Info("llm: Gemini provider selected")
	return providers.NewGeminiProvider(client)
}
