package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/korhaliv/projectlens/internal/common"
)

type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

func NewAnthropicProvider(client anthropic.Client) *AnthropicProvider {
	model := anthropic.Model(os.Getenv("ANTHROPIC_MODEL"))
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_0
	}
	common.Logger().Info("llm: Anthropic provider configured", "model", model)
	return &AnthropicProvider{client: client, model: model}
}

func (a *AnthropicProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	logger := common.Logger()
	logger.Debug("llm: sending message request", "model", a.model, "json_mode", req.JSONMode)
	system := req.System
	if req.JSONMode {
		// The messages API has no JSON response mode; steer via the
		// system prompt instead.
		system = strings.TrimSpace(system + "\nRespond with valid JSON only, no prose and no code fences.")
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		logger.Error("llm: message request failed", "error", err)
		return "", err
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("no text content returned")
	}
	logger.Debug("llm: message request succeeded")
	return out.String(), nil
}

func (a *AnthropicProvider) Name() string {
	return "anthropic"
}
