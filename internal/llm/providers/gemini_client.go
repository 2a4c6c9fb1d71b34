package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"github.com/korhaliv/projectlens/internal/common"
)

type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(client *genai.Client) *GeminiProvider {
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-1.5-pro"
	}
	common.Logger().Info("llm: Gemini provider configured", "model", model)
	return &GeminiProvider{client: client, model: model}
}

func (g *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("nil gemini client")
	}
	logger := common.Logger()
	logger.Debug("llm: sending generate content request", "model", g.model, "json_mode", req.JSONMode)
	model := g.client.GenerativeModel(g.model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSONMode {
		model.ResponseMIMEType = "application/json"
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		logger.Error("llm: generate content failed", "error", err)
		return "", err
	}
	var out strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out.WriteString(string(text))
			}
		}
		break
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("no text content returned")
	}
	logger.Debug("llm: generate content succeeded")
	return out.String(), nil
}

func (g *GeminiProvider) Name() string {
	return "gemini"
}
