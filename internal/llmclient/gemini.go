// File: internal/llmclient/gemini.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/config"
)

// GeminiProvider implements the LLMProvider port over the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	cfg    config.LLMConfig
	logger *zap.Logger
}

// NewGeminiProvider initializes the provider.
func NewGeminiProvider(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiProvider{
		client: client,
		cfg:    cfg,
		logger: logger.Named("llm.gemini"),
	}, nil
}

// GeneratePlan sends the planning prompts and returns the raw response for
// the planner to parse. Single attempt; the planner owns retries.
func (p *GeminiProvider) GeneratePlan(ctx context.Context, req schemas.PlanRequest) (*schemas.PlanResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.APITimeout)
	defer cancel()

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(p.cfg.Temperature),
		ResponseMIMEType:  "application/json",
	}
	if p.cfg.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(p.cfg.MaxTokens)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, genai.Text(req.UserPrompt), genCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("gemini returned an empty response")
	}

	out := &schemas.PlanResponse{Raw: text}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	p.logger.Debug("gemini plan response received",
		zap.Int("chars", len(text)),
		zap.Int("tokens", out.TokensUsed))
	return out, nil
}
