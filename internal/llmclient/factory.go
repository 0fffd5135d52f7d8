// File: internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/config"
)

// NewProvider is a factory function that creates an LLMProvider based on the
// configuration. The returned provider performs a single attempt per call;
// retry policy belongs to the planner.
func NewProvider(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMProvider, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiProvider(ctx, cfg, logger)
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg, logger)
	case config.ProviderAnthropic:
		return NewAnthropicProvider(cfg, logger)
	case config.ProviderMock:
		return NewMockProvider(nil), nil
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q. Supported: [%s, %s, %s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderMock)
	}
}
