// File: internal/llmclient/decorators.go
package llmclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

// The provider port composes by decoration: logging and caching are
// wrappers over any LLMProvider, not features of a particular client.

// LoggingProvider logs every call with timing and outcome.
type LoggingProvider struct {
	inner  schemas.LLMProvider
	logger *zap.Logger
}

// WithLogging wraps a provider with call logging.
func WithLogging(inner schemas.LLMProvider, logger *zap.Logger) *LoggingProvider {
	return &LoggingProvider{inner: inner, logger: logger.Named("llm")}
}

func (p *LoggingProvider) GeneratePlan(ctx context.Context, req schemas.PlanRequest) (*schemas.PlanResponse, error) {
	start := time.Now()
	resp, err := p.inner.GeneratePlan(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		p.logger.Warn("plan generation call failed",
			zap.Duration("elapsed", elapsed), zap.Error(err))
		return nil, err
	}
	p.logger.Info("plan generation call completed",
		zap.Duration("elapsed", elapsed),
		zap.Int("tokens", resp.TokensUsed))
	return resp, nil
}

// CachingProvider memoizes responses by prompt. Useful for replayed sessions
// and tests; the cache never expires entries, so scope it to a session.
type CachingProvider struct {
	inner schemas.LLMProvider

	mu    sync.Mutex
	cache map[string]*schemas.PlanResponse
}

// WithCaching wraps a provider with a prompt-keyed memo.
func WithCaching(inner schemas.LLMProvider) *CachingProvider {
	return &CachingProvider{inner: inner, cache: make(map[string]*schemas.PlanResponse)}
}

func (p *CachingProvider) GeneratePlan(ctx context.Context, req schemas.PlanRequest) (*schemas.PlanResponse, error) {
	key := cacheKey(req)

	p.mu.Lock()
	if cached, ok := p.cache[key]; ok {
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	resp, err := p.inner.GeneratePlan(ctx, req)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[key] = resp
	p.mu.Unlock()
	return resp, nil
}

func cacheKey(req schemas.PlanRequest) string {
	h := sha256.New()
	h.Write([]byte(req.SystemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(req.UserPrompt))
	return hex.EncodeToString(h.Sum(nil))
}

// MockProvider returns canned responses; the zero-argument form replays an
// empty response and is only useful to exercise error paths.
type MockProvider struct {
	// Responses are returned in order; the last one repeats.
	Responses []schemas.PlanResponse
	// Err, when set, fails every call.
	Err error

	mu    sync.Mutex
	calls int
}

// NewMockProvider builds a mock provider over canned responses.
func NewMockProvider(responses []schemas.PlanResponse) *MockProvider {
	return &MockProvider{Responses: responses}
}

// Calls reports how many times the mock was invoked.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *MockProvider) GeneratePlan(_ context.Context, _ schemas.PlanRequest) (*schemas.PlanResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) == 0 {
		return &schemas.PlanResponse{}, nil
	}
	i := p.calls - 1
	if i >= len(p.Responses) {
		i = len(p.Responses) - 1
	}
	resp := p.Responses[i]
	return &resp, nil
}
