package mediator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/config"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/httpfilter"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/policy"
)

func newTestMediator(mode config.GuardMode) *Mediator {
	in := &schemas.Intent{
		Goal:           "read techcrunch",
		TaskType:       schemas.TaskExtract,
		AllowedDomains: []string{"techcrunch.com", "www.techcrunch.com"},
		AllowedActions: []schemas.ActionType{schemas.ActionNavigate, schemas.ActionExtract, schemas.ActionScroll},
		TimeoutMs:      60_000,
	}
	return New(httpfilter.FromIntent(in, zap.NewNop()), policy.New(in, zap.NewNop()), mode, zap.NewNop())
}

func fetchCall(url string, headers map[string]interface{}) ToolCall {
	params := map[string]interface{}{"url": url}
	if headers != nil {
		params["headers"] = headers
	}
	return ToolCall{Tool: "web_fetch", Params: params}
}

func TestPassthroughForOtherTools(t *testing.T) {
	m := newTestMediator(config.ModeBlock)

	res := m.BeforeToolCall(ToolCall{Tool: "read_file", Params: map[string]interface{}{"path": "/etc/passwd"}})
	assert.True(t, res.Allow)
	assert.Nil(t, res.Transform)
}

func TestWebFetchBlockedOffAllowlist(t *testing.T) {
	m := newTestMediator(config.ModeBlock)

	res := m.BeforeToolCall(fetchCall("https://attacker.example/collect", nil))
	require.False(t, res.Allow)
	assert.Contains(t, res.Reason, "Browser Guard:")
}

// Extract-task fetches are allowed but credentials are stripped from the
// transformed call.
func TestWebFetchStripsCredentials(t *testing.T) {
	m := newTestMediator(config.ModeBlock)

	res := m.BeforeToolCall(fetchCall("https://techcrunch.com/article", map[string]interface{}{
		"Cookie":        "session=abc",
		"authorization": "Bearer tok",
		"Accept":        "text/html",
	}))

	require.True(t, res.Allow)
	require.NotNil(t, res.Transform)
	headers := res.Transform.Params["headers"].(map[string]interface{})
	assert.NotContains(t, headers, "Cookie")
	assert.NotContains(t, headers, "authorization")
	assert.Equal(t, "text/html", headers["Accept"])
}

func TestWebFetchTransformDoesNotMutateOriginal(t *testing.T) {
	m := newTestMediator(config.ModeBlock)
	original := map[string]interface{}{"Cookie": "session=abc"}

	res := m.BeforeToolCall(fetchCall("https://techcrunch.com/article", original))

	require.True(t, res.Allow)
	assert.Equal(t, "session=abc", original["Cookie"], "the original params must stay intact")
}

func TestBrowserActionBlocked(t *testing.T) {
	m := newTestMediator(config.ModeBlock)

	res := m.BeforeToolCall(ToolCall{Tool: "browser", Params: map[string]interface{}{
		"action":      "click",
		"target":      "#buy",
		"description": "Pay Now",
	}})

	require.False(t, res.Allow)
	assert.Contains(t, res.Reason, "Browser Guard:")
}

func TestBrowserActionAllowed(t *testing.T) {
	m := newTestMediator(config.ModeBlock)

	res := m.BeforeToolCall(ToolCall{Tool: "browser", Params: map[string]interface{}{
		"action":      "navigate",
		"target":      "https://techcrunch.com",
		"description": "open the site",
	}})

	assert.True(t, res.Allow, "reason: %s", res.Reason)
}

// Warn mode logs and passes; nothing is blocked, nothing silently changes.
func TestWarnModePassesThrough(t *testing.T) {
	m := newTestMediator(config.ModeWarn)

	res := m.BeforeToolCall(fetchCall("https://attacker.example/collect", nil))
	assert.True(t, res.Allow)
	assert.Contains(t, res.Reason, "warn mode")
}
