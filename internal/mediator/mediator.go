// File: internal/mediator/mediator.go
package mediator

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/config"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/httpfilter"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/observability"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/policy"
)

// Tool names the mediator intercepts; everything else passes through
// untouched.
const (
	toolWebFetch = "web_fetch"
	toolBrowser  = "browser"
)

// credentialHeaders are stripped when a decision says allow-but-strip. Both
// spellings are listed because hosts disagree about header-name casing.
var credentialHeaders = []string{"Cookie", "cookie", "Authorization", "authorization"}

// ToolCall is the host agent's tool invocation as the mediator sees it.
type ToolCall struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
	Context struct {
		UserRequest string `json:"user_request"`
	} `json:"context"`
}

// Transform carries a rewritten tool call.
type Transform struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
}

// MediationResult is BeforeToolCall's verdict.
type MediationResult struct {
	Allow     bool       `json:"allow"`
	Reason    string     `json:"reason,omitempty"`
	Transform *Transform `json:"transform,omitempty"`
}

// Mediator installs the guard between a host agent and its browser/HTTP
// tool surface. One mediator serves one session: it holds the session's
// filter and policy engine.
type Mediator struct {
	mode   config.GuardMode
	filter *httpfilter.Filter
	engine *policy.Engine
	logger *zap.Logger
}

// New builds a mediator.
func New(filter *httpfilter.Filter, engine *policy.Engine, mode config.GuardMode, logger *zap.Logger) *Mediator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mediator{
		mode:   mode,
		filter: filter,
		engine: engine,
		logger: logger.Named("mediator"),
	}
}

// BeforeToolCall screens a tool call. Blocked calls return allow=false with
// a human-readable reason; allowed calls may come back with transformed
// params (credentials stripped). In warn mode a would-be block is logged and
// passed through; there is no silent degradation in block mode.
func (m *Mediator) BeforeToolCall(call ToolCall) MediationResult {
	switch call.Tool {
	case toolWebFetch:
		return m.mediateWebFetch(call)
	case toolBrowser:
		return m.mediateBrowser(call)
	default:
		return MediationResult{Allow: true}
	}
}

func (m *Mediator) mediateWebFetch(call ToolCall) MediationResult {
	req := schemas.HTTPRequest{Method: "GET"}
	if v, ok := call.Params["url"].(string); ok {
		req.URL = v
	}
	if v, ok := call.Params["method"].(string); ok && v != "" {
		req.Method = v
	}
	if v, ok := call.Params["body"].(string); ok {
		req.Body = v
	}
	if hs, ok := call.Params["headers"].(map[string]interface{}); ok {
		req.Headers = make(map[string]string, len(hs))
		for k, hv := range hs {
			if s, ok := hv.(string); ok {
				req.Headers[k] = s
			}
		}
	}

	decision := m.filter.Filter(req, "")
	if !decision.Allowed {
		return m.block(fmt.Sprintf("Browser Guard: %s", decision.Reason))
	}
	if decision.StripCookies {
		return MediationResult{
			Allow:     true,
			Reason:    decision.Reason,
			Transform: m.stripCredentials(call),
		}
	}
	return MediationResult{Allow: true, Reason: decision.Reason}
}

func (m *Mediator) mediateBrowser(call ToolCall) MediationResult {
	action := schemas.BrowserAction{}
	if v, ok := call.Params["action"].(string); ok {
		action.Type = schemas.ActionType(v)
	}
	if v, ok := call.Params["target"].(string); ok {
		action.Target = v
	}
	if v, ok := call.Params["value"].(string); ok {
		action.Value = v
	}
	if v, ok := call.Params["description"].(string); ok {
		action.Description = v
	}

	ctx := schemas.ActionContext{}
	if v, ok := call.Params["current_url"].(string); ok {
		ctx.CurrentURL = v
	}

	decision := m.engine.Allows(action, ctx)
	if !decision.Allowed {
		verb := "blocked"
		if decision.Effect == schemas.EffectConfirm {
			verb = "requires confirmation"
		}
		return m.block(fmt.Sprintf("Browser Guard: action %s: %s", verb, decision.Reason))
	}
	return MediationResult{Allow: true, Reason: decision.Reason}
}

// stripCredentials returns a transform with credential headers removed.
func (m *Mediator) stripCredentials(call ToolCall) *Transform {
	params := make(map[string]interface{}, len(call.Params))
	for k, v := range call.Params {
		params[k] = v
	}
	if hs, ok := params["headers"].(map[string]interface{}); ok {
		clean := make(map[string]interface{}, len(hs))
		for k, v := range hs {
			clean[k] = v
		}
		for _, h := range credentialHeaders {
			delete(clean, h)
		}
		params["headers"] = clean
	}
	return &Transform{Tool: call.Tool, Params: params}
}

// block applies the mode: block mode denies, warn mode logs and passes.
func (m *Mediator) block(reason string) MediationResult {
	if m.mode == config.ModeWarn {
		m.logger.Warn("would block (warn mode)", observability.Verdict(string(schemas.EffectDeny), "", reason)...)
		return MediationResult{Allow: true, Reason: reason + " (warn mode: passed through)"}
	}
	m.logger.Info("blocked tool call", observability.Verdict(string(schemas.EffectDeny), "", reason)...)
	return MediationResult{Allow: false, Reason: reason}
}
