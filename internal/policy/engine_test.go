package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

func extractIntent(domains ...string) *schemas.Intent {
	if len(domains) == 0 {
		domains = []string{"shopping.com", "www.shopping.com"}
	}
	return &schemas.Intent{
		Goal:           "extract things",
		TaskType:       schemas.TaskExtract,
		AllowedDomains: domains,
		AllowedActions: []schemas.ActionType{
			schemas.ActionNavigate, schemas.ActionScroll, schemas.ActionExtract, schemas.ActionScreenshot,
		},
		MaxDepth:  5,
		TimeoutMs: 60_000,
	}
}

func interactIntent(domains ...string) *schemas.Intent {
	in := extractIntent(domains...)
	in.TaskType = schemas.TaskInteract
	in.AllowedActions = []schemas.ActionType{
		schemas.ActionNavigate, schemas.ActionClick, schemas.ActionScroll, schemas.ActionTypeText, schemas.ActionExtract,
	}
	return in
}

// Scenario: a prompt-injected "Pay Now" click on an extract task is denied
// with a reason naming the payment gate.
func TestPaymentClickDenied(t *testing.T) {
	e := New(extractIntent(), zap.NewNop())

	d := e.Allows(schemas.BrowserAction{
		Type:        schemas.ActionClick,
		Target:      "#pay",
		Description: "Pay Now",
	}, schemas.ActionContext{CurrentURL: "https://shopping.com/cart", CurrentDomain: "shopping.com"})

	require.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "payment")
}

func TestPaymentPatterns(t *testing.T) {
	e := New(interactIntent(), zap.NewNop())
	ctx := schemas.ActionContext{CurrentURL: "https://shopping.com", CurrentDomain: "shopping.com"}

	for _, desc := range []string{
		"pay now", "Place Order", "checkout", "buy for $499.99", "complete purchase", "submit payment", "confirm payment",
	} {
		d := e.Allows(schemas.BrowserAction{Type: schemas.ActionClick, Description: desc}, ctx)
		assert.False(t, d.Allowed, "description %q should be denied", desc)
	}
}

// Executable download targets are denied no matter what else matches.
func TestExecutableDownloadDenied(t *testing.T) {
	e := New(interactIntent(), zap.NewNop())
	ctx := schemas.ActionContext{CurrentURL: "https://shopping.com", CurrentDomain: "shopping.com"}

	for _, target := range []string{
		"https://shopping.com/setup.exe",
		"https://shopping.com/pkg.msi",
		"https://shopping.com/app.dmg",
		"https://shopping.com/bundle.pkg",
		"https://shopping.com/tool.app",
		"https://shopping.com/run.bat",
		"https://shopping.com/run.cmd",
		"https://shopping.com/run.sh",
		"https://shopping.com/run.ps1",
		"https://shopping.com/setup.exe?src=promo",
	} {
		d := e.Allows(schemas.BrowserAction{Type: schemas.ActionNavigate, Target: target, Description: "open file"}, ctx)
		assert.False(t, d.Allowed, "target %q should be denied", target)
	}

	// A benign page is not caught by the extension check.
	d := e.Allows(schemas.BrowserAction{Type: schemas.ActionNavigate, Target: "https://shopping.com/deals", Description: "open deals"}, ctx)
	assert.True(t, d.Allowed, "reason: %s", d.Reason)
}

// Scenario: a login task on a plain-HTTP page may not type or click.
func TestLoginOverPlainHTTPDenied(t *testing.T) {
	in := &schemas.Intent{
		TaskType:       schemas.TaskLogin,
		AllowedDomains: []string{"mysite.com", "www.mysite.com"},
		AllowedActions: []schemas.ActionType{schemas.ActionNavigate, schemas.ActionClick, schemas.ActionTypeText},
	}
	e := New(in, zap.NewNop())
	ctx := schemas.ActionContext{CurrentURL: "http://mysite.com/login", CurrentDomain: "mysite.com"}

	d := e.Allows(schemas.BrowserAction{Type: schemas.ActionTypeText, Target: "input[type=password]", Value: "secret", Description: "enter password"}, ctx)
	require.False(t, d.Allowed)

	d = e.Allows(schemas.BrowserAction{Type: schemas.ActionClick, Target: "button", Description: "press the button"}, ctx)
	require.False(t, d.Allowed)

	// The same actions over HTTPS pass the short-circuit.
	httpsCtx := schemas.ActionContext{CurrentURL: "https://mysite.com/login", CurrentDomain: "mysite.com"}
	d = e.Allows(schemas.BrowserAction{Type: schemas.ActionTypeText, Target: "input[name=username]", Description: "enter username"}, httpsCtx)
	assert.True(t, d.Allowed, "reason: %s", d.Reason)
}

func TestNavigateOutsideAllowlistDenied(t *testing.T) {
	e := New(extractIntent(), zap.NewNop())

	d := e.Allows(schemas.BrowserAction{Type: schemas.ActionNavigate, Target: "https://attacker.com/collect", Description: "go elsewhere"},
		schemas.ActionContext{CurrentDomain: "shopping.com"})

	require.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "allowlist")
}

func TestNavigateToMaliciousDomainDenied(t *testing.T) {
	e := New(extractIntent("shopping.com", "phishing.shopping.com"), zap.NewNop())

	d := e.Allows(schemas.BrowserAction{Type: schemas.ActionNavigate, Target: "https://phishing.shopping.com/a", Description: "go"},
		schemas.ActionContext{})
	assert.False(t, d.Allowed)

	d = e.Allows(schemas.BrowserAction{Type: schemas.ActionNavigate, Target: "https://bit.ly/x", Description: "go"},
		schemas.ActionContext{})
	assert.False(t, d.Allowed)
}

func TestActionOutsideAlphabetDenied(t *testing.T) {
	e := New(extractIntent(), zap.NewNop())

	d := e.Allows(schemas.BrowserAction{Type: schemas.ActionTypeText, Target: "input", Description: "write something"},
		schemas.ActionContext{CurrentDomain: "shopping.com", CurrentURL: "https://shopping.com"})

	require.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "alphabet")
}

// A confirm rule with no higher-priority deny must surface effect=confirm,
// not allow and not deny.
func TestConfirmEffectSurfaces(t *testing.T) {
	e := New(interactIntent(), zap.NewNop())
	ctx := schemas.ActionContext{CurrentURL: "https://shopping.com/form", CurrentDomain: "shopping.com"}

	d := e.Allows(schemas.BrowserAction{Type: schemas.ActionClick, Target: "button", Description: "Submit the form"}, ctx)

	assert.False(t, d.Allowed)
	assert.Equal(t, schemas.EffectConfirm, d.Effect)
	assert.Equal(t, "confirm-form-submit", d.MatchedRule)
}

func TestReadOnlyTaskRefusesClicks(t *testing.T) {
	e := New(extractIntent(), zap.NewNop())
	ctx := schemas.ActionContext{CurrentURL: "https://shopping.com", CurrentDomain: "shopping.com"}

	// A click with a harmless description is not allowed on an extract task:
	// the action-alphabet gate denies it before any confirm rule is reached,
	// since extract tasks have no click at all.
	d := e.Allows(schemas.BrowserAction{Type: schemas.ActionClick, Target: "a.story", Description: "open the story"}, ctx)
	assert.False(t, d.Allowed)
}

func TestCrossDomainNavigationConfirmed(t *testing.T) {
	e := New(interactIntent("shopping.com", "www.shopping.com", "partner.example"), zap.NewNop())
	ctx := schemas.ActionContext{CurrentURL: "https://shopping.com", CurrentDomain: "shopping.com"}

	d := e.Allows(schemas.BrowserAction{Type: schemas.ActionNavigate, Target: "https://partner.example/page", Description: "open the partner page"}, ctx)
	assert.Equal(t, schemas.EffectConfirm, d.Effect)
	assert.Equal(t, "confirm-external-nav", d.MatchedRule)
}

func TestLoginTaskStaysOnDomain(t *testing.T) {
	in := &schemas.Intent{
		TaskType:       schemas.TaskLogin,
		AllowedDomains: []string{"mysite.com", "www.mysite.com", "cdn.example"},
		AllowedActions: []schemas.ActionType{schemas.ActionNavigate, schemas.ActionClick, schemas.ActionTypeText},
	}
	e := New(in, zap.NewNop())

	d := e.Allows(schemas.BrowserAction{Type: schemas.ActionNavigate, Target: "https://cdn.example/asset", Description: "fetch the asset"},
		schemas.ActionContext{CurrentURL: "https://mysite.com/login", CurrentDomain: "mysite.com"})

	require.False(t, d.Allowed)
	assert.Equal(t, "task-login-same-domain", d.MatchedRule)
}

func TestAllowsIntent(t *testing.T) {
	e := New(nil, zap.NewNop())

	// Sensitive data on an extract task is an exfiltration setup.
	d := e.AllowsIntent(&schemas.Intent{
		TaskType:       schemas.TaskExtract,
		AllowedDomains: []string{"example.com"},
		SensitiveData:  []schemas.SensitiveLabel{schemas.LabelAPIKey},
	})
	assert.False(t, d.Allowed)

	// Malicious domains cannot be allowlisted.
	d = e.AllowsIntent(&schemas.Intent{
		TaskType:       schemas.TaskInteract,
		AllowedDomains: []string{"malware.example.com"},
	})
	assert.False(t, d.Allowed)

	d = e.AllowsIntent(&schemas.Intent{
		TaskType:       schemas.TaskInteract,
		AllowedDomains: []string{"example.com"},
	})
	assert.True(t, d.Allowed)
}

func TestRulesSnapshotSortedAndImmutable(t *testing.T) {
	e := New(extractIntent(), zap.NewNop())

	rules := e.Rules()
	require.NotEmpty(t, rules)
	for i := 1; i < len(rules); i++ {
		assert.LessOrEqual(t, rules[i-1].Priority, rules[i].Priority)
	}

	// Mutating the snapshot must not affect the engine.
	rules[0].Effect = schemas.EffectAllow
	fresh := e.Rules()
	assert.NotEqual(t, schemas.EffectAllow, fresh[0].Effect, "snapshot mutation leaked into the engine")
}

func TestSiteRulesParticipate(t *testing.T) {
	e := New(interactIntent(), zap.NewNop())
	ctx := schemas.ActionContext{CurrentURL: "https://shopping.com", CurrentDomain: "shopping.com"}

	before := e.Allows(schemas.BrowserAction{Type: schemas.ActionTypeText, Target: "input", Description: "write a note"}, ctx)
	require.True(t, before.Allowed, "reason: %s", before.Reason)

	e.AddSitePolicies([]schemas.Rule{{
		ID:       "site-read-only",
		Source:   schemas.SourceSite,
		Scope:    schemas.RuleScope{Actions: []schemas.ActionType{schemas.ActionTypeText}},
		Effect:   schemas.EffectDeny,
		Priority: 5,
		Reason:   "site policy declares the page read-only",
	}})

	after := e.Allows(schemas.BrowserAction{Type: schemas.ActionTypeText, Target: "input", Description: "write a note"}, ctx)
	assert.False(t, after.Allowed)
	assert.Equal(t, "site-read-only", after.MatchedRule)
}
