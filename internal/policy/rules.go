// File: internal/policy/rules.go
package policy

import (
	"regexp"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

// Process-global pattern sets. Compiled once; shared read-only across
// sessions.
var (
	// execExtRe matches targets that would download or run an executable.
	execExtRe = regexp.MustCompile(`(?i)\.(exe|msi|dmg|pkg|app|bat|cmd|sh|ps1)(\?|#|$)`)

	// paymentRe matches descriptions of actions that would commit money.
	paymentRe = regexp.MustCompile(`(?i)\b(pay now|place order|checkout|buy for \$[\d.,]+|complete purchase|submit payment|confirm payment)\b`)

	// maliciousDomainRe matches hostnames nobody should be steered to:
	// phishing./malware. labels and the common URL shorteners.
	maliciousDomainRe = regexp.MustCompile(`(?i)((^|\.)(phishing|malware)\.|(^|\.)(bit\.ly|tinyurl\.com|goo\.gl|t\.co|is\.gd)$)`)

	// formSubmitRe gates the confirm-form-submit rule.
	formSubmitRe = regexp.MustCompile(`(?i)\b(submit|sign up|register|send|post|apply)\b`)

	// plainHTTPPattern marks a context URL that is not TLS-protected.
	plainHTTPPattern = `^http://`
)

// matchesMaliciousDomain reports whether the host trips the static malicious
// pattern set.
func matchesMaliciousDomain(host string) bool {
	return host != "" && maliciousDomainRe.MatchString(host)
}

// staticRules is the compiled-in rule table. Priority 0 unless noted. These
// are process-global and immutable; each engine copies the Rule values into
// its own slice (scope slices stay shared) and never mutates entries.
var staticRules = []schemas.Rule{
	{
		ID:     "no-auto-payment",
		Source: schemas.SourceStatic,
		Scope: schemas.RuleScope{
			Actions:            []schemas.ActionType{schemas.ActionClick, schemas.ActionTypeText},
			DescriptionPattern: paymentRe.String(),
		},
		Effect:   schemas.EffectDeny,
		Priority: 0,
		Reason:   "payments are never auto-submitted",
	},
	{
		ID:     "https-only-credentials",
		Source: schemas.SourceStatic,
		Scope: schemas.RuleScope{
			TaskTypes:  []schemas.TaskType{schemas.TaskLogin},
			URLPattern: plainHTTPPattern,
		},
		Effect:   schemas.EffectDeny,
		Priority: 0,
		Reason:   "credentials never leave over plaintext HTTP",
	},
	{
		ID:     "no-executable-download",
		Source: schemas.SourceStatic,
		Scope: schemas.RuleScope{
			Actions:       []schemas.ActionType{schemas.ActionClick, schemas.ActionNavigate},
			TargetPattern: execExtRe.String(),
		},
		Effect:   schemas.EffectDeny,
		Priority: 0,
		Reason:   "executable downloads are blocked",
	},
	{
		ID:     "block-malicious-domains",
		Source: schemas.SourceStatic,
		Scope: schemas.RuleScope{
			TargetPattern: maliciousDomainRe.String(),
		},
		Effect:   schemas.EffectDeny,
		Priority: 0,
		Reason:   "target matches a known-malicious domain pattern",
	},
	{
		ID:     "confirm-form-submit",
		Source: schemas.SourceStatic,
		Scope: schemas.RuleScope{
			Actions:            []schemas.ActionType{schemas.ActionClick},
			DescriptionPattern: formSubmitRe.String(),
		},
		Effect:   schemas.EffectConfirm,
		Priority: 10,
		Reason:   "form submission requires confirmation",
	},
	{
		ID:     "confirm-external-nav",
		Source: schemas.SourceStatic,
		Scope: schemas.RuleScope{
			Actions:     []schemas.ActionType{schemas.ActionNavigate, schemas.ActionClick},
			CrossDomain: true,
		},
		Effect:   schemas.EffectConfirm,
		Priority: 10,
		Reason:   "leaving the current domain requires confirmation",
	},
}

// taskRules derives the per-intent rule set.
func taskRules(in *schemas.Intent) []schemas.Rule {
	rules := []schemas.Rule{
		{
			ID:       "task-domain-allowlist",
			Source:   schemas.SourceTask,
			Scope:    schemas.RuleScope{Domains: append([]string(nil), in.AllowedDomains...)},
			Effect:   schemas.EffectAllow,
			Priority: 5,
			Reason:   "domain is on the intent allowlist",
		},
		{
			ID:       "task-action-allowlist",
			Source:   schemas.SourceTask,
			Scope:    schemas.RuleScope{Actions: append([]schemas.ActionType(nil), in.AllowedActions...)},
			Effect:   schemas.EffectAllow,
			Priority: 5,
			Reason:   "action is in the intent alphabet",
		},
		{
			ID:       "task-domain-denylist",
			Source:   schemas.SourceTask,
			Scope:    schemas.RuleScope{Actions: []schemas.ActionType{schemas.ActionNavigate}},
			Effect:   schemas.EffectDeny,
			Priority: 100,
			Reason:   "navigation target is not covered by any allow rule",
		},
	}

	switch in.TaskType {
	case schemas.TaskSearch, schemas.TaskExtract, schemas.TaskMonitor:
		// Read-only tasks gate every click behind a confirmation.
		rules = append(rules, schemas.Rule{
			ID:       "task-confirm-on-click",
			Source:   schemas.SourceTask,
			Scope:    schemas.RuleScope{Actions: []schemas.ActionType{schemas.ActionClick}},
			Effect:   schemas.EffectConfirm,
			Priority: 20,
			Reason:   "read-only task; clicks require confirmation",
		})
	case schemas.TaskLogin:
		rules = append(rules, schemas.Rule{
			ID:       "task-login-same-domain",
			Source:   schemas.SourceTask,
			Scope:    schemas.RuleScope{CrossDomain: true},
			Effect:   schemas.EffectDeny,
			Priority: 5,
			Reason:   "login sessions never leave the login domain",
		})
	case schemas.TaskInteract, schemas.TaskPurchase:
		// Interactive tasks rely on the static confirm gates.
	}

	return rules
}
