// File: internal/policy/engine.go
package policy

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/observability"
)

// Engine arbitrates allow/deny/confirm for whole intents and for individual
// actions in flight. It is a per-session object: one engine per guard
// session, seeded with the static rules and the intent-derived rules, with
// site and user rules admitted later.
type Engine struct {
	intent *schemas.Intent
	rules  []schemas.Rule
	logger *zap.Logger
}

// New builds an engine. The intent may be nil for engines that only screen
// raw actions (e.g. the mediator consulting static rules); with an intent the
// task-derived rules are added too.
func New(in *schemas.Intent, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		intent: in,
		rules:  append([]schemas.Rule(nil), staticRules...),
		logger: logger.Named("policy"),
	}
	if in != nil {
		e.rules = append(e.rules, taskRules(in)...)
	}
	e.sortRules()
	return e
}

// AddSitePolicies admits externally-parsed site rules (from a page's
// ai-agent-policy meta tag).
func (e *Engine) AddSitePolicies(rules []schemas.Rule) {
	e.rules = append(e.rules, rules...)
	e.sortRules()
}

// AddUserRules admits host-configuration rules.
func (e *Engine) AddUserRules(rules []schemas.Rule) {
	e.rules = append(e.rules, rules...)
	e.sortRules()
}

// Rules returns a snapshot of the current rule list, sorted by ascending
// priority.
func (e *Engine) Rules() []schemas.Rule {
	return append([]schemas.Rule(nil), e.rules...)
}

// sortRules keeps the list ordered by ascending priority; lower priority is
// higher precedence. The sort is stable so insertion order breaks ties.
func (e *Engine) sortRules() {
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority < e.rules[j].Priority
	})
}

// AllowsIntent screens a whole intent before any planning happens.
func (e *Engine) AllowsIntent(in *schemas.Intent) schemas.Decision {
	if len(in.SensitiveData) > 0 && in.TaskType == schemas.TaskExtract {
		return deny("", fmt.Sprintf("extract task carries sensitive data labels %v", in.SensitiveData))
	}
	for _, d := range in.AllowedDomains {
		if matchesMaliciousDomain(d) {
			return deny("block-malicious-domains", fmt.Sprintf("allowed domain %q matches a malicious pattern", d))
		}
	}
	return allow("", "intent screened")
}

// Allows screens one action in context. Evaluation order: the security
// short-circuits (which no rule can override), the navigation domain check,
// the action-alphabet check, then the sorted rule scan. Fallthrough allows.
func (e *Engine) Allows(action schemas.BrowserAction, ctx schemas.ActionContext) schemas.Decision {
	// 1. Security short-circuits.
	if action.Target != "" && execExtRe.MatchString(action.Target) {
		return deny("no-executable-download", fmt.Sprintf("target %q is an executable download", action.Target))
	}
	if action.Description != "" && paymentRe.MatchString(action.Description) {
		return deny("no-auto-payment", fmt.Sprintf("description %q matches a payment pattern", action.Description))
	}
	if e.intent != nil && e.intent.TaskType == schemas.TaskLogin &&
		ctx.CurrentURL != "" && !strings.HasPrefix(strings.ToLower(ctx.CurrentURL), "https://") {
		return deny("https-only-credentials", "login task on a non-HTTPS page")
	}

	// 2. Domain check for navigations.
	if action.Type == schemas.ActionNavigate {
		host := hostOf(action.Target)
		if host == "" {
			return deny("", fmt.Sprintf("cannot parse navigation target %q", action.Target))
		}
		if matchesMaliciousDomain(host) {
			return deny("block-malicious-domains", fmt.Sprintf("navigation target %q matches a malicious domain pattern", host))
		}
		if e.intent != nil && !e.intent.PermitsDomain(host) {
			return deny("task-domain-denylist", fmt.Sprintf("domain %q is outside the intent allowlist", host))
		}
	}

	// 3. Action-alphabet check.
	if e.intent != nil && !e.intent.PermitsAction(action.Type) {
		return deny("task-action-allowlist", fmt.Sprintf("action %q is not in the intent alphabet", action.Type))
	}

	// 4. Rule scan. The list is sorted by ascending priority, so the first
	// match per effect is also the strongest one. Arbitration: a deny beats
	// an allow only at equal or lower priority, but a confirm is never
	// silenced by an allow. Allow rules exist to counter denies (the
	// allowlist at priority 5 beats the catch-all denylist at 100); letting
	// them also swallow confirmation gates would turn every confirm rule
	// into dead weight on allowlisted domains.
	var firstDeny, firstConfirm, firstAllow *schemas.Rule
	for i := range e.rules {
		r := &e.rules[i]
		if !e.ruleMatches(r, action, ctx) {
			continue
		}
		switch r.Effect {
		case schemas.EffectDeny:
			if firstDeny == nil {
				firstDeny = r
			}
		case schemas.EffectConfirm:
			if firstConfirm == nil {
				firstConfirm = r
			}
		case schemas.EffectAllow:
			if firstAllow == nil {
				firstAllow = r
			}
		}
	}

	if firstDeny != nil &&
		(firstAllow == nil || firstDeny.Priority <= firstAllow.Priority) &&
		(firstConfirm == nil || firstDeny.Priority <= firstConfirm.Priority) {
		fields := append(observability.Verdict(string(schemas.EffectDeny), firstDeny.ID, firstDeny.Reason),
			zap.String("action", string(action.Type)))
		e.logger.Debug("rule denied action", fields...)
		return deny(firstDeny.ID, firstDeny.Reason)
	}
	if firstConfirm != nil {
		return schemas.Decision{Allowed: false, Effect: schemas.EffectConfirm, MatchedRule: firstConfirm.ID, Reason: firstConfirm.Reason}
	}
	if firstAllow != nil {
		return allow(firstAllow.ID, firstAllow.Reason)
	}

	return allow("", "no rule matched")
}

// ruleMatches tests every populated scope axis; all must hold.
func (e *Engine) ruleMatches(r *schemas.Rule, action schemas.BrowserAction, ctx schemas.ActionContext) bool {
	s := &r.Scope

	if len(s.Actions) > 0 && !containsAction(s.Actions, action.Type) {
		return false
	}
	if len(s.TaskTypes) > 0 {
		if e.intent == nil || !containsTask(s.TaskTypes, e.intent.TaskType) {
			return false
		}
	}
	if len(s.Domains) > 0 {
		host := actionHost(action, ctx)
		if host == "" || !schemas.DomainAllowed(host, s.Domains) {
			return false
		}
	}
	if s.TargetPattern != "" && !matchPattern(s.TargetPattern, action.Target) {
		return false
	}
	if s.DescriptionPattern != "" && !matchPattern(s.DescriptionPattern, action.Description) {
		return false
	}
	if s.URLPattern != "" && !matchPattern(s.URLPattern, ctx.CurrentURL) {
		return false
	}
	if s.CrossDomain {
		// Only a target that is unambiguously a URL names a destination; a
		// CSS selector carries no domain information.
		host := hostOfURL(action.Target)
		if host == "" || ctx.CurrentDomain == "" || schemas.DomainMatches(host, ctx.CurrentDomain) {
			return false
		}
	}
	return true
}

// actionHost resolves the domain an action applies to: the navigation target
// host when there is one, the current domain otherwise.
func actionHost(action schemas.BrowserAction, ctx schemas.ActionContext) string {
	if action.Type == schemas.ActionNavigate {
		if h := hostOf(action.Target); h != "" {
			return h
		}
	}
	return ctx.CurrentDomain
}

// hostOfURL extracts the hostname only from explicit URLs.
func hostOfURL(target string) string {
	if !strings.Contains(target, "://") {
		return ""
	}
	return hostOf(target)
}

// hostOf extracts the hostname from a URL or bare host string.
func hostOf(target string) string {
	if target == "" {
		return ""
	}
	raw := target
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// matchPattern applies a scope regex; an uncompilable pattern never matches.
func matchPattern(pattern, s string) bool {
	if s == "" {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func containsAction(set []schemas.ActionType, a schemas.ActionType) bool {
	for _, v := range set {
		if v == a {
			return true
		}
	}
	return false
}

func containsTask(set []schemas.TaskType, t schemas.TaskType) bool {
	for _, v := range set {
		if v == t {
			return true
		}
	}
	return false
}

func allow(rule, reason string) schemas.Decision {
	return schemas.Decision{Allowed: true, Effect: schemas.EffectAllow, MatchedRule: rule, Reason: reason}
}

func deny(rule, reason string) schemas.Decision {
	return schemas.Decision{Allowed: false, Effect: schemas.EffectDeny, MatchedRule: rule, Reason: reason}
}
