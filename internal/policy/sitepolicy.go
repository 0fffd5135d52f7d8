// File: internal/policy/sitepolicy.go
package policy

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

// ParseError reports a malformed site policy.
type ParseError struct {
	Directive string
	Msg       string
}

func (e *ParseError) Error() string {
	if e.Directive != "" {
		return fmt.Sprintf("site policy: directive %q: %s", e.Directive, e.Msg)
	}
	return fmt.Sprintf("site policy: %s", e.Msg)
}

// metaPolicyName is the meta tag a page uses to advertise agent policy.
const metaPolicyName = "ai-agent-policy"

// ParseSitePolicies scans an HTML document for
// <meta name="ai-agent-policy" content="directive1, directive2"> tags and
// returns the site rules the directives translate to. Both quote styles are
// handled by the tokenizer. Unknown directives are an error, not a silent
// skip: a page that speaks the protocol badly should be noticed.
func ParseSitePolicies(doc string) ([]schemas.Rule, error) {
	tok := html.NewTokenizer(strings.NewReader(doc))

	var rules []schemas.Rule
	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			// io.EOF; tokenizer recovers from malformed markup on its own.
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := tok.TagName()
		if string(name) != "meta" || !hasAttr {
			continue
		}

		var metaName, content string
		for {
			key, val, more := tok.TagAttr()
			switch string(key) {
			case "name":
				metaName = string(val)
			case "content":
				content = string(val)
			}
			if !more {
				break
			}
		}
		if !strings.EqualFold(metaName, metaPolicyName) {
			continue
		}

		parsed, err := parseDirectives(content)
		if err != nil {
			return nil, err
		}
		rules = append(rules, parsed...)
	}
	return rules, nil
}

// parseDirectives translates a comma-separated directive list into rules.
func parseDirectives(content string) ([]schemas.Rule, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &ParseError{Msg: "empty policy content"}
	}

	var rules []schemas.Rule
	for _, raw := range strings.Split(content, ",") {
		directive := strings.ToLower(strings.TrimSpace(raw))
		switch directive {
		case "no-form-submit":
			rules = append(rules, schemas.Rule{
				ID:       "site-no-form-submit",
				Source:   schemas.SourceSite,
				Scope:    schemas.RuleScope{Actions: []schemas.ActionType{schemas.ActionClick}},
				Effect:   schemas.EffectDeny,
				Priority: 3,
				Reason:   "site policy forbids form submission",
			})
		case "read-only":
			rules = append(rules, schemas.Rule{
				ID:       "site-read-only",
				Source:   schemas.SourceSite,
				Scope:    schemas.RuleScope{Actions: []schemas.ActionType{schemas.ActionClick, schemas.ActionTypeText}},
				Effect:   schemas.EffectDeny,
				Priority: 3,
				Reason:   "site policy declares the page read-only",
			})
		case "no-ai-agents":
			rules = append(rules, schemas.Rule{
				ID:       "site-no-ai-agents",
				Source:   schemas.SourceSite,
				Scope:    schemas.RuleScope{},
				Effect:   schemas.EffectDeny,
				Priority: 1,
				Reason:   "site policy refuses AI agents",
			})
		case "":
			return nil, &ParseError{Msg: "empty directive in policy content"}
		default:
			return nil, &ParseError{Directive: directive, Msg: "unknown directive"}
		}
	}
	return rules, nil
}
