// File: internal/httpfilter/filter.go
package httpfilter

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/intent"
)

var bodyJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Filter is the second line of defense against exfiltration: every outbound
// HTTP request passes through it, independent of whatever the plan and the
// policy engine already decided. Per-session object; not safe for concurrent
// use across sessions.
type Filter struct {
	logger   *zap.Logger
	policies []schemas.SitePolicy

	allowlist       map[string]struct{}
	allowlistActive bool
}

// NewFilter builds an empty filter. Callers load policies and sitemaps.
func NewFilter(logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{
		logger:    logger.Named("httpfilter"),
		allowlist: make(map[string]struct{}),
	}
}

// LoadPolicy installs a site policy. The policy's sitemap is sorted by
// ascending priority on load so evaluation is a straight scan.
func (f *Filter) LoadPolicy(p schemas.SitePolicy) {
	sort.SliceStable(p.Sitemap, func(i, j int) bool {
		return p.Sitemap[i].Priority < p.Sitemap[j].Priority
	})
	f.policies = append(f.policies, p)
}

// LoadSitemap attaches sitemap entries to the policy governing domain,
// creating a default-deny policy when none exists yet.
func (f *Filter) LoadSitemap(domain string, entries []schemas.SitemapEntry) {
	p := f.policyFor(domain)
	if p == nil {
		f.LoadPolicy(schemas.SitePolicy{
			Name:    domain,
			Default: schemas.DefaultDeny,
			Domains: []string{domain},
			Sitemap: entries,
		})
		return
	}
	p.Sitemap = append(p.Sitemap, entries...)
	sort.SliceStable(p.Sitemap, func(i, j int) bool {
		return p.Sitemap[i].Priority < p.Sitemap[j].Priority
	})
}

// LoadRules attaches semantic-action rules to the policy governing domain.
func (f *Filter) LoadRules(domain string, rules []schemas.SiteRule) {
	p := f.policyFor(domain)
	if p == nil {
		f.LoadPolicy(schemas.SitePolicy{
			Name:    domain,
			Default: schemas.DefaultDeny,
			Domains: []string{domain},
			Rules:   rules,
		})
		return
	}
	p.Rules = append(p.Rules, rules...)
}

// SetPredictedAllowlist installs the intent-derived host allowlist.
func (f *Filter) SetPredictedAllowlist(domains []string, active bool) {
	f.allowlist = make(map[string]struct{}, len(domains))
	for _, d := range domains {
		f.allowlist[strings.ToLower(d)] = struct{}{}
	}
	f.allowlistActive = active
}

// PredictAllowlistFromIntent expands the intent's domains with their www.
// siblings and the statically-known companion hosts, the same table the
// intent parser uses.
func PredictAllowlistFromIntent(in *schemas.Intent) []string {
	set := make(map[string]struct{})
	for _, d := range in.AllowedDomains {
		d = strings.ToLower(d)
		set[d] = struct{}{}
		if !strings.HasPrefix(d, "www.") {
			set["www."+d] = struct{}{}
		}
		for _, c := range intent.CompanionsFor(d) {
			set[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// FromIntent builds a filter seeded for a session: active predicted
// allowlist plus a default policy per allowed domain. Extract tasks get
// allow_public defaults so credentials are stripped from every fetch.
func FromIntent(in *schemas.Intent, logger *zap.Logger) *Filter {
	f := NewFilter(logger)
	f.SetPredictedAllowlist(PredictAllowlistFromIntent(in), true)

	def := schemas.DefaultAllow
	if in.TaskType == schemas.TaskExtract {
		def = schemas.DefaultAllowPublic
	}
	for _, d := range in.AllowedDomains {
		f.LoadPolicy(schemas.SitePolicy{
			Name:           "intent:" + d,
			Description:    "session policy derived from intent",
			Default:        def,
			Domains:        []string{d},
			AllowedDomains: append([]string(nil), in.AllowedDomains...),
		})
	}
	return f
}

// Filter decides one request. currentDomain, when known, is the domain of
// the page that originated the request; its policy may admit cross-origin
// destinations the allowlist alone would block.
func (f *Filter) Filter(req schemas.HTTPRequest, currentDomain string) schemas.FilterDecision {
	host := requestHost(req.URL)
	if host == "" {
		return denyReq(fmt.Sprintf("cannot parse request URL %q", req.URL))
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(host); err != nil && !strings.Contains(host, ".") {
		// A host with no registrable domain (e.g. a bare label) is never a
		// legitimate destination for guarded traffic.
		return denyReq(fmt.Sprintf("host %q has no registrable domain", host))
	}

	current := f.policyFor(currentDomain)

	// Layer 1: predicted allowlist.
	if f.allowlistActive && !f.hostInAllowlist(host) {
		if current == nil || !schemas.DomainAllowed(host, current.AllowedDomains) {
			return denyReq(fmt.Sprintf("host %q is outside the predicted allowlist for this session", host))
		}
	}

	// Layer 2: destination policy lookup.
	governing := f.policyFor(host)
	if governing == nil {
		if current == nil || !schemas.DomainAllowed(host, current.AllowedDomains) {
			return denyReq(fmt.Sprintf("no policy governs destination %q and the current domain does not admit it", host))
		}
		// Cross-origin destination admitted by the current page's policy.
		governing = current
	}

	// Layer 3+4: sitemap matching and rule resolution.
	if entry := f.matchSitemap(governing, req); entry != nil {
		return f.resolveRules(governing, entry)
	}

	// Layer 5: explicit allowed_requests bypass.
	for _, ar := range governing.AllowedRequests {
		if ar.Method != "" && !strings.EqualFold(ar.Method, methodOf(req)) {
			continue
		}
		if strings.HasPrefix(ar.URL, req.URL) {
			return schemas.FilterDecision{Allowed: true, Reason: "explicitly allowed request"}
		}
	}

	// Layer 6: policy default.
	return decisionFromDefault(governing.Default, "policy default for "+governing.Name)
}

// hostInAllowlist applies subdomain matching against the predicted set.
func (f *Filter) hostInAllowlist(host string) bool {
	host = strings.ToLower(host)
	if _, ok := f.allowlist[host]; ok {
		return true
	}
	for d := range f.allowlist {
		if schemas.DomainMatches(host, d) {
			return true
		}
	}
	return false
}

// policyFor finds the policy whose domain list best matches host: exact
// match first, then the longest subdomain match.
func (f *Filter) policyFor(host string) *schemas.SitePolicy {
	if host == "" {
		return nil
	}
	host = strings.ToLower(host)

	var best *schemas.SitePolicy
	bestLen := -1
	for i := range f.policies {
		for _, d := range f.policies[i].Domains {
			if !schemas.DomainMatches(host, d) {
				continue
			}
			if len(d) > bestLen {
				best = &f.policies[i]
				bestLen = len(d)
			}
		}
	}
	return best
}

// matchSitemap scans the policy's sitemap in ascending priority and returns
// the first entry the request satisfies.
func (f *Filter) matchSitemap(p *schemas.SitePolicy, req schemas.HTTPRequest) *schemas.SitemapEntry {
	method := methodOf(req)
	for i := range p.Sitemap {
		entry := &p.Sitemap[i]
		if !strings.EqualFold(entry.Method, method) {
			continue
		}
		if !f.urlMatches(entry, req.URL) {
			continue
		}
		if len(entry.Body) > 0 && !bodyContains(req.Body, entry.Body) {
			continue
		}
		if len(entry.ResourceTypes) > 0 && !containsFold(entry.ResourceTypes, req.ResourceType) {
			continue
		}
		return entry
	}
	return nil
}

// urlMatches applies the entry's explicit regex when present, the compiled
// URL pattern otherwise.
func (f *Filter) urlMatches(entry *schemas.SitemapEntry, rawURL string) bool {
	if entry.Regex != "" {
		re, err := regexp.Compile(entry.Regex)
		if err != nil {
			f.logger.Warn("sitemap entry has invalid regex",
				zap.String("semantic_action", entry.SemanticAction), zap.Error(err))
			return false
		}
		return re.MatchString(rawURL)
	}
	re, err := CompilePattern(entry.URLPattern)
	if err != nil {
		f.logger.Warn("sitemap entry has invalid url pattern",
			zap.String("semantic_action", entry.SemanticAction), zap.Error(err))
		return false
	}
	return re.MatchString(rawURL)
}

// resolveRules finds the rule for the matched entry's semantic action. No
// rule means the policy default applies.
func (f *Filter) resolveRules(p *schemas.SitePolicy, entry *schemas.SitemapEntry) schemas.FilterDecision {
	for _, r := range p.Rules {
		if r.SemanticAction != entry.SemanticAction {
			continue
		}
		d := decisionFromDefault(r.Effect, r.Reason)
		if d.Reason == "" {
			d.Reason = fmt.Sprintf("rule for semantic action %q", entry.SemanticAction)
		}
		d.SemanticAction = entry.SemanticAction
		return d
	}
	d := decisionFromDefault(p.Default, fmt.Sprintf("no rule for %q; policy default", entry.SemanticAction))
	d.SemanticAction = entry.SemanticAction
	return d
}

// decisionFromDefault maps a policy disposition to a decision.
func decisionFromDefault(def schemas.PolicyDefault, reason string) schemas.FilterDecision {
	switch def {
	case schemas.DefaultAllow:
		return schemas.FilterDecision{Allowed: true, Reason: reason}
	case schemas.DefaultAllowPublic:
		return schemas.FilterDecision{Allowed: true, StripCookies: true, Reason: reason}
	default:
		return schemas.FilterDecision{Allowed: false, Reason: reason}
	}
}

// bodyContains checks subtree containment: every key of pattern must be
// present in the request body with an equal value, recursively for nested
// objects. The body is parsed as JSON first, URL-form-encoded second.
func bodyContains(body string, pattern map[string]interface{}) bool {
	if body == "" {
		return false
	}

	var parsed map[string]interface{}
	if err := bodyJSON.UnmarshalFromString(body, &parsed); err != nil {
		values, err := url.ParseQuery(body)
		if err != nil {
			return false
		}
		parsed = make(map[string]interface{}, len(values))
		for k, v := range values {
			if len(v) > 0 {
				parsed[k] = v[0]
			}
		}
	}
	return subtreeContains(parsed, pattern)
}

func subtreeContains(have map[string]interface{}, want map[string]interface{}) bool {
	for k, wv := range want {
		hv, ok := have[k]
		if !ok {
			return false
		}
		wm, wIsMap := wv.(map[string]interface{})
		hm, hIsMap := hv.(map[string]interface{})
		if wIsMap {
			if !hIsMap || !subtreeContains(hm, wm) {
				return false
			}
			continue
		}
		if fmt.Sprintf("%v", hv) != fmt.Sprintf("%v", wv) {
			return false
		}
	}
	return true
}

func requestHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func methodOf(req schemas.HTTPRequest) string {
	if req.Method == "" {
		return "GET"
	}
	return strings.ToUpper(req.Method)
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func denyReq(reason string) schemas.FilterDecision {
	return schemas.FilterDecision{Allowed: false, Reason: reason}
}
