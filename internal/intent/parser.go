// File: internal/intent/parser.go
package intent

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

// InvalidError is returned when a parsed intent fails validation. It carries
// every issue found, not just the first.
type InvalidError struct {
	Issues []string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("intent invalid: %s", strings.Join(e.Issues, "; "))
}

// Options tunes parsing. All fields are optional.
type Options struct {
	// ExtraDomains are appended to the derived allowlist.
	ExtraDomains []string
	// ExtraSensitivePatterns are additional detectors, compiled per call.
	// This is the locale/extension injection point.
	ExtraSensitivePatterns map[schemas.SensitiveLabel]string
	// MaxDepth and TimeoutMs override the per-task defaults when positive.
	MaxDepth  int
	TimeoutMs int
}

// taskPattern pairs a task type with the phrasing that selects it. The list
// is ordered; the first match wins and the default is extract.
type taskPattern struct {
	task schemas.TaskType
	re   *regexp.Regexp
}

var taskPatterns = []taskPattern{
	{schemas.TaskLogin, regexp.MustCompile(`(?i)\b(log\s?in|sign\s?in|authenticate)\b`)},
	{schemas.TaskPurchase, regexp.MustCompile(`(?i)\b(buy|purchase|order|checkout|add to cart)\b`)},
	{schemas.TaskMonitor, regexp.MustCompile(`(?i)\b(monitor|watch|track|keep an eye)\b`)},
	{schemas.TaskSearch, regexp.MustCompile(`(?i)\b(search|find|look (for|up)|google)\b`)},
	{schemas.TaskInteract, regexp.MustCompile(`(?i)\b(click|fill|submit|press|select|upload)\b`)},
}

// Domain detectors.
var (
	urlHostRe = regexp.MustCompile(`(?i)https?://([A-Za-z0-9._-]+)`)
	// bareDomainRe catches name.tld mentions for a fixed TLD list.
	bareDomainRe = regexp.MustCompile(`(?i)\b([a-z0-9-]+(?:\.[a-z0-9-]+)*\.(?:com|org|net|io|dev|co|ai|app|edu|gov))\b`)
)

// Sensitive-data detectors. Compiled once; the ExtraSensitivePatterns option
// layers on top.
var sensitivePatterns = []struct {
	label schemas.SensitiveLabel
	re    *regexp.Regexp
}{
	{schemas.LabelSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{schemas.LabelCreditCard, regexp.MustCompile(`\b(?:\d[ -]?){15}\d\b`)},
	{schemas.LabelEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{schemas.LabelPassword, regexp.MustCompile(`(?i)\bpassword\b`)},
	{schemas.LabelAPIKey, regexp.MustCompile(`(?i)\bapi[_-]?key\b`)},
	{schemas.LabelSecret, regexp.MustCompile(`(?i)\bsecret\b`)},
}

// Per-task action alphabet.
var taskActions = map[schemas.TaskType][]schemas.ActionType{
	schemas.TaskSearch:   {schemas.ActionNavigate, schemas.ActionTypeText, schemas.ActionClick, schemas.ActionScroll, schemas.ActionExtract},
	schemas.TaskExtract:  {schemas.ActionNavigate, schemas.ActionScroll, schemas.ActionExtract, schemas.ActionScreenshot},
	schemas.TaskMonitor:  {schemas.ActionNavigate, schemas.ActionScroll, schemas.ActionExtract, schemas.ActionScreenshot, schemas.ActionWait},
	schemas.TaskInteract: {schemas.ActionNavigate, schemas.ActionClick, schemas.ActionScroll, schemas.ActionTypeText, schemas.ActionExtract},
	schemas.TaskPurchase: {schemas.ActionNavigate, schemas.ActionClick, schemas.ActionScroll, schemas.ActionTypeText, schemas.ActionExtract},
	schemas.TaskLogin:    {schemas.ActionNavigate, schemas.ActionClick, schemas.ActionTypeText},
}

// Per-task depth and timeout defaults.
var taskDefaults = map[schemas.TaskType]struct {
	depth     int
	timeoutMs int
}{
	schemas.TaskSearch:   {3, 30_000},
	schemas.TaskExtract:  {5, 60_000},
	schemas.TaskMonitor:  {2, 120_000},
	schemas.TaskInteract: {5, 60_000},
	schemas.TaskPurchase: {10, 180_000},
	schemas.TaskLogin:    {3, 30_000},
}

const goalMaxLen = 100

// Parser derives typed intents from free text.
type Parser struct {
	logger *zap.Logger
}

// NewParser builds a parser. A nil logger is replaced with a nop logger.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger.Named("intent")}
}

// Parse derives an Intent from the user's request. It never does I/O; every
// field comes from a small deterministic detector.
func (p *Parser) Parse(text string, opts Options) *schemas.Intent {
	task := detectTaskType(text)
	domains := p.detectDomains(text, task, opts.ExtraDomains)
	labels := detectSensitive(text, opts.ExtraSensitivePatterns)

	defaults := taskDefaults[task]
	depth := defaults.depth
	if opts.MaxDepth > 0 {
		depth = opts.MaxDepth
	}
	timeout := defaults.timeoutMs
	if opts.TimeoutMs > 0 {
		timeout = opts.TimeoutMs
	}

	in := &schemas.Intent{
		Goal:            truncateGoal(text),
		TaskType:        task,
		AllowedDomains:  domains,
		AllowedActions:  append([]schemas.ActionType(nil), taskActions[task]...),
		SensitiveData:   labels,
		MaxDepth:        depth,
		TimeoutMs:       timeout,
		OriginalRequest: text,
	}
	p.logger.Debug("parsed intent",
		zap.String("task_type", string(task)),
		zap.Strings("domains", domains),
		zap.Int("timeout_ms", timeout))
	return in
}

// detectTaskType runs the ordered first-match pattern list.
func detectTaskType(text string) schemas.TaskType {
	for _, tp := range taskPatterns {
		if tp.re.MatchString(text) {
			return tp.task
		}
	}
	return schemas.TaskExtract
}

// detectDomains unions explicit URL hosts, bare name.tld mentions and the
// caller's extra domains, then adds www. siblings and the statically-known
// companions of anchor hosts. Search tasks with no domain at all fall back to
// the search-engine set.
func (p *Parser) detectDomains(text string, task schemas.TaskType, extra []string) []string {
	set := make(map[string]struct{})
	add := func(host string) {
		host = strings.ToLower(strings.TrimSpace(host))
		host = strings.TrimSuffix(host, ".")
		if host == "" {
			return
		}
		set[host] = struct{}{}
	}

	for _, m := range urlHostRe.FindAllStringSubmatch(text, -1) {
		host := m[1]
		// Guard against credentials or ports smuggled into the match.
		if u, err := url.Parse("https://" + host); err == nil && u.Hostname() != "" {
			host = u.Hostname()
		}
		add(host)
	}
	for _, m := range bareDomainRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, d := range extra {
		add(d)
	}

	// www. siblings, then companions of anchors. Companions are added after
	// siblings so a companion never gets a www. variant of its own. Both
	// passes work off a snapshot of the keys; mutating a map mid-range has
	// unspecified visit order.
	for _, host := range keysOf(set) {
		if !strings.HasPrefix(host, "www.") {
			set["www."+host] = struct{}{}
		}
	}
	for _, host := range keysOf(set) {
		for _, c := range CompanionsFor(host) {
			set[c] = struct{}{}
		}
	}

	if len(set) == 0 && task == schemas.TaskSearch {
		for _, d := range searchEngineDomains {
			set[d] = struct{}{}
		}
	}

	out := keysOf(set)
	sort.Strings(out)
	return out
}

func keysOf(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}

// detectSensitive runs the builtin detectors plus any caller-supplied ones.
func detectSensitive(text string, extras map[schemas.SensitiveLabel]string) []schemas.SensitiveLabel {
	seen := make(map[schemas.SensitiveLabel]struct{})
	var out []schemas.SensitiveLabel
	record := func(l schemas.SensitiveLabel) {
		if _, dup := seen[l]; !dup {
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}

	for _, sp := range sensitivePatterns {
		if sp.re.MatchString(text) {
			record(sp.label)
		}
	}
	for label, pattern := range extras {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(text) {
			record(label)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func truncateGoal(text string) string {
	goal := strings.TrimSpace(text)
	if len(goal) > goalMaxLen {
		goal = goal[:goalMaxLen] + "..."
	}
	return goal
}

// Validate checks the invariants an intent must satisfy before any I/O
// happens on its behalf.
func Validate(in *schemas.Intent) schemas.ValidationResult {
	var issues []string

	if in.TaskType == schemas.TaskLogin && in.HasLabel(schemas.LabelPassword) {
		issues = append(issues, "login task must not carry a password in the request")
	}
	if in.TaskType == schemas.TaskPurchase && in.HasLabel(schemas.LabelCreditCard) {
		issues = append(issues, "purchase task must not carry a credit card number in the request")
	}
	if len(in.AllowedDomains) == 0 {
		issues = append(issues, "allowed domains must not be empty")
	}
	for _, d := range in.AllowedDomains {
		if d == "*" {
			issues = append(issues, "wildcard domain is not allowed")
			continue
		}
		if len(d) <= 3 {
			issues = append(issues, fmt.Sprintf("domain %q is too short", d))
		}
	}
	if in.TimeoutMs > schemas.MaxTimeoutMs {
		issues = append(issues, fmt.Sprintf("timeout %dms exceeds the %dms cap", in.TimeoutMs, schemas.MaxTimeoutMs))
	}

	return schemas.ValidationResult{Valid: len(issues) == 0, Issues: issues}
}

// MustValidate returns an *InvalidError when validation fails, nil otherwise.
func MustValidate(in *schemas.Intent) error {
	res := Validate(in)
	if res.Valid {
		return nil
	}
	return &InvalidError{Issues: res.Issues}
}
