package schemas

import "strings"

// TaskType classifies the user's request. The set is closed; every switch
// over it must handle all members.
type TaskType string

const (
	TaskSearch   TaskType = "search"
	TaskExtract  TaskType = "extract"
	TaskMonitor  TaskType = "monitor"
	TaskInteract TaskType = "interact"
	TaskPurchase TaskType = "purchase"
	TaskLogin    TaskType = "login"
)

// ActionType is the browser action alphabet. Plans, policies and the
// interpreter all dispatch on this enum.
type ActionType string

const (
	ActionNavigate   ActionType = "navigate"
	ActionClick      ActionType = "click"
	ActionScroll     ActionType = "scroll"
	ActionTypeText   ActionType = "type"
	ActionExtract    ActionType = "extract"
	ActionScreenshot ActionType = "screenshot"
	ActionWait       ActionType = "wait"
)

// SensitiveLabel names a category of sensitive data detected in a request.
type SensitiveLabel string

const (
	LabelPassword   SensitiveLabel = "password"
	LabelCreditCard SensitiveLabel = "credit_card"
	LabelSSN        SensitiveLabel = "ssn"
	LabelEmail      SensitiveLabel = "email"
	LabelAPIKey     SensitiveLabel = "api_key"
	LabelSecret     SensitiveLabel = "secret"
)

// MaxTimeoutMs caps intent.TimeoutMs. Sessions never run longer than five
// minutes regardless of what the parser derived.
const MaxTimeoutMs = 300_000

// DomainMatches reports whether host falls inside domain using the matching
// semantics shared by the intent parser, the policy engine and the HTTP
// filter: exact match or subdomain match. "api.github.com" matches
// "github.com"; "github.com.attacker.com" does not match "github.com"
// because the suffix test requires a dot boundary against the full domain.
func DomainMatches(host, domain string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	if host == "" || domain == "" {
		return false
	}
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}

// DomainAllowed reports whether host matches any entry in domains.
func DomainAllowed(host string, domains []string) bool {
	for _, d := range domains {
		if DomainMatches(host, d) {
			return true
		}
	}
	return false
}
