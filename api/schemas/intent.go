package schemas

// Intent is the typed, bounded authorization derived from the user's
// natural-language request. It is produced once, before any untrusted content
// is observed, and everything downstream (planner, policy engine, HTTP
// filter, interpreter) treats it as the outer limit of what this session may
// do.
type Intent struct {
	// Goal is a short prose summary of what the session is for, truncated
	// for display in confirmation UIs.
	Goal string `json:"goal"`

	TaskType TaskType `json:"taskType"`

	// AllowedDomains are the hostnames this session may contact. Matching is
	// exact-or-subdomain (see DomainMatches).
	AllowedDomains []string `json:"allowedDomains"`

	// AllowedActions is the subset of the action alphabet permitted for the
	// task type.
	AllowedActions []ActionType `json:"allowedActions"`

	// SensitiveData lists the data categories detected in the original
	// request.
	SensitiveData []SensitiveLabel `json:"sensitiveData,omitempty"`

	// MaxDepth bounds navigation hops.
	MaxDepth int `json:"maxDepth"`

	// TimeoutMs bounds wall-clock execution; never above MaxTimeoutMs.
	TimeoutMs int `json:"timeoutMs"`

	// OriginalRequest preserves the raw user text for audit.
	OriginalRequest string `json:"originalRequest"`
}

// PermitsAction reports whether the action type is in the intent's alphabet.
func (in *Intent) PermitsAction(a ActionType) bool {
	for _, allowed := range in.AllowedActions {
		if allowed == a {
			return true
		}
	}
	return false
}

// PermitsDomain reports whether host is inside the intent's domain allowlist.
func (in *Intent) PermitsDomain(host string) bool {
	return DomainAllowed(host, in.AllowedDomains)
}

// HasLabel reports whether the given sensitive-data label was detected.
func (in *Intent) HasLabel(l SensitiveLabel) bool {
	for _, have := range in.SensitiveData {
		if have == l {
			return true
		}
	}
	return false
}

// ValidationResult carries the outcome of a structural validation pass
// (intent or DAG). Issues is empty iff Valid.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues,omitempty"`
}
