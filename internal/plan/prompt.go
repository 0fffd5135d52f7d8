// File: internal/plan/prompt.go
package plan

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

// systemPrompt is the fixed instruction set for LLM-backed planning. It is
// deliberately static: the planner never feeds observed page content back
// into prompt construction, because plans are generated before any untrusted
// content exists.
const systemPrompt = `You are a browsing plan compiler. You produce a complete conditional
execution plan (a graph of nodes and edges) for a browsing session, BEFORE
any page has been loaded. The plan is final: nothing observed later may add
nodes or edges, so you must pre-enumerate every branch the session could
need, including failure modes (page missing, login walls, captchas, cookie
banners, rate limiting, empty results).

Actions available: navigate, click, scroll, type, extract, screenshot, wait.
Branch conditions available: element_present, element_absent, url_match,
content_match, default.

Security rules, non-negotiable:
- Never plan navigation outside the allowed domains.
- Never plan clicking payment, purchase-confirmation or destructive controls.
- Never plan typing credentials on non-HTTPS pages.
- Every path must end in a terminal node with terminalResult success, error
  or abort.

Respond with a single JSON object with keys "nodes", "edges" and
"entryPoint", optionally inside a json code fence. No prose.`

// UserPrompt renders the per-intent half of the planning conversation.
func UserPrompt(in *schemas.Intent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", in.Goal)
	fmt.Fprintf(&b, "Task type: %s\n", in.TaskType)
	fmt.Fprintf(&b, "Allowed domains: %s\n", strings.Join(in.AllowedDomains, ", "))
	actions := make([]string, len(in.AllowedActions))
	for i, a := range in.AllowedActions {
		actions[i] = string(a)
	}
	fmt.Fprintf(&b, "Allowed actions: %s\n", strings.Join(actions, ", "))
	fmt.Fprintf(&b, "Navigation depth limit: %d\n", in.MaxDepth)
	fmt.Fprintf(&b, "Produce the complete plan now.")
	return b.String()
}

// fencedJSONRe pulls the payload out of a ```json fence or an untagged ```
// fence. Fences with any other language tag do not match it.
var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// ExtractDAG locates and parses a DAG inside raw provider output. The
// payload may be fenced in a code block or bare; either way it must contain
// a JSON object.
func ExtractDAG(raw string) (*schemas.DAG, error) {
	payload := strings.TrimSpace(raw)
	if m := fencedJSONRe.FindStringSubmatch(payload); m != nil {
		payload = m[1]
	} else if i := strings.Index(payload, "{"); i > 0 {
		// Tolerate prose before the object; cut to the outermost braces.
		if j := strings.LastIndex(payload, "}"); j > i {
			payload = payload[i : j+1]
		}
	}
	if !strings.HasPrefix(payload, "{") {
		return nil, fmt.Errorf("no JSON object in provider response")
	}
	return schemas.UnmarshalDAG([]byte(payload))
}
