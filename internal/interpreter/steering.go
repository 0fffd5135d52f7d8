// File: internal/interpreter/steering.go
package interpreter

import (
	"fmt"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

// allowedDomainsKey is the context-data marker the steering detector
// consults. The interpreter seeds it from the intent at session start, which
// makes the check live for every session.
const allowedDomainsKey = "_allowedDomains"

// steeringVerdict is the detector's output.
type steeringVerdict struct {
	safe   bool
	reason string
}

// detectSteering looks for branch steering: visible web content pushing
// execution down an edge that technically satisfies its condition but lands
// the agent somewhere unintended. The observable symptom is a domain change
// that the session's allowed-domain marker does not cover.
func detectSteering(obs *schemas.Observation, ctx *execContext) steeringVerdict {
	if obs == nil || ctx.currentDomain == "" {
		return steeringVerdict{safe: true}
	}
	if len(ctx.visitedDomains) >= 2 {
		last := ctx.visitedDomains[len(ctx.visitedDomains)-2]
		if last != ctx.currentDomain {
			if allowed, ok := ctx.data[allowedDomainsKey].([]string); ok {
				if !schemas.DomainAllowed(ctx.currentDomain, allowed) {
					return steeringVerdict{
						safe:   false,
						reason: fmt.Sprintf("steered from %q to unapproved domain %q", last, ctx.currentDomain),
					}
				}
			}
		}
	}

	if v := checkFormActionMismatch(obs, ctx); !v.safe {
		return v
	}
	return checkPerceptualDuplicate(obs, ctx)
}

// checkFormActionMismatch is a reserved hook for comparing a form's visible
// destination with its actual action URL. Always safe for now.
func checkFormActionMismatch(_ *schemas.Observation, _ *execContext) steeringVerdict {
	return steeringVerdict{safe: true}
}

// checkPerceptualDuplicate is a reserved hook for detecting lookalike pages
// that visually duplicate a trusted origin. Always safe for now.
func checkPerceptualDuplicate(_ *schemas.Observation, _ *execContext) steeringVerdict {
	return steeringVerdict{safe: true}
}
