// File: internal/interpreter/conditions.go
package interpreter

import (
	"regexp"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

// evalCondition decides whether a branch condition (or an expected outcome,
// which shares the shape) holds against an observation. Unknown condition
// types and uncompilable patterns evaluate false: a condition the
// interpreter cannot understand must never select a branch.
func evalCondition(condType schemas.ConditionType, value string, obs *schemas.Observation) bool {
	switch condType {
	case schemas.CondDefault:
		return true
	case schemas.CondElementPresent:
		return obs != nil && AnyElementMatches(obs.Elements, value)
	case schemas.CondElementAbsent:
		return obs == nil || !AnyElementMatches(obs.Elements, value)
	case schemas.CondURLMatch:
		if obs == nil {
			return false
		}
		re, err := regexp.Compile(value)
		if err != nil {
			return false
		}
		return re.MatchString(obs.URL)
	case schemas.CondContentMatch:
		if obs == nil {
			return false
		}
		re, err := regexp.Compile(`(?i)` + value)
		if err != nil {
			return false
		}
		return re.MatchString(obs.VisibleText)
	}
	return false
}
