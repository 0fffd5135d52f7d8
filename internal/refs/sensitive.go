// File: internal/refs/sensitive.go
package refs

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

// sensitiveControlPatterns flag elements whose activation is destructive,
// financial or otherwise hard to undo. Process-global, compiled once.
// English-only by design; locale extension happens through NewDetector's
// extra patterns.
var sensitiveControlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdelete\b`),
	regexp.MustCompile(`(?i)\bremove\b`),
	regexp.MustCompile(`(?i)\brefund\b`),
	regexp.MustCompile(`(?i)\bcancel (order|subscription|account)\b`),
	regexp.MustCompile(`(?i)\bpay now\b`),
	regexp.MustCompile(`(?i)\bpurchase\b`),
	regexp.MustCompile(`(?i)\bsubmit payment\b`),
	regexp.MustCompile(`(?i)\btransfer (funds|money)\b`),
	regexp.MustCompile(`(?i)\bsend money\b`),
	regexp.MustCompile(`(?i)\bconfirm (delete|removal|payment)\b`),
	regexp.MustCompile(`(?i)\bpermanent(ly)?\b`),
	regexp.MustCompile(`(?i)\birreversible\b`),
	regexp.MustCompile(`(?i)\bclose account\b`),
	regexp.MustCompile(`(?i)\brevoke\b`),
}

// SensitiveMatch reports why an element was flagged.
type SensitiveMatch struct {
	Ref     uint32
	Element schemas.Element
	Reason  string
}

// Detector flags sensitive elements. The zero value uses the builtin
// patterns only.
type Detector struct {
	extra []*regexp.Regexp
}

// NewDetector compiles caller-supplied patterns on top of the builtin set.
// Invalid patterns are skipped.
func NewDetector(extraPatterns []string) *Detector {
	d := &Detector{}
	for _, p := range extraPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		d.extra = append(d.extra, re)
	}
	return d
}

// IsSensitive checks the concatenation of the element's label, text,
// aria-label and value against the pattern set.
func (d *Detector) IsSensitive(el schemas.Element) (bool, string) {
	subject := strings.Join([]string{
		el.Label,
		el.Text,
		el.Attributes["aria-label"],
		el.Attributes["value"],
	}, " ")

	for _, re := range sensitiveControlPatterns {
		if re.MatchString(subject) {
			return true, re.String()
		}
	}
	for _, re := range d.extra {
		if re.MatchString(subject) {
			return true, re.String()
		}
	}
	return false, ""
}

// FindSensitiveElements returns every flagged element of a snapshot in ref
// order.
func (d *Detector) FindSensitiveElements(snap *schemas.Snapshot) []SensitiveMatch {
	if snap == nil {
		return nil
	}
	refs := make([]uint32, 0, len(snap.Elements))
	for r := range snap.Elements {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })

	var out []SensitiveMatch
	for _, r := range refs {
		el := snap.Elements[r]
		if ok, reason := d.IsSensitive(el); ok {
			out = append(out, SensitiveMatch{Ref: r, Element: el, Reason: reason})
		}
	}
	return out
}
