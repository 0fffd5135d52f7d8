// File: internal/interpreter/selector.go
package interpreter

import (
	"regexp"
	"strings"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

// The condition alphabet needs selector matching over the flat Element
// records the adapter reports, not over a DOM tree, so this is a small
// purpose-built engine: tag, .class, #id and bracket attribute selectors
// with the operators = *= ^= $=. Descendant combinators cannot be resolved
// against flat records; a space-separated selector matches on its last
// simple component.

var attrSelectorRe = regexp.MustCompile(`\[([A-Za-z_-][A-Za-z0-9_-]*)(?:([*^$]?=)"?([^\]"]*)"?)?\]`)

// MatchesSelector reports whether the element satisfies the selector.
func MatchesSelector(el schemas.Element, selector string) bool {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return false
	}
	if parts := strings.Fields(selector); len(parts) > 1 {
		selector = parts[len(parts)-1]
	}

	// Peel the attribute clauses off first; what remains is tag/class/id.
	rest := selector
	for _, m := range attrSelectorRe.FindAllStringSubmatch(selector, -1) {
		attr, op, want := m[1], m[2], m[3]
		have, ok := attrValue(el, attr)
		if !ok {
			return false
		}
		if op == "" {
			continue // bare [attr] only requires presence
		}
		if !attrOpMatches(have, op, want) {
			return false
		}
	}
	rest = attrSelectorRe.ReplaceAllString(rest, "")

	// rest is now zero or more of: tag, #id, .class, in any combination like
	// "input", "button.primary", "#main", ".cta".
	for rest != "" {
		switch rest[0] {
		case '#':
			end := simpleTokenEnd(rest[1:])
			id := rest[1 : 1+end]
			if v, _ := attrValue(el, "id"); v != id {
				return false
			}
			rest = rest[1+end:]
		case '.':
			end := simpleTokenEnd(rest[1:])
			class := rest[1 : 1+end]
			if !hasClass(el, class) {
				return false
			}
			rest = rest[1+end:]
		default:
			end := simpleTokenEnd(rest)
			tag := rest[:end]
			if tag != "*" && !strings.EqualFold(el.Tag, tag) {
				return false
			}
			rest = rest[end:]
		}
	}
	return true
}

// AnyElementMatches reports whether any observed element satisfies the
// selector.
func AnyElementMatches(elements []schemas.Element, selector string) bool {
	for _, el := range elements {
		if MatchesSelector(el, selector) {
			return true
		}
	}
	return false
}

// simpleTokenEnd finds the end of a tag/id/class token.
func simpleTokenEnd(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '#' || s[i] == '.' || s[i] == '[' {
			return i
		}
	}
	return len(s)
}

func attrValue(el schemas.Element, attr string) (string, bool) {
	if el.Attributes == nil {
		return "", false
	}
	v, ok := el.Attributes[attr]
	return v, ok
}

func attrOpMatches(have, op, want string) bool {
	switch op {
	case "=":
		return have == want
	case "*=":
		return strings.Contains(have, want)
	case "^=":
		return strings.HasPrefix(have, want)
	case "$=":
		return strings.HasSuffix(have, want)
	}
	return false
}

func hasClass(el schemas.Element, class string) bool {
	v, ok := attrValue(el, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}
