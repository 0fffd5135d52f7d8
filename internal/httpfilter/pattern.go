// File: internal/httpfilter/pattern.go
package httpfilter

import (
	"regexp"
	"strings"
)

// identPlaceholderRe finds {ident} segments after escaping. regexp.QuoteMeta
// escapes the braces, so the escaped form is matched here.
var identPlaceholderRe = regexp.MustCompile(`\\\{[A-Za-z_][A-Za-z0-9_]*\\\}`)

// CompilePattern translates a sitemap URL pattern into an anchored regular
// expression. Two passes, strictly in this order: first every regex
// metacharacter is escaped, then the escaped {ident} placeholders become
// ([^/]+) and the escaped * wildcards become .*. Combining the passes would
// let pattern text leak into the regex unescaped.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	escaped := regexp.QuoteMeta(pattern)
	translated := identPlaceholderRe.ReplaceAllString(escaped, `([^/]+)`)
	translated = strings.ReplaceAll(translated, `\*`, `.*`)
	return regexp.Compile("^" + translated + "$")
}
