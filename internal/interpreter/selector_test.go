package interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

func el(tag string, attrs map[string]string) schemas.Element {
	return schemas.Element{Tag: tag, Attributes: attrs}
}

func TestMatchesSelectorTag(t *testing.T) {
	assert.True(t, MatchesSelector(el("button", nil), "button"))
	assert.True(t, MatchesSelector(el("BUTTON", nil), "button"))
	assert.False(t, MatchesSelector(el("a", nil), "button"))
	assert.True(t, MatchesSelector(el("div", nil), "*"))
}

func TestMatchesSelectorID(t *testing.T) {
	e := el("div", map[string]string{"id": "main"})
	assert.True(t, MatchesSelector(e, "#main"))
	assert.True(t, MatchesSelector(e, "div#main"))
	assert.False(t, MatchesSelector(e, "#other"))
	assert.False(t, MatchesSelector(el("div", nil), "#main"))
}

func TestMatchesSelectorClass(t *testing.T) {
	e := el("button", map[string]string{"class": "btn btn-primary large"})
	assert.True(t, MatchesSelector(e, ".btn"))
	assert.True(t, MatchesSelector(e, ".btn-primary"))
	assert.True(t, MatchesSelector(e, "button.large"))
	assert.False(t, MatchesSelector(e, ".primary"))
}

func TestMatchesSelectorAttributes(t *testing.T) {
	e := el("input", map[string]string{"type": "search", "name": "query-box"})

	assert.True(t, MatchesSelector(e, "[type]"))
	assert.True(t, MatchesSelector(e, "[type=search]"))
	assert.True(t, MatchesSelector(e, `[type="search"]`))
	assert.False(t, MatchesSelector(e, "[type=text]"))

	assert.True(t, MatchesSelector(e, "[name*=query]"))
	assert.True(t, MatchesSelector(e, "[name^=query]"))
	assert.True(t, MatchesSelector(e, "[name$=box]"))
	assert.False(t, MatchesSelector(e, "[name^=box]"))

	assert.True(t, MatchesSelector(e, "input[type=search]"))
	assert.False(t, MatchesSelector(e, "button[type=search]"))
}

func TestMatchesSelectorDescendantFallsBackToLast(t *testing.T) {
	button := el("button", nil)
	assert.True(t, MatchesSelector(button, "[id*=cookie] button"))

	banner := el("div", map[string]string{"id": "cookie-banner"})
	assert.False(t, MatchesSelector(banner, "[id*=cookie] button"))
}

func TestMatchesSelectorEmpty(t *testing.T) {
	assert.False(t, MatchesSelector(el("div", nil), ""))
	assert.False(t, MatchesSelector(el("div", nil), "   "))
}

func TestAnyElementMatches(t *testing.T) {
	elements := []schemas.Element{
		el("a", nil),
		el("input", map[string]string{"type": "password"}),
	}
	assert.True(t, AnyElementMatches(elements, "input[type=password]"))
	assert.False(t, AnyElementMatches(elements, "button"))
	assert.False(t, AnyElementMatches(nil, "a"))
}
