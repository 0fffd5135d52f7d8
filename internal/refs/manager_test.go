package refs

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

func button(label string) schemas.Element {
	return schemas.Element{
		Tag:  "button",
		Role: "button",
		Text: label,
		Attributes: map[string]string{
			"id": strings.ToLower(strings.ReplaceAll(label, " ", "-")),
		},
	}
}

// Scenario: a ref minted before the page mutated must be rejected as stale.
func TestStaleRefRejected(t *testing.T) {
	m := NewManager(0, zap.NewNop())

	m.CreateSnapshot("https://shop.example/orders", []schemas.Element{button("Cancel Order")})

	el, err := m.ValidateRef("1:1")
	require.NoError(t, err)
	assert.Equal(t, "Cancel Order", el.Text)

	// The page mutated; snapshot 2 supersedes snapshot 1.
	m.CreateSnapshot("https://shop.example/orders", []schemas.Element{button("Keep Order")})

	_, err = m.ValidateRef("1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale")

	var stale *StaleRefError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, uint32(1), stale.RequestedVersion)
	assert.Equal(t, uint32(2), stale.CurrentVersion)
}

func TestValidateRefShapes(t *testing.T) {
	m := NewManager(0, zap.NewNop())
	m.CreateSnapshot("https://e.com", []schemas.Element{button("OK")})

	_, err := m.ValidateRef("1")
	assert.Error(t, err)
	_, err = m.ValidateRef("a:b")
	assert.Error(t, err)
	_, err = m.ValidateRef("1:99")
	assert.Error(t, err)
	_, err = m.ValidateRef("2:1")
	assert.Error(t, err)
}

// Property: after N snapshots, "V:R" is valid iff V == N and R is a live key
// of snapshot N.
func TestRefValidityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "snapshots")
		perSnap := rapid.IntRange(1, 5).Draw(t, "elements")

		m := NewManager(10, zap.NewNop())
		for i := 0; i < n; i++ {
			els := make([]schemas.Element, perSnap)
			for j := range els {
				els[j] = button(fmt.Sprintf("b-%d-%d", i, j))
			}
			m.CreateSnapshot("https://e.com", els)
		}

		v := rapid.IntRange(1, n).Draw(t, "version")
		r := rapid.IntRange(1, perSnap+2).Draw(t, "ref")

		_, err := m.ValidateRef(fmt.Sprintf("%d:%d", v, r))
		shouldBeValid := v == n && r <= perSnap
		if shouldBeValid {
			if err != nil {
				t.Fatalf("ref %d:%d should be valid after %d snapshots: %v", v, r, n, err)
			}
		} else if err == nil {
			t.Fatalf("ref %d:%d should be invalid after %d snapshots", v, r, n)
		}
	})
}

// Elements with identical stable properties hash identically across
// snapshots; a changed id changes the hash.
func TestIdentityHashStability(t *testing.T) {
	a := schemas.Element{
		Tag: "button", Role: "button", Text: "Cancel Order and some volatile counter 17",
		Attributes: map[string]string{"id": "cancel", "name": "cancel", "aria-label": "Cancel"},
	}
	b := schemas.Element{
		Tag: "button", Role: "button", Text: "Cancel Order and some volatile counter 17",
		Attributes: map[string]string{"id": "cancel", "name": "cancel", "aria-label": "Cancel", "class": "btn hot"},
	}
	assert.Equal(t, IdentityHash(a), IdentityHash(b), "class is not a stable property")

	c := a
	c.Attributes = map[string]string{"id": "confirm", "name": "cancel", "aria-label": "Cancel"}
	assert.NotEqual(t, IdentityHash(a), IdentityHash(c))
}

func TestHasElementChanged(t *testing.T) {
	m := NewManager(0, zap.NewNop())
	m.CreateSnapshot("https://e.com", []schemas.Element{button("Submit")})
	m.CreateSnapshot("https://e.com", []schemas.Element{button("Submit")})

	changed, err := m.HasElementChanged("1:1")
	require.NoError(t, err)
	assert.False(t, changed)

	m.CreateSnapshot("https://e.com", []schemas.Element{button("Delete Everything")})
	changed, err = m.HasElementChanged("2:1")
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestSnapshotHistoryEviction(t *testing.T) {
	m := NewManager(3, zap.NewNop())
	for i := 0; i < 5; i++ {
		m.CreateSnapshot("https://e.com", []schemas.Element{button("x")})
	}

	// Versions 1 and 2 were evicted; diagnostics against them fail cleanly.
	_, err := m.HasElementChanged("1:1")
	assert.Error(t, err)
	_, err = m.HasElementChanged("3:1")
	assert.NoError(t, err)
	assert.Equal(t, uint32(5), m.CurrentVersion())
}

func TestFormatForLLM(t *testing.T) {
	m := NewManager(0, zap.NewNop())
	els := []schemas.Element{
		{Tag: "input", Role: "textbox", Label: "Search", Attributes: map[string]string{"type": "search"}},
		{Tag: "button", Text: "Go"},
		{Tag: "a", Text: "Help"},
	}
	snap := m.CreateSnapshot("https://e.com", els)

	out := m.FormatForLLM(snap, 2)

	assert.Contains(t, out, "ref=1:1 textbox \"Search\"")
	assert.Contains(t, out, "type=search")
	assert.Contains(t, out, "1 more elements omitted")
	assert.NotContains(t, out, "Help")
}
