// File: internal/netguard/proxy.go
package netguard

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/httpfilter"
)

// credentialHeaders mirror the mediator's strip list.
var credentialHeaders = []string{"Cookie", "Authorization"}

// EnforcementProxy deploys the HTTP filter as an actual network chokepoint:
// traffic routed through it is filtered whether or not the caller asked
// nicely. This is the second line of defense running at the edge instead of
// inside the tool shim.
type EnforcementProxy struct {
	proxy  *goproxy.ProxyHttpServer
	server *http.Server
	mu     sync.Mutex
	filter *httpfilter.Filter
	logger *zap.Logger
}

// NewEnforcementProxy wires a goproxy server to the filter.
func NewEnforcementProxy(filter *httpfilter.Filter, logger *zap.Logger) *EnforcementProxy {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &EnforcementProxy{
		proxy:  goproxy.NewProxyHttpServer(),
		filter: filter,
		logger: logger.Named("netguard"),
	}
	p.proxy.OnRequest().DoFunc(p.onRequest)
	return p
}

// onRequest consults the filter for every proxied request.
func (p *EnforcementProxy) onRequest(req *http.Request, pctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	guardReq := schemas.HTTPRequest{
		URL:    req.URL.String(),
		Method: req.Method,
	}
	if req.Body != nil && req.ContentLength > 0 && req.ContentLength < 1<<20 {
		body, err := io.ReadAll(req.Body)
		if err == nil {
			guardReq.Body = string(body)
			req.Body = io.NopCloser(strings.NewReader(guardReq.Body))
		}
	}

	origin := ""
	if ref := req.Header.Get("Referer"); ref != "" {
		if u, err := req.URL.Parse(ref); err == nil {
			origin = u.Hostname()
		}
	}

	decision := p.filter.Filter(guardReq, origin)
	if !decision.Allowed {
		p.logger.Info("request denied",
			zap.String("url", guardReq.URL),
			zap.String("reason", decision.Reason))
		return req, goproxy.NewResponse(req, goproxy.ContentTypeText, http.StatusForbidden,
			"Browser Guard: "+decision.Reason)
	}
	if decision.StripCookies {
		for _, h := range credentialHeaders {
			req.Header.Del(h)
		}
		p.logger.Debug("credentials stripped", zap.String("url", guardReq.URL))
	}
	return req, nil
}

// ListenAndServe starts the proxy on addr and blocks until the context is
// cancelled or the listener fails.
func (p *EnforcementProxy) ListenAndServe(ctx context.Context, addr string) error {
	p.mu.Lock()
	p.server = &http.Server{Addr: addr, Handler: p.proxy}
	srv := p.server
	p.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	p.logger.Info("enforcement proxy listening", zap.String("addr", addr))
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
