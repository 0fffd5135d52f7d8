// File: internal/browser/chromedp.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/config"
)

// interactiveSelector is what the adapter harvests into element snapshots.
const interactiveSelector = "a, button, input, select, textarea, [role=button]"

// ChromeAdapter drives a real Chrome instance through chromedp. It is the
// thin driver glue the interpreter talks to; everything security-relevant
// happens above it.
type ChromeAdapter struct {
	ctx     context.Context
	cancels []context.CancelFunc
	limiter *rate.Limiter
	cfg     config.BrowserConfig
	logger  *zap.Logger
}

// NewChromeAdapter launches a browser context.
func NewChromeAdapter(parent context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*ChromeAdapter, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	rps := cfg.PolitenessRPS
	if rps <= 0 {
		rps = 2.0
	}

	a := &ChromeAdapter{
		ctx:     browserCtx,
		cancels: []context.CancelFunc{cancelBrowser, cancelAlloc},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		cfg:     cfg,
		logger:  logger.Named("browser"),
	}
	// Launch eagerly so a missing Chrome binary surfaces here, not on the
	// first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		a.Close()
		return nil, fmt.Errorf("chrome launch: %w", err)
	}
	return a, nil
}

// Close tears the browser down.
func (a *ChromeAdapter) Close() {
	for _, cancel := range a.cancels {
		cancel()
	}
}

// run throttles, bounds and executes a chromedp task list, then captures the
// resulting page observation.
func (a *ChromeAdapter) run(ctx context.Context, tasks ...chromedp.Action) (*schemas.Observation, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	timeout := a.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	runCtx, cancel := context.WithTimeout(a.ctx, timeout)
	defer cancel()

	// Honor the session context too: dropping the session aborts in-flight
	// browser work.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, tasks...); err != nil {
		return nil, err
	}
	return a.capture(runCtx)
}

// capture reduces the live page to an Observation.
func (a *ChromeAdapter) capture(ctx context.Context) (*schemas.Observation, error) {
	var (
		loc   string
		title string
		text  string
		nodes []*cdp.Node
	)
	err := chromedp.Run(ctx,
		chromedp.Location(&loc),
		chromedp.Title(&title),
		chromedp.Text("body", &text, chromedp.ByQuery, chromedp.AtLeast(0)),
		chromedp.Nodes(interactiveSelector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	obs := &schemas.Observation{
		URL:         loc,
		Title:       title,
		VisibleText: text,
		Timestamp:   time.Now().UTC(),
	}
	for _, n := range nodes {
		obs.Elements = append(obs.Elements, nodeToElement(n))
	}
	return obs, nil
}

// nodeToElement flattens a CDP node into the guard's element record.
func nodeToElement(n *cdp.Node) schemas.Element {
	attrs := make(map[string]string, len(n.Attributes)/2)
	for i := 0; i+1 < len(n.Attributes); i += 2 {
		attrs[n.Attributes[i]] = n.Attributes[i+1]
	}
	el := schemas.Element{
		Tag:        strings.ToLower(n.NodeName),
		Role:       attrs["role"],
		Label:      attrs["aria-label"],
		Attributes: attrs,
	}
	if el.Label == "" {
		el.Label = attrs["placeholder"]
	}
	if n.ChildNodeCount > 0 && len(n.Children) > 0 && n.Children[0].NodeType == cdp.NodeTypeText {
		el.Text = strings.TrimSpace(n.Children[0].NodeValue)
	}
	return el
}

func (a *ChromeAdapter) Navigate(ctx context.Context, url string) (*schemas.Observation, error) {
	a.logger.Debug("navigate", zap.String("url", url))
	return a.run(ctx, chromedp.Navigate(url))
}

func (a *ChromeAdapter) Click(ctx context.Context, selector string) (*schemas.Observation, error) {
	a.logger.Debug("click", zap.String("selector", selector))
	return a.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (a *ChromeAdapter) Type(ctx context.Context, selector, text string) (*schemas.Observation, error) {
	a.logger.Debug("type", zap.String("selector", selector))
	return a.run(ctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

func (a *ChromeAdapter) Scroll(ctx context.Context, direction string, amount int) (*schemas.Observation, error) {
	if amount == 0 {
		amount = 600
	}
	delta := amount
	if strings.EqualFold(direction, "up") {
		delta = -amount
	}
	return a.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", delta), nil))
}

func (a *ChromeAdapter) Extract(ctx context.Context, selectors map[string]string) (*schemas.Observation, map[string]interface{}, error) {
	data := make(map[string]interface{}, len(selectors))
	var tasks []chromedp.Action
	results := make(map[string]*string, len(selectors))
	for name, sel := range selectors {
		out := new(string)
		results[name] = out
		tasks = append(tasks, chromedp.Text(sel, out, chromedp.ByQuery, chromedp.AtLeast(0)))
	}

	obs, err := a.run(ctx, tasks...)
	if err != nil {
		return nil, nil, err
	}
	for name, out := range results {
		if *out != "" {
			data[name] = *out
		}
	}
	return obs, data, nil
}

func (a *ChromeAdapter) Screenshot(ctx context.Context) (*schemas.Observation, []byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	var buf []byte
	runCtx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, nil, err
	}
	obs, err := a.capture(runCtx)
	if err != nil {
		return nil, nil, err
	}
	return obs, buf, nil
}

func (a *ChromeAdapter) Wait(ctx context.Context, ms int) (*schemas.Observation, error) {
	if ms > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(ms) * time.Millisecond):
		}
	}
	runCtx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
	defer cancel()
	return a.capture(runCtx)
}

func (a *ChromeAdapter) GetState(ctx context.Context) (*schemas.Observation, error) {
	runCtx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return a.capture(runCtx)
}

var _ schemas.BrowserAdapter = (*ChromeAdapter)(nil)
