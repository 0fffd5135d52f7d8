// File: internal/browser/mock.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
)

// MockPage is one scripted page the mock adapter can serve.
type MockPage struct {
	URL         string
	Title       string
	VisibleText string
	Elements    []schemas.Element
	// Data is what an extract on this page yields, keyed by target name.
	Data map[string]interface{}
	// ClickRoutes maps a click selector to the URL the click lands on.
	// A selector with no route stays on the page.
	ClickRoutes map[string]string
}

// MockAdapter is a scripted BrowserAdapter for tests and dry runs. It
// records every call so tests can assert on the exact action sequence the
// interpreter issued.
type MockAdapter struct {
	mu      sync.Mutex
	pages   map[string]*MockPage
	current *MockPage
	log     []string

	// FailNavigate, when set, errors the next Navigate with this message.
	FailNavigate string
}

// NewMockAdapter builds an adapter serving the given pages.
func NewMockAdapter(pages ...*MockPage) *MockAdapter {
	m := &MockAdapter{pages: make(map[string]*MockPage, len(pages))}
	for _, p := range pages {
		m.pages[p.URL] = p
	}
	return m
}

// Log returns the recorded call sequence.
func (m *MockAdapter) Log() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.log...)
}

func (m *MockAdapter) record(format string, args ...interface{}) {
	m.log = append(m.log, fmt.Sprintf(format, args...))
}

func (m *MockAdapter) observe() *schemas.Observation {
	if m.current == nil {
		return &schemas.Observation{Timestamp: time.Now().UTC()}
	}
	return &schemas.Observation{
		URL:         m.current.URL,
		Title:       m.current.Title,
		VisibleText: m.current.VisibleText,
		Elements:    append([]schemas.Element(nil), m.current.Elements...),
		Timestamp:   time.Now().UTC(),
	}
}

func (m *MockAdapter) Navigate(ctx context.Context, url string) (*schemas.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.record("navigate %s", url)
	if m.FailNavigate != "" {
		msg := m.FailNavigate
		m.FailNavigate = ""
		return nil, fmt.Errorf("%s", msg)
	}
	page, ok := m.pages[url]
	if !ok {
		return nil, fmt.Errorf("no scripted page for %q", url)
	}
	m.current = page
	return m.observe(), nil
}

func (m *MockAdapter) Click(ctx context.Context, selector string) (*schemas.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.record("click %s", selector)
	if m.current == nil {
		return nil, fmt.Errorf("click before any navigation")
	}
	if dest, ok := m.current.ClickRoutes[selector]; ok {
		page, ok := m.pages[dest]
		if !ok {
			return nil, fmt.Errorf("click route leads to unscripted page %q", dest)
		}
		m.current = page
	}
	return m.observe(), nil
}

func (m *MockAdapter) Type(ctx context.Context, selector, text string) (*schemas.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.record("type %s %q", selector, text)
	if m.current == nil {
		return nil, fmt.Errorf("type before any navigation")
	}
	return m.observe(), nil
}

func (m *MockAdapter) Scroll(ctx context.Context, direction string, amount int) (*schemas.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.record("scroll %s %d", direction, amount)
	return m.observe(), nil
}

func (m *MockAdapter) Extract(ctx context.Context, selectors map[string]string) (*schemas.Observation, map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	m.record("extract %d targets", len(selectors))
	if m.current == nil {
		return nil, nil, fmt.Errorf("extract before any navigation")
	}
	data := make(map[string]interface{})
	for name := range selectors {
		if v, ok := m.current.Data[name]; ok {
			data[name] = v
		}
	}
	return m.observe(), data, nil
}

func (m *MockAdapter) Screenshot(ctx context.Context) (*schemas.Observation, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	m.record("screenshot")
	return m.observe(), []byte("png"), nil
}

func (m *MockAdapter) Wait(ctx context.Context, ms int) (*schemas.Observation, error) {
	m.mu.Lock()
	m.record("wait %dms", ms)
	m.mu.Unlock()

	if ms > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(ms) * time.Millisecond):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.observe(), nil
}

func (m *MockAdapter) GetState(ctx context.Context) (*schemas.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.observe(), nil
}

var _ schemas.BrowserAdapter = (*MockAdapter)(nil)
