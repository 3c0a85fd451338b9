// internal/browser/fake_page_test.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/marketpilot/internal/config"
)

// fakePage is an in-memory Page. nodes maps a selector to its match count and
// evals maps a script to the JSON it evaluates to.
type fakePage struct {
	mu       sync.Mutex
	location string
	nodes    map[string]int
	evals    map[string]string
	countErr error
	// onClick lets a test change the page in response to a click.
	onClick func(p *fakePage, selector string)

	calls []string
	typed map[string]string
}

func newFakePage(location string) *fakePage {
	return &fakePage{
		location: location,
		nodes:    map[string]int{},
		evals:    map[string]string{},
		typed:    map[string]string{},
	}
}

func (p *fakePage) record(format string, args ...interface{}) {
	p.calls = append(p.calls, fmt.Sprintf(format, args...))
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("navigate %s", url)
	p.location = url
	return nil
}

func (p *fakePage) Location(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location, nil
}

func (p *fakePage) Evaluate(_ context.Context, script string, out interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("evaluate")
	result, ok := p.evals[script]
	if !ok {
		return fmt.Errorf("unexpected script %.40q", script)
	}
	return jsoniter.Unmarshal([]byte(result), out)
}

func (p *fakePage) Count(_ context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.countErr != nil {
		return 0, p.countErr
	}
	return p.nodes[selector], nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	p.record("click %s", selector)
	hook := p.onClick
	p.mu.Unlock()
	if hook != nil {
		hook(p, selector)
	}
	return nil
}

func (p *fakePage) Type(_ context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("type %s", selector)
	p.typed[selector] = text
	return nil
}

func (p *fakePage) PressEnter(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("enter")
	return nil
}

func (p *fakePage) UploadFiles(_ context.Context, selector string, paths []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("upload %s %s", selector, strings.Join(paths, ","))
	return nil
}

func (p *fakePage) Sleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func (p *fakePage) show(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes[selector] = 1
}

func (p *fakePage) history() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) hasCall(prefix string) bool {
	for _, c := range p.history() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

const testBaseURL = "https://www.facebook.com"

func newTestMarketplace(t *testing.T, page *fakePage) *Marketplace {
	t.Helper()
	return NewMarketplace(page,
		config.MarketplaceConfig{
			BaseURL:      testBaseURL,
			InboxPath:    "/marketplace/inbox",
			MessagesPath: "/messages/t/",
			CreatePath:   "/marketplace/create/item",
		},
		config.BrowserConfig{ActionTimeout: 20 * time.Millisecond},
		zaptest.NewLogger(t),
	)
}
