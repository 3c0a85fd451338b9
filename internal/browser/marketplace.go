// internal/browser/marketplace.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/marketpilot/api/schemas"
	"github.com/xkilldash9x/marketpilot/internal/config"
)

const locatePollInterval = 250 * time.Millisecond

// Page is the set of primitive browser operations the marketplace driver is
// built from. *Session implements it against a real tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, script string, out interface{}) error
	Count(ctx context.Context, selector string) (int, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	PressEnter(ctx context.Context) error
	UploadFiles(ctx context.Context, selector string, paths []string) error
	Sleep(ctx context.Context, d time.Duration) error
}

var _ Page = (*Session)(nil)

// Marketplace drives the marketplace web UI. It implements the inbox, the
// listing form and login on top of a Page.
type Marketplace struct {
	page   Page
	cfg    config.MarketplaceConfig
	logger *zap.Logger

	// locateTimeout bounds how long a strategy list is polled.
	locateTimeout time.Duration
	// settle is the pause after an action that loads new content.
	settle time.Duration
}

var (
	_ schemas.Inbox         = (*Marketplace)(nil)
	_ schemas.FormDriver    = (*Marketplace)(nil)
	_ schemas.Authenticator = (*Marketplace)(nil)
)

// NewMarketplace creates a driver for the site described by cfg.
func NewMarketplace(page Page, cfg config.MarketplaceConfig, browserCfg config.BrowserConfig, logger *zap.Logger) *Marketplace {
	timeout := browserCfg.ActionTimeout
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	return &Marketplace{
		page:          page,
		cfg:           cfg,
		logger:        logger.Named("marketplace"),
		locateTimeout: timeout,
		settle:        browserCfg.PostLoadWait,
	}
}

func (m *Marketplace) url(path string) string {
	return strings.TrimRight(m.cfg.BaseURL, "/") + path
}

// locate polls strategies until one matches or the locate timeout passes.
// The returned error wraps schemas.ErrElementNotFound when nothing matched.
func (m *Marketplace) locate(ctx context.Context, what string, strategies []string) (string, error) {
	deadline := time.Now().Add(m.locateTimeout)
	for {
		if sel, err := m.probe(ctx, strategies); err != nil || sel != "" {
			return sel, err
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: %s", schemas.ErrElementNotFound, what)
		}
		if err := m.page.Sleep(ctx, locatePollInterval); err != nil {
			return "", err
		}
	}
}

// probe checks each strategy once and returns the first that matches.
// A selector the page rejects is skipped; a lost session or a done context is returned.
func (m *Marketplace) probe(ctx context.Context, strategies []string) (string, error) {
	for _, sel := range strategies {
		n, err := m.page.Count(ctx, sel)
		if err != nil {
			if errors.Is(err, schemas.ErrSessionLost) || ctx.Err() != nil {
				return "", err
			}
			m.logger.Debug("Selector query failed.", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if n > 0 {
			return sel, nil
		}
	}
	return "", nil
}

// clickFirst locates and clicks the first matching strategy.
func (m *Marketplace) clickFirst(ctx context.Context, what string, strategies []string) error {
	sel, err := m.locate(ctx, what, strategies)
	if err != nil {
		return err
	}
	m.logger.Debug("Clicking.", zap.String("target", what), zap.String("selector", sel))
	return m.page.Click(ctx, sel)
}

// typeInto locates a field and replaces its content with value.
func (m *Marketplace) typeInto(ctx context.Context, what string, strategies []string, value string) error {
	sel, err := m.locate(ctx, what, strategies)
	if err != nil {
		return err
	}
	m.logger.Debug("Typing into field.", zap.String("target", what), zap.String("selector", sel))
	return m.page.Type(ctx, sel, value)
}

// Login submits the login form if it is showing. It reports false without
// error when no credentials are given or the session is already signed in.
func (m *Marketplace) Login(ctx context.Context, email, password string) (bool, error) {
	if email == "" || password == "" {
		m.logger.Info("No credentials configured, relying on the existing browser session.")
		return false, nil
	}
	loc, err := m.page.Location(ctx)
	if err != nil {
		return false, err
	}
	if !sameHost(loc, m.cfg.BaseURL) {
		if err := m.page.Navigate(ctx, m.url("/")); err != nil {
			return false, err
		}
	}

	emailSel, err := m.probe(ctx, loginEmailStrategies)
	if err != nil {
		return false, err
	}
	if emailSel == "" {
		m.logger.Info("Login form not shown, session already signed in.")
		return false, nil
	}
	if err := m.page.Type(ctx, emailSel, email); err != nil {
		return false, fmt.Errorf("failed to enter email: %w", err)
	}
	if err := m.typeInto(ctx, "password field", loginPasswordStrategies, password); err != nil {
		return false, fmt.Errorf("failed to enter password: %w", err)
	}
	if err := m.page.PressEnter(ctx); err != nil {
		return false, fmt.Errorf("failed to submit login form: %w", err)
	}
	if err := m.page.Sleep(ctx, m.settle); err != nil {
		return false, err
	}
	m.logger.Info("Login form submitted.")
	return true, nil
}

func sameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Host != "" && strings.EqualFold(ua.Host, ub.Host)
}
