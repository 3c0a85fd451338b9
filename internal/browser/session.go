// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/marketpilot/api/schemas"
	"github.com/xkilldash9x/marketpilot/internal/config"
)

const (
	defaultActionTimeout     = 20 * time.Second
	defaultNavigationTimeout = 60 * time.Second
)

// Session owns one browser tab and runs every CDP action against it. All
// actions are paced by a shared rate limiter and bounded by a timeout.
type Session struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	// ctx carries the chromedp target. It is done once the browser is gone.
	ctx    context.Context
	cancel context.CancelFunc

	limiter  *rate.Limiter
	keyDelay func() time.Duration

	// runActionsFunc executes actions against the tab. chromedp.Run in
	// production, replaced in tests.
	runActionsFunc func(ctx context.Context, actions ...chromedp.Action) error
}

// NewSession launches a browser, or attaches to a running one when a
// debugger address is configured, and opens a tab.
func NewSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	logger = logger.Named("browser")

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.DebuggerAddress != "" {
		url := debuggerURL(cfg.DebuggerAddress)
		logger.Info("Attaching to running browser.", zap.String("url", url))
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, url)
	} else {
		logger.Info("Launching browser.", zap.Bool("headless", cfg.Headless), zap.String("user_data_dir", cfg.UserDataDir))
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, execAllocatorOptions(cfg)...)
	}

	sugar := logger.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	// The first Run must use the tab context itself; it starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}
	return newSession(tabCtx, cancel, cfg, logger, chromedp.Run), nil
}

func newSession(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg config.BrowserConfig,
	logger *zap.Logger,
	runner func(ctx context.Context, actions ...chromedp.Action) error,
) *Session {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	limit := rate.Inf
	if cfg.ActionsPerSecond > 0 {
		limit = rate.Limit(cfg.ActionsPerSecond)
	}
	return &Session{
		cfg:            cfg,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		limiter:        rate.NewLimiter(limit, 1),
		keyDelay:       newKeyDelay(cfg.Typing),
		runActionsFunc: runner,
	}
}

// execAllocatorOptions translates the browser config into launch flags.
func execAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	// DefaultExecAllocatorOptions is headless; a visible window is the default here.
	opts = append(opts, chromedp.Flag("headless", cfg.Headless))
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if cfg.ProfileDirectory != "" {
		opts = append(opts, chromedp.Flag("profile-directory", cfg.ProfileDirectory))
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		if key, value, ok := strings.Cut(arg, "="); ok {
			opts = append(opts, chromedp.Flag(key, value))
			continue
		}
		opts = append(opts, chromedp.Flag(arg, true))
	}
	return opts
}

// debuggerURL turns "host:port" into the websocket form chromedp expects.
// chromedp resolves the browser endpoint itself when no /devtools path is given.
func debuggerURL(addr string) string {
	switch {
	case strings.HasPrefix(addr, "ws://"), strings.HasPrefix(addr, "wss://"):
		return addr
	case strings.HasPrefix(addr, "http://"):
		return "ws://" + strings.TrimPrefix(addr, "http://")
	default:
		return "ws://" + addr
	}
}

// Close closes the tab and, for a launched browser, the browser itself.
func (s *Session) Close() error {
	err := chromedp.Cancel(Detach(s.ctx))
	s.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser session: %w", err)
	}
	return nil
}

// run waits for the rate limiter, then executes actions under timeout.
func (s *Session) run(ctx context.Context, timeout time.Duration, what string, actions ...chromedp.Action) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.exec(ctx, timeout, what, actions...)
}

func (s *Session) exec(ctx context.Context, timeout time.Duration, what string, actions ...chromedp.Action) error {
	combined, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	opCtx, opCancel := context.WithTimeout(combined, timeout)
	defer opCancel()

	err := s.runActionsFunc(opCtx, actions...)
	if err == nil {
		return nil
	}
	switch {
	case s.ctx.Err() != nil:
		return fmt.Errorf("%s: %w: %v", what, schemas.ErrSessionLost, err)
	case ctx.Err() != nil:
		return fmt.Errorf("%s canceled: %w", what, ctx.Err())
	case errors.Is(opCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s timed out after %v: %w", what, timeout, err)
	default:
		return fmt.Errorf("%s failed: %w", what, err)
	}
}

// Navigate loads url and waits the configured post-load settle time.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.run(ctx, s.cfg.NavigationTimeout, "navigation to "+url, chromedp.Navigate(url)); err != nil {
		return err
	}
	return s.Sleep(ctx, s.cfg.PostLoadWait)
}

// Location returns the current page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, s.cfg.ActionTimeout, "read location", chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Evaluate runs script in the page and decodes its result into out.
func (s *Session) Evaluate(ctx context.Context, script string, out interface{}) error {
	return s.run(ctx, s.cfg.ActionTimeout, "evaluate script", chromedp.Evaluate(script, out))
}

// Count returns how many nodes currently match selector, without waiting.
// The selector may be CSS or XPath.
func (s *Session) Count(ctx context.Context, selector string) (int, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, s.cfg.ActionTimeout, "query "+selector,
		chromedp.Nodes(selector, &nodes, chromedp.BySearch, chromedp.AtLeast(0)),
	)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// Click scrolls the first node matching selector into view and clicks it.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, s.cfg.ActionTimeout, "click "+selector,
		chromedp.ScrollIntoView(selector, chromedp.BySearch),
		chromedp.Click(selector, chromedp.BySearch),
	)
}

// Type focuses selector, clears its content, and types text with paced
// keystrokes. Line breaks are typed as spaces since Enter submits.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	keys, typingTime := keystrokes(flattenLines(text), s.keyDelay)
	actions := []chromedp.Action{
		chromedp.ScrollIntoView(selector, chromedp.BySearch),
		chromedp.Focus(selector, chromedp.BySearch),
	}
	actions = append(actions, selectAll()...)
	actions = append(actions, keyPress(backspaceKey)...)
	actions = append(actions, keys...)

	s.logger.Debug("Typing.", zap.String("selector", selector), zap.Int("length", len(text)))
	return s.run(ctx, s.cfg.ActionTimeout+typingTime, "type into "+selector, actions...)
}

// PressEnter sends an Enter key press to the focused element.
func (s *Session) PressEnter(ctx context.Context) error {
	return s.run(ctx, s.cfg.ActionTimeout, "press enter", keyPress(enterKey)...)
}

// UploadFiles attaches paths to the file input matching selector.
func (s *Session) UploadFiles(ctx context.Context, selector string, paths []string) error {
	return s.run(ctx, s.cfg.NavigationTimeout, "upload files",
		chromedp.SetUploadFiles(selector, paths, chromedp.BySearch),
	)
}

// Sleep pauses for d or until ctx or the session is done.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return schemas.ErrSessionLost
	}
}
