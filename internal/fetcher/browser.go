package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/pubharvest/internal/config"
	"github.com/IshaanNene/pubharvest/internal/types"
)

const elementTimeout = 10 * time.Second

// BrowserDriver implements Driver with a Chromium instance controlled through Rod.
type BrowserDriver struct {
	cfg        *config.Config
	stealthCfg *StealthConfig
	proxyMgr   *ProxyManager
	logger     *slog.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// BrowserOption configures the BrowserDriver.
type BrowserOption func(*BrowserDriver)

// WithStealth enables stealth pages with the given configuration.
func WithStealth(cfg *StealthConfig) BrowserOption {
	return func(bd *BrowserDriver) { bd.stealthCfg = cfg }
}

// WithBrowserProxy sets the proxy manager consulted on every launch.
func WithBrowserProxy(pm *ProxyManager) BrowserOption {
	return func(bd *BrowserDriver) { bd.proxyMgr = pm }
}

// NewBrowserDriver launches a browser and connects to it.
func NewBrowserDriver(cfg *config.Config, logger *slog.Logger, opts ...BrowserOption) (*BrowserDriver, error) {
	bd := &BrowserDriver{
		cfg:    cfg,
		logger: logger.With("component", "browser_driver"),
	}
	for _, opt := range opts {
		opt(bd)
	}

	bd.mu.Lock()
	defer bd.mu.Unlock()
	if err := bd.startLocked(); err != nil {
		return nil, err
	}
	return bd, nil
}

// startLocked launches Chromium with anti-automation flags and connects Rod to it.
func (bd *BrowserDriver) startLocked() error {
	l := launcher.New().
		Headless(bd.cfg.Browser.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled")

	if bd.cfg.Browser.Bin != "" {
		l = l.Bin(bd.cfg.Browser.Bin)
	}
	if proxyURL := bd.proxyMgr.Next(); proxyURL != nil {
		l = l.Proxy(proxyURL.String())
	}
	if bd.stealthCfg != nil {
		if bd.stealthCfg.UserDataDir != "" {
			l = l.UserDataDir(bd.stealthCfg.UserDataDir)
		}
		if bd.stealthCfg.WindowSize != "" {
			l = l.Set("window-size", bd.stealthCfg.WindowSize)
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("connect browser: %w", err)
	}

	bd.launcher = l
	bd.browser = browser
	bd.logger.Info("browser ready",
		"headless", bd.cfg.Browser.Headless,
		"stealth", bd.stealthCfg != nil,
	)
	return nil
}

func (bd *BrowserDriver) stopLocked() error {
	var err error
	if bd.browser != nil {
		err = bd.browser.Close()
		bd.browser = nil
	}
	if bd.launcher != nil {
		bd.launcher.Kill()
		bd.launcher = nil
	}
	return err
}

// NewPage opens a new tab. With stealth enabled the tab gets go-rod/stealth patches plus
// the navigator overrides from StealthConfig.
func (bd *BrowserDriver) NewPage(ctx context.Context) (Page, error) {
	bd.mu.Lock()
	browser := bd.browser
	bd.mu.Unlock()
	if browser == nil {
		return nil, types.ErrSessionDied
	}

	var (
		page *rod.Page
		err  error
	)
	if bd.stealthCfg != nil {
		page, err = stealth.Page(browser)
		if err == nil {
			if _, evalErr := page.EvalOnNewDocument(bd.stealthCfg.StealthJS()); evalErr != nil {
				bd.logger.Warn("stealth script injection failed", "error", evalErr)
			}
		}
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}

	return &browserPage{
		page:    page,
		timeout: bd.cfg.Fetcher.RequestTimeout,
		logger:  bd.logger,
	}, nil
}

// Restart closes the browser and launches a fresh one, picking the next proxy.
func (bd *BrowserDriver) Restart(ctx context.Context) error {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	if err := bd.stopLocked(); err != nil {
		bd.logger.Warn("browser close during restart failed", "error", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	bd.logger.Info("restarting browser")
	return bd.startLocked()
}

// Alive pings the browser over CDP.
func (bd *BrowserDriver) Alive() bool {
	bd.mu.Lock()
	browser := bd.browser
	bd.mu.Unlock()
	if browser == nil {
		return false
	}
	_, err := proto.BrowserGetVersion{}.Call(browser)
	return err == nil
}

// Close shuts down the browser.
func (bd *BrowserDriver) Close() error {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	return bd.stopLocked()
}

// Type returns the driver type identifier.
func (bd *BrowserDriver) Type() string { return "browser" }

// browserPage adapts a Rod page to Page.
type browserPage struct {
	page    *rod.Page
	timeout time.Duration
	logger  *slog.Logger
}

func (bp *browserPage) Navigate(ctx context.Context, url string) error {
	p := bp.page.Context(ctx).Timeout(bp.timeout)
	if err := p.Navigate(url); err != nil {
		return &types.FetchError{URL: url, Err: err, Retryable: true}
	}
	if err := p.WaitStable(300 * time.Millisecond); err != nil {
		bp.logger.Debug("page stability timeout, continuing", "url", url, "error", err)
	}
	return nil
}

func (bp *browserPage) HTML(ctx context.Context) (string, error) {
	html, err := bp.page.Context(ctx).Timeout(bp.timeout).HTML()
	if err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

func (bp *browserPage) URL() string {
	info, err := bp.page.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

func (bp *browserPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if _, err := bp.page.Context(ctx).Timeout(timeout).Element(selector); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s", types.ErrElementNotFound, selector)
	}
	return nil
}

func (bp *browserPage) Has(ctx context.Context, selector string) bool {
	has, _, err := bp.page.Context(ctx).Has(selector)
	return err == nil && has
}

func (bp *browserPage) Enabled(ctx context.Context, selector string) bool {
	has, el, err := bp.page.Context(ctx).Has(selector)
	if err != nil || !has {
		return false
	}
	if disabled, _ := el.Attribute("disabled"); disabled != nil {
		return false
	}
	if aria, _ := el.Attribute("aria-disabled"); aria != nil && *aria == "true" {
		return false
	}
	return true
}

func (bp *browserPage) Click(ctx context.Context, selector string) error {
	el, err := bp.page.Context(ctx).Timeout(elementTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("%w: %s", types.ErrElementNotFound, selector)
	}
	if err := el.ScrollIntoView(); err != nil {
		bp.logger.Debug("scroll into view failed", "selector", selector, "error", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	if err := bp.page.Context(ctx).Timeout(bp.timeout).WaitStable(300 * time.Millisecond); err != nil {
		bp.logger.Debug("page stability timeout after click", "selector", selector, "error", err)
	}
	return nil
}

func (bp *browserPage) Type(ctx context.Context, selector, text string) error {
	el, err := bp.page.Context(ctx).Timeout(elementTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("%w: %s", types.ErrElementNotFound, selector)
	}
	if err := el.SelectAllText(); err != nil {
		bp.logger.Debug("select all text failed", "selector", selector, "error", err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("type into %s: %w", selector, err)
	}
	return nil
}

func (bp *browserPage) Activate(ctx context.Context) error {
	_, err := bp.page.Context(ctx).Activate()
	return err
}

func (bp *browserPage) Alive() bool {
	_, err := bp.page.Info()
	return err == nil
}

func (bp *browserPage) Close() error {
	return bp.page.Close()
}
