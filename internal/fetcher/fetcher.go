package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/pubharvest/internal/config"
)

// Page is one browsing context (a tab) that can be navigated and interacted with.
type Page interface {
	// Navigate loads url in this page.
	Navigate(ctx context.Context, url string) error

	// HTML returns the current document markup.
	HTML(ctx context.Context) (string, error)

	// URL returns the current location.
	URL() string

	// WaitFor blocks until selector matches or timeout elapses.
	// A timeout returns an error wrapping types.ErrElementNotFound.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error

	// Has reports whether selector currently matches, without waiting.
	Has(ctx context.Context, selector string) bool

	// Enabled reports whether selector matches an element that is not disabled.
	Enabled(ctx context.Context, selector string) bool

	// Click activates the first element matching selector.
	Click(ctx context.Context, selector string) error

	// Type replaces the value of the input matching selector.
	Type(ctx context.Context, selector, text string) error

	// Activate brings this page to the foreground.
	Activate(ctx context.Context) error

	// Alive reports whether the page handle is still usable.
	Alive() bool

	// Close releases the page.
	Close() error
}

// Driver owns the underlying browser or HTTP client and hands out pages.
type Driver interface {
	// NewPage opens a fresh page sharing the driver's cookies.
	NewPage(ctx context.Context) (Page, error)

	// Restart tears the driver down and recreates it. Existing pages become invalid.
	Restart(ctx context.Context) error

	// Alive reports whether the driver can still open pages.
	Alive() bool

	// Close releases all resources.
	Close() error

	// Type returns the driver type identifier.
	Type() string
}

// New creates the driver selected by cfg.Fetcher.Type.
func New(cfg *config.Config, logger *slog.Logger) (Driver, error) {
	var proxyMgr *ProxyManager
	if cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
		proxyMgr = NewProxyManager(&cfg.Proxy, logger)
	}

	switch cfg.Fetcher.Type {
	case "http":
		return NewHTTPDriver(cfg, logger, proxyMgr)
	case "browser":
		opts := []BrowserOption{WithBrowserProxy(proxyMgr)}
		if cfg.Browser.Stealth {
			sc := DefaultStealthConfig()
			sc.UserDataDir = cfg.Browser.UserDataDir
			if cfg.Browser.WindowSize != "" {
				sc.WindowSize = cfg.Browser.WindowSize
			}
			opts = append(opts, WithStealth(sc))
		}
		return NewBrowserDriver(cfg, logger, opts...)
	default:
		return nil, fmt.Errorf("unknown fetcher type %q", cfg.Fetcher.Type)
	}
}
