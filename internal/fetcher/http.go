package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/pubharvest/internal/config"
	"github.com/IshaanNene/pubharvest/internal/types"
)

// HTTPDriver implements Driver over net/http for sources that render server-side.
// Pages share one cookie jar, so a login on one page authenticates every tab.
type HTTPDriver struct {
	cfg        *config.FetcherConfig
	proxyMgr   *ProxyManager
	logger     *slog.Logger
	userAgents []string
	uaIndex    atomic.Int64

	mu     sync.Mutex
	client *http.Client
	closed bool
}

// NewHTTPDriver creates an HTTP driver.
func NewHTTPDriver(cfg *config.Config, logger *slog.Logger, proxyMgr *ProxyManager) (*HTTPDriver, error) {
	d := &HTTPDriver{
		cfg:        &cfg.Fetcher,
		proxyMgr:   proxyMgr,
		logger:     logger.With("component", "http_driver"),
		userAgents: cfg.Fetcher.UserAgents,
	}
	client, err := d.newClient()
	if err != nil {
		return nil, err
	}
	d.client = client
	return d, nil
}

func (d *HTTPDriver) newClient() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        d.cfg.MaxIdleConns,
		MaxIdleConnsPerHost: d.cfg.MaxIdleConns,
		IdleConnTimeout:     d.cfg.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     randomTLSConfig(d.cfg.TLSInsecure),
		DisableCompression:  true, // decoded by hand, including brotli
	}
	if d.proxyMgr != nil {
		transport.Proxy = d.proxyMgr.ProxyFunc()
	}

	maxRedirects := d.cfg.MaxRedirects
	return &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   d.cfg.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("max redirects (%d) reached", maxRedirects)
			}
			return nil
		},
	}, nil
}

// NewPage opens a page that shares the driver's cookie jar.
func (d *HTTPDriver) NewPage(ctx context.Context) (Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, types.ErrSessionDied
	}
	return &httpPage{driver: d, typed: make(map[string]string)}, nil
}

// Restart drops every cookie and pooled connection.
func (d *HTTPDriver) Restart(ctx context.Context) error {
	client, err := d.newClient()
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		d.client.CloseIdleConnections()
	}
	d.client = client
	d.closed = false
	d.logger.Info("http session restarted")
	return nil
}

// Alive reports whether the driver has not been closed.
func (d *HTTPDriver) Alive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

// Close releases resources.
func (d *HTTPDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.client.CloseIdleConnections()
	return nil
}

// Type returns the driver type identifier.
func (d *HTTPDriver) Type() string { return "http" }

func (d *HTTPDriver) nextUserAgent() string {
	if len(d.userAgents) == 0 {
		return "Mozilla/5.0 (compatible; pubharvest/" + config.Version + ")"
	}
	idx := d.uaIndex.Add(1) % int64(len(d.userAgents))
	return d.userAgents[idx]
}

// do executes one request and returns the final URL and decoded body.
func (d *HTTPDriver) do(ctx context.Context, method, rawURL string, form url.Values, referer string) (string, string, error) {
	d.mu.Lock()
	client, closed := d.client, d.closed
	d.mu.Unlock()
	if closed {
		return "", "", types.ErrSessionDied
	}

	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(form.Encode())
	}
	proxyURL := d.proxyMgr.Next()
	reqCtx := ctx
	if proxyURL != nil {
		reqCtx = withProxy(ctx, proxyURL)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, body)
	if err != nil {
		return "", "", &types.FetchError{URL: rawURL, Err: err}
	}
	setBrowserHeaders(req.Header, d.nextUserAgent())
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if proxyURL != nil && ctx.Err() == nil {
			d.proxyMgr.MarkFailed(proxyURL, err)
		}
		return "", "", &types.FetchError{URL: rawURL, Err: err, Retryable: isRetryableError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", "", &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("rate limited (retry after %s): %w", retryAfter, types.ErrChallengeDetected),
			Retryable:  true,
			RetryAfter: retryAfter,
		}
	}
	if resp.StatusCode >= 500 {
		return "", "", &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
			Retryable:  true,
		}
	}

	var reader io.Reader = resp.Body
	if d.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, d.cfg.MaxBodySize)
	}
	reader, err = decompressReader(resp, reader)
	if err != nil {
		return "", "", &types.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: err}
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", "", &types.FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: err, Retryable: true}
	}
	if resp.StatusCode >= 400 {
		return "", "", &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	d.logger.Debug("fetch complete",
		"url", rawURL,
		"status", resp.StatusCode,
		"size", len(data),
		"duration", time.Since(start),
	)
	return resp.Request.URL.String(), string(data), nil
}

// httpPage is a static document plus pending form input. Clicking a link follows it;
// clicking inside a form submits the form with the typed values applied.
type httpPage struct {
	driver *HTTPDriver

	mu     sync.Mutex
	url    string
	doc    *goquery.Document
	typed  map[string]string
	closed bool
}

func (p *httpPage) load(ctx context.Context, method, rawURL string, form url.Values) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return types.ErrSessionDied
	}
	referer := p.url
	p.mu.Unlock()

	finalURL, body, err := p.driver.do(ctx, method, rawURL, form, referer)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return &types.ParseError{URL: finalURL, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = finalURL
	p.doc = doc
	p.typed = make(map[string]string)
	return nil
}

func (p *httpPage) Navigate(ctx context.Context, rawURL string) error {
	return p.load(ctx, http.MethodGet, rawURL, nil)
}

func (p *httpPage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return "", types.ErrEmptyResponse
	}
	return p.doc.Html()
}

func (p *httpPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// WaitFor checks once: a static document never changes while waiting.
func (p *httpPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.Has(ctx, selector) {
		return fmt.Errorf("%w: %s", types.ErrElementNotFound, selector)
	}
	return nil
}

func (p *httpPage) find(selector string) *goquery.Selection {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return nil
	}
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	return sel
}

func (p *httpPage) Has(ctx context.Context, selector string) bool {
	return p.find(selector) != nil
}

func (p *httpPage) Enabled(ctx context.Context, selector string) bool {
	el := p.find(selector)
	if el == nil {
		return false
	}
	if _, ok := el.Attr("disabled"); ok {
		return false
	}
	if aria, _ := el.Attr("aria-disabled"); aria == "true" {
		return false
	}
	return !el.HasClass("disabled") && !el.Parent().HasClass("disabled")
}

func (p *httpPage) Type(ctx context.Context, selector, text string) error {
	if p.find(selector) == nil {
		return fmt.Errorf("%w: %s", types.ErrElementNotFound, selector)
	}
	p.mu.Lock()
	p.typed[selector] = text
	p.mu.Unlock()
	return nil
}

func (p *httpPage) Click(ctx context.Context, selector string) error {
	el := p.find(selector)
	if el == nil {
		return fmt.Errorf("%w: %s", types.ErrElementNotFound, selector)
	}

	if href, ok := el.Attr("href"); ok && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:") {
		target, err := p.resolve(href)
		if err != nil {
			return err
		}
		return p.load(ctx, http.MethodGet, target, nil)
	}

	form := el.Closest("form")
	if goquery.NodeName(el) == "form" {
		form = el
	}
	if form.Length() == 0 {
		return fmt.Errorf("%w: %s", types.ErrNotClickable, selector)
	}
	return p.submit(ctx, form, el)
}

// submit posts form with its current field values, the clicked button, and typed input.
func (p *httpPage) submit(ctx context.Context, form, clicked *goquery.Selection) error {
	values := url.Values{}
	form.Find("input[name], select[name], textarea[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		typ := strings.ToLower(s.AttrOr("type", "text"))
		switch typ {
		case "submit", "button", "image", "reset":
			return
		case "checkbox", "radio":
			if _, checked := s.Attr("checked"); !checked {
				return
			}
		}
		switch goquery.NodeName(s) {
		case "select":
			values.Set(name, s.Find("option[selected]").AttrOr("value", s.Find("option").First().AttrOr("value", "")))
		case "textarea":
			values.Set(name, s.Text())
		default:
			values.Set(name, s.AttrOr("value", ""))
		}
	})
	if name, ok := clicked.Attr("name"); ok && goquery.NodeName(clicked) != "form" {
		values.Set(name, clicked.AttrOr("value", ""))
	}

	p.mu.Lock()
	for selector, text := range p.typed {
		field := p.doc.Find(selector).First()
		if name, ok := field.Attr("name"); ok {
			values.Set(name, text)
		}
	}
	p.mu.Unlock()

	action, err := p.resolve(form.AttrOr("action", ""))
	if err != nil {
		return err
	}
	method := strings.ToUpper(form.AttrOr("method", http.MethodGet))
	if method == http.MethodPost {
		return p.load(ctx, http.MethodPost, action, values)
	}
	u, err := url.Parse(action)
	if err != nil {
		return &types.FetchError{URL: action, Err: types.ErrInvalidURL}
	}
	u.RawQuery = values.Encode()
	return p.load(ctx, http.MethodGet, u.String(), nil)
}

func (p *httpPage) resolve(ref string) (string, error) {
	p.mu.Lock()
	current := p.url
	p.mu.Unlock()
	base, err := url.Parse(current)
	if err != nil {
		return "", &types.FetchError{URL: current, Err: types.ErrInvalidURL}
	}
	target, err := base.Parse(ref)
	if err != nil {
		return "", &types.FetchError{URL: ref, Err: types.ErrInvalidURL}
	}
	return target.String(), nil
}

func (p *httpPage) Activate(ctx context.Context) error { return nil }

func (p *httpPage) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed && p.driver.Alive()
}

func (p *httpPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// decompressReader wraps a reader with the decoder named by Content-Encoding.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// isRetryableError checks if a network error warrants another attempt.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, syscall.ECONNRESET) || errors.Is(opErr.Err, syscall.ECONNREFUSED)
	}
	return false
}

// parseRetryAfter parses a Retry-After header in seconds or HTTP-date form, capped at 2m.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs > 120 {
			secs = 120
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return time.Second
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return 5 * time.Second
}
