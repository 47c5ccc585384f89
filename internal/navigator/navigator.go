// Package navigator moves a session through an author's publication listing and its
// per-publication detail pages.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/pubharvest/internal/config"
	"github.com/IshaanNene/pubharvest/internal/fetcher"
	"github.com/IshaanNene/pubharvest/internal/session"
	"github.com/IshaanNene/pubharvest/internal/source"
	"github.com/IshaanNene/pubharvest/internal/types"
)

// Listing is one loaded page of an author's listing.
type Listing struct {
	Entry types.RosterEntry
	// Page is 1-based.
	Page int
	// Total is the page count read from the pagination text; 0 when unknown.
	Total int
	URL   string
	HTML  string

	adapter   source.Adapter
	spec      source.ListingSpec
	page      fetcher.Page
	urlPaging bool
}

// Navigator drives listing and detail navigation with bounded waits.
type Navigator struct {
	cfg      config.NavigatorConfig
	maxPages int
	pacer    *fetcher.Pacer
	logger   *slog.Logger
}

// New creates a Navigator. maxPages caps the pages read per author; 0 means no cap.
func New(cfg config.NavigatorConfig, maxPages int, pacer *fetcher.Pacer, logger *slog.Logger) *Navigator {
	return &Navigator{
		cfg:      cfg,
		maxPages: maxPages,
		pacer:    pacer,
		logger:   logger.With("component", "navigator"),
	}
}

// Open loads the first listing page of entry on the session's primary page. A challenge
// fails with types.ErrChallengeDetected; a missing listing container fails with a
// *types.NavigationError. Load-more listings are fully expanded before returning.
func (n *Navigator) Open(ctx context.Context, sess *session.Session, adapter source.Adapter, entry types.RosterEntry) (*Listing, error) {
	if !sess.Alive() {
		return nil, types.ErrSessionDied
	}
	l := &Listing{
		Entry:     entry,
		Page:      1,
		adapter:   adapter,
		spec:      adapter.Listing(),
		page:      sess.Page,
		urlPaging: adapter.Listing().Style == source.PagedURL,
	}

	target := adapter.ListingURL(entry.ProfileURL, 1)
	if err := n.navigate(ctx, l.page, target, "open"); err != nil {
		return nil, err
	}
	if err := n.settle(ctx, l, "open"); err != nil {
		return nil, err
	}

	if l.spec.Style == source.LoadMore {
		if err := n.loadAll(ctx, l); err != nil {
			return nil, err
		}
	}
	l.Total = pageTotal(l.HTML, l.spec)

	n.logger.Debug("listing opened",
		"author", entry.Name,
		"url", l.URL,
		"total_pages", l.Total,
		"url_paging", l.urlPaging,
	)
	return l, nil
}

// Next advances to the following page. It returns nil, nil when the listing is exhausted.
func (n *Navigator) Next(ctx context.Context, l *Listing) (*Listing, error) {
	if l == nil {
		return nil, nil
	}
	if n.maxPages > 0 && l.Page >= n.maxPages {
		n.logger.Debug("page cap reached", "author", l.Entry.Name, "page", l.Page)
		return nil, nil
	}
	if l.Total > 0 && l.Page >= l.Total {
		return nil, nil
	}

	next := *l
	next.Page = l.Page + 1

	switch {
	case l.urlPaging:
		target := l.adapter.ListingURL(l.Entry.ProfileURL, next.Page)
		if err := n.navigate(ctx, l.page, target, "next"); err != nil {
			return nil, err
		}
		html, err := n.read(ctx, l.page, "next")
		if err != nil {
			return nil, err
		}
		if !l.page.Has(ctx, l.adapter.Records().Row) {
			return nil, nil
		}
		next.HTML = html

	case l.spec.Style == source.PagedClick:
		sel := l.spec.NextSelector
		if sel == "" || !l.page.Has(ctx, sel) || !l.page.Enabled(ctx, sel) {
			return nil, nil
		}
		if err := l.page.Click(ctx, sel); err != nil {
			if !l.page.Alive() {
				return nil, fmt.Errorf("%w: next click: %v", types.ErrSessionDied, err)
			}
			n.logger.Warn("next click failed, ending listing", "author", l.Entry.Name, "error", err)
			return nil, nil
		}
		if err := n.pacer.Step(ctx); err != nil {
			return nil, err
		}
		if err := n.settle(ctx, &next, "next"); err != nil {
			return nil, err
		}

	default:
		return nil, nil
	}

	next.URL = l.page.URL()
	if next.HTML == l.HTML {
		n.logger.Debug("page did not change, ending listing", "author", l.Entry.Name, "page", next.Page)
		return nil, nil
	}
	return &next, nil
}

// WithDetail opens url in a secondary tab, waits up to the detail timeout for marker and
// runs fn with the tab and its markup. A missing marker hands fn the partial page. On
// every exit path the tab is closed and the primary page re-activated; restore failures
// are logged, not returned.
func (n *Navigator) WithDetail(ctx context.Context, sess *session.Session, url, marker string, fn func(page fetcher.Page, html string) error) error {
	if !sess.Alive() {
		return types.ErrSessionDied
	}

	tab, err := sess.Driver.NewPage(ctx)
	if err != nil {
		n.restore(ctx, sess)
		if !sess.Alive() {
			return fmt.Errorf("%w: open tab: %v", types.ErrSessionDied, err)
		}
		return fmt.Errorf("open detail tab: %w", err)
	}
	defer func() {
		if err := tab.Close(); err != nil {
			n.logger.Warn("failed to close detail tab", "url", url, "error", err)
		}
		n.restore(ctx, sess)
	}()

	if err := n.navigate(ctx, tab, url, "detail"); err != nil {
		if !sess.Alive() {
			return fmt.Errorf("%w: %v", types.ErrSessionDied, err)
		}
		return err
	}
	html, err := n.read(ctx, tab, "detail")
	if err != nil {
		return err
	}

	if marker != "" {
		if err := tab.WaitFor(ctx, marker, n.cfg.DetailTimeout); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.logger.Debug("detail marker missing, using partial page", "url", url, "marker", marker)
		} else if fresh, err := tab.HTML(ctx); err == nil {
			html = fresh
		}
	}

	return fn(tab, html)
}

// WaitOptional waits up to timeout for selector on page and reports whether it appeared.
// Timeouts are not errors; only a cancelled context is.
func (n *Navigator) WaitOptional(ctx context.Context, page fetcher.Page, selector string, timeout time.Duration) (bool, error) {
	if err := page.WaitFor(ctx, selector, timeout); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return true, nil
}

func (n *Navigator) restore(ctx context.Context, sess *session.Session) {
	if sess.Page == nil || !sess.Page.Alive() {
		n.logger.Warn("primary page is gone, cannot re-activate")
		return
	}
	if err := sess.Page.Activate(ctx); err != nil {
		n.logger.Warn("failed to re-activate primary page", "error", err)
	}
}

func (n *Navigator) navigate(ctx context.Context, page fetcher.Page, target, step string) error {
	if err := page.Navigate(ctx, target); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !page.Alive() {
			return fmt.Errorf("%w: %s: %v", types.ErrSessionDied, step, err)
		}
		return &types.NavigationError{Step: step, URL: target, Err: err}
	}
	return n.pacer.Step(ctx)
}

// read returns the page markup, failing when it shows a challenge.
func (n *Navigator) read(ctx context.Context, page fetcher.Page, step string) (string, error) {
	html, err := page.HTML(ctx)
	if err != nil {
		return "", &types.NavigationError{Step: step, URL: page.URL(), Err: err}
	}
	if ch, ok := fetcher.DetectChallenge(html); ok {
		n.logger.Warn("challenge detected", "step", step, "url", page.URL(), "kind", ch.Kind)
		return "", fmt.Errorf("%w: %s at %s", types.ErrChallengeDetected, ch.Kind, page.URL())
	}
	return html, nil
}

// settle checks for a challenge, waits for the listing container and refreshes l.
func (n *Navigator) settle(ctx context.Context, l *Listing, step string) error {
	if _, err := n.read(ctx, l.page, step); err != nil {
		return err
	}
	if err := l.page.WaitFor(ctx, l.spec.Container, n.cfg.WaitTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &types.NavigationError{Step: step, URL: l.page.URL(), Selector: l.spec.Container, Err: err}
	}
	html, err := n.read(ctx, l.page, step)
	if err != nil {
		return err
	}
	l.HTML = html
	l.URL = l.page.URL()
	return nil
}

// loadAll clicks the "show more" control until it is disabled. A control that cannot be
// clicked (a plain HTTP page) switches the listing to URL paging.
func (n *Navigator) loadAll(ctx context.Context, l *Listing) error {
	sel := l.spec.MoreSelector
	for i := 0; i < n.cfg.MaxLoadMore; i++ {
		if !l.page.Has(ctx, sel) || !l.page.Enabled(ctx, sel) {
			return nil
		}
		if err := l.page.Click(ctx, sel); err != nil {
			if errors.Is(err, types.ErrNotClickable) {
				l.urlPaging = true
				return nil
			}
			if !l.page.Alive() {
				return fmt.Errorf("%w: load more: %v", types.ErrSessionDied, err)
			}
			n.logger.Warn("load more failed, keeping rows loaded so far", "author", l.Entry.Name, "error", err)
			return nil
		}
		if err := n.pacer.Step(ctx); err != nil {
			return err
		}
		html, err := n.read(ctx, l.page, "load_more")
		if err != nil {
			return err
		}
		if html == l.HTML {
			return nil
		}
		l.HTML = html
	}
	n.logger.Warn("load more cap reached", "author", l.Entry.Name, "clicks", n.cfg.MaxLoadMore)
	return nil
}

// pageTotal reads the page count from the pagination text. 0 means unknown.
func pageTotal(html string, spec source.ListingSpec) int {
	if spec.TotalPattern == nil {
		return 0
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}
	var texts []string
	if spec.TotalSelector != "" {
		doc.Find(spec.TotalSelector).Each(func(_ int, s *goquery.Selection) {
			texts = append(texts, s.Text())
		})
	} else {
		texts = append(texts, doc.Text())
	}
	for _, text := range texts {
		m := spec.TotalPattern.FindStringSubmatch(strings.Join(strings.Fields(text), " "))
		if len(m) < 2 {
			continue
		}
		if total, err := strconv.Atoi(m[len(m)-1]); err == nil && total > 0 {
			return total
		}
	}
	return 0
}
