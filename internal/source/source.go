// Package source holds the per-site adapters that parameterize the shared pipeline:
// listing URLs, selectors, login steps and the citation policy of each source.
package source

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/IshaanNene/pubharvest/internal/fetcher"
	"github.com/IshaanNene/pubharvest/internal/parser"
	"github.com/IshaanNene/pubharvest/internal/session"
	"github.com/IshaanNene/pubharvest/internal/types"
)

// Default site roots.
const (
	DefaultScholarURL = "https://scholar.google.com"
	DefaultSintaURL   = "https://sinta.kemdikbud.go.id"
)

// PagingStyle says how a listing advances.
type PagingStyle int

const (
	// PagedURL builds each page's URL from a template.
	PagedURL PagingStyle = iota
	// PagedClick clicks a "next" control until it is disabled or gone.
	PagedClick
	// LoadMore clicks a "show more" control until it is disabled, yielding one page.
	LoadMore
)

func (s PagingStyle) String() string {
	switch s {
	case PagedURL:
		return "paged_url"
	case PagedClick:
		return "paged_click"
	case LoadMore:
		return "load_more"
	}
	return "unknown"
}

// ListingSpec describes how to move through an author's publication listing.
type ListingSpec struct {
	// Container must appear before a listing page counts as loaded.
	Container string
	Style     PagingStyle

	NextSelector string
	MoreSelector string

	// TotalSelector and TotalPattern read the page count ("Page 1 of 12"). The pattern's
	// last capture group is the total.
	TotalSelector string
	TotalPattern  *regexp.Regexp
}

// Adapter supplies everything source-specific to the shared pipeline.
type Adapter interface {
	Source() types.Source

	// AccountKey selects the credential list in session.accounts.
	AccountKey() string

	// ExternalID derives the author's id at the source from a profile URL.
	ExternalID(profileURL string) string

	// ListingURL returns the URL of the 1-based page of an author's listing.
	ListingURL(profileURL string, page int) string

	Listing() ListingSpec
	Records() parser.RecordSpec
	Profile() parser.ProfileSpec

	// Detail describes the per-publication detail panel, when the source has one.
	Detail() (parser.DetailSpec, bool)
	// Graph describes the per-publication citation graph, when the source has one.
	Graph() (parser.GraphSpec, bool)

	// Login describes the login form. Sources without login only set URL.
	Login() session.LoginSpec
	Authenticator(pacer *fetcher.Pacer, timeout time.Duration, logger *slog.Logger) session.Authenticator

	CitationPolicy() types.CitationPolicy
}

// New returns the adapter for src rooted at baseURL. An empty baseURL uses the public site.
func New(src types.Source, baseURL string) (Adapter, error) {
	switch src {
	case types.SourceScholar:
		if baseURL == "" {
			baseURL = DefaultScholarURL
		}
		return NewScholar(baseURL), nil
	case types.SourceSintaScholar:
		return newSinta(src, viewGoogleScholar, baseURL), nil
	case types.SourceSintaScopus:
		return newSinta(src, viewScopus, baseURL), nil
	case types.SourceSintaGaruda:
		return newSinta(src, viewGaruda, baseURL), nil
	}
	return nil, fmt.Errorf("%w: %q", types.ErrUnknownSource, src)
}
