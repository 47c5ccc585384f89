package store

import (
	"context"
	"time"

	"github.com/IshaanNene/pubharvest/internal/types"
)

// Satellite carries the category-specific columns of a publication.
// Only the columns relevant to Category are read.
type Satellite struct {
	Category   types.Category
	VenueID    uint
	Volume     string
	Issue      string
	Pages      string
	Conference string
	Publisher  string
	Label      string
	Note       string
}

// RunCounters are the per-run totals written when a run finishes.
type RunCounters struct {
	AuthorsProcessed    int `json:"authors_processed"`
	AuthorsWithErrors   int `json:"authors_with_errors"`
	PublicationsFetched int `json:"publications_fetched"`
	PublicationsCreated int `json:"publications_created"`
	PublicationsUpdated int `json:"publications_updated"`
	PublicationsFailed  int `json:"publications_failed"`
}

// Repository is the persistence boundary. Lookups that miss return types.ErrNotFound.
type Repository interface {
	// Transaction runs fn atomically. fn must use the Repository it is given.
	Transaction(ctx context.Context, fn func(tx Repository) error) error
	Migrate(ctx context.Context) error
	Close() error

	FindOrCreateDepartment(ctx context.Context, name, key string) (uint, error)
	// UpsertAuthor inserts or updates by (external_id, source) and sets a.ID.
	UpsertAuthor(ctx context.Context, a *Author) error
	UpsertAuthorMetric(ctx context.Context, m *AuthorMetric) error
	FindAuthor(ctx context.Context, externalID, source string) (*Author, error)

	FindOrCreateVenue(ctx context.Context, name, key string) (uint, error)
	FindPublication(ctx context.Context, titleHash string, category types.Category, year int, titleOnly bool) (*Publication, error)
	CreatePublication(ctx context.Context, p *Publication) error
	// RaiseCitations sets citation_count to count only when count is larger.
	RaiseCitations(ctx context.Context, publicationID uint, count int) (bool, error)
	// SaveSatellite inserts the satellite or fills its non-blank columns.
	SaveSatellite(ctx context.Context, publicationID uint, sat Satellite) error
	// LinkAuthor inserts the link unless it exists and reports whether it inserted.
	LinkAuthor(ctx context.Context, link *AuthorPublication) (bool, error)
	UpsertYearlyCitation(ctx context.Context, yc *YearlyCitation) error

	AddRoster(ctx context.Context, row *RosterRow) error
	// ListRoster returns entries for source (all sources when empty) in consumption order.
	ListRoster(ctx context.Context, source string, includeCompleted bool) ([]RosterRow, error)
	UpdateRosterStatus(ctx context.Context, id uint, status types.RosterStatus, errMsg *string) error

	CreateRun(ctx context.Context, run *ScrapeRun) error
	FinishRun(ctx context.Context, runKey, status string, counters RunCounters, errMsg *string, finishedAt time.Time) error
	GetRun(ctx context.Context, runKey string) (*ScrapeRun, error)
	ListRuns(ctx context.Context, limit int) ([]ScrapeRun, error)
}

// satelliteColumns returns the non-blank columns of sat for its category.
func satelliteColumns(sat Satellite) map[string]any {
	cols := make(map[string]any)
	put := func(name, v string) {
		if v != "" {
			cols[name] = v
		}
	}
	switch sat.Category {
	case types.CategoryArticle:
		if sat.VenueID != 0 {
			cols["venue_id"] = sat.VenueID
		}
		put("volume", sat.Volume)
		put("issue", sat.Issue)
		put("pages", sat.Pages)
	case types.CategoryProceedings:
		put("conference", sat.Conference)
		put("publisher", sat.Publisher)
	case types.CategoryBook:
		put("publisher", sat.Publisher)
	case types.CategoryResearchReport:
		put("label", sat.Label)
	default:
		put("note", sat.Note)
	}
	return cols
}
