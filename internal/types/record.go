package types

import (
	"sort"
	"strings"
	"time"
)

// Source identifies one external system and view the pipeline harvests from.
type Source string

const (
	SourceScholar      Source = "scholar"
	SourceSintaScholar Source = "sinta-scholar"
	SourceSintaScopus  Source = "sinta-scopus"
	SourceSintaGaruda  Source = "sinta-garuda"
)

// Sources lists every supported source in a stable order.
func Sources() []Source {
	return []Source{SourceScholar, SourceSintaScholar, SourceSintaScopus, SourceSintaGaruda}
}

// ParseSource maps a user-supplied name to a Source.
func ParseSource(s string) (Source, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, src := range Sources() {
		if string(src) == s {
			return src, nil
		}
	}
	return "", ErrUnknownSource
}

// Category is the fixed publication classification.
type Category string

const (
	CategoryArticle        Category = "article"
	CategoryProceedings    Category = "proceedings"
	CategoryBook           Category = "book"
	CategoryResearchReport Category = "research-report"
	CategoryOther          Category = "other"
)

// Categories lists every category.
func Categories() []Category {
	return []Category{CategoryArticle, CategoryProceedings, CategoryBook, CategoryResearchReport, CategoryOther}
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	for _, v := range Categories() {
		if v == c {
			return true
		}
	}
	return false
}

// Record field names used by selectors and detail-panel routing.
const (
	FieldTitle           = "title"
	FieldAuthors         = "authors"
	FieldVenue           = "venue"
	FieldPublisher       = "publisher"
	FieldJournal         = "journal"
	FieldConference      = "conference"
	FieldYear            = "year"
	FieldCitations       = "citations"
	FieldDetailURL       = "detail_url"
	FieldVolume          = "volume"
	FieldIssue           = "issue"
	FieldPages           = "pages"
	FieldAuthorOrder     = "author_order"
	FieldPublicationDate = "publication_date"
	FieldDescription     = "description"
	FieldQuartile        = "quartile"
)

// RawRecord is one publication as extracted from listing and detail markup.
type RawRecord struct {
	Title           Field `json:"title"`
	Authors         Field `json:"authors"`
	Venue           Field `json:"venue"`
	Publisher       Field `json:"publisher"`
	Journal         Field `json:"journal"`
	Conference      Field `json:"conference"`
	Year            Field `json:"year"`
	Citations       Field `json:"citations"`
	DetailURL       Field `json:"detail_url"`
	Volume          Field `json:"volume"`
	Issue           Field `json:"issue"`
	Pages           Field `json:"pages"`
	AuthorOrder     Field `json:"author_order"`
	PublicationDate Field `json:"publication_date"`
	Description     Field `json:"description"`
	Quartile        Field `json:"quartile"`

	// CitationsByYear is filled from a citation graph when the source has one.
	CitationsByYear map[int]int `json:"citations_by_year,omitempty"`

	// Extra keeps fields that have no named slot.
	Extra map[string]Field `json:"extra,omitempty"`

	Source Source `json:"source"`
}

// slot returns a pointer to the named field, or nil for unknown names.
func (r *RawRecord) slot(name string) *Field {
	switch name {
	case FieldTitle:
		return &r.Title
	case FieldAuthors:
		return &r.Authors
	case FieldVenue:
		return &r.Venue
	case FieldPublisher:
		return &r.Publisher
	case FieldJournal:
		return &r.Journal
	case FieldConference:
		return &r.Conference
	case FieldYear:
		return &r.Year
	case FieldCitations:
		return &r.Citations
	case FieldDetailURL:
		return &r.DetailURL
	case FieldVolume:
		return &r.Volume
	case FieldIssue:
		return &r.Issue
	case FieldPages:
		return &r.Pages
	case FieldAuthorOrder:
		return &r.AuthorOrder
	case FieldPublicationDate:
		return &r.PublicationDate
	case FieldDescription:
		return &r.Description
	case FieldQuartile:
		return &r.Quartile
	}
	return nil
}

// Set stores a present value under name.
func (r *RawRecord) Set(name, value string) {
	value = strings.TrimSpace(value)
	if f := r.slot(name); f != nil {
		*f = Text(value)
		return
	}
	if r.Extra == nil {
		r.Extra = make(map[string]Field)
	}
	r.Extra[name] = Text(value)
}

// Get returns the named field, absent when unknown.
func (r *RawRecord) Get(name string) Field {
	if f := r.slot(name); f != nil {
		return *f
	}
	return r.Extra[name]
}

// Merge overwrites the named field when value is non-blank. Detail-page values go through
// Merge so they take precedence over listing values.
func (r *RawRecord) Merge(name, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	r.Set(name, value)
}

// Names returns every named field followed by the Extra keys in sorted order.
func (r *RawRecord) Names() []string {
	names := []string{
		FieldTitle, FieldAuthors, FieldVenue, FieldPublisher, FieldJournal, FieldConference,
		FieldYear, FieldCitations, FieldDetailURL, FieldVolume, FieldIssue, FieldPages,
		FieldAuthorOrder, FieldPublicationDate, FieldDescription, FieldQuartile,
	}
	extra := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// Clear marks the named field absent.
func (r *RawRecord) Clear(name string) {
	if f := r.slot(name); f != nil {
		*f = Absent()
		return
	}
	delete(r.Extra, name)
}

// Key returns a stable in-run identity: the detail URL when present, else the lowered title.
func (r *RawRecord) Key() string {
	if r.DetailURL.Has() {
		return r.DetailURL.Value
	}
	return strings.ToLower(strings.Join(strings.Fields(r.Title.Value), " "))
}

// CanonicalPublication is a normalized record ready for persistence.
type CanonicalPublication struct {
	AuthorID    uint
	Title       string
	Category    Category
	Rule        string
	Year        int
	Citations   int
	Source      Source
	DetailURL   string
	Authors     string
	AuthorOrder string

	VenueName  string
	Volume     string
	Issue      string
	Pages      string
	Conference string
	Publisher  string

	// CitationsByYear holds the yearly citation facts to upsert.
	CitationsByYear map[int]int

	// TitleOnly selects the title-only dedup lookup instead of title+category+year.
	TitleOnly bool

	DownloadedAt time.Time
}

// AuthorMetrics holds the aggregate counters shown on a profile.
type AuthorMetrics struct {
	Citations      int `json:"citations"`
	HIndex         int `json:"h_index"`
	I10Index       int `json:"i10_index"`
	GIndex         int `json:"g_index"`
	CitationsSince int `json:"citations_since"`
	HIndexSince    int `json:"h_index_since"`
	I10IndexSince  int `json:"i10_index_since"`
	GIndexSince    int `json:"g_index_since"`
}

// AuthorProfile is the profile header of one listing.
type AuthorProfile struct {
	ExternalID  string        `json:"external_id"`
	Name        string        `json:"name"`
	Affiliation string        `json:"affiliation"`
	Department  string        `json:"department"`
	ProfileURL  string        `json:"profile_url"`
	Metrics     AuthorMetrics `json:"metrics"`
	HasMetrics  bool          `json:"has_metrics"`
}

// CitationPolicy says which year a source's citation counts are attributed to.
type CitationPolicy string

const (
	// CitationsPerYearGraph reads a per-year breakdown from the detail page graph.
	CitationsPerYearGraph CitationPolicy = "per_year_graph"
	// CitationsCurrentYear files the cumulative count under the scrape year.
	CitationsCurrentYear CitationPolicy = "current_year"
	// CitationsPublicationYear files the cumulative count under the publication year.
	CitationsPublicationYear CitationPolicy = "publication_year"
)

// Dedup policies for publication lookup.
const (
	DedupTitleCategoryYear = "title_category_year"
	DedupTitle             = "title"
)
