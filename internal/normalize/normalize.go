// Package normalize reconciles raw extracted fields into canonical publications.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/IshaanNene/pubharvest/internal/classify"
	"github.com/IshaanNene/pubharvest/internal/types"
)

// Target is the author a listing belongs to and the source's citation policy.
type Target struct {
	AuthorID   uint
	AuthorName string
	Policy     types.CitationPolicy
}

// Normalizer turns RawRecords into CanonicalPublications.
type Normalizer struct {
	dedupPolicy string
	pageCeiling int
	now         func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock sets the time source used for download timestamps and current-year citations.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithPageCeiling bounds plausible page numbers.
func WithPageCeiling(ceiling int) Option {
	return func(n *Normalizer) { n.pageCeiling = ceiling }
}

// WithDedupPolicy selects title-only or title+category+year publication lookup.
func WithDedupPolicy(policy string) Option {
	return func(n *Normalizer) { n.dedupPolicy = policy }
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		dedupPolicy: types.DedupTitleCategoryYear,
		pageCeiling: DefaultPageCeiling,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize classifies raw and fills the canonical record. Detail-page values already in
// raw take precedence over anything mined from venue text.
func (n *Normalizer) Normalize(raw types.RawRecord, target Target) types.CanonicalPublication {
	now := n.now()
	category, rule := classify.ForRecord(&raw)

	venueText := raw.Venue.Or("")
	journal := raw.Journal.Or("")
	mined := venueText
	if mined == "" {
		mined = journal
	}

	volume, issue := raw.Volume.Or(""), raw.Issue.Or("")
	if volume == "" || issue == "" {
		v, i := ExtractVolumeIssue(mined)
		if volume == "" {
			volume = v
		}
		if issue == "" {
			issue = i
		}
	}
	pages := raw.Pages.Or("")
	if pages == "" {
		pages = ExtractPages(mined, n.pageCeiling)
	}

	year := ParseYear(raw.Year.Or(""))
	if year == 0 {
		year = ParseYear(raw.PublicationDate.Or(""))
	}
	if year == 0 {
		year = ParseYear(venueText)
	}
	citations := ParseCitations(raw.Citations.Or(""))

	pub := types.CanonicalPublication{
		AuthorID:     target.AuthorID,
		Title:        strings.Join(strings.Fields(raw.Title.Or("")), " "),
		Category:     category,
		Rule:         rule,
		Year:         year,
		Citations:    citations,
		Source:       raw.Source,
		DetailURL:    raw.DetailURL.Or(""),
		Authors:      raw.Authors.Or(""),
		AuthorOrder:  AuthorOrder(raw.Authors.Or(""), target.AuthorName, raw.AuthorOrder.Or("")),
		Volume:       volume,
		Issue:        issue,
		Pages:        pages,
		Publisher:    raw.Publisher.Or(""),
		TitleOnly:    n.dedupPolicy == types.DedupTitle,
		DownloadedAt: now,
	}

	switch category {
	case types.CategoryArticle:
		switch {
		case journal != "":
			pub.VenueName = CleanJournalName(journal)
		case venueText != "":
			pub.VenueName = CleanJournalName(venueText)
		}
	case types.CategoryProceedings:
		pub.Conference = raw.Conference.Or(CleanJournalName(venueText))
	case types.CategoryBook:
		if pub.Publisher == "" {
			pub.Publisher = CleanJournalName(venueText)
		}
	}

	pub.CitationsByYear = YearlyCitations(target.Policy, citations, year, raw.CitationsByYear, now.Year())
	return pub
}

// YearlyCitations attributes citation counts to years according to policy. A per-year
// graph that turned up empty falls back to the current year.
func YearlyCitations(policy types.CitationPolicy, total, pubYear int, graph map[int]int, currentYear int) map[int]int {
	out := make(map[int]int)
	switch policy {
	case types.CitationsPerYearGraph:
		if len(graph) > 0 {
			for y, c := range graph {
				out[y] = c
			}
			return out
		}
	case types.CitationsPublicationYear:
		if pubYear > 0 {
			if total > 0 {
				out[pubYear] = total
			}
			return out
		}
	}
	if total > 0 {
		out[currentYear] = total
	}
	return out
}

var (
	explicitOrderRe = regexp.MustCompile(`(?i)(\d+)\s*(?:out\s+of|of|/|dari)\s*(\d+)`)
	authorSplitRe   = regexp.MustCompile(`\s*(?:,|;|\band\b|\bdan\b|&)\s*`)
	yearRe          = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
)

// AuthorOrder returns "k out of N". An explicit order such as "2 of 5" wins. Otherwise
// target is located in the comma-separated author list by case-insensitive substring match
// in either direction. Not found means first author.
func AuthorOrder(authors, target, explicit string) string {
	if m := explicitOrderRe.FindStringSubmatch(explicit); m != nil {
		return m[1] + " out of " + m[2]
	}

	var names []string
	for _, a := range authorSplitRe.Split(authors, -1) {
		a = strings.TrimSpace(a)
		if a == "" || strings.Trim(a, ". …") == "" {
			continue
		}
		names = append(names, strings.ToLower(a))
	}
	total := len(names)
	if total == 0 {
		total = 1
	}

	t := strings.ToLower(strings.Join(strings.Fields(target), " "))
	if t != "" {
		for i, name := range names {
			if strings.Contains(name, t) || strings.Contains(t, name) {
				return strconv.Itoa(i+1) + " out of " + strconv.Itoa(total)
			}
		}
	}
	return "1 out of " + strconv.Itoa(total)
}

// ParseYear returns the first plausible year in s, or 0.
func ParseYear(s string) int {
	m := yearRe.FindString(s)
	if m == "" {
		return 0
	}
	y, _ := strconv.Atoi(m)
	return y
}

// ParseCitations reads a citation count such as "42", "1,070" or "Cited by 17". Blank or
// unreadable values are 0.
func ParseCitations(s string) int {
	var digits strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case (r == ',' || r == '.') && digits.Len() > 0:
		case digits.Len() > 0:
			n, _ := strconv.Atoi(digits.String())
			return n
		}
	}
	n, _ := strconv.Atoi(digits.String())
	return n
}
