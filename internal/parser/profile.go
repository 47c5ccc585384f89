package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/pubharvest/internal/types"
)

// Profile extracts the author header of a listing page. ExternalID and ProfileURL are
// left to the caller.
func (e *Extractor) Profile(html, pageURL string, spec ProfileSpec) (types.AuthorProfile, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return types.AuthorProfile{}, &types.ParseError{URL: pageURL, Err: err}
	}

	p := types.AuthorProfile{
		Name:        firstText(doc, spec.Name),
		Affiliation: firstText(doc, spec.Affiliation),
		Department:  firstText(doc, spec.Department),
	}

	if spec.MetricCells != "" {
		cells := doc.Find(spec.MetricCells)
		for i, name := range spec.CellLayout {
			if name == "" || i >= cells.Length() {
				continue
			}
			if n, ok := parseCount(cells.Eq(i).Text()); ok {
				setMetric(&p.Metrics, name, n)
				p.HasMetrics = true
			}
		}
	}

	if spec.MetricRows != "" {
		doc.Find(spec.MetricRows).Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td, th")
			if cells.Length() <= spec.MetricColumn {
				return
			}
			name := spec.RowLabels[strings.ToLower(collapse(cells.First().Text()))]
			if name == "" {
				return
			}
			if n, ok := parseCount(cells.Eq(spec.MetricColumn).Text()); ok {
				setMetric(&p.Metrics, name, n)
				p.HasMetrics = true
			}
		})
	}

	if p.Name == "" {
		e.logger.Debug("profile name not found", "url", pageURL, "selector", spec.Name)
	}
	return p, nil
}

func firstText(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	return collapse(doc.Find(selector).First().Text())
}

func setMetric(m *types.AuthorMetrics, name string, v int) {
	switch name {
	case MetricCitations:
		m.Citations = v
	case MetricCitationsSince:
		m.CitationsSince = v
	case MetricHIndex:
		m.HIndex = v
	case MetricHIndexSince:
		m.HIndexSince = v
	case MetricI10Index:
		m.I10Index = v
	case MetricI10IndexSince:
		m.I10IndexSince = v
	case MetricGIndex:
		m.GIndex = v
	case MetricGIndexSince:
		m.GIndexSince = v
	}
}
