package parser

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/pubharvest/internal/types"
)

// Extractor turns listing, profile, detail and graph markup into typed records.
// Missing optional fields never fail extraction; they are left absent.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates a new Extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{
		logger: logger.With("component", "extractor"),
	}
}

// Records extracts one RawRecord per listing row. The error is reserved for markup that
// cannot be parsed at all.
func (e *Extractor) Records(html, pageURL string, spec RecordSpec, source types.Source) ([]types.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &types.ParseError{URL: pageURL, Err: err}
	}
	base, _ := url.Parse(pageURL)

	var records []types.RawRecord
	doc.Find(spec.Row).Each(func(i int, row *goquery.Selection) {
		rec := types.RawRecord{Source: source}
		for _, rule := range spec.Fields {
			if value, ok := extractField(row, rule, base); ok {
				rec.Set(rule.Name, value)
			}
		}
		records = append(records, rec)
	})

	e.logger.Debug("records extracted", "url", pageURL, "rows", len(records))
	return records, nil
}

// extractField applies one rule to a row. ok is false when the field is absent.
func extractField(row *goquery.Selection, rule FieldRule, base *url.URL) (string, bool) {
	sel := row
	if rule.Selector != "" {
		sel = row.Find(rule.Selector)
	}

	if rule.Pattern != nil {
		var (
			value string
			found bool
		)
		sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			m := rule.Pattern.FindStringSubmatch(collapse(s.Text()))
			if len(m) > 1 {
				value, found = m[1], true
				return false
			}
			return true
		})
		return value, found
	}

	if sel.Length() <= rule.Index {
		return "", false
	}
	el := sel.Eq(rule.Index)

	switch rule.Attr {
	case "", "text":
		return collapse(el.Text()), true
	case "href", "src", "data-href":
		v, ok := el.Attr(rule.Attr)
		if !ok {
			return "", false
		}
		return resolveURL(base, v), true
	default:
		v, ok := el.Attr(rule.Attr)
		return strings.TrimSpace(v), ok
	}
}

// collapse trims s and folds internal whitespace runs to single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "javascript:") || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	resolved := base.ResolveReference(u)
	resolved.Fragment = ""
	return resolved.String()
}
