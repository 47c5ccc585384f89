package parser

import (
	"strings"

	"github.com/antchfx/htmlquery"

	"github.com/IshaanNene/pubharvest/internal/types"
)

// Pair is one label/value entry of a detail panel.
type Pair struct {
	Label string
	Value string
}

// Detail pairs the i-th label with the i-th value. The panel has no per-field identifiers,
// so pairing is positional; extra labels or values are dropped.
func (e *Extractor) Detail(html string, spec DetailSpec) ([]Pair, error) {
	doc, err := htmlquery.Parse(strings.NewReader(html))
	if err != nil {
		return nil, &types.ParseError{Selector: spec.LabelXPath, Err: err}
	}

	labels, err := htmlquery.QueryAll(doc, spec.LabelXPath)
	if err != nil {
		return nil, &types.ParseError{Selector: spec.LabelXPath, Err: err}
	}
	values, err := htmlquery.QueryAll(doc, spec.ValueXPath)
	if err != nil {
		return nil, &types.ParseError{Selector: spec.ValueXPath, Err: err}
	}
	if len(labels) != len(values) {
		e.logger.Debug("detail panel label/value count mismatch", "labels", len(labels), "values", len(values))
	}

	n := min(len(labels), len(values))
	pairs := make([]Pair, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, Pair{
			Label: collapse(htmlquery.InnerText(labels[i])),
			Value: collapse(htmlquery.InnerText(values[i])),
		})
	}
	return pairs, nil
}

// ApplyDetail merges detail pairs into rec. Routed labels overwrite listing values when
// non-blank; unrouted labels land in rec.Extra.
func ApplyDetail(rec *types.RawRecord, pairs []Pair, routes map[string]string) {
	for _, p := range pairs {
		label := strings.ToLower(strings.TrimSpace(p.Label))
		if label == "" {
			continue
		}
		name, ok := routes[label]
		if !ok {
			name = label
		}
		if name == "" {
			continue
		}
		rec.Merge(name, p.Value)
	}
}
