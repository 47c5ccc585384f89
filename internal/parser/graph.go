package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/pubharvest/internal/types"
)

// Bar is one bar of a citation graph.
type Bar struct {
	Offset float64
	Count  int
}

// AxisLabel is one year label on the graph axis.
type AxisLabel struct {
	Offset float64
	Year   int
}

var leftOffsetRe = regexp.MustCompile(`(?i)left\s*:\s*(-?\d+(?:\.\d+)?)\s*px`)

// ParseOffset reads the left pixel offset from an inline style.
func ParseOffset(style string) (float64, bool) {
	m := leftOffsetRe.FindStringSubmatch(style)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Graph reads a citations-per-year bar chart. Bars and labels without an offset are skipped.
func (e *Extractor) Graph(page string, spec GraphSpec, minYear, maxYear int) (map[int]int, error) {
	doc, err := htmlquery.Parse(strings.NewReader(page))
	if err != nil {
		return nil, &types.ParseError{Selector: spec.BarXPath, Err: err}
	}

	barNodes, err := htmlquery.QueryAll(doc, spec.BarXPath)
	if err != nil {
		return nil, &types.ParseError{Selector: spec.BarXPath, Err: err}
	}
	labelNodes, err := htmlquery.QueryAll(doc, spec.LabelXPath)
	if err != nil {
		return nil, &types.ParseError{Selector: spec.LabelXPath, Err: err}
	}

	bars := make([]Bar, 0, len(barNodes))
	for _, n := range barNodes {
		offset, ok := nodeOffset(n)
		if !ok {
			continue
		}
		text := htmlquery.InnerText(n)
		if spec.BarCountXPath != "" {
			c, err := htmlquery.Query(n, spec.BarCountXPath)
			if err != nil || c == nil {
				continue
			}
			text = htmlquery.InnerText(c)
		}
		count, ok := parseCount(text)
		if !ok {
			continue
		}
		bars = append(bars, Bar{Offset: offset, Count: count})
	}

	labels := make([]AxisLabel, 0, len(labelNodes))
	for _, n := range labelNodes {
		offset, ok := nodeOffset(n)
		if !ok {
			continue
		}
		year, err := strconv.Atoi(strings.TrimSpace(htmlquery.InnerText(n)))
		if err != nil {
			continue
		}
		labels = append(labels, AxisLabel{Offset: offset, Year: year})
	}

	return PairBarsToYears(bars, labels, minYear, maxYear), nil
}

// nodeOffset reads the left offset of n, falling back to the nearest ancestor that has
// one. Some graphs position a wrapper and put the text in a child.
func nodeOffset(n *html.Node) (float64, bool) {
	for ; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if offset, ok := ParseOffset(htmlquery.SelectAttr(n, "style")); ok {
			return offset, true
		}
	}
	return 0, false
}

// PairBarsToYears assigns each bar to the axis label with the nearest offset. Ties go to
// the label that comes first. A bar whose label falls outside [minYear, maxYear] is
// dropped as noise. When two bars land on the same year the larger count wins.
func PairBarsToYears(bars []Bar, labels []AxisLabel, minYear, maxYear int) map[int]int {
	out := make(map[int]int)
	if len(labels) == 0 {
		return out
	}
	for _, b := range bars {
		best, bestDist := -1, math.Inf(1)
		for i, l := range labels {
			if d := math.Abs(b.Offset - l.Offset); d < bestDist {
				best, bestDist = i, d
			}
		}
		year := labels[best].Year
		if year < minYear || year > maxYear {
			continue
		}
		if c, ok := out[year]; !ok || b.Count > c {
			out[year] = b.Count
		}
	}
	return out
}

// parseCount reads the first integer in s, skipping thousands separators.
func parseCount(s string) (int, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if (r == ',' || r == '.') && b.Len() > 0 {
			continue
		}
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, false
	}
	return n, true
}
