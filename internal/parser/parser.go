package parser

import "regexp"

// FieldRule extracts one field from a listing row.
type FieldRule struct {
	// Name is a types.Field* name.
	Name string
	// Selector is relative to the row. Empty means the row itself.
	Selector string
	// Attr reads an attribute instead of the text. href values are resolved.
	Attr string
	// Index picks the n-th match of Selector.
	Index int
	// Pattern, when set, scans every match and keeps the first capture of the first hit.
	Pattern *regexp.Regexp
}

// RecordSpec describes listing rows.
type RecordSpec struct {
	Row    string
	Fields []FieldRule
}

// DetailSpec describes a label/value detail panel.
type DetailSpec struct {
	// Marker is the element awaited before extraction.
	Marker     string
	LabelXPath string
	ValueXPath string
	// Routes maps lower-cased labels to record field names. Unrouted labels go to Extra.
	Routes map[string]string
}

// GraphSpec describes a bar chart of citations per year.
type GraphSpec struct {
	Marker string
	// BarXPath selects bar elements; each carries a left offset in its style and a count.
	BarXPath string
	// BarCountXPath is evaluated relative to a bar. Empty means the bar's own text.
	BarCountXPath string
	// LabelXPath selects axis labels carrying a left offset and a year.
	LabelXPath string
}

// ProfileSpec describes the author header of a listing.
type ProfileSpec struct {
	Name        string
	Affiliation string
	Department  string

	// MetricCells selects a flat list of numbers named in order by CellLayout.
	// Empty layout entries are skipped.
	MetricCells string
	CellLayout  []string

	// MetricRows selects table rows whose first cell is a label routed by RowLabels,
	// read from column MetricColumn (1-based, after the label).
	MetricRows   string
	MetricColumn int
	RowLabels    map[string]string
}

// Metric names used by profile layouts.
const (
	MetricCitations      = "citations"
	MetricCitationsSince = "citations_since"
	MetricHIndex         = "h_index"
	MetricHIndexSince    = "h_index_since"
	MetricI10Index       = "i10_index"
	MetricI10IndexSince  = "i10_index_since"
	MetricGIndex         = "g_index"
	MetricGIndexSince    = "g_index_since"
)
