package parser

import (
	"log/slog"
	"os"
	"regexp"
	"testing"

	"github.com/IshaanNene/pubharvest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const listingHTML = `<!DOCTYPE html>
<html><body>
<div id="gsc_prf_in">Budi Santoso</div>
<div class="gsc_prf_il">Universitas Contoh</div>
<div class="gsc_prf_il">Teknik Informatika</div>
<table id="gsc_rsb_st"><tbody>
<tr><td>Citations</td><td class="gsc_rsb_std">1,234</td><td class="gsc_rsb_std">567</td></tr>
<tr><td>h-index</td><td class="gsc_rsb_std">15</td><td class="gsc_rsb_std">10</td></tr>
<tr><td>i10-index</td><td class="gsc_rsb_std">20</td><td class="gsc_rsb_std">12</td></tr>
</tbody></table>
<table id="gsc_a_t"><tbody id="gsc_a_b">
<tr class="gsc_a_tr">
  <td><a class="gsc_a_at" href="/citations?view_op=view_citation&amp;citation_for_view=X:1">Deep   Learning for Rice</a>
      <div class="gs_gray">B Santoso, A Wijaya</div>
      <div class="gs_gray">Journal of Testing 9 (1), 2939-2952, 2025</div></td>
  <td class="gsc_a_c"><a class="gsc_a_ac">42</a></td>
  <td class="gsc_a_y"><span class="gsc_a_h">2025</span></td>
</tr>
<tr class="gsc_a_tr">
  <td><a class="gsc_a_at" href="/citations?view_op=view_citation&amp;citation_for_view=X:2">Untitled Draft</a>
      <div class="gs_gray">B Santoso</div></td>
  <td class="gsc_a_c"><a class="gsc_a_ac"></a></td>
  <td class="gsc_a_y"><span class="gsc_a_h"></span></td>
</tr>
</tbody></table>
</body></html>`

func listingSpec() RecordSpec {
	return RecordSpec{
		Row: "tr.gsc_a_tr",
		Fields: []FieldRule{
			{Name: types.FieldTitle, Selector: "a.gsc_a_at"},
			{Name: types.FieldDetailURL, Selector: "a.gsc_a_at", Attr: "href"},
			{Name: types.FieldAuthors, Selector: ".gs_gray", Index: 0},
			{Name: types.FieldVenue, Selector: ".gs_gray", Index: 1},
			{Name: types.FieldCitations, Selector: "a.gsc_a_ac"},
			{Name: types.FieldYear, Selector: ".gsc_a_y span"},
		},
	}
}

// --- Records Tests ---

func TestRecordsExtraction(t *testing.T) {
	e := NewExtractor(testLogger)
	recs, err := e.Records(listingHTML, "https://scholar.google.com/citations?user=X", listingSpec(), types.SourceScholar)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}

	r := recs[0]
	if r.Title.Value != "Deep Learning for Rice" {
		t.Errorf("title not collapsed: %q", r.Title.Value)
	}
	if r.DetailURL.Value != "https://scholar.google.com/citations?view_op=view_citation&citation_for_view=X:1" {
		t.Errorf("detail URL not resolved: %q", r.DetailURL.Value)
	}
	if r.Venue.Value != "Journal of Testing 9 (1), 2939-2952, 2025" {
		t.Errorf("unexpected venue %q", r.Venue.Value)
	}
	if r.Citations.Value != "42" || r.Year.Value != "2025" {
		t.Errorf("unexpected citations/year %q/%q", r.Citations.Value, r.Year.Value)
	}
	if r.Source != types.SourceScholar {
		t.Errorf("source not set: %q", r.Source)
	}
}

func TestRecordsAbsentVersusBlank(t *testing.T) {
	e := NewExtractor(testLogger)
	recs, _ := e.Records(listingHTML, "https://scholar.google.com/", listingSpec(), types.SourceScholar)
	r := recs[1]

	// second gs_gray div does not exist: absent
	if r.Venue.Present {
		t.Errorf("venue should be absent, got %+v", r.Venue)
	}
	if r.Venue.String() != "N/A" {
		t.Errorf("absent field should print N/A, got %q", r.Venue.String())
	}
	// citation anchor exists but is empty: present and blank
	if !r.Citations.Present || r.Citations.Has() {
		t.Errorf("citations should be present but blank, got %+v", r.Citations)
	}
}

func TestRecordsPatternRule(t *testing.T) {
	html := `<div class="ar-list-item">
<div class="ar-title"><a href="https://doi.org/10.1/x">A Study</a></div>
<div class="ar-meta"><a>Q2</a><a>Jurnal Informatika</a><a>Author Order : 2 of 4</a><a>Creator : Budi S</a></div>
</div>`
	spec := RecordSpec{
		Row: ".ar-list-item",
		Fields: []FieldRule{
			{Name: types.FieldTitle, Selector: ".ar-title a"},
			{Name: types.FieldAuthorOrder, Selector: ".ar-meta a", Pattern: regexp.MustCompile(`(?i)author order\s*:\s*(\d+\s*of\s*\d+)`)},
			{Name: types.FieldPages, Selector: ".ar-meta a", Pattern: regexp.MustCompile(`pp\.\s*(\S+)`)},
		},
	}
	recs, err := NewExtractor(testLogger).Records(html, "https://sinta.kemdikbud.go.id/authors/profile/1", spec, types.SourceSintaScopus)
	if err != nil || len(recs) != 1 {
		t.Fatalf("unexpected result %v %v", recs, err)
	}
	if recs[0].AuthorOrder.Value != "2 of 4" {
		t.Errorf("unexpected author order %q", recs[0].AuthorOrder.Value)
	}
	if recs[0].Pages.Present {
		t.Error("unmatched pattern should leave the field absent")
	}
}

// --- Detail Tests ---

const detailHTML = `<html><body><div id="gsc_oci_table">
<div class="gs_scl"><div class="gsc_oci_field">Authors</div><div class="gsc_oci_value">Budi Santoso, Ani Wijaya, Citra Dewi</div></div>
<div class="gs_scl"><div class="gsc_oci_field">Publication date</div><div class="gsc_oci_value">2025/03/01</div></div>
<div class="gs_scl"><div class="gsc_oci_field">Journal</div><div class="gsc_oci_value">Journal of Testing</div></div>
<div class="gs_scl"><div class="gsc_oci_field">Volume</div><div class="gsc_oci_value">9</div></div>
<div class="gs_scl"><div class="gsc_oci_field">Pages</div><div class="gsc_oci_value">2939-2952</div></div>
<div class="gs_scl"><div class="gsc_oci_field">Publisher</div><div class="gsc_oci_value"> </div></div>
<div class="gs_scl"><div class="gsc_oci_field">Total citations</div><div class="gsc_oci_value">Cited by 42</div></div>
</div></body></html>`

var detailSpec = DetailSpec{
	LabelXPath: `//div[contains(@class,"gsc_oci_field")]`,
	ValueXPath: `//div[contains(@class,"gsc_oci_value")]`,
	Routes: map[string]string{
		"authors":          types.FieldAuthors,
		"publication date": types.FieldPublicationDate,
		"journal":          types.FieldJournal,
		"volume":           types.FieldVolume,
		"pages":            types.FieldPages,
		"publisher":        types.FieldPublisher,
		"total citations":  "",
	},
}

func TestDetailPositionalPairing(t *testing.T) {
	pairs, err := NewExtractor(testLogger).Detail(detailHTML, detailSpec)
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 7 {
		t.Fatalf("expected 7 pairs, got %d", len(pairs))
	}
	if pairs[3].Label != "Volume" || pairs[3].Value != "9" {
		t.Errorf("pair 3 mismatched: %+v", pairs[3])
	}

	rec := types.RawRecord{}
	rec.Set(types.FieldAuthors, "B Santoso, A Wijaya, ...")
	rec.Set(types.FieldPublisher, "Listing Publisher")
	ApplyDetail(&rec, pairs, detailSpec.Routes)

	if rec.Authors.Value != "Budi Santoso, Ani Wijaya, Citra Dewi" {
		t.Errorf("detail authors should override listing: %q", rec.Authors.Value)
	}
	if rec.Journal.Value != "Journal of Testing" || rec.Volume.Value != "9" || rec.Pages.Value != "2939-2952" {
		t.Errorf("detail fields not routed: %+v", rec)
	}
	if rec.Publisher.Value != "Listing Publisher" {
		t.Errorf("blank detail value must not overwrite: %q", rec.Publisher.Value)
	}
	if _, ok := rec.Extra["total citations"]; ok {
		t.Error("labels routed to an empty name should be dropped")
	}
}

func TestDetailMismatchedCounts(t *testing.T) {
	html := `<div class="k">A</div><div class="k">B</div><div class="v">1</div>`
	pairs, err := NewExtractor(testLogger).Detail(html, DetailSpec{
		LabelXPath: `//div[@class="k"]`,
		ValueXPath: `//div[@class="v"]`,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 1 || pairs[0] != (Pair{Label: "A", Value: "1"}) {
		t.Errorf("unexpected pairs %+v", pairs)
	}
}

func TestDetailInvalidXPath(t *testing.T) {
	_, err := NewExtractor(testLogger).Detail("<p></p>", DetailSpec{LabelXPath: "//[", ValueXPath: "//p"})
	if err == nil {
		t.Error("expected an error for an invalid expression")
	}
}

// --- Graph Tests ---

func TestPairBarsToYearsNearest(t *testing.T) {
	bars := []Bar{{Offset: 10, Count: 3}, {Offset: 50, Count: 7}}
	labels := []AxisLabel{{Offset: 8, Year: 2019}, {Offset: 52, Year: 2020}}

	got := PairBarsToYears(bars, labels, 1980, 2030)
	if got[2019] != 3 || got[2020] != 7 || len(got) != 2 {
		t.Errorf("unexpected pairing %v", got)
	}
}

func TestPairBarsToYearsTieGoesToFirstLabel(t *testing.T) {
	bars := []Bar{{Offset: 30, Count: 5}}
	labels := []AxisLabel{{Offset: 20, Year: 2021}, {Offset: 40, Year: 2022}}

	got := PairBarsToYears(bars, labels, 1980, 2030)
	if got[2021] != 5 || len(got) != 1 {
		t.Errorf("tie should go to the first label, got %v", got)
	}
}

func TestPairBarsToYearsWindow(t *testing.T) {
	bars := []Bar{{Offset: 0, Count: 9}, {Offset: 100, Count: 4}}
	labels := []AxisLabel{{Offset: 0, Year: 1}, {Offset: 100, Year: 2020}}

	got := PairBarsToYears(bars, labels, 1980, 2030)
	if _, ok := got[1]; ok {
		t.Error("out-of-window label should be discarded")
	}
	if got[2020] != 4 || len(got) != 1 {
		t.Errorf("expected only 2020=4, got %v", got)
	}
}

func TestPairBarsToYearsOutOfWindowBarDoesNotLeak(t *testing.T) {
	bars := []Bar{{Offset: 0, Count: 99}, {Offset: 40, Count: 3}}
	labels := []AxisLabel{{Offset: 0, Year: 2014}, {Offset: 40, Year: 2015}}

	got := PairBarsToYears(bars, labels, 2015, 2030)
	if got[2015] != 3 || len(got) != 1 {
		t.Errorf("2014 bar should be dropped, got %v", got)
	}
}

func TestGraphFromMarkup(t *testing.T) {
	html := `<div id="gsc_oci_graph_bars">
<span class="gsc_oci_g_t" style="left:8px">2019</span>
<span class="gsc_oci_g_t" style="left:52px">2020</span>
<a class="gsc_oci_g_a" style="left:10px;height:4px;z-index:9"><span class="gsc_oci_g_al">3</span></a>
<a class="gsc_oci_g_a" style="left:50px;height:9px;z-index:8"><span class="gsc_oci_g_al">1,070</span></a>
<a class="gsc_oci_g_a" style="height:9px"><span class="gsc_oci_g_al">99</span></a>
</div>`
	spec := GraphSpec{
		BarXPath:      `//a[contains(@class,"gsc_oci_g_a")]`,
		BarCountXPath: `.//span[contains(@class,"gsc_oci_g_al")]`,
		LabelXPath:    `//span[contains(@class,"gsc_oci_g_t")]`,
	}
	got, err := NewExtractor(testLogger).Graph(html, spec, 1980, 2030)
	if err != nil {
		t.Fatal(err)
	}
	if got[2019] != 3 || got[2020] != 1070 || len(got) != 2 {
		t.Errorf("unexpected graph %v", got)
	}
}

func TestGraphOffsetFromWrapper(t *testing.T) {
	html := `<div class="graph">
<div class="label" style="left:0px"><b>2021</b></div>
<div class="label" style="left:40px"><b>2022</b></div>
<div class="bar" style="left:41px"><i>5</i></div>
</div>`
	spec := GraphSpec{
		BarXPath:   `//div[@class="bar"]/i`,
		LabelXPath: `//div[@class="label"]/b`,
	}
	got, err := NewExtractor(testLogger).Graph(html, spec, 1980, 2030)
	if err != nil {
		t.Fatal(err)
	}
	if got[2022] != 5 || len(got) != 1 {
		t.Errorf("unexpected graph %v", got)
	}
}

func TestParseOffset(t *testing.T) {
	tests := []struct {
		style string
		want  float64
		ok    bool
	}{
		{"left:10px;height:4px", 10, true},
		{"height: 4px; left: 12.5px", 12.5, true},
		{"height:4px", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseOffset(tt.style)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseOffset(%q) = %v, %v", tt.style, got, ok)
		}
	}
}

// --- Profile Tests ---

func TestProfileRowMetrics(t *testing.T) {
	spec := ProfileSpec{
		Name:         "#gsc_prf_in",
		Affiliation:  ".gsc_prf_il",
		MetricRows:   "#gsc_rsb_st tbody tr",
		MetricColumn: 1,
		RowLabels: map[string]string{
			"citations": MetricCitations,
			"h-index":   MetricHIndex,
			"i10-index": MetricI10Index,
		},
	}
	p, err := NewExtractor(testLogger).Profile(listingHTML, "https://scholar.google.com/", spec)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Budi Santoso" || p.Affiliation != "Universitas Contoh" {
		t.Errorf("unexpected header %+v", p)
	}
	if !p.HasMetrics || p.Metrics.Citations != 1234 || p.Metrics.HIndex != 15 || p.Metrics.I10Index != 20 {
		t.Errorf("unexpected metrics %+v", p.Metrics)
	}
}

func TestProfileCellLayout(t *testing.T) {
	spec := ProfileSpec{
		Name:        "#gsc_prf_in",
		MetricCells: "#gsc_rsb_st td.gsc_rsb_std",
		CellLayout: []string{
			MetricCitations, MetricCitationsSince,
			MetricHIndex, MetricHIndexSince,
			MetricI10Index, "",
		},
	}
	p, _ := NewExtractor(testLogger).Profile(listingHTML, "https://scholar.google.com/", spec)
	m := p.Metrics
	if m.CitationsSince != 567 || m.HIndexSince != 10 || m.I10Index != 20 || m.I10IndexSince != 0 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"42", 42, true},
		{"1,234", 1234, true},
		{"1.070", 1070, true},
		{"Cited by 17", 17, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseCount(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseCount(%q) = %d, %v", tt.in, got, ok)
		}
	}
}
