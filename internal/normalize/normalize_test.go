package normalize

import (
	"testing"
	"time"

	"github.com/IshaanNene/pubharvest/internal/types"
)

// --- Venue Tests ---

func TestVenueRoundTrip(t *testing.T) {
	venue := "Journal of Testing 9 (1), 2939-2952, 2025"

	vol, iss := ExtractVolumeIssue(venue)
	if vol != "9" || iss != "1" {
		t.Errorf("volume/issue = %q/%q, want 9/1", vol, iss)
	}
	if pages := ExtractPages(venue, 0); pages != "2939-2952" {
		t.Errorf("pages = %q, want 2939-2952", pages)
	}
	if name := CleanJournalName(venue); name != "Journal of Testing" {
		t.Errorf("journal = %q, want Journal of Testing", name)
	}
}

func TestExtractVolumeIssueOrder(t *testing.T) {
	tests := []struct {
		text   string
		volume string
		issue  string
	}{
		{"Jurnal Ilmiah 12(3)", "12", "3"},
		{"Jurnal Ilmiah 12 (3-4), 2020", "12", "3-4"},
		{"Jurnal Teknik Vol. 7 No. 2", "7", "2"},
		{"Jurnal Teknik, vol XII, no 4", "12", "4"},
		{"Jurnal Teknik Vol. iv", "4", ""},
		{"Vol. Civil Engineering, No. 2", "", "2"},
		{"Jurnal Teknik Volume 5, Number 2", "5", "2"},
		{"Jurnal Teknik 5, 2, 2019", "5", "2"},
		{"Jurnal Teknik 7", "", "7"},
		{"Jurnal Teknik, 2019", "", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		v, i := ExtractVolumeIssue(tt.text)
		if v != tt.volume || i != tt.issue {
			t.Errorf("ExtractVolumeIssue(%q) = %q/%q, want %q/%q", tt.text, v, i, tt.volume, tt.issue)
		}
	}
}

func TestExtractPages(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Proc. ICITEE, pp. 12-18", "12-18"},
		{"Jurnal X, hal. 101 - 110", "101-110"},
		{"Jurnal X, p. 45", "45"},
		{"Jurnal X 3 (2), 100-120", "100-120"},
		{"Jurnal X, 2019-2020", ""},
		{"Jurnal X, 120-100", ""},
		{"Jurnal X, 5-99999", ""},
		{"no pages here", ""},
	}
	for _, tt := range tests {
		if got := ExtractPages(tt.text, DefaultPageCeiling); got != tt.want {
			t.Errorf("ExtractPages(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestRomanToInt(t *testing.T) {
	tests := map[string]int{"i": 1, "IV": 4, "ix": 9, "XII": 12, "xl": 40, "MCMXC": 1990, "12": 12}
	for in, want := range tests {
		got, ok := RomanToInt(in)
		if !ok || got != want {
			t.Errorf("RomanToInt(%q) = %d, %v", in, got, ok)
		}
	}
	if _, ok := RomanToInt("abc"); ok {
		t.Error("non-roman input should fail")
	}
}

func TestCleanJournalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jurnal Informatika, Vol. 5, No. 2, 2020.", "Jurnal Informatika"},
		{"IEEE Access 8, 123456-123470", "IEEE Access"},
		{"  Acta   Physica  ", "Acta Physica"},
		{"Jurnal Teknik (2019)", "Jurnal Teknik"},
		{"2020", "2020"},
	}
	for _, tt := range tests {
		if got := CleanJournalName(tt.in); got != tt.want {
			t.Errorf("CleanJournalName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVenueKey(t *testing.T) {
	if VenueKey("  Journal  of TESTING ") != "journal of testing" {
		t.Errorf("unexpected key %q", VenueKey("  Journal  of TESTING "))
	}
}

// --- Author Order Tests ---

func TestAuthorOrder(t *testing.T) {
	tests := []struct {
		authors  string
		target   string
		explicit string
		want     string
	}{
		{"A Wijaya, B Santoso, C Dewi", "B Santoso", "", "2 out of 3"},
		{"A Wijaya, Budi Santoso Putra, C Dewi", "budi santoso", "", "2 out of 3"},
		{"A Wijaya, Santoso", "Budi Santoso", "", "2 out of 2"},
		{"A Wijaya, C Dewi", "Budi Santoso", "", "1 out of 2"},
		{"A Wijaya, C Dewi, ...", "C Dewi", "", "2 out of 2"},
		{"", "Budi", "", "1 out of 1"},
		{"A, B, C", "Z", "3 of 5", "3 out of 5"},
		{"A, B", "Z", "Author Order : 2 of 4", "2 out of 4"},
	}
	for _, tt := range tests {
		if got := AuthorOrder(tt.authors, tt.target, tt.explicit); got != tt.want {
			t.Errorf("AuthorOrder(%q, %q, %q) = %q, want %q", tt.authors, tt.target, tt.explicit, got, tt.want)
		}
	}
}

func TestParseYearAndCitations(t *testing.T) {
	if ParseYear("2025/03/01") != 2025 || ParseYear("n/a") != 0 {
		t.Error("ParseYear")
	}
	if ParseCitations("Cited by 1,070") != 1070 || ParseCitations("") != 0 || ParseCitations("42") != 42 {
		t.Error("ParseCitations")
	}
}

// --- Yearly Citation Tests ---

func TestYearlyCitationsPolicy(t *testing.T) {
	graph := map[int]int{2020: 3, 2021: 5}

	got := YearlyCitations(types.CitationsPerYearGraph, 8, 2019, graph, 2026)
	if len(got) != 2 || got[2021] != 5 {
		t.Errorf("graph policy: %v", got)
	}
	got = YearlyCitations(types.CitationsPerYearGraph, 8, 2019, nil, 2026)
	if len(got) != 1 || got[2026] != 8 {
		t.Errorf("empty graph should fall back to current year: %v", got)
	}
	got = YearlyCitations(types.CitationsCurrentYear, 8, 2019, graph, 2026)
	if len(got) != 1 || got[2026] != 8 {
		t.Errorf("current year policy: %v", got)
	}
	got = YearlyCitations(types.CitationsPublicationYear, 8, 2019, nil, 2026)
	if len(got) != 1 || got[2019] != 8 {
		t.Errorf("publication year policy: %v", got)
	}
	got = YearlyCitations(types.CitationsCurrentYear, 0, 2019, nil, 2026)
	if len(got) != 0 {
		t.Errorf("zero citations should record nothing: %v", got)
	}
}

// --- Normalizer Tests ---

func fixedClock() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }

func TestNormalizeListingRecord(t *testing.T) {
	raw := types.RawRecord{Source: types.SourceScholar}
	raw.Set(types.FieldTitle, "  Deep  Learning for Rice ")
	raw.Set(types.FieldAuthors, "A Wijaya, B Santoso")
	raw.Set(types.FieldVenue, "Journal of Testing 9 (1), 2939-2952, 2025")
	raw.Set(types.FieldCitations, "42")
	raw.Set(types.FieldYear, "2025")

	n := New(WithClock(fixedClock))
	pub := n.Normalize(raw, Target{AuthorID: 7, AuthorName: "B Santoso", Policy: types.CitationsCurrentYear})

	if pub.Title != "Deep Learning for Rice" || pub.Category != types.CategoryArticle {
		t.Errorf("unexpected title/category %q/%s", pub.Title, pub.Category)
	}
	if pub.VenueName != "Journal of Testing" || pub.Volume != "9" || pub.Issue != "1" || pub.Pages != "2939-2952" {
		t.Errorf("unexpected venue fields %+v", pub)
	}
	if pub.Year != 2025 || pub.Citations != 42 || pub.AuthorOrder != "2 out of 2" || pub.AuthorID != 7 {
		t.Errorf("unexpected scalars %+v", pub)
	}
	if pub.CitationsByYear[2026] != 42 {
		t.Errorf("unexpected yearly citations %v", pub.CitationsByYear)
	}
	if pub.TitleOnly {
		t.Error("default dedup policy is title+category+year")
	}
}

func TestNormalizeDetailTakesPrecedence(t *testing.T) {
	raw := types.RawRecord{Source: types.SourceScholar}
	raw.Set(types.FieldTitle, "Paper")
	raw.Set(types.FieldVenue, "Journal of Testing 9 (1), 2939-2952, 2025")
	raw.Merge(types.FieldJournal, "Journal of Testing and Evaluation")
	raw.Merge(types.FieldVolume, "10")
	raw.Merge(types.FieldPages, "1-5")

	pub := New(WithClock(fixedClock), WithDedupPolicy(types.DedupTitle)).Normalize(raw, Target{})
	if pub.VenueName != "Journal of Testing and Evaluation" {
		t.Errorf("journal field should name the venue, got %q", pub.VenueName)
	}
	if pub.Volume != "10" || pub.Issue != "1" || pub.Pages != "1-5" {
		t.Errorf("detail fields should win, mined fill the gaps: %+v", pub)
	}
	if !pub.TitleOnly {
		t.Error("title dedup policy not applied")
	}
}

func TestNormalizeProceedingsAndBook(t *testing.T) {
	raw := types.RawRecord{Source: types.SourceSintaGaruda}
	raw.Set(types.FieldTitle, "Sistem Pakar")
	raw.Set(types.FieldVenue, "Prosiding Seminar Nasional Teknik 2019")
	raw.Set(types.FieldCitations, "3")

	pub := New(WithClock(fixedClock)).Normalize(raw, Target{Policy: types.CitationsPublicationYear})
	if pub.Category != types.CategoryProceedings || pub.Conference != "Prosiding Seminar Nasional Teknik" {
		t.Errorf("unexpected proceedings record %+v", pub)
	}
	if pub.Year != 2019 || pub.CitationsByYear[2019] != 3 {
		t.Errorf("publication-year policy not applied: %d %v", pub.Year, pub.CitationsByYear)
	}

	raw = types.RawRecord{}
	raw.Set(types.FieldTitle, "Pemrograman Go")
	raw.Set(types.FieldVenue, "Deepublish")
	pub = New(WithClock(fixedClock)).Normalize(raw, Target{})
	if pub.Category != types.CategoryBook || pub.Publisher != "Deepublish" {
		t.Errorf("unexpected book record %+v", pub)
	}
}
