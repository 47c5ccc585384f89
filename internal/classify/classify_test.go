package classify

import (
	"testing"

	"github.com/IshaanNene/pubharvest/internal/types"
)

func TestClassifyFieldPriority(t *testing.T) {
	if got := Classify("Acta X", "ICCS 2020", "", ""); got != types.CategoryArticle {
		t.Errorf("journal should win over conference, got %s", got)
	}
	if got := Classify("", "ICCS 2020", "Gramedia", "Buku Ajar"); got != types.CategoryProceedings {
		t.Errorf("conference field should win over text, got %s", got)
	}
	if got := Classify("N/A", "n/a", "", ""); got != types.CategoryOther {
		t.Errorf("sentinel fields must be ignored, got %s", got)
	}
}

func TestClassifyFallbackOrder(t *testing.T) {
	tests := []struct {
		name      string
		publisher string
		title     string
		want      types.Category
		rule      string
	}{
		{"publisher before keywords", "Gramedia", "", types.CategoryBook, RuleBookPublisher},
		{"publisher beats journal token", "Deepublish", "Journal writing guide", types.CategoryBook, RuleBookPublisher},
		{"edition marker", "", "Statistika Dasar Edisi 3", types.CategoryBook, RuleEditionMarker},
		{"journal token", "", "Jurnal Teknologi Informasi", types.CategoryArticle, RuleJournalKeyword},
		{"journal before conference", "", "Journal of the Conference Board", types.CategoryArticle, RuleJournalKeyword},
		{"conference token", "", "Prosiding Seminar Nasional Teknik", types.CategoryProceedings, RuleConferenceKeyword},
		{"book token", "", "Pengantar Basis Data: Buku Ajar", types.CategoryBook, RuleBookKeyword},
		{"thesis token", "", "Skripsi Sistem Pakar", types.CategoryResearchReport, RuleThesisKeyword},
		{"research token", "", "Analisis Kinerja Jaringan", types.CategoryResearchReport, RuleResearchKeyword},
		{"preprint token", "", "A model of rain, arXiv", types.CategoryResearchReport, RulePreprintKeyword},
		{"patent token", "", "Paten Alat Pengering Gabah", types.CategoryResearchReport, RulePatentKeyword},
		{"legal pattern", "", "Undang-Undang Nomor 12 Tahun 2012", types.CategoryBook, RuleLegalPattern},
		{"volume issue", "", "Teknika 12 (3), 45-50", types.CategoryArticle, RuleVolumeIssue},
		{"nothing", "", "Sistem Informasi Desa", types.CategoryOther, RuleDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rule := ClassifyRule("", "", tt.publisher, tt.title)
			if got != tt.want || rule != tt.rule {
				t.Errorf("got (%s, %s), want (%s, %s)", got, rule, tt.want, tt.rule)
			}
		})
	}
}

func TestClassifyWholeWords(t *testing.T) {
	// "bookkeeping" must not match "book"; "preview" must not match "review"
	if got := Classify("", "", "", "Bookkeeping preview"); got != types.CategoryOther {
		t.Errorf("partial word matched, got %s", got)
	}
}

func TestClassifyTotality(t *testing.T) {
	inputs := []string{"", " ", "N/A", "-", "Gramedia", "Journal", "Proceedings", "???", "12 (3)", "Edisi 2"}
	for _, j := range inputs {
		for _, c := range inputs {
			for _, p := range inputs {
				for _, title := range inputs {
					if got := Classify(j, c, p, title); !got.Valid() {
						t.Fatalf("Classify(%q, %q, %q, %q) returned invalid category %q", j, c, p, title, got)
					}
				}
			}
		}
	}
}

func TestForRecord(t *testing.T) {
	rec := types.RawRecord{}
	rec.Set(types.FieldTitle, "Deteksi Penyakit Padi")
	rec.Set(types.FieldVenue, "Jurnal Informatika 9 (1), 1-10")
	if got, _ := ForRecord(&rec); got != types.CategoryArticle {
		t.Errorf("venue text should classify as article, got %s", got)
	}

	rec = types.RawRecord{}
	rec.Set(types.FieldTitle, "Deteksi Penyakit Padi")
	rec.Set(types.FieldConference, "ICITEE 2021")
	if got, rule := ForRecord(&rec); got != types.CategoryProceedings || rule != RuleConferenceField {
		t.Errorf("got (%s, %s)", got, rule)
	}
}
