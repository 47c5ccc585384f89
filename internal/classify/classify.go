// Package classify assigns a publication category from venue, publisher and title text.
package classify

import (
	"regexp"
	"strings"

	"github.com/IshaanNene/pubharvest/internal/types"
)

// Rule labels identify which check decided a category.
const (
	RuleJournalField      = "journal_field"
	RuleConferenceField   = "conference_field"
	RuleBookPublisher     = "book_publisher"
	RuleEditionMarker     = "edition_marker"
	RuleJournalKeyword    = "journal_keyword"
	RuleConferenceKeyword = "conference_keyword"
	RuleBookKeyword       = "book_keyword"
	RuleThesisKeyword     = "thesis_keyword"
	RuleResearchKeyword   = "research_keyword"
	RulePreprintKeyword   = "preprint_keyword"
	RulePatentKeyword     = "patent_keyword"
	RuleLegalPattern      = "legal_pattern"
	RuleVolumeIssue       = "volume_issue_pattern"
	RuleDefault           = "default"
)

type keywordRule struct {
	label    string
	category types.Category
	re       *regexp.Regexp
}

// wordSet compiles tokens into one case-insensitive whole-word alternation.
func wordSet(tokens ...string) *regexp.Regexp {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}\p{N}])`)
}

var (
	bookPublishers = wordSet(
		"gramedia", "erlangga", "penerbit andi", "andi offset", "deepublish", "rajawali pers",
		"rajagrafindo", "pustaka pelajar", "kencana", "prenadamedia", "prenada media", "bumi aksara",
		"salemba empat", "refika aditama", "rosda", "remaja rosdakarya", "alfabeta", "ugm press",
		"gadjah mada university press", "ui press", "itb press", "ipb press", "airlangga university press",
		"ub press", "unpad press", "media sains indonesia", "widina", "cv. pena persada", "yayasan kita menulis",
		"eureka media aksara", "cambridge university press", "oxford university press", "mcgraw-hill",
		"mcgraw hill", "pearson", "o'reilly", "packt", "wiley-blackwell", "crc press", "routledge",
	)

	editionMarker = regexp.MustCompile(`(?i)\b(?:edition|edisi|cetakan|\d+(?:st|nd|rd|th)\s+ed\.?)(?:\b|$)`)

	// Checked in this order after the publisher and edition checks; the first hit wins.
	keywordRules = []keywordRule{
		{RuleJournalKeyword, types.CategoryArticle, wordSet(
			"journal", "jurnal", "transactions", "letters", "bulletin", "buletin", "acta", "annals",
			"quarterly", "magazine", "majalah", "review", "jurnal ilmiah",
		)},
		{RuleConferenceKeyword, types.CategoryProceedings, wordSet(
			"conference", "proceedings", "proceeding", "prosiding", "symposium", "simposium", "seminar",
			"semnas", "workshop", "congress", "kongres", "konferensi", "conf.", "proc.",
		)},
		{RuleBookKeyword, types.CategoryBook, wordSet(
			"book", "buku", "chapter", "bab buku", "handbook", "textbook", "monograph", "monograf",
			"bunga rampai", "book chapter", "isbn", "modul ajar", "buku ajar",
		)},
		{RuleThesisKeyword, types.CategoryResearchReport, wordSet(
			"thesis", "tesis", "skripsi", "disertasi", "dissertation", "tugas akhir", "phd thesis",
			"master's thesis",
		)},
		{RuleResearchKeyword, types.CategoryResearchReport, wordSet(
			"analysis", "analisis", "analisa", "research", "penelitian", "laporan penelitian",
			"research report", "kajian", "studi",
		)},
		{RulePreprintKeyword, types.CategoryResearchReport, wordSet(
			"preprint", "arxiv", "biorxiv", "medrxiv", "ssrn", "technical report", "tech report",
			"laporan teknis", "working paper", "white paper",
		)},
		{RulePatentKeyword, types.CategoryResearchReport, wordSet(
			"patent", "paten", "hak cipta", "copyright registration",
		)},
		{RuleLegalPattern, types.CategoryBook, regexp.MustCompile(
			`(?i)\b(?:undang[- ]undang|uu\s+(?:no\.?|nomor)\s*\d+|peraturan\s+(?:pemerintah|presiden|menteri|daerah)|perpres|permen\w*|perda|kitab\s+undang|statute|act\s+of\s+\d{4})\b`,
		)},
		{RuleVolumeIssue, types.CategoryArticle, regexp.MustCompile(
			`(?i)(?:\bvol(?:ume)?\.?\s*\d+|\b\d+\s*\(\s*\d+\s*\)|\bno\.?\s*\d+\s*,\s*(?:pp?\.?\s*)?\d+\s*[-–]\s*\d+)`,
		)},
	}
)

// present reports whether a venue field carries a usable value.
func present(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "n/a", "na", "-", "none", "null", "nil":
		return false
	}
	return true
}

// Classify returns the category for a publication. It is total: every input maps to
// exactly one category.
func Classify(journal, conference, publisher, title string) types.Category {
	c, _ := ClassifyRule(journal, conference, publisher, title)
	return c
}

// ClassifyRule returns the category and the label of the rule that decided it.
// Journal and conference fields are authoritative; text inference runs only without them.
func ClassifyRule(journal, conference, publisher, title string) (types.Category, string) {
	if present(journal) {
		return types.CategoryArticle, RuleJournalField
	}
	if present(conference) {
		return types.CategoryProceedings, RuleConferenceField
	}

	text := strings.ToLower(strings.TrimSpace(publisher + " " + title))
	if text == "" {
		return types.CategoryOther, RuleDefault
	}

	if bookPublishers.MatchString(text) {
		return types.CategoryBook, RuleBookPublisher
	}
	if editionMarker.MatchString(text) {
		return types.CategoryBook, RuleEditionMarker
	}
	for _, r := range keywordRules {
		if r.re.MatchString(text) {
			return r.category, r.label
		}
	}
	return types.CategoryOther, RuleDefault
}

// ForRecord classifies a raw record, using the venue as publisher text when no publisher
// was extracted.
func ForRecord(rec *types.RawRecord) (types.Category, string) {
	publisher := rec.Publisher.Or("")
	if venue := rec.Venue.Or(""); venue != "" {
		publisher = strings.TrimSpace(publisher + " " + venue)
	}
	return ClassifyRule(rec.Journal.Or(""), rec.Conference.Or(""), publisher, rec.Title.Or(""))
}
