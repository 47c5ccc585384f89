package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	numParenRe    = regexp.MustCompile(`\b(\d+)\s*\(\s*(\d+(?:\s*[-/]\s*\d+)?)\s*\)`)
	labeledVolRe  = regexp.MustCompile(`(?i)\bvol\.?\s*(\d+|m{0,3}(?:cm|cd|d?c{0,3})(?:xc|xl|l?x{0,3})(?:ix|iv|v?i{0,3}))\b(?:[\s,;]*(?:no|nos|issue|iss|nomor)\.?\s*(\d+))?`)
	volNumberRe   = regexp.MustCompile(`(?i)\bvolume\s+(\d+)\s*,?\s*(?:number|issue|nomor|no\.?)\s*(\d+)`)
	smallIntRe    = regexp.MustCompile(`\b\d{1,3}\b`)
	yearTokenRe   = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	labeledPageRe = regexp.MustCompile(`(?i)(?:\bpp\.?|\bpages?|\bhal(?:aman)?\.?|\bhlm\.?)\s*:?\s*(\d+)\s*[-–]\s*(\d+)`)
	singlePageRe  = regexp.MustCompile(`(?i)(?:\bp\.|\bpage|\bhal\.?|\bhlm\.?)\s*:?\s*(\d+)\b`)
	rangeRe       = regexp.MustCompile(`\b(\d+)\s*[-–]\s*(\d+)\b`)
)

// DefaultPageCeiling bounds plausible page numbers in unlabeled ranges.
const DefaultPageCeiling = 10000

// ExtractVolumeIssue mines volume and issue from free venue text. Patterns are tried in
// order: "N(M)", a labeled "Vol./No." pair with Roman volumes converted, the phrase
// "Volume N, Number M", then the first two isolated small integers. A lone integer is
// treated as the issue.
func ExtractVolumeIssue(text string) (volume, issue string) {
	if m := numParenRe.FindStringSubmatch(text); m != nil {
		return m[1], strings.ReplaceAll(m[2], " ", "")
	}
	if m := labeledVolRe.FindStringSubmatch(text); m != nil && m[1] != "" {
		vol := m[1]
		if n, ok := RomanToInt(vol); ok && !isDigits(vol) {
			vol = strconv.Itoa(n)
		}
		if isDigits(vol) {
			return vol, m[2]
		}
	}
	if m := volNumberRe.FindStringSubmatch(text); m != nil {
		return m[1], m[2]
	}

	// page ranges and years would otherwise look like volume numbers
	rest := rangeRe.ReplaceAllString(text, " ")
	rest = yearTokenRe.ReplaceAllString(rest, " ")
	ints := smallIntRe.FindAllString(rest, 2)
	switch len(ints) {
	case 2:
		return ints[0], ints[1]
	case 1:
		return "", ints[0]
	}
	return "", ""
}

// ExtractPages mines a page range from free venue text: a labeled range, a labeled single
// page, then the last unlabeled N-M range that looks like pages.
func ExtractPages(text string, ceiling int) string {
	if ceiling <= 0 {
		ceiling = DefaultPageCeiling
	}
	if m := labeledPageRe.FindStringSubmatch(text); m != nil {
		return m[1] + "-" + m[2]
	}
	if m := singlePageRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	matches := rangeRe.FindAllStringSubmatch(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		start, _ := strconv.Atoi(matches[i][1])
		end, _ := strconv.Atoi(matches[i][2])
		if plausiblePages(start, end, ceiling) {
			return matches[i][1] + "-" + matches[i][2]
		}
	}
	return ""
}

func plausiblePages(start, end, ceiling int) bool {
	if start <= 0 || end <= start || start >= ceiling || end >= ceiling {
		return false
	}
	// 2019-2020 is a year span, not a page range
	if start >= 1900 && end <= 2100 && end-start < 10 {
		return false
	}
	return true
}

var romanValues = map[rune]int{'i': 1, 'v': 5, 'x': 10, 'l': 50, 'c': 100, 'd': 500, 'm': 1000}

// RomanToInt converts a Roman numeral. Digits pass through.
func RomanToInt(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	if isDigits(s) {
		n, err := strconv.Atoi(s)
		return n, err == nil
	}
	total, prev := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		v, ok := romanValues[rune(s[i])]
		if !ok {
			return 0, false
		}
		if v < prev {
			total -= v
		} else {
			total += v
			prev = v
		}
	}
	return total, total > 0
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var journalTailRes = []*regexp.Regexp{
	regexp.MustCompile(`[\s,;:]*\(?\b(?:19|20)\d{2}\)?$`),
	regexp.MustCompile(`[\s,;:]*(?:\bpp?\.?\s*)?\b\d+\s*[-–]\s*\d+$`),
	regexp.MustCompile(`[\s,;:]*\b\d+\s*\(\s*[\d\s/-]+\s*\)$`),
	regexp.MustCompile(`(?i)[\s,;:]*\b(?:vol(?:ume)?|no|nomor|issue|iss|number)\.?\s*(?:\d+|[ivxlcdm]+)$`),
	regexp.MustCompile(`[\s,;:]+\d+$`),
	regexp.MustCompile(`[\s,;:.\-–]+$`),
}

// CleanJournalName strips trailing years, volume/issue/page fragments, lone numbers and
// punctuation, one fragment at a time, until nothing more can be removed.
func CleanJournalName(raw string) string {
	name := strings.Join(strings.Fields(raw), " ")
	for stripped := true; stripped; {
		stripped = false
		for _, re := range journalTailRes {
			if loc := re.FindStringIndex(name); loc != nil && loc[0] > 0 {
				name = strings.TrimSpace(name[:loc[0]])
				stripped = true
				break
			}
		}
	}
	return name
}

// VenueKey is the deduplication key for venue and department names.
func VenueKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
