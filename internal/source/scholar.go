package source

import (
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/IshaanNene/pubharvest/internal/fetcher"
	"github.com/IshaanNene/pubharvest/internal/parser"
	"github.com/IshaanNene/pubharvest/internal/session"
	"github.com/IshaanNene/pubharvest/internal/types"
)

// scholarPageSize is the largest page Scholar serves per request.
const scholarPageSize = 100

// Scholar is the Google Scholar profile adapter. It needs no login; the anonymous
// session only checks the landing page for a challenge.
type Scholar struct {
	baseURL string
}

// NewScholar creates a Scholar adapter rooted at baseURL.
func NewScholar(baseURL string) *Scholar {
	return &Scholar{baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *Scholar) Source() types.Source { return types.SourceScholar }

func (s *Scholar) AccountKey() string { return "scholar" }

// ExternalID returns the user query parameter of a profile URL.
func (s *Scholar) ExternalID(profileURL string) string {
	u, err := url.Parse(profileURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("user")
}

// ListingURL pages with cstart/pagesize. The browser driver only ever loads page 1
// and expands it with the "show more" button.
func (s *Scholar) ListingURL(profileURL string, page int) string {
	u, err := url.Parse(profileURL)
	if err != nil {
		return profileURL
	}
	if page < 1 {
		page = 1
	}
	q := u.Query()
	q.Set("hl", "en")
	q.Set("view_op", "list_works")
	q.Set("sortby", "pubdate")
	q.Set("cstart", strconv.Itoa((page-1)*scholarPageSize))
	q.Set("pagesize", strconv.Itoa(scholarPageSize))
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Scholar) Listing() ListingSpec {
	return ListingSpec{
		Container:    "#gsc_a_b",
		Style:        LoadMore,
		MoreSelector: "#gsc_bpf_more",
	}
}

func (s *Scholar) Records() parser.RecordSpec {
	return parser.RecordSpec{
		Row: "tr.gsc_a_tr",
		Fields: []parser.FieldRule{
			{Name: types.FieldTitle, Selector: "a.gsc_a_at"},
			{Name: types.FieldDetailURL, Selector: "a.gsc_a_at", Attr: "href"},
			{Name: types.FieldAuthors, Selector: ".gs_gray", Index: 0},
			{Name: types.FieldVenue, Selector: ".gs_gray", Index: 1},
			{Name: types.FieldCitations, Selector: "a.gsc_a_ac"},
			{Name: types.FieldYear, Selector: ".gsc_a_y span"},
		},
	}
}

func (s *Scholar) Profile() parser.ProfileSpec {
	return parser.ProfileSpec{
		Name:        "#gsc_prf_in",
		Affiliation: ".gsc_prf_il",
		MetricCells: "#gsc_rsb_st td.gsc_rsb_std",
		CellLayout: []string{
			parser.MetricCitations, parser.MetricCitationsSince,
			parser.MetricHIndex, parser.MetricHIndexSince,
			parser.MetricI10Index, parser.MetricI10IndexSince,
		},
	}
}

func (s *Scholar) Detail() (parser.DetailSpec, bool) {
	return parser.DetailSpec{
		Marker:     "#gsc_oci_table",
		LabelXPath: `//div[@id="gsc_oci_table"]//div[contains(@class,"gsc_oci_field")]`,
		ValueXPath: `//div[@id="gsc_oci_table"]//div[contains(@class,"gsc_oci_value")]`,
		Routes: map[string]string{
			"authors":          types.FieldAuthors,
			"inventors":        types.FieldAuthors,
			"publication date": types.FieldPublicationDate,
			"journal":          types.FieldJournal,
			"conference":       types.FieldConference,
			"book":             types.FieldVenue,
			"source":           types.FieldVenue,
			"volume":           types.FieldVolume,
			"issue":            types.FieldIssue,
			"pages":            types.FieldPages,
			"publisher":        types.FieldPublisher,
			"description":      types.FieldDescription,
			"total citations":  "",
			"scholar articles": "",
		},
	}, true
}

func (s *Scholar) Graph() (parser.GraphSpec, bool) {
	return parser.GraphSpec{
		Marker:        "#gsc_oci_graph_bars",
		BarXPath:      `//a[contains(@class,"gsc_oci_g_a")]`,
		BarCountXPath: `.//span[contains(@class,"gsc_oci_g_al")]`,
		LabelXPath:    `//span[contains(@class,"gsc_oci_g_t")]`,
	}, true
}

func (s *Scholar) Login() session.LoginSpec {
	return session.LoginSpec{URL: s.baseURL + "/"}
}

func (s *Scholar) Authenticator(pacer *fetcher.Pacer, timeout time.Duration, logger *slog.Logger) session.Authenticator {
	return session.NewAnonymousLogin(s.Login().URL, pacer, logger)
}

func (s *Scholar) CitationPolicy() types.CitationPolicy { return types.CitationsPerYearGraph }
