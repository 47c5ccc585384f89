package store

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/IshaanNene/pubharvest/internal/normalize"
	"github.com/IshaanNene/pubharvest/internal/types"
)

// Result reports what one Upsert changed.
type Result struct {
	PublicationID    uint
	Created          bool
	Updated          bool
	Linked           bool
	SatelliteSkipped bool
}

// Upserter writes canonical publications and author profiles idempotently.
type Upserter struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewUpserter creates an upserter over repo.
func NewUpserter(repo Repository, logger *slog.Logger) *Upserter {
	return &Upserter{
		repo:   repo,
		logger: logger.With("component", "upserter"),
		now:    time.Now,
	}
}

// NormalizeTitle lowercases title and collapses its whitespace.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// TitleHash is the sha1 hex digest of the normalized title.
func TitleHash(title string) string {
	h := sha1.New()
	h.Write([]byte(NormalizeTitle(title)))
	return hex.EncodeToString(h.Sum(nil))
}

// maxUpsertAttempts bounds retries after losing an insert race to another writer.
const maxUpsertAttempts = 2

// Upsert writes one publication with its venue, satellite, author link and
// yearly citations in a single transaction. Any failure rolls the whole
// publication back and is returned as a *types.PersistenceError. A transaction
// that hits a duplicate key is retried once, so the retry finds the other
// writer's row and updates it.
func (u *Upserter) Upsert(ctx context.Context, pub types.CanonicalPublication) (Result, error) {
	title := strings.TrimSpace(pub.Title)
	if title == "" {
		return Result{}, &types.PersistenceError{Op: "upsert_publication", Err: errors.New("empty title")}
	}
	if !pub.Category.Valid() {
		pub.Category = types.CategoryOther
	}
	downloadedAt := pub.DownloadedAt
	if downloadedAt.IsZero() {
		downloadedAt = u.now()
	}

	var res Result
	var err error
	for attempt := 1; attempt <= maxUpsertAttempts; attempt++ {
		res, err = u.writePublication(ctx, pub, title, downloadedAt)
		if !errors.Is(err, types.ErrDuplicateKey) {
			break
		}
		u.logger.Debug("duplicate key on upsert, retrying", "title", title, "attempt", attempt)
	}
	if err != nil {
		return Result{}, &types.PersistenceError{Op: "upsert_publication", Title: title, Err: err}
	}

	if res.SatelliteSkipped {
		u.logger.Warn("article has no venue, detail row skipped", "title", title, "publication_id", res.PublicationID)
	}
	u.logger.Debug("publication upserted",
		"title", title,
		"publication_id", res.PublicationID,
		"created", res.Created,
		"updated", res.Updated,
	)
	return res, nil
}

func (u *Upserter) writePublication(ctx context.Context, pub types.CanonicalPublication, title string, downloadedAt time.Time) (Result, error) {
	var res Result
	err := u.repo.Transaction(ctx, func(tx Repository) error {
		res = Result{}

		stored, err := tx.FindPublication(ctx, TitleHash(title), pub.Category, pub.Year, pub.TitleOnly)
		switch {
		case errors.Is(err, types.ErrNotFound):
			stored = &Publication{
				Title:         title,
				TitleHash:     TitleHash(title),
				Category:      string(pub.Category),
				Year:          pub.Year,
				CitationCount: pub.Citations,
				Source:        string(pub.Source),
				DetailURL:     pub.DetailURL,
				DownloadedAt:  downloadedAt,
			}
			if err := tx.CreatePublication(ctx, stored); err != nil {
				return err
			}
			res.Created = true
		case err != nil:
			return err
		default:
			raised, err := tx.RaiseCitations(ctx, stored.ID, pub.Citations)
			if err != nil {
				return err
			}
			res.Updated = raised
		}
		res.PublicationID = stored.ID

		// A title-only match keeps the stored category, so the satellite follows it.
		category := types.Category(stored.Category)
		sat := Satellite{
			Category:   category,
			Volume:     pub.Volume,
			Issue:      pub.Issue,
			Pages:      pub.Pages,
			Conference: pub.Conference,
			Publisher:  pub.Publisher,
			Label:      pub.Rule,
			Note:       pub.VenueName,
		}
		if category == types.CategoryProceedings && sat.Conference == "" {
			sat.Conference = pub.VenueName
		}
		if category == types.CategoryArticle {
			name := strings.TrimSpace(pub.VenueName)
			if name == "" {
				res.SatelliteSkipped = true
			} else {
				venueID, err := tx.FindOrCreateVenue(ctx, name, normalize.VenueKey(name))
				if err != nil {
					return err
				}
				sat.VenueID = venueID
			}
		}
		if !res.SatelliteSkipped {
			if err := tx.SaveSatellite(ctx, stored.ID, sat); err != nil {
				return err
			}
		}

		if pub.AuthorID != 0 {
			linked, err := tx.LinkAuthor(ctx, &AuthorPublication{
				AuthorID:      pub.AuthorID,
				PublicationID: stored.ID,
				AuthorOrder:   pub.AuthorOrder,
			})
			if err != nil {
				return err
			}
			res.Linked = linked
		}

		years := make([]int, 0, len(pub.CitationsByYear))
		for year := range pub.CitationsByYear {
			if year > 0 {
				years = append(years, year)
			}
		}
		sort.Ints(years)
		for _, year := range years {
			if err := tx.UpsertYearlyCitation(ctx, &YearlyCitation{
				PublicationID: stored.ID,
				Year:          year,
				Source:        string(pub.Source),
				Count:         pub.CitationsByYear[year],
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return res, err
}

// UpsertAuthor writes the author keyed by (external id, source) together with the
// department and the profile metrics. It returns the author id.
func (u *Upserter) UpsertAuthor(ctx context.Context, profile types.AuthorProfile, source types.Source) (uint, error) {
	externalID := strings.TrimSpace(profile.ExternalID)
	if externalID == "" {
		externalID = strings.TrimSpace(profile.ProfileURL)
	}
	if externalID == "" {
		return 0, &types.PersistenceError{Op: "upsert_author", Title: profile.Name, Err: errors.New("author has no external id")}
	}

	var authorID uint
	err := u.repo.Transaction(ctx, func(tx Repository) error {
		var deptID *uint
		dept := strings.TrimSpace(profile.Department)
		if dept == "" {
			dept = strings.TrimSpace(profile.Affiliation)
		}
		if dept != "" {
			id, err := tx.FindOrCreateDepartment(ctx, dept, strings.ToLower(dept))
			if err != nil {
				return err
			}
			deptID = &id
		}

		author := &Author{
			ExternalID:   externalID,
			Source:       string(source),
			Name:         strings.TrimSpace(profile.Name),
			DepartmentID: deptID,
			ProfileURL:   profile.ProfileURL,
			DownloadedAt: u.now(),
		}
		if err := tx.UpsertAuthor(ctx, author); err != nil {
			return err
		}
		authorID = author.ID

		if !profile.HasMetrics {
			return nil
		}
		m := profile.Metrics
		return tx.UpsertAuthorMetric(ctx, &AuthorMetric{
			AuthorID:       author.ID,
			Source:         string(source),
			Citations:      m.Citations,
			CitationsSince: m.CitationsSince,
			HIndex:         m.HIndex,
			HIndexSince:    m.HIndexSince,
			I10Index:       m.I10Index,
			I10IndexSince:  m.I10IndexSince,
			GIndex:         m.GIndex,
			GIndexSince:    m.GIndexSince,
		})
	})
	if err != nil {
		return 0, &types.PersistenceError{Op: "upsert_author", Title: profile.Name, Err: err}
	}
	return authorID, nil
}
