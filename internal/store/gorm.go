package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/IshaanNene/pubharvest/internal/config"
	"github.com/IshaanNene/pubharvest/internal/types"
)

// rosterOrder puts interrupted work first, then retries, then fresh entries.
const rosterOrder = "CASE WHEN status = 'processing' THEN 0 " +
	"WHEN status = 'error' THEN 1 " +
	"WHEN status = 'pending' OR status IS NULL THEN 2 " +
	"ELSE 3 END, name"

// Open connects the configured backend. The memory driver keeps everything in process.
func Open(cfg config.DatabaseConfig, logger *slog.Logger) (Repository, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return NewMemoryRepository(), nil
	case "mysql", "":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(
			slog.NewLogLogger(logger.With("component", "gorm").Handler(), slog.LevelWarn),
			gormlogger.Config{
				SlowThreshold:             500 * time.Millisecond,
				LogLevel:                  gormLogLevel(cfg.LogLevel),
				IgnoreRecordNotFoundError: true,
			},
		),
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN()), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	repo := NewGormRepository(db, logger)
	if cfg.AutoMigrate {
		if err := repo.Migrate(context.Background()); err != nil {
			repo.Close()
			return nil, err
		}
	}
	logger.Info("database connected", "host", cfg.Host, "name", cfg.Name)
	return repo, nil
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// GormRepository stores everything in MySQL through gorm.
type GormRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewGormRepository wraps an open gorm handle.
func NewGormRepository(db *gorm.DB, logger *slog.Logger) *GormRepository {
	return &GormRepository{db: db, logger: logger.With("component", "store")}
}

func (r *GormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx, logger: r.logger})
	})
}

func (r *GormRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	r.logger.Info("schema migrated", "tables", len(Models()))
	return nil
}

func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ErrNotFound
	}
	return err
}

// duplicate maps a unique-index violation to types.ErrDuplicateKey.
func duplicate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", types.ErrDuplicateKey, err)
	}
	return err
}

// findOrCreateByKey inserts row unless name_key already exists, then reads back the
// stored row. A concurrent writer that wins the insert is picked up by the read.
func (r *GormRepository) findOrCreateByKey(ctx context.Context, key string, row, stored any) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("name_key = ?", key).First(stored).Error; err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name_key"}},
		DoNothing: true,
	}).Create(row).Error; err != nil {
		return duplicate(err)
	}
	return notFound(db.Where("name_key = ?", key).First(stored).Error)
}

func (r *GormRepository) FindOrCreateDepartment(ctx context.Context, name, key string) (uint, error) {
	var stored Department
	if err := r.findOrCreateByKey(ctx, key, &Department{Name: name, NameKey: key}, &stored); err != nil {
		return 0, err
	}
	return stored.ID, nil
}

func (r *GormRepository) UpsertAuthor(ctx context.Context, a *Author) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}, {Name: "source"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "department_id", "profile_url", "downloaded_at", "updated_at"}),
	}).Create(a).Error
	if err != nil {
		return err
	}
	// ON DUPLICATE KEY does not report the existing id.
	var stored Author
	if err := r.db.WithContext(ctx).Where("external_id = ? AND source = ?", a.ExternalID, a.Source).First(&stored).Error; err != nil {
		return notFound(err)
	}
	a.ID = stored.ID
	return nil
}

func (r *GormRepository) UpsertAuthorMetric(ctx context.Context, m *AuthorMetric) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "author_id"}, {Name: "source"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"citations", "citations_since", "h_index", "h_index_since",
			"i10_index", "i10_index_since", "g_index", "g_index_since", "updated_at",
		}),
	}).Create(m).Error
}

func (r *GormRepository) FindAuthor(ctx context.Context, externalID, source string) (*Author, error) {
	var a Author
	if err := r.db.WithContext(ctx).Where("external_id = ? AND source = ?", externalID, source).First(&a).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (r *GormRepository) FindOrCreateVenue(ctx context.Context, name, key string) (uint, error) {
	var stored Venue
	if err := r.findOrCreateByKey(ctx, key, &Venue{Name: name, NameKey: key}, &stored); err != nil {
		return 0, err
	}
	return stored.ID, nil
}

func (r *GormRepository) FindPublication(ctx context.Context, titleHash string, category types.Category, year int, titleOnly bool) (*Publication, error) {
	q := r.db.WithContext(ctx).Where("title_hash = ?", titleHash)
	if !titleOnly {
		q = q.Where("category = ? AND year = ?", string(category), year)
	}
	var p Publication
	if err := q.Order("id").First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *GormRepository) CreatePublication(ctx context.Context, p *Publication) error {
	return duplicate(r.db.WithContext(ctx).Create(p).Error)
}

func (r *GormRepository) RaiseCitations(ctx context.Context, publicationID uint, count int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Publication{}).
		Where("id = ? AND citation_count < ?", publicationID, count).
		Update("citation_count", count)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRepository) SaveSatellite(ctx context.Context, publicationID uint, sat Satellite) error {
	cols := satelliteColumns(sat)
	var model any
	switch sat.Category {
	case types.CategoryArticle:
		model = &ArticleDetail{PublicationID: publicationID, VenueID: sat.VenueID, Volume: sat.Volume, Issue: sat.Issue, Pages: sat.Pages}
	case types.CategoryProceedings:
		model = &ProceedingsDetail{PublicationID: publicationID, Conference: sat.Conference, Publisher: sat.Publisher}
	case types.CategoryBook:
		model = &BookDetail{PublicationID: publicationID, Publisher: sat.Publisher}
	case types.CategoryResearchReport:
		model = &ResearchDetail{PublicationID: publicationID, Label: sat.Label}
	default:
		model = &OtherDetail{PublicationID: publicationID, Note: sat.Note}
	}

	conflict := clause.OnConflict{Columns: []clause.Column{{Name: "publication_id"}}}
	if len(cols) == 0 {
		conflict.DoNothing = true
	} else {
		names := make([]string, 0, len(cols))
		for name := range cols {
			names = append(names, name)
		}
		conflict.DoUpdates = clause.AssignmentColumns(names)
	}
	return r.db.WithContext(ctx).Clauses(conflict).Create(model).Error
}

func (r *GormRepository) LinkAuthor(ctx context.Context, link *AuthorPublication) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "author_id"}, {Name: "publication_id"}},
		DoNothing: true,
	}).Create(link)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRepository) UpsertYearlyCitation(ctx context.Context, yc *YearlyCitation) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "publication_id"}, {Name: "year"}, {Name: "source"}},
		DoUpdates: clause.AssignmentColumns([]string{"citation_count", "updated_at"}),
	}).Create(yc).Error
}

func (r *GormRepository) AddRoster(ctx context.Context, row *RosterRow) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *GormRepository) ListRoster(ctx context.Context, source string, includeCompleted bool) ([]RosterRow, error) {
	q := r.db.WithContext(ctx).Model(&RosterRow{})
	if source != "" {
		q = q.Where("source = ?", source)
	}
	if !includeCompleted {
		q = q.Where("(status IS NULL OR status <> ?)", string(types.StatusCompleted))
	}
	var rows []RosterRow
	if err := q.Order(rosterOrder).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *GormRepository) UpdateRosterStatus(ctx context.Context, id uint, status types.RosterStatus, errMsg *string) error {
	updates := map[string]any{
		"status":        string(status),
		"error_message": errMsg,
	}
	res := r.db.WithContext(ctx).Model(&RosterRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *GormRepository) CreateRun(ctx context.Context, run *ScrapeRun) error {
	return duplicate(r.db.WithContext(ctx).Create(run).Error)
}

func (r *GormRepository) FinishRun(ctx context.Context, runKey, status string, counters RunCounters, errMsg *string, finishedAt time.Time) error {
	updates := map[string]any{
		"status":               status,
		"finished_at":          finishedAt,
		"authors_processed":    counters.AuthorsProcessed,
		"authors_with_errors":  counters.AuthorsWithErrors,
		"publications_fetched": counters.PublicationsFetched,
		"publications_created": counters.PublicationsCreated,
		"publications_updated": counters.PublicationsUpdated,
		"publications_failed":  counters.PublicationsFailed,
	}
	if errMsg != nil {
		updates["error_message"] = *errMsg
	}
	res := r.db.WithContext(ctx).Model(&ScrapeRun{}).Where("run_key = ?", runKey).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (r *GormRepository) GetRun(ctx context.Context, runKey string) (*ScrapeRun, error) {
	var run ScrapeRun
	if err := r.db.WithContext(ctx).Where("run_key = ?", runKey).First(&run).Error; err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

func (r *GormRepository) ListRuns(ctx context.Context, limit int) ([]ScrapeRun, error) {
	q := r.db.WithContext(ctx).Order("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var runs []ScrapeRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
