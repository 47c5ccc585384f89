package store

import (
	"time"

	"gorm.io/datatypes"
)

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

type Department struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	NameKey   string    `json:"-" gorm:"column:name_key;type:varchar(255);not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (Department) TableName() string { return "departments" }

type Author struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ExternalID   string    `json:"external_id" gorm:"column:external_id;type:varchar(128);not null;uniqueIndex:uq_authors_external_source"`
	Source       string    `json:"source" gorm:"type:varchar(32);not null;uniqueIndex:uq_authors_external_source"`
	Name         string    `json:"name" gorm:"type:varchar(255);not null"`
	DepartmentID *uint     `json:"department_id" gorm:"column:department_id;index"`
	ProfileURL   string    `json:"profile_url" gorm:"column:profile_url;type:varchar(512)"`
	DownloadedAt time.Time `json:"downloaded_at" gorm:"column:downloaded_at"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Author) TableName() string { return "authors" }

// AuthorMetric holds one source's profile counters for an author.
type AuthorMetric struct {
	ID             uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	AuthorID       uint      `json:"author_id" gorm:"column:author_id;not null;uniqueIndex:uq_author_metrics_author_source"`
	Source         string    `json:"source" gorm:"type:varchar(32);not null;uniqueIndex:uq_author_metrics_author_source"`
	Citations      int       `json:"citations" gorm:"not null;default:0"`
	CitationsSince int       `json:"citations_since" gorm:"column:citations_since;not null;default:0"`
	HIndex         int       `json:"h_index" gorm:"column:h_index;not null;default:0"`
	HIndexSince    int       `json:"h_index_since" gorm:"column:h_index_since;not null;default:0"`
	I10Index       int       `json:"i10_index" gorm:"column:i10_index;not null;default:0"`
	I10IndexSince  int       `json:"i10_index_since" gorm:"column:i10_index_since;not null;default:0"`
	GIndex         int       `json:"g_index" gorm:"column:g_index;not null;default:0"`
	GIndexSince    int       `json:"g_index_since" gorm:"column:g_index_since;not null;default:0"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (AuthorMetric) TableName() string { return "author_metrics" }

type Venue struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string    `json:"name" gorm:"type:varchar(512);not null"`
	NameKey   string    `json:"-" gorm:"column:name_key;type:varchar(512);not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (Venue) TableName() string { return "venues" }

type Publication struct {
	ID            uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Title         string    `json:"title" gorm:"type:text;not null"`
	TitleHash     string    `json:"title_hash" gorm:"column:title_hash;type:char(40);not null;uniqueIndex:uq_publications_identity;index"`
	Category      string    `json:"category" gorm:"type:varchar(32);not null;uniqueIndex:uq_publications_identity"`
	Year          int       `json:"year" gorm:"not null;default:0;uniqueIndex:uq_publications_identity"`
	CitationCount int       `json:"citation_count" gorm:"column:citation_count;not null;default:0"`
	Source        string    `json:"source" gorm:"type:varchar(32);not null"`
	DetailURL     string    `json:"detail_url" gorm:"column:detail_url;type:varchar(1024)"`
	DownloadedAt  time.Time `json:"downloaded_at" gorm:"column:downloaded_at"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Publication) TableName() string { return "publications" }

type ArticleDetail struct {
	ID            uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	PublicationID uint   `json:"publication_id" gorm:"column:publication_id;not null;uniqueIndex"`
	VenueID       uint   `json:"venue_id" gorm:"column:venue_id;not null;index"`
	Volume        string `json:"volume" gorm:"type:varchar(32)"`
	Issue         string `json:"issue" gorm:"type:varchar(32)"`
	Pages         string `json:"pages" gorm:"type:varchar(64)"`
}

func (ArticleDetail) TableName() string { return "article_details" }

type ProceedingsDetail struct {
	ID            uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	PublicationID uint   `json:"publication_id" gorm:"column:publication_id;not null;uniqueIndex"`
	Conference    string `json:"conference" gorm:"type:varchar(512)"`
	Publisher     string `json:"publisher" gorm:"type:varchar(512)"`
}

func (ProceedingsDetail) TableName() string { return "proceedings_details" }

type BookDetail struct {
	ID            uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	PublicationID uint   `json:"publication_id" gorm:"column:publication_id;not null;uniqueIndex"`
	Publisher     string `json:"publisher" gorm:"type:varchar(512)"`
}

func (BookDetail) TableName() string { return "book_details" }

type ResearchDetail struct {
	ID            uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	PublicationID uint   `json:"publication_id" gorm:"column:publication_id;not null;uniqueIndex"`
	Label         string `json:"label" gorm:"type:varchar(64)"`
}

func (ResearchDetail) TableName() string { return "research_details" }

type OtherDetail struct {
	ID            uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	PublicationID uint   `json:"publication_id" gorm:"column:publication_id;not null;uniqueIndex"`
	Note          string `json:"note" gorm:"type:text"`
}

func (OtherDetail) TableName() string { return "other_details" }

type AuthorPublication struct {
	ID            uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	AuthorID      uint      `json:"author_id" gorm:"column:author_id;not null;uniqueIndex:uq_author_publications_pair"`
	PublicationID uint      `json:"publication_id" gorm:"column:publication_id;not null;uniqueIndex:uq_author_publications_pair"`
	AuthorOrder   string    `json:"author_order" gorm:"column:author_order;type:varchar(32)"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (AuthorPublication) TableName() string { return "author_publications" }

type YearlyCitation struct {
	ID            uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	PublicationID uint      `json:"publication_id" gorm:"column:publication_id;not null;uniqueIndex:uq_yearly_citations_pub_year_source"`
	Year          int       `json:"year" gorm:"not null;uniqueIndex:uq_yearly_citations_pub_year_source"`
	Source        string    `json:"source" gorm:"type:varchar(32);not null;uniqueIndex:uq_yearly_citations_pub_year_source"`
	Count         int       `json:"count" gorm:"column:citation_count;not null;default:0"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (YearlyCitation) TableName() string { return "yearly_citations" }

// RosterRow is the stored form of a roster entry. A NULL status reads as pending.
type RosterRow struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name         string    `json:"name" gorm:"type:varchar(255);not null;index"`
	ProfileURL   string    `json:"profile_url" gorm:"column:profile_url;type:varchar(512);not null"`
	Source       string    `json:"source" gorm:"type:varchar(32);not null;index"`
	Status       *string   `json:"status" gorm:"type:varchar(16)"`
	ErrorMessage *string   `json:"error_message" gorm:"column:error_message;type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (RosterRow) TableName() string { return "scrape_roster" }

type ScrapeRun struct {
	ID     uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	RunKey string `json:"run_key" gorm:"column:run_key;type:char(36);not null;uniqueIndex"`

	Source        string         `json:"source" gorm:"type:varchar(32);not null"`
	TriggerSource string         `json:"trigger_source" gorm:"column:trigger_source;type:varchar(64);not null"`
	Status        string         `json:"status" gorm:"type:varchar(16);not null;default:'running'"`
	Options       datatypes.JSON `json:"options" gorm:"column:options"`
	ErrorMessage  *string        `json:"error_message" gorm:"type:text"`
	StartedAt     time.Time      `json:"started_at" gorm:"column:started_at"`
	FinishedAt    *time.Time     `json:"finished_at" gorm:"column:finished_at"`

	AuthorsProcessed    int `json:"authors_processed" gorm:"column:authors_processed;not null;default:0"`
	AuthorsWithErrors   int `json:"authors_with_errors" gorm:"column:authors_with_errors;not null;default:0"`
	PublicationsFetched int `json:"publications_fetched" gorm:"column:publications_fetched;not null;default:0"`
	PublicationsCreated int `json:"publications_created" gorm:"column:publications_created;not null;default:0"`
	PublicationsUpdated int `json:"publications_updated" gorm:"column:publications_updated;not null;default:0"`
	PublicationsFailed  int `json:"publications_failed" gorm:"column:publications_failed;not null;default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (ScrapeRun) TableName() string { return "scrape_runs" }

// Models lists every table for migration.
func Models() []any {
	return []any{
		&Department{}, &Author{}, &AuthorMetric{}, &Venue{}, &Publication{},
		&ArticleDetail{}, &ProceedingsDetail{}, &BookDetail{}, &ResearchDetail{}, &OtherDetail{},
		&AuthorPublication{}, &YearlyCitation{}, &RosterRow{}, &ScrapeRun{},
	}
}
