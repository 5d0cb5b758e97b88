package article

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Status is the publication state of an article.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// ParseStatus maps a submitted value onto a Status. Empty input means draft.
func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case "", StatusDraft:
		return StatusDraft, nil
	case StatusPublished:
		return StatusPublished, nil
	default:
		return "", eris.Errorf("unknown article status: %q", value)
	}
}

// Record is the persisted article row.
type Record struct {
	ID           uint      `gorm:"primaryKey"`
	Title        string    `gorm:"size:200;not null"`
	Slug         string    `gorm:"size:255;index:idx_articles_slug;not null"`
	Introduction string    `gorm:"type:text"`
	Content      string    `gorm:"type:text;not null"`
	ThumbnailURL string    `gorm:"size:2048"`
	CategoryID   *uint     `gorm:"index:idx_articles_category"`
	AuthorID     uint      `gorm:"not null;index:idx_articles_author"`
	Status       Status    `gorm:"size:16;not null;default:draft"`
	CreatedAt    time.Time `gorm:"index:idx_articles_created_at"`
	UpdatedAt    time.Time
}

// TableName defines the table name for the Record model.
func (Record) TableName() string {
	return "articles"
}

// Category groups articles under a unique display name.
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:64;uniqueIndex:idx_categories_name;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName defines the table name for the Category model.
func (Category) TableName() string {
	return "categories"
}

// View is an article joined with its category and author display fields.
// AuthorAvatar and AuthorBio are only populated by slug lookups.
type View struct {
	ID           uint
	Title        string
	Slug         string
	Introduction string
	Content      string
	ThumbnailURL string
	CategoryID   *uint
	CategoryName *string
	AuthorID     uint
	AuthorName   string
	AuthorAvatar string
	AuthorBio    string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ListFilter narrows and pages article listings.
type ListFilter struct {
	Status     Status
	CategoryID uint
	AuthorID   uint
	Page       int
	PageSize   int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (f ListFilter) normalised() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	return f
}
