package article

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"blogpress/app/internal/apperr"
)

// Repository defines persistence operations for articles and categories.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	List(ctx context.Context, filter ListFilter) ([]View, int64, error)
	GetByID(ctx context.Context, id uint) (*View, error)
	GetBySlug(ctx context.Context, slug string) (*View, error)
	Update(ctx context.Context, id uint, patch Patch, now time.Time) error
	Delete(ctx context.Context, id uint) error
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, category *Category) error
	CategoryExists(ctx context.Context, id uint) (bool, error)
}

// GormRepository persists articles using a Gorm database connection.
type GormRepository struct {
	db      *gorm.DB
	logger  *logrus.Logger
	timeout time.Duration
}

const defaultStoreTimeout = 5 * time.Second

// NewRepository constructs a Gorm-backed repository. Every call is bounded by timeout.
func NewRepository(db *gorm.DB, logger *logrus.Logger, timeout time.Duration) (*GormRepository, error) {
	if db == nil {
		return nil, eris.New("gorm DB is required")
	}
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}

	return &GormRepository{db: db, logger: logger, timeout: timeout}, nil
}

var _ Repository = (*GormRepository)(nil)

const (
	viewColumns  = "articles.*, categories.name AS category_name, users.username AS author_name"
	joinCategory = "LEFT JOIN categories ON categories.id = articles.category_id"
	joinAuthor   = "LEFT JOIN users ON users.id = articles.author_id"
)

// Create inserts record and fills in its generated id.
func (r *GormRepository) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return eris.New("article is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		r.logError(logrus.Fields{"slug": record.Slug, "author_id": record.AuthorID}, err, "inserting article")
		return eris.Wrapf(err, "inserting article: %s", record.Slug)
	}

	return nil
}

// List returns one page of articles, newest first, plus the total matching the filter.
func (r *GormRepository) List(ctx context.Context, filter ListFilter) ([]View, int64, error) {
	filter = filter.normalised()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	scoped := func() *gorm.DB {
		tx := r.db.WithContext(ctx).Table("articles")
		if filter.Status != "" {
			tx = tx.Where("articles.status = ?", filter.Status)
		}
		if filter.CategoryID != 0 {
			tx = tx.Where("articles.category_id = ?", filter.CategoryID)
		}
		if filter.AuthorID != 0 {
			tx = tx.Where("articles.author_id = ?", filter.AuthorID)
		}
		return tx
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		r.logError(nil, err, "counting articles")
		return nil, 0, eris.Wrap(err, "counting articles")
	}

	views := make([]View, 0, filter.PageSize)
	err := scoped().
		Select(viewColumns).
		Joins(joinCategory).
		Joins(joinAuthor).
		Order("articles.created_at DESC").
		Limit(filter.PageSize).
		Offset((filter.Page - 1) * filter.PageSize).
		Scan(&views).Error
	if err != nil {
		r.logError(nil, err, "listing articles")
		return nil, 0, eris.Wrap(err, "listing articles")
	}

	return views, total, nil
}

// GetByID returns the article with id or nil when not found.
func (r *GormRepository) GetByID(ctx context.Context, id uint) (*View, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var views []View
	err := r.db.WithContext(ctx).
		Table("articles").
		Select(viewColumns).
		Joins(joinCategory).
		Joins(joinAuthor).
		Where("articles.id = ?", id).
		Limit(1).
		Scan(&views).Error
	if err != nil {
		r.logError(logrus.Fields{"article_id": id}, err, "fetching article by id")
		return nil, eris.Wrapf(err, "fetching article by id: %d", id)
	}
	if len(views) == 0 {
		return nil, nil
	}

	return &views[0], nil
}

// GetBySlug returns the newest article with slug, including author avatar and bio, or
// nil when not found.
func (r *GormRepository) GetBySlug(ctx context.Context, slug string) (*View, error) {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return nil, eris.New("slug is required")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var views []View
	err := r.db.WithContext(ctx).
		Table("articles").
		Select(viewColumns+", users.avatar_url AS author_avatar, users.bio AS author_bio").
		Joins(joinCategory).
		Joins(joinAuthor).
		Where("articles.slug = ?", trimmed).
		Order("articles.created_at DESC").
		Order("articles.id DESC").
		Limit(1).
		Scan(&views).Error
	if err != nil {
		r.logError(logrus.Fields{"slug": trimmed}, err, "fetching article by slug")
		return nil, eris.Wrapf(err, "fetching article by slug: %s", trimmed)
	}
	if len(views) == 0 {
		return nil, nil
	}

	return &views[0], nil
}

// Update writes the supplied patch fields plus updated_at to the row with id.
func (r *GormRepository) Update(ctx context.Context, id uint, patch Patch, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result := r.updateQuery(r.db.WithContext(ctx), id, patch.Assignments(now))
	if result.Error != nil {
		r.logError(logrus.Fields{"article_id": id, "columns": patch.Columns()}, result.Error, "updating article")
		return eris.Wrapf(result.Error, "updating article: %d", id)
	}
	if result.RowsAffected == 0 {
		return eris.Wrapf(apperr.ErrNotFound, "article %d", id)
	}

	return nil
}

// updateQuery binds the assignments first and the row id last.
func (r *GormRepository) updateQuery(tx *gorm.DB, id uint, set map[string]any) *gorm.DB {
	return tx.Model(&Record{}).Where("id = ?", id).Updates(set)
}

// Delete removes the row with id.
func (r *GormRepository) Delete(ctx context.Context, id uint) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result := r.db.WithContext(ctx).Delete(&Record{}, id)
	if result.Error != nil {
		r.logError(logrus.Fields{"article_id": id}, result.Error, "deleting article")
		return eris.Wrapf(result.Error, "deleting article: %d", id)
	}
	if result.RowsAffected == 0 {
		return eris.Wrapf(apperr.ErrNotFound, "article %d", id)
	}

	return nil
}

// ListCategories returns every category ordered by name.
func (r *GormRepository) ListCategories(ctx context.Context) ([]Category, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var categories []Category
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		r.logError(nil, err, "listing categories")
		return nil, eris.Wrap(err, "listing categories")
	}

	return categories, nil
}

// CreateCategory inserts category. A duplicate name is a conflict.
func (r *GormRepository) CreateCategory(ctx context.Context, category *Category) error {
	if category == nil {
		return eris.New("category is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.db.WithContext(ctx).Create(category).Error; err != nil {
		if isDuplicate(err) {
			return eris.Wrapf(apperr.ErrConflict, "category %q already exists", category.Name)
		}
		r.logError(logrus.Fields{"name": category.Name}, err, "inserting category")
		return eris.Wrapf(err, "inserting category: %s", category.Name)
	}

	return nil
}

// CategoryExists reports whether a category with id is stored.
func (r *GormRepository) CategoryExists(ctx context.Context, id uint) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	if err := r.db.WithContext(ctx).Model(&Category{}).Where("id = ?", id).Count(&count).Error; err != nil {
		r.logError(logrus.Fields{"category_id": id}, err, "checking category")
		return false, eris.Wrapf(err, "checking category: %d", id)
	}

	return count > 0, nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func (r *GormRepository) logError(fields logrus.Fields, err error, message string) {
	if r.logger == nil {
		return
	}

	entry := r.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}
