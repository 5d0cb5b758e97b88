package article

import (
	"context"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"blogpress/app/internal/apperr"
	"blogpress/app/internal/auth"
	"blogpress/app/internal/media"
	"blogpress/app/internal/validate"
)

// Service defines article and category operations on top of the repository.
type Service interface {
	Create(ctx context.Context, actor auth.Identity, fields map[string]any, upload *media.Upload) (*View, error)
	Update(ctx context.Context, actor auth.Identity, id uint, fields map[string]any, upload *media.Upload) (*View, error)
	Delete(ctx context.Context, actor auth.Identity, id uint) error
	List(ctx context.Context, filter ListFilter) ([]View, int64, error)
	Get(ctx context.Context, id uint) (*View, error)
	GetBySlug(ctx context.Context, slug string) (*View, error)
	Categories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, actor auth.Identity, fields map[string]any) (*Category, error)
}

// MediaHandler accepts and releases uploaded thumbnails.
type MediaHandler interface {
	Accept(ctx context.Context, up media.Upload) (string, error)
	Release(ctx context.Context, ref string)
}

// Checker validates payloads against named rule sets.
type Checker interface {
	Check(set string, fields map[string]any) (map[string]any, error)
}

// ServiceOptions wires the article service.
type ServiceOptions struct {
	Repository Repository
	Validator  Checker
	Media      MediaHandler
	Logger     *logrus.Logger
	SentryHub  *sentry.Hub
	Clock      func() time.Time
}

type service struct {
	repo      Repository
	validator Checker
	media     MediaHandler
	logger    *logrus.Logger
	sentryHub *sentry.Hub
	now       func() time.Time
}

var _ Service = (*service)(nil)

// NewService validates opts and returns the article service.
func NewService(opts ServiceOptions) (Service, error) {
	if opts.Repository == nil {
		return nil, eris.New("article repository is required")
	}
	if opts.Validator == nil {
		return nil, eris.New("validator is required")
	}
	if opts.Media == nil {
		return nil, eris.New("media handler is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &service{
		repo:      opts.Repository,
		validator: opts.Validator,
		media:     opts.Media,
		logger:    opts.Logger,
		sentryHub: opts.SentryHub,
		now:       clock,
	}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Identity, fields map[string]any, upload *media.Upload) (*View, error) {
	clean, err := s.validator.Check(validate.ArticleCreate, fields)
	if err != nil {
		return nil, err
	}

	categoryID, err := s.resolveCategory(ctx, clean)
	if err != nil {
		return nil, err
	}

	status, err := ParseStatus(stringField(clean, "status"))
	if err != nil {
		return nil, apperr.Invalid("status", "must be one of: draft, published")
	}

	title := stringField(clean, "title")
	content := stringField(clean, "content")
	introduction := stringField(clean, "introduction")
	if introduction == "" {
		introduction = Excerpt(content, excerptLength)
	}

	var thumbnail string
	if upload != nil {
		thumbnail, err = s.media.Accept(ctx, *upload)
		if err != nil {
			return nil, eris.Wrap(err, "accepting thumbnail")
		}
	}

	now := s.now()
	record := &Record{
		Title:        title,
		Slug:         Slugify(title),
		Introduction: introduction,
		Content:      content,
		ThumbnailURL: thumbnail,
		AuthorID:     actor.UserID,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if categoryID != nil && *categoryID != 0 {
		record.CategoryID = categoryID
	}

	if err := s.repo.Create(ctx, record); err != nil {
		s.media.Release(ctx, thumbnail)
		s.recordError(logrus.Fields{"author_id": actor.UserID, "slug": record.Slug}, err, "creating article")
		return nil, eris.Wrap(err, "creating article")
	}

	view, err := s.Get(ctx, record.ID)
	if err != nil {
		// The row is committed, so the create still succeeds.
		if s.logger != nil {
			s.logger.WithError(err).WithField("article_id", record.ID).Warn("reading back created article")
		}
		return viewFromRecord(record, actor), nil
	}
	return view, nil
}

// viewFromRecord builds a View from a freshly inserted record. The category name is
// left unset since it needs a join.
func viewFromRecord(record *Record, author auth.Identity) *View {
	return &View{
		ID:           record.ID,
		Title:        record.Title,
		Slug:         record.Slug,
		Introduction: record.Introduction,
		Content:      record.Content,
		ThumbnailURL: record.ThumbnailURL,
		CategoryID:   record.CategoryID,
		AuthorID:     record.AuthorID,
		AuthorName:   author.Username,
		Status:       record.Status,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

func (s *service) Update(ctx context.Context, actor auth.Identity, id uint, fields map[string]any, upload *media.Upload) (*View, error) {
	clean, err := s.validator.Check(validate.ArticleUpdate, fields)
	if err != nil {
		return nil, err
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := auth.Authorize(actor, current.AuthorID, auth.PermUpdateArticle); err != nil {
		return nil, err
	}

	patch := Patch{
		Title:        optionalString(clean, "title"),
		Introduction: optionalString(clean, "introduction"),
		Content:      optionalString(clean, "content"),
	}
	if _, ok := clean["status"]; ok {
		status, err := ParseStatus(stringField(clean, "status"))
		if err != nil {
			return nil, apperr.Invalid("status", "must be one of: draft, published")
		}
		patch.Status = &status
	}
	if _, ok := clean["category_id"]; ok {
		categoryID, err := s.resolveCategory(ctx, clean)
		if err != nil {
			return nil, err
		}
		patch.CategoryID = categoryID
	}

	var thumbnail string
	if upload != nil {
		thumbnail, err = s.media.Accept(ctx, *upload)
		if err != nil {
			return nil, eris.Wrap(err, "accepting thumbnail")
		}
		patch.ThumbnailURL = &thumbnail
	}

	if err := s.repo.Update(ctx, id, patch, s.now()); err != nil {
		s.media.Release(ctx, thumbnail)
		if apperr.KindOf(err) != apperr.KindNotFound {
			s.recordError(logrus.Fields{"article_id": id, "columns": patch.Columns()}, err, "updating article")
		}
		return nil, eris.Wrapf(err, "updating article %d", id)
	}

	if thumbnail != "" && current.ThumbnailURL != "" && current.ThumbnailURL != thumbnail {
		s.media.Release(ctx, current.ThumbnailURL)
	}

	return s.Get(ctx, id)
}

func (s *service) Delete(ctx context.Context, actor auth.Identity, id uint) error {
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if err := auth.Authorize(actor, current.AuthorID, auth.PermDeleteArticle); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if apperr.KindOf(err) != apperr.KindNotFound {
			s.recordError(logrus.Fields{"article_id": id}, err, "deleting article")
		}
		return eris.Wrapf(err, "deleting article %d", id)
	}

	s.media.Release(ctx, current.ThumbnailURL)
	return nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]View, int64, error) {
	views, total, err := s.repo.List(ctx, filter)
	if err != nil {
		s.recordError(nil, err, "listing articles")
		return nil, 0, eris.Wrap(err, "listing articles")
	}
	return views, total, nil
}

func (s *service) Get(ctx context.Context, id uint) (*View, error) {
	return s.load(ctx, id)
}

func (s *service) GetBySlug(ctx context.Context, slug string) (*View, error) {
	view, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		s.recordError(logrus.Fields{"slug": slug}, err, "retrieving article by slug")
		return nil, eris.Wrapf(err, "retrieving article: %s", slug)
	}
	if view == nil {
		return nil, eris.Wrapf(apperr.ErrNotFound, "article %q", slug)
	}
	return view, nil
}

func (s *service) Categories(ctx context.Context) ([]Category, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		s.recordError(nil, err, "listing categories")
		return nil, eris.Wrap(err, "listing categories")
	}
	return categories, nil
}

func (s *service) CreateCategory(ctx context.Context, actor auth.Identity, fields map[string]any) (*Category, error) {
	clean, err := s.validator.Check(validate.CategoryCreate, fields)
	if err != nil {
		return nil, err
	}

	if err := auth.Authorize(actor, 0, auth.PermManageCategories); err != nil {
		return nil, err
	}

	category := &Category{Name: stringField(clean, "name"), CreatedAt: s.now()}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		if apperr.KindOf(err) != apperr.KindConflict {
			s.recordError(logrus.Fields{"name": category.Name}, err, "creating category")
		}
		return nil, eris.Wrap(err, "creating category")
	}

	return category, nil
}

func (s *service) load(ctx context.Context, id uint) (*View, error) {
	view, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.recordError(logrus.Fields{"article_id": id}, err, "retrieving article")
		return nil, eris.Wrapf(err, "retrieving article %d", id)
	}
	if view == nil {
		return nil, eris.Wrapf(apperr.ErrNotFound, "article %d", id)
	}
	return view, nil
}

// resolveCategory parses category_id from clean and checks that it exists. An empty
// value resolves to zero, which clears the category on update.
func (s *service) resolveCategory(ctx context.Context, clean map[string]any) (*uint, error) {
	raw, ok := clean["category_id"]
	if !ok {
		return nil, nil
	}

	text, _ := raw.(string)
	if text == "" {
		zero := uint(0)
		return &zero, nil
	}

	parsed, err := strconv.ParseUint(text, 10, 64)
	if err != nil || parsed == 0 {
		return nil, apperr.Invalid("category_id", "must reference an existing category")
	}
	id := uint(parsed)

	exists, err := s.repo.CategoryExists(ctx, id)
	if err != nil {
		s.recordError(logrus.Fields{"category_id": id}, err, "checking category")
		return nil, eris.Wrap(err, "checking category")
	}
	if !exists {
		return nil, apperr.Invalid("category_id", "must reference an existing category")
	}

	return &id, nil
}

func (s *service) recordError(fields logrus.Fields, err error, message string) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if len(fields) > 0 {
			entry = entry.WithFields(fields)
		}
		entry.Error(message)
	}

	if s.sentryHub != nil {
		s.sentryHub.CaptureException(err)
	}
}

func stringField(fields map[string]any, key string) string {
	value, _ := fields[key].(string)
	return value
}

func optionalString(fields map[string]any, key string) *string {
	value, ok := fields[key].(string)
	if !ok {
		return nil
	}
	return &value
}
