package article

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"blogpress/app/internal/apperr"
	"blogpress/app/internal/auth"
	"blogpress/app/internal/db"
	"blogpress/app/internal/media"
	"blogpress/app/internal/validate"
)

// testUser mirrors the columns the article joins read from the users table.
type testUser struct {
	ID        uint `gorm:"primaryKey"`
	Username  string
	Email     string
	AvatarURL string
	Bio       string
}

func (testUser) TableName() string { return "users" }

type stubMedia struct {
	mu       sync.Mutex
	accepted []string
	released []string
	fail     error
}

func (m *stubMedia) Accept(_ context.Context, up media.Upload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", m.fail
	}
	ref := "/uploads/thumbnails/" + up.Filename
	m.accepted = append(m.accepted, ref)
	return ref, nil
}

func (m *stubMedia) Release(_ context.Context, ref string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ref == "" {
		return
	}
	m.released = append(m.released, ref)
}

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func silentLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	gormDB, err := db.Open(db.Options{Path: filepath.Join(t.TempDir(), "articles.db")})
	if err != nil {
		t.Fatalf("db.Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gormDB) })

	if err := gormDB.AutoMigrate(&testUser{}); err != nil {
		t.Fatalf("migrating users: %v", err)
	}
	if err := Migrate(context.Background(), gormDB, silentLogger()); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}

	users := []testUser{
		{ID: 1, Username: "ada", Email: "ada@example.com", AvatarURL: "/a.png", Bio: "Engines"},
		{ID: 2, Username: "grace", Email: "grace@example.com"},
		{ID: 3, Username: "root", Email: "root@example.com"},
	}
	if err := gormDB.Create(&users).Error; err != nil {
		t.Fatalf("seeding users: %v", err)
	}

	return gormDB
}

func setupRepository(t *testing.T) (*GormRepository, *gorm.DB) {
	t.Helper()

	gormDB := setupDatabase(t)
	repo, err := NewRepository(gormDB, silentLogger(), time.Second)
	if err != nil {
		t.Fatalf("NewRepository returned error: %v", err)
	}
	return repo, gormDB
}

func setupService(t *testing.T) (Service, *GormRepository, *stubMedia) {
	t.Helper()

	repo, _ := setupRepository(t)
	mediaStub := &stubMedia{}
	clock := &steppingClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	svc, err := NewService(ServiceOptions{
		Repository: repo,
		Validator:  validate.New(),
		Media:      mediaStub,
		Logger:     silentLogger(),
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc, repo, mediaStub
}

var (
	userOne   = auth.Identity{UserID: 1, Username: "ada", Role: auth.RoleUser}
	userTwo   = auth.Identity{UserID: 2, Username: "grace", Role: auth.RoleUser}
	adminUser = auth.Identity{UserID: 3, Username: "root", Role: auth.RoleAdmin}
)

// failingReadRepository commits inserts but cannot read rows back.
type failingReadRepository struct {
	*GormRepository
}

func (r failingReadRepository) GetByID(context.Context, uint) (*View, error) {
	return nil, errors.New("connection reset")
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Hello World":              "hello-world",
		"  Crème Brûlée: A Guide ": "creme-brulee-a-guide",
		"Go 1.22 -- what's new?":   "go-1-22-what-s-new",
		"Straße und Maß":           "strasse-und-mass",
		"日本語のタイトル":                 "article",
		"!!!":                      "article",
		"":                         "article",
	}
	for input, want := range cases {
		if got := Slugify(input); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestExcerpt(t *testing.T) {
	t.Parallel()

	content := "<h1>Title</h1><script>alert(1)</script><p>The quick   brown fox jumps</p>"
	if got := Excerpt(content, 100); got != "Title The quick brown fox jumps" {
		t.Fatalf("unexpected excerpt %q", got)
	}
	if got := Excerpt(content, 18); got != "Title The quick…" {
		t.Fatalf("unexpected truncated excerpt %q", got)
	}
}

func TestPatchAssignmentsOnlyCarrySuppliedFields(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	published := StatusPublished
	zero := uint(0)

	set := Patch{Status: &published, CategoryID: &zero}.Assignments(now)
	if len(set) != 3 {
		t.Fatalf("expected status, category_id and updated_at, got %v", set)
	}
	if set["status"] != StatusPublished {
		t.Fatalf("unexpected status %v", set["status"])
	}
	if v, ok := set["category_id"]; !ok || v != nil {
		t.Fatalf("expected category to be cleared, got %v", v)
	}
	if set["updated_at"] != now {
		t.Fatalf("expected updated_at stamp, got %v", set["updated_at"])
	}

	if !(Patch{}).Empty() {
		t.Fatalf("expected empty patch")
	}
	if cols := (Patch{Title: new(string), Status: &published}).Columns(); strings.Join(cols, ",") != "title,status" {
		t.Fatalf("unexpected columns %v", cols)
	}
}

func TestUpdateQueryBindsRowIDLast(t *testing.T) {
	t.Parallel()

	repo, gormDB := setupRepository(t)

	title := "Renamed"
	published := StatusPublished
	now := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	stmt := repo.updateQuery(gormDB.Session(&gorm.Session{DryRun: true}), 42, Patch{Title: &title, Status: &published}.Assignments(now)).Statement

	sql := strings.NewReplacer("`", "", `"`, "").Replace(stmt.SQL.String())
	if !strings.Contains(sql, "SET status=?,title=?,updated_at=? WHERE id = ?") {
		t.Fatalf("unexpected update statement %q", sql)
	}
	if len(stmt.Vars) != 4 {
		t.Fatalf("expected four bound values, got %v", stmt.Vars)
	}
	if stmt.Vars[3] != uint(42) {
		t.Fatalf("expected row id to be bound last, got %v", stmt.Vars)
	}
}

func TestRepositoryUpdateAndDeleteMissingRow(t *testing.T) {
	t.Parallel()

	repo, _ := setupRepository(t)
	ctx := context.Background()

	title := "x"
	if err := repo.Update(ctx, 99, Patch{Title: &title}, time.Now()); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found on update, got %v", err)
	}
	if err := repo.Delete(ctx, 99); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found on delete, got %v", err)
	}
}

func TestRepositoryListJoinsAndOrders(t *testing.T) {
	t.Parallel()

	repo, _ := setupRepository(t)
	ctx := context.Background()

	category := &Category{Name: "Science"}
	if err := repo.CreateCategory(ctx, category); err != nil {
		t.Fatalf("CreateCategory returned error: %v", err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []*Record{
		{Title: "Old", Slug: "old", Content: "a", AuthorID: 1, Status: StatusPublished, CategoryID: &category.ID, CreatedAt: base},
		{Title: "New", Slug: "new", Content: "b", AuthorID: 2, Status: StatusDraft, CreatedAt: base.Add(time.Hour)},
	}
	for _, record := range records {
		if err := repo.Create(ctx, record); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	views, total, err := repo.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 2 || len(views) != 2 {
		t.Fatalf("expected two articles, got %d/%d", len(views), total)
	}
	if views[0].Title != "New" || views[1].Title != "Old" {
		t.Fatalf("expected newest first, got %q then %q", views[0].Title, views[1].Title)
	}
	if views[1].CategoryName == nil || *views[1].CategoryName != "Science" {
		t.Fatalf("expected joined category name, got %v", views[1].CategoryName)
	}
	if views[0].CategoryName != nil {
		t.Fatalf("expected nil category name for uncategorised article")
	}
	if views[1].AuthorName != "ada" || views[0].AuthorName != "grace" {
		t.Fatalf("unexpected author names %q / %q", views[0].AuthorName, views[1].AuthorName)
	}

	filtered, total, err := repo.List(ctx, ListFilter{Status: StatusPublished})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 1 || len(filtered) != 1 || filtered[0].Slug != "old" {
		t.Fatalf("expected only published article, got %+v", filtered)
	}

	paged, total, err := repo.List(ctx, ListFilter{Page: 2, PageSize: 1})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 2 || len(paged) != 1 || paged[0].Slug != "old" {
		t.Fatalf("expected second page to hold the older article, got %+v", paged)
	}
}

func TestRepositoryGetBySlugIncludesAuthorProfile(t *testing.T) {
	t.Parallel()

	repo, _ := setupRepository(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := &Record{Title: "Dup", Slug: "dup", Content: "first", AuthorID: 2, CreatedAt: base}
	second := &Record{Title: "Dup", Slug: "dup", Content: "second", AuthorID: 1, CreatedAt: base.Add(time.Minute)}
	for _, record := range []*Record{first, second} {
		if err := repo.Create(ctx, record); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	view, err := repo.GetBySlug(ctx, "dup")
	if err != nil {
		t.Fatalf("GetBySlug returned error: %v", err)
	}
	if view == nil || view.Content != "second" {
		t.Fatalf("expected newest article for colliding slug, got %+v", view)
	}
	if view.AuthorAvatar != "/a.png" || view.AuthorBio != "Engines" {
		t.Fatalf("expected author profile fields, got %q / %q", view.AuthorAvatar, view.AuthorBio)
	}

	missing, err := repo.GetBySlug(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing slug, got %+v / %v", missing, err)
	}
}

func TestRepositoryCategories(t *testing.T) {
	t.Parallel()

	repo, _ := setupRepository(t)
	ctx := context.Background()

	for _, name := range []string{"Travel", "Art", "Music"} {
		if err := repo.CreateCategory(ctx, &Category{Name: name}); err != nil {
			t.Fatalf("CreateCategory returned error: %v", err)
		}
	}

	if err := repo.CreateCategory(ctx, &Category{Name: "Art"}); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected duplicate category to conflict, got %v", err)
	}

	categories, err := repo.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories returned error: %v", err)
	}
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	if strings.Join(names, ",") != "Art,Music,Travel" {
		t.Fatalf("expected name-ascending order, got %v", names)
	}

	exists, err := repo.CategoryExists(ctx, categories[0].ID)
	if err != nil || !exists {
		t.Fatalf("expected category to exist, got %v / %v", exists, err)
	}
	exists, err = repo.CategoryExists(ctx, 999)
	if err != nil || exists {
		t.Fatalf("expected category 999 to be missing, got %v / %v", exists, err)
	}
}

func TestServiceArticleLifecycle(t *testing.T) {
	t.Parallel()

	svc, repo, _ := setupService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, userOne, map[string]any{
		"title":   "Hello World",
		"content": "<p>Lorem ipsum</p>",
	}, nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.Slug != "hello-world" {
		t.Fatalf("expected slug hello-world, got %q", created.Slug)
	}
	if created.AuthorID != userOne.UserID {
		t.Fatalf("expected author %d, got %d", userOne.UserID, created.AuthorID)
	}
	if created.Status != StatusDraft {
		t.Fatalf("expected draft by default, got %q", created.Status)
	}
	if created.Introduction != "Lorem ipsum" {
		t.Fatalf("expected derived introduction, got %q", created.Introduction)
	}

	_, err = svc.Update(ctx, userTwo, created.ID, map[string]any{"title": "Hijacked"}, nil)
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden update by non-author, got %v", err)
	}
	unchanged, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if unchanged.Title != "Hello World" || !unchanged.UpdatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("expected row to be unchanged, got %+v", unchanged)
	}

	updated, err := svc.Update(ctx, userOne, created.ID, map[string]any{"status": "published"}, nil)
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Status != StatusPublished {
		t.Fatalf("expected published, got %q", updated.Status)
	}
	if updated.Title != created.Title || updated.Content != created.Content || updated.Introduction != created.Introduction {
		t.Fatalf("expected untouched fields to keep their values, got %+v", updated)
	}
	if updated.AuthorID != userOne.UserID || updated.Slug != "hello-world" {
		t.Fatalf("expected author and slug to be immutable, got %+v", updated)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("expected updated_at to advance: %s -> %s", created.UpdatedAt, updated.UpdatedAt)
	}

	if err := svc.Delete(ctx, userTwo, created.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden delete by non-author, got %v", err)
	}

	if err := svc.Delete(ctx, userOne, created.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := svc.Get(ctx, created.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestServiceMissingArticle(t *testing.T) {
	t.Parallel()

	svc, _, mediaStub := setupService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, userOne, 404, map[string]any{"title": "x"}, &media.Upload{Filename: "a.png"})
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found on update, got %v", err)
	}
	if err := svc.Delete(ctx, userOne, 404); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found on delete, got %v", err)
	}
	if len(mediaStub.accepted) != 0 {
		t.Fatalf("expected no upload for a missing article, got %v", mediaStub.accepted)
	}
}

func TestServiceAdminOverride(t *testing.T) {
	t.Parallel()

	svc, _, _ := setupService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, userOne, map[string]any{"title": "Owned", "content": "c"}, nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	updated, err := svc.Update(ctx, adminUser, created.ID, map[string]any{"title": "Moderated"}, nil)
	if err != nil {
		t.Fatalf("expected admin update to succeed, got %v", err)
	}
	if updated.Title != "Moderated" || updated.AuthorID != userOne.UserID || updated.Slug != "owned" {
		t.Fatalf("unexpected moderated article %+v", updated)
	}

	if err := svc.Delete(ctx, adminUser, created.ID); err != nil {
		t.Fatalf("expected admin delete to succeed, got %v", err)
	}
}

func TestServiceReleasesSupersededThumbnailAfterUpdate(t *testing.T) {
	t.Parallel()

	svc, _, mediaStub := setupService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, userOne, map[string]any{"title": "Pics", "content": "c"}, &media.Upload{Filename: "old.png"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ThumbnailURL != "/uploads/thumbnails/old.png" {
		t.Fatalf("unexpected thumbnail %q", created.ThumbnailURL)
	}

	updated, err := svc.Update(ctx, userOne, created.ID, map[string]any{}, &media.Upload{Filename: "new.png"})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.ThumbnailURL != "/uploads/thumbnails/new.png" {
		t.Fatalf("expected new thumbnail, got %q", updated.ThumbnailURL)
	}
	if len(mediaStub.released) != 1 || mediaStub.released[0] != "/uploads/thumbnails/old.png" {
		t.Fatalf("expected old thumbnail to be released, got %v", mediaStub.released)
	}

	if err := svc.Delete(ctx, userOne, created.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if len(mediaStub.released) != 2 || mediaStub.released[1] != "/uploads/thumbnails/new.png" {
		t.Fatalf("expected thumbnail release after delete, got %v", mediaStub.released)
	}
}

func TestServiceRejectsBeforeAnyWrite(t *testing.T) {
	t.Parallel()

	svc, repo, mediaStub := setupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, userOne, map[string]any{"title": "", "content": ""}, &media.Upload{Filename: "a.png"})
	verr, ok := apperr.AsValidation(err)
	if !ok || len(verr.Violations) != 2 {
		t.Fatalf("expected two violations, got %v", err)
	}

	_, err = svc.Create(ctx, userOne, map[string]any{"title": "T", "content": "c", "category_id": "77"}, nil)
	if apperr.KindOf(err) != apperr.KindValidationFailed {
		t.Fatalf("expected unknown category to fail validation, got %v", err)
	}

	mediaStub.fail = apperr.ErrUnsupportedMediaType
	_, err = svc.Create(ctx, userOne, map[string]any{"title": "T", "content": "c"}, &media.Upload{Filename: "doc.pdf"})
	if apperr.KindOf(err) != apperr.KindUnsupportedMediaType {
		t.Fatalf("expected unsupported media type, got %v", err)
	}

	views, total, err := repo.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 0 || len(views) != 0 {
		t.Fatalf("expected no rows to be written, got %d", total)
	}
	if len(mediaStub.accepted) != 0 {
		t.Fatalf("expected no uploads to be stored, got %v", mediaStub.accepted)
	}
}

func TestServiceCategories(t *testing.T) {
	t.Parallel()

	svc, _, _ := setupService(t)
	ctx := context.Background()

	if _, err := svc.CreateCategory(ctx, userOne, map[string]any{"name": "News"}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected users to be forbidden, got %v", err)
	}

	created, err := svc.CreateCategory(ctx, adminUser, map[string]any{"name": "  News "})
	if err != nil {
		t.Fatalf("CreateCategory returned error: %v", err)
	}
	if created.Name != "News" || created.ID == 0 {
		t.Fatalf("unexpected category %+v", created)
	}

	if _, err := svc.CreateCategory(ctx, adminUser, map[string]any{"name": "News"}); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	article, err := svc.Create(ctx, userOne, map[string]any{
		"title":       "Filed",
		"content":     "c",
		"category_id": "1",
	}, nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if article.CategoryName == nil || *article.CategoryName != "News" {
		t.Fatalf("expected joined category, got %v", article.CategoryName)
	}

	cleared, err := svc.Update(ctx, userOne, article.ID, map[string]any{"category_id": ""}, nil)
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if cleared.CategoryID != nil {
		t.Fatalf("expected category to be cleared, got %v", *cleared.CategoryID)
	}
}

func TestServiceCreateSucceedsWhenReadBackFails(t *testing.T) {
	t.Parallel()

	repo, _ := setupRepository(t)
	svc, err := NewService(ServiceOptions{
		Repository: failingReadRepository{GormRepository: repo},
		Validator:  validate.New(),
		Media:      &stubMedia{},
		Logger:     silentLogger(),
	})
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	ctx := context.Background()
	created, err := svc.Create(ctx, userOne, map[string]any{
		"title":   "Committed",
		"content": "body",
	}, nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID == 0 || created.Slug != "committed" || created.AuthorName != userOne.Username {
		t.Fatalf("unexpected view %+v", created)
	}

	views, total, err := repo.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if total != 1 || views[0].ID != created.ID {
		t.Fatalf("expected exactly the created row, got %d rows", total)
	}
}
