package http

import (
	"context"
	"mime/multipart"
	stdhttp "net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rotisserie/eris"

	"blogpress/app/internal/article"
	"blogpress/app/internal/media"
)

// uploadField is the multipart part carrying the thumbnail image.
const uploadField = "file"

// articleFormFields are the multipart values forwarded to the article service.
var articleFormFields = []string{"title", "introduction", "content", "category_id", "status"}

// ArticleBody is the JSON shape of an article.
type ArticleBody struct {
	ID           uint      `json:"id"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	Introduction string    `json:"introduction"`
	Content      string    `json:"content"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	CategoryID   *uint     `json:"category_id,omitempty"`
	CategoryName *string   `json:"category_name,omitempty"`
	AuthorID     uint      `json:"author_id"`
	AuthorName   string    `json:"author_name"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AuthorBody is the author profile nested in article details.
type AuthorBody struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

// ArticleDetailBody is an article with its author profile.
type ArticleDetailBody struct {
	ArticleBody
	Author AuthorBody `json:"author"`
}

type articleListInput struct {
	Status     string `query:"status" enum:"draft,published" doc:"Only articles with this status"`
	CategoryID uint   `query:"category_id" doc:"Only articles in this category"`
	AuthorID   uint   `query:"author_id" doc:"Only articles by this author"`
	Page       int    `query:"page" minimum:"1" default:"1"`
	PageSize   int    `query:"page_size" minimum:"1" maximum:"100" default:"20"`
}

type articleListResponse struct {
	Total int64 `header:"X-Total-Count"`
	Body  []ArticleBody
}

type articleIDInput struct {
	ID uint `path:"id" minimum:"1"`
}

type articleSlugInput struct {
	Slug string `path:"slug"`
}

type articleResponse struct {
	Body ArticleBody
}

type articleDetailResponse struct {
	Body ArticleDetailBody
}

type articleCreateInput struct {
	RawBody multipart.Form
}

type articleUpdateInput struct {
	ID      uint `path:"id" minimum:"1"`
	RawBody multipart.Form
}

type articleDeleteResponse struct {
	Body struct {
		Message string `json:"message"`
		ID      uint   `json:"id"`
	}
}

func (s *Server) registerArticleRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-articles",
		Method:      stdhttp.MethodGet,
		Path:        "/articles",
		Summary:     "List articles, newest first",
		Tags:        []string{"articles"},
	}, s.listArticlesHandler)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-article",
		Method:      stdhttp.MethodGet,
		Path:        "/articles/{id}",
		Summary:     "Fetch an article by id",
		Tags:        []string{"articles"},
	}, s.getArticleHandler)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-article-by-slug",
		Method:      stdhttp.MethodGet,
		Path:        "/articles/detail/{slug}",
		Summary:     "Fetch an article and its author by slug",
		Tags:        []string{"articles"},
	}, s.getArticleBySlugHandler)

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-article",
		Method:        stdhttp.MethodPost,
		Path:          "/articles",
		Summary:       "Create an article with an optional thumbnail",
		Tags:          []string{"articles"},
		DefaultStatus: stdhttp.StatusCreated,
		MaxBodyBytes:  s.formBodyLimit(),
		Middlewares:   s.pipeline(s.authenticate(), limitBody(s.formBodyLimit())),
	}, s.createArticleHandler)

	huma.Register(s.api, huma.Operation{
		OperationID:  "update-article",
		Method:       stdhttp.MethodPut,
		Path:         "/articles/{id}",
		Summary:      "Update the supplied fields of an article",
		Tags:         []string{"articles"},
		MaxBodyBytes: s.formBodyLimit(),
		Middlewares:  s.pipeline(s.authenticate(), limitBody(s.formBodyLimit())),
	}, s.updateArticleHandler)

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-article",
		Method:      stdhttp.MethodDelete,
		Path:        "/articles/{id}",
		Summary:     "Delete an article",
		Tags:        []string{"articles"},
		Middlewares: s.pipeline(s.authenticate()),
	}, s.deleteArticleHandler)
}

func (s *Server) listArticlesHandler(ctx context.Context, input *articleListInput) (*articleListResponse, error) {
	filter := article.ListFilter{
		CategoryID: input.CategoryID,
		AuthorID:   input.AuthorID,
		Page:       input.Page,
		PageSize:   input.PageSize,
	}
	if input.Status != "" {
		status, err := article.ParseStatus(input.Status)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity("invalid status filter")
		}
		filter.Status = status
	}

	views, total, err := s.articles.List(ctx, filter)
	if err != nil {
		return nil, s.fail(ctx, err, "listing articles")
	}

	resp := &articleListResponse{Total: total, Body: make([]ArticleBody, 0, len(views))}
	for _, view := range views {
		resp.Body = append(resp.Body, newArticleBody(view))
	}
	return resp, nil
}

func (s *Server) getArticleHandler(ctx context.Context, input *articleIDInput) (*articleResponse, error) {
	view, err := s.articles.Get(ctx, input.ID)
	if err != nil {
		return nil, s.fail(ctx, err, "retrieving article")
	}
	return &articleResponse{Body: newArticleBody(*view)}, nil
}

func (s *Server) getArticleBySlugHandler(ctx context.Context, input *articleSlugInput) (*articleDetailResponse, error) {
	view, err := s.articles.GetBySlug(ctx, input.Slug)
	if err != nil {
		return nil, s.fail(ctx, err, "retrieving article by slug")
	}

	return &articleDetailResponse{Body: ArticleDetailBody{
		ArticleBody: newArticleBody(*view),
		Author: AuthorBody{
			ID:        view.AuthorID,
			Username:  view.AuthorName,
			AvatarURL: view.AuthorAvatar,
			Bio:       view.AuthorBio,
		},
	}}, nil
}

func (s *Server) createArticleHandler(ctx context.Context, input *articleCreateInput) (*articleResponse, error) {
	identity, err := identityFrom(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, "creating article")
	}

	upload, closeUpload, err := formUpload(&input.RawBody)
	if err != nil {
		return nil, s.fail(ctx, err, "reading upload")
	}
	defer closeUpload()

	view, err := s.articles.Create(ctx, identity, formFields(&input.RawBody), upload)
	if err != nil {
		return nil, s.fail(ctx, err, "creating article")
	}
	return &articleResponse{Body: newArticleBody(*view)}, nil
}

func (s *Server) updateArticleHandler(ctx context.Context, input *articleUpdateInput) (*articleResponse, error) {
	identity, err := identityFrom(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, "updating article")
	}

	upload, closeUpload, err := formUpload(&input.RawBody)
	if err != nil {
		return nil, s.fail(ctx, err, "reading upload")
	}
	defer closeUpload()

	view, err := s.articles.Update(ctx, identity, input.ID, formFields(&input.RawBody), upload)
	if err != nil {
		return nil, s.fail(ctx, err, "updating article")
	}
	return &articleResponse{Body: newArticleBody(*view)}, nil
}

func (s *Server) deleteArticleHandler(ctx context.Context, input *articleIDInput) (*articleDeleteResponse, error) {
	identity, err := identityFrom(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, "deleting article")
	}

	if err := s.articles.Delete(ctx, identity, input.ID); err != nil {
		return nil, s.fail(ctx, err, "deleting article")
	}

	resp := &articleDeleteResponse{}
	resp.Body.Message = "article deleted"
	resp.Body.ID = input.ID
	return resp, nil
}

// formFields copies the first value of every known article field present in form.
// Absent fields stay absent so updates only touch what was sent.
func formFields(form *multipart.Form) map[string]any {
	fields := make(map[string]any, len(articleFormFields))
	if form == nil {
		return fields
	}
	for _, name := range articleFormFields {
		if values, ok := form.Value[name]; ok && len(values) > 0 {
			fields[name] = values[0]
		}
	}
	return fields
}

// formUpload opens the thumbnail part when one was sent. The returned func closes it.
func formUpload(form *multipart.Form) (*media.Upload, func(), error) {
	noop := func() {}
	if form == nil {
		return nil, noop, nil
	}

	headers := form.File[uploadField]
	if len(headers) == 0 || headers[0] == nil {
		return nil, noop, nil
	}
	header := headers[0]

	file, err := header.Open()
	if err != nil {
		return nil, noop, eris.Wrap(err, "opening uploaded file")
	}

	upload := &media.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
	return upload, func() { _ = file.Close() }, nil
}

func newArticleBody(view article.View) ArticleBody {
	return ArticleBody{
		ID:           view.ID,
		Title:        view.Title,
		Slug:         view.Slug,
		Introduction: view.Introduction,
		Content:      view.Content,
		ThumbnailURL: view.ThumbnailURL,
		CategoryID:   view.CategoryID,
		CategoryName: view.CategoryName,
		AuthorID:     view.AuthorID,
		AuthorName:   view.AuthorName,
		Status:       string(view.Status),
		CreatedAt:    view.CreatedAt,
		UpdatedAt:    view.UpdatedAt,
	}
}
