package http

import (
	"context"
	stdhttp "net/http"

	"github.com/danielgtaylor/huma/v2"

	"blogpress/app/internal/article"
	"blogpress/app/internal/auth"
)

type categoryListResponse struct {
	Body []article.Category
}

type categoryInput struct {
	Body struct {
		Name string `json:"name,omitempty" doc:"Category display name"`
	}
}

type categoryResponse struct {
	Body *article.Category
}

func (s *Server) registerCategoryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-categories",
		Method:      stdhttp.MethodGet,
		Path:        "/categories",
		Summary:     "List categories by name",
		Tags:        []string{"categories"},
	}, s.listCategoriesHandler)

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-category",
		Method:        stdhttp.MethodPost,
		Path:          "/categories",
		Summary:       "Create a category",
		Tags:          []string{"categories"},
		DefaultStatus: stdhttp.StatusCreated,
		Middlewares:   s.pipeline(s.authenticate(), requirePermission(auth.PermManageCategories)),
	}, s.createCategoryHandler)
}

func (s *Server) listCategoriesHandler(ctx context.Context, _ *struct{}) (*categoryListResponse, error) {
	categories, err := s.articles.Categories(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, "listing categories")
	}
	if categories == nil {
		categories = []article.Category{}
	}
	return &categoryListResponse{Body: categories}, nil
}

func (s *Server) createCategoryHandler(ctx context.Context, input *categoryInput) (*categoryResponse, error) {
	identity, err := identityFrom(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, "creating category")
	}

	category, err := s.articles.CreateCategory(ctx, identity, map[string]any{"name": input.Body.Name})
	if err != nil {
		return nil, s.fail(ctx, err, "creating category")
	}
	return &categoryResponse{Body: category}, nil
}
