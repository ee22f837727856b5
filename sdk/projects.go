package sdk

import (
	"context"
	"net/http"
	"net/url"
)

// ProjectsAPI covers project CRUD. Projects live inside a portfolio.
type ProjectsAPI struct {
	c *Client
}

// List returns one page of a portfolio's projects
func (p *ProjectsAPI) List(ctx context.Context, portfolioID string, page PageRequest) (*Page[Project], error) {
	return list[Project](ctx, p.c, "/portfolios/"+url.PathEscape(portfolioID)+"/projects", page.values())
}

// Get returns a project by ID
func (p *ProjectsAPI) Get(ctx context.Context, id string) (*Project, error) {
	return one[Project](ctx, p.c, http.MethodGet, "/projects/"+url.PathEscape(id), nil)
}

// Create adds a project to a portfolio
func (p *ProjectsAPI) Create(ctx context.Context, portfolioID string, in ProjectInput) (*Project, error) {
	return one[Project](ctx, p.c, http.MethodPost, "/portfolios/"+url.PathEscape(portfolioID)+"/projects", in)
}

// Update replaces a project's fields
func (p *ProjectsAPI) Update(ctx context.Context, id string, in ProjectInput) (*Project, error) {
	return one[Project](ctx, p.c, http.MethodPut, "/projects/"+url.PathEscape(id), in)
}

// Delete removes a project
func (p *ProjectsAPI) Delete(ctx context.Context, id string) error {
	_, err := Dispatch[struct{}](ctx, p.c, http.MethodDelete, "/projects/"+url.PathEscape(id), nil, nil)
	return err
}
