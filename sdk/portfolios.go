package sdk

import (
	"context"
	"net/http"
	"net/url"
)

// PortfoliosAPI covers portfolio CRUD
type PortfoliosAPI struct {
	c *Client
}

// List returns one page of the caller's portfolios
func (p *PortfoliosAPI) List(ctx context.Context, page PageRequest) (*Page[Portfolio], error) {
	return list[Portfolio](ctx, p.c, "/portfolios", page.values())
}

// Get returns a portfolio by ID
func (p *PortfoliosAPI) Get(ctx context.Context, id string) (*Portfolio, error) {
	return one[Portfolio](ctx, p.c, http.MethodGet, "/portfolios/"+url.PathEscape(id), nil)
}

// Create adds a portfolio. Offline, it returns a *QueuedError.
func (p *PortfoliosAPI) Create(ctx context.Context, in PortfolioInput) (*Portfolio, error) {
	return one[Portfolio](ctx, p.c, http.MethodPost, "/portfolios", in)
}

// Update replaces a portfolio's fields
func (p *PortfoliosAPI) Update(ctx context.Context, id string, in PortfolioInput) (*Portfolio, error) {
	return one[Portfolio](ctx, p.c, http.MethodPut, "/portfolios/"+url.PathEscape(id), in)
}

// Delete removes a portfolio and its projects
func (p *PortfoliosAPI) Delete(ctx context.Context, id string) error {
	_, err := Dispatch[struct{}](ctx, p.c, http.MethodDelete, "/portfolios/"+url.PathEscape(id), nil, nil)
	return err
}

func one[T any](ctx context.Context, c *Client, method, path string, body interface{}) (*T, error) {
	resp, err := Dispatch[T](ctx, c, method, path, body, nil)
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func list[T any](ctx context.Context, c *Client, path string, query url.Values) (*Page[T], error) {
	resp, err := Dispatch[[]T](ctx, c, http.MethodGet, path, nil, &RequestOptions{Query: query})
	if err != nil {
		return nil, err
	}
	page := &Page[T]{Items: resp.Data}
	if resp.Pagination != nil {
		page.Pagination = *resp.Pagination
	}
	return page, nil
}
