package sdk

import (
	"context"
	"net/http"
	"net/url"
)

// AnalyticsAPI reads summaries and tracks events
type AnalyticsAPI struct {
	c *Client
}

// Summary returns aggregated analytics for a portfolio. period is a backend
// window such as "7d" or "30d"; empty lets the backend choose.
func (a *AnalyticsAPI) Summary(ctx context.Context, portfolioID, period string) (*AnalyticsSummary, error) {
	q := url.Values{"portfolioId": {portfolioID}}
	if period != "" {
		q.Set("period", period)
	}
	resp, err := Dispatch[AnalyticsSummary](ctx, a.c, http.MethodGet, "/analytics/summary", nil, &RequestOptions{Query: q})
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Track records an event. Events tracked offline are queued.
func (a *AnalyticsAPI) Track(ctx context.Context, e AnalyticsEvent) error {
	if e.Type == "" {
		return &ValidationError{Field: "type", Message: "event type is required"}
	}
	_, err := Dispatch[struct{}](ctx, a.c, http.MethodPost, "/analytics/events", e, nil)
	return err
}
