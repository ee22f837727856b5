package sdk

import (
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Response is the envelope every backend endpoint replies with.
// Success == true implies Data for data-bearing endpoints; Success == false
// implies Error.
type Response[T any] struct {
	Success    bool        `json:"success"`
	Data       T           `json:"data,omitempty"`
	Error      *APIError   `json:"error,omitempty"`
	Message    string      `json:"message,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	RequestID  string      `json:"requestId,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`

	// StatusCode is the HTTP status of the reply. Cached responses report
	// the status they were stored with, which is always 2xx.
	StatusCode int `json:"-"`

	// Cached is set when the response was served from the client cache
	// without a network call
	Cached bool `json:"-"`
}

// Pagination describes one page of a list endpoint
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// Page is a decoded list endpoint result
type Page[T any] struct {
	Items      []T
	Pagination Pagination
}

// PageRequest selects a page of a list endpoint. Zero values let the
// backend choose.
type PageRequest struct {
	Page     int
	PageSize int
}

func (p PageRequest) values() url.Values {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(p.PageSize))
	}
	return q
}

// RequestOptions tunes a single dispatch. A nil *RequestOptions is valid.
type RequestOptions struct {
	// Headers are added after the standard headers and before the bearer
	// token, so they cannot override Authorization.
	Headers http.Header

	// Query is merged into the request URL. GET cache keys sort it.
	Query url.Values

	// Timeout overrides Config.Timeout for this call
	Timeout time.Duration

	// SkipCache bypasses the cache lookup for a GET. A successful reply
	// still refreshes the cached entry.
	SkipCache bool

	// NoQueue makes an offline mutating request fail with an OfflineError
	// instead of being queued
	NoQueue bool
}

// Multipart is a pre-encoded multipart/form-data body. The dispatcher
// sends it verbatim with ContentType instead of encoding JSON.
type Multipart struct {
	ContentType string
	Data        []byte
}
