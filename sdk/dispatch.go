package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/birbparty/nestlink/internal/auth"
	"github.com/birbparty/nestlink/internal/cache"
	"github.com/birbparty/nestlink/internal/events"
	"github.com/birbparty/nestlink/internal/queue"
	"github.com/birbparty/nestlink/internal/telemetry"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Standard request headers
const (
	HeaderContentType = "Content-Type"
	HeaderAPIVersion  = "X-API-Version"
	HeaderPlatform    = "X-Platform"
	HeaderRequestID   = "X-Request-ID"

	contentTypeJSON = "application/json"
	userAgent       = "nestlink-go-sdk/1.0.0"
)

// reply is a completed HTTP exchange
type reply struct {
	status    int
	header    http.Header
	body      []byte
	requestID string
	cached    bool
}

// Dispatch sends one request through c and decodes the envelope's data into
// T. It is the only path to the network:
//
//   - GET responses are served from cache while fresh (Response.Cached),
//     with no events.
//   - Every other call emits request:start followed by exactly one of
//     request:success or request:error.
//   - While offline, POST/PUT/PATCH/DELETE are queued and return a
//     *QueuedError; GET fails with an *OfflineError.
//   - Non-2xx replies and success:false envelopes return an *HTTPError.
//
// There is no inline retry. path is resolved against Config.BaseURL unless
// it is already absolute. A nil opts is valid.
//
// Example:
//
//	resp, err := sdk.Dispatch[[]sdk.Portfolio](ctx, client, http.MethodGet, "/portfolios",
//	    nil, &sdk.RequestOptions{Query: url.Values{"page": {"2"}}})
func Dispatch[T any](ctx context.Context, c *Client, method, path string, body interface{}, opts *RequestOptions) (*Response[T], error) {
	var resp *Response[T]
	_, err := c.do(ctx, method, path, body, opts, func(rep *reply) error {
		decoded, err := decodeResponse[T](rep)
		if err != nil {
			return err
		}
		resp = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// isEnvelope reports whether body is a JSON object carrying a success flag
func isEnvelope(body []byte) bool {
	var env struct {
		Success *bool `json:"success"`
	}
	return json.Unmarshal(body, &env) == nil && env.Success != nil
}

// decodeResponse decodes a 2xx body already known to be a success envelope
func decodeResponse[T any](rep *reply) (*Response[T], error) {
	resp := &Response[T]{
		Success:    true,
		StatusCode: rep.status,
		Cached:     rep.cached,
		RequestID:  rep.requestID,
	}
	if len(bytes.TrimSpace(rep.body)) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(rep.body, resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if resp.RequestID == "" {
		resp.RequestID = rep.requestID
	}
	return resp, nil
}

// do runs the request lifecycle. decode is applied to every 2xx reply, cached
// or not, before the terminal event fires; a decode failure is reported as
// request:error and the reply is not cached.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, opts *RequestOptions, decode func(*reply) error) (*reply, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	method = strings.ToUpper(method)
	target := c.resolveURL(path, opts.Query)
	cacheable := method == http.MethodGet && c.cfg.EnableCache

	if cacheable && !opts.SkipCache {
		if cached, err := c.cache.Get(ctx, target); err == nil {
			rep := &reply{status: http.StatusOK, body: cached, cached: true}
			if err := decode(rep); err == nil {
				c.log.WithFields(logrus.Fields{"method": method, "url": target}).Debug("Served from cache")
				return rep, nil
			}
			// An entry the caller cannot decode is dropped and refetched
			if err := c.cache.Delete(ctx, target); err != nil {
				c.log.WithError(err).Debug("Cache delete failed")
			}
		} else if !cache.IsMiss(err) {
			c.log.WithError(err).Debug("Cache lookup failed")
		}
	}

	requestID := uuid.NewString()
	start := time.Now()

	ctx, span := telemetry.StartClientSpan(ctx, method, target)
	defer span.End()

	c.bus.Emit(events.RequestStart{
		RequestID: requestID,
		Method:    method,
		URL:       target,
		At:        c.now(),
	})

	fail := func(status int, queued bool, err error) (*reply, error) {
		telemetry.RecordError(ctx, err)
		telemetry.SetErrorStatus(ctx, err.Error())
		c.bus.Emit(events.RequestError{
			RequestID: requestID,
			Method:    method,
			URL:       target,
			Status:    status,
			Duration:  time.Since(start),
			Queued:    queued,
			Err:       err,
		})
		telemetry.TraceFields(ctx, c.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     method,
			"url":        target,
			"status":     status,
			"queued":     queued,
		})).WithError(err).Debug("Request failed")
		return nil, err
	}

	payload, contentType, err := encodeBody(body)
	if err != nil {
		return fail(0, false, &ValidationError{Field: "body", Message: err.Error(), Err: err})
	}

	header := c.baseHeader(contentType, opts.Headers)

	if !c.online.Load() {
		if method == http.MethodGet || !c.cfg.EnableOffline || opts.NoQueue || !queueable(method) {
			return fail(0, false, &OfflineError{Method: method, URL: target})
		}

		// The bearer token is attached at replay time, not now
		qr := queue.NewRequest(method, target, header, payload)
		if err := c.queue.Enqueue(ctx, qr); err != nil {
			return fail(0, false, fmt.Errorf("%s %s: %w", method, target, err))
		}
		return fail(0, true, &QueuedError{QueueID: qr.ID, Method: method, URL: target})
	}

	header.Set(HeaderRequestID, requestID)
	c.auth.Attach(header)
	telemetry.InjectHeaders(ctx, header)

	rep, err := c.send(ctx, method, target, header, payload, c.timeout(opts))
	if err != nil {
		status := 0
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.StatusCode
		}
		return fail(status, false, err)
	}
	if rep.requestID == "" {
		rep.requestID = requestID
	}
	telemetry.SetStatusCode(ctx, rep.status)

	if err := decode(rep); err != nil {
		return fail(rep.status, false, err)
	}

	if cacheable && isEnvelope(rep.body) {
		if err := c.cache.Set(ctx, target, rep.body); err != nil {
			c.log.WithError(err).Debug("Cache write failed")
		}
	}

	telemetry.SetOKStatus(ctx)
	c.bus.Emit(events.RequestSuccess{
		RequestID: requestID,
		Method:    method,
		URL:       target,
		Status:    rep.status,
		Duration:  time.Since(start),
	})
	telemetry.TraceFields(ctx, c.log.WithFields(logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"url":        target,
		"status":     rep.status,
		"duration":   time.Since(start).Milliseconds(),
	})).Debug("Request completed")

	return rep, nil
}

// send performs a single HTTP exchange under timeout. Non-2xx replies and
// success:false envelopes become *HTTPError.
func (c *Client) send(ctx context.Context, method, target string, header http.Header, payload []byte, timeout time.Duration) (*reply, error) {
	op := method + " " + target

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(callCtx, method, target, bodyReader)
	if err != nil {
		return nil, &ValidationError{Field: "url", Message: err.Error(), Err: err}
	}
	req.Header = header

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, callCtx, op, timeout, err)
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, classifyTransportError(ctx, callCtx, "reading response of "+op, timeout, err)
	}

	rep := &reply{
		status:    resp.StatusCode,
		header:    resp.Header,
		body:      respBody,
		requestID: resp.Header.Get(HeaderRequestID),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr, envID := parseAPIError(resp.StatusCode, respBody)
		return nil, c.httpError(method, target, header, rep, apiErr, envID)
	}

	// A 2xx envelope can still report failure
	var env struct {
		Success *bool     `json:"success"`
		Error   *APIError `json:"error"`
		Message string    `json:"message"`
	}
	if len(bytes.TrimSpace(respBody)) > 0 && json.Unmarshal(respBody, &env) == nil &&
		env.Success != nil && !*env.Success {
		apiErr, envID := parseAPIError(resp.StatusCode, respBody)
		return nil, c.httpError(method, target, header, rep, apiErr, envID)
	}

	return rep, nil
}

func (c *Client) httpError(method, target string, sent http.Header, rep *reply, apiErr *APIError, envID string) *HTTPError {
	id := envID
	if id == "" {
		id = rep.requestID
	}
	if id == "" {
		id = sent.Get(HeaderRequestID)
	}
	return &HTTPError{
		APIError:  *apiErr,
		Method:    method,
		URL:       target,
		RequestID: id,
	}
}

// classifyTransportError distinguishes caller cancellation and deadlines
// from plain network failures
func classifyTransportError(parent, call context.Context, op string, timeout time.Duration, err error) error {
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return &CanceledError{Op: op}
	case errors.Is(parent.Err(), context.DeadlineExceeded):
		return &TimeoutError{Op: op}
	case errors.Is(call.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return &TimeoutError{Op: op, Timeout: timeout}
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, Timeout: timeout}
	}
	return &NetworkError{Op: op, Err: err}
}

// replay sends a queued request. It attaches the bearer token current at
// replay time and a fresh request ID.
func (c *Client) replay(ctx context.Context, r queue.Request) (int, error) {
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Del(auth.HeaderAuthorization)
	header.Set(HeaderRequestID, uuid.NewString())
	c.auth.Attach(header)

	ctx, span := telemetry.StartClientSpan(ctx, r.Method, r.URL)
	defer span.End()
	telemetry.InjectHeaders(ctx, header)

	rep, err := c.send(ctx, r.Method, r.URL, header, r.Body, c.cfg.Timeout)
	if err != nil {
		telemetry.RecordError(ctx, err)
		telemetry.SetErrorStatus(ctx, err.Error())
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			return httpErr.StatusCode, err
		}
		return 0, err
	}
	telemetry.SetOKStatus(ctx)
	return rep.status, nil
}

func (c *Client) timeout(opts *RequestOptions) time.Duration {
	if opts != nil && opts.Timeout > 0 {
		return opts.Timeout
	}
	return c.cfg.Timeout
}

// resolveURL joins path onto the base URL and merges query. Absolute URLs
// pass through. The result has its query parameters in sorted order so it
// doubles as the cache key.
func (c *Client) resolveURL(path string, query url.Values) string {
	target := path
	if u, err := url.Parse(path); err != nil || !u.IsAbs() {
		target = c.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")
	}
	return cache.Key(target, query)
}

// baseHeader builds the standard headers followed by the caller's. The
// bearer token is attached separately, last.
func (c *Client) baseHeader(contentType string, extra http.Header) http.Header {
	h := make(http.Header)
	h.Set(HeaderContentType, contentType)
	h.Set("Accept", contentTypeJSON)
	h.Set("User-Agent", userAgent)
	h.Set(HeaderAPIVersion, c.cfg.Version)
	h.Set(HeaderPlatform, string(c.cfg.Platform))
	for k, vs := range extra {
		if strings.EqualFold(k, auth.HeaderAuthorization) {
			continue
		}
		h.Del(k)
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	return h
}

// encodeBody returns the wire bytes and content type for body. Multipart
// bodies keep their own content type; everything else is JSON.
func encodeBody(body interface{}) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, contentTypeJSON, nil
	case *Multipart:
		return b.Data, b.ContentType, nil
	case Multipart:
		return b.Data, b.ContentType, nil
	case json.RawMessage:
		return b, contentTypeJSON, nil
	case []byte:
		return b, contentTypeJSON, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
	}
	return data, contentTypeJSON, nil
}

func queueable(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
