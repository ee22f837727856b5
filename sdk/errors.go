package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// Common errors returned by the SDK. These can be used with errors.Is()
// to check for specific error conditions.
//
// Example:
//
//	_, err := client.Portfolios.Create(ctx, input)
//	switch {
//	case errors.Is(err, sdk.ErrQueued):
//	    // Accepted while offline, replayed once connectivity returns
//	case errors.Is(err, sdk.ErrUnauthorized):
//	    // Session expired, log in again
//	case errors.Is(err, sdk.ErrTimeout):
//	    // Request exceeded its deadline
//	}
var (
	// ErrOffline is returned for requests that cannot run while offline
	ErrOffline = errors.New("client is offline")

	// ErrQueued is returned when a request was deferred to the offline queue
	ErrQueued = errors.New("request queued for replay")

	// ErrTimeout is returned when a request exceeds its deadline
	ErrTimeout = errors.New("request timeout")

	// ErrCanceled is returned when the caller cancels the request context
	ErrCanceled = errors.New("request canceled")

	// ErrNotFound is returned for 404 responses
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized is returned for 401 responses
	ErrUnauthorized = errors.New("unauthorized")

	// ErrServerError is returned for 5xx responses
	ErrServerError = errors.New("server error")

	// ErrRateLimited is returned for 429 responses
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidResponse is returned when a 2xx body cannot be decoded
	ErrInvalidResponse = errors.New("invalid response from server")

	// ErrNoSession is returned by operations that need stored tokens
	ErrNoSession = errors.New("no active session")

	// ErrClientClosed is returned after Close
	ErrClientClosed = errors.New("client is closed")
)

// ErrorType classifies an error for handling decisions.
//
// Example:
//
//	switch sdk.TypeOf(err) {
//	case sdk.ErrorTypeQueued:
//	    showPendingBadge()
//	case sdk.ErrorTypeNetwork, sdk.ErrorTypeTimeout:
//	    client.SetOnline(false)
//	}
type ErrorType int

const (
	// ErrorTypeUnknown represents an unknown or unclassified error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeNetwork represents transport failures (connection refused, DNS, reset)
	ErrorTypeNetwork
	// ErrorTypeTimeout represents requests that exceeded their deadline
	ErrorTypeTimeout
	// ErrorTypeCanceled represents requests canceled by the caller
	ErrorTypeCanceled
	// ErrorTypeOffline represents requests refused because the client is offline
	ErrorTypeOffline
	// ErrorTypeQueued represents requests deferred to the offline queue
	ErrorTypeQueued
	// ErrorTypeServer represents 5xx responses
	ErrorTypeServer
	// ErrorTypeClient represents 4xx responses
	ErrorTypeClient
	// ErrorTypeRateLimit represents 429 responses
	ErrorTypeRateLimit
	// ErrorTypeValidation represents invalid input detected before sending
	ErrorTypeValidation
)

// String returns the string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeCanceled:
		return "canceled"
	case ErrorTypeOffline:
		return "offline"
	case ErrorTypeQueued:
		return "queued"
	case ErrorTypeServer:
		return "server"
	case ErrorTypeClient:
		return "client"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// TypeOf classifies err. It returns ErrorTypeUnknown for nil and for errors
// the SDK did not produce.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var (
		queuedErr  *QueuedError
		offlineErr *OfflineError
		cancelErr  *CanceledError
		timeoutErr *TimeoutError
		netErr     *NetworkError
		apiErr     *APIError
		validErr   *ValidationError
	)
	switch {
	case errors.As(err, &queuedErr):
		return ErrorTypeQueued
	case errors.As(err, &offlineErr):
		return ErrorTypeOffline
	case errors.As(err, &cancelErr):
		return ErrorTypeCanceled
	case errors.As(err, &timeoutErr):
		return ErrorTypeTimeout
	case errors.As(err, &netErr):
		return ErrorTypeNetwork
	case errors.As(err, &validErr):
		return ErrorTypeValidation
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ErrorTypeRateLimit
		case apiErr.IsServerError():
			return ErrorTypeServer
		default:
			return ErrorTypeClient
		}
	}
	return ErrorTypeUnknown
}

// APIError is the error object carried in a response envelope. When the
// body has no parseable error object one is synthesized from the status.
//
// Example:
//
//	var apiErr *sdk.APIError
//	if errors.As(err, &apiErr) {
//	    log.Printf("%s: %s", apiErr.Code, apiErr.Message)
//	}
type APIError struct {
	// Code is a machine-readable error code such as "NOT_FOUND"
	Code string `json:"code"`
	// Message is a human-readable error description
	Message string `json:"message"`
	// Details carries optional structured information, usually field errors
	Details interface{} `json:"details,omitempty"`
	// StatusCode is the HTTP status the error arrived with
	StatusCode int `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a not found error
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.Code == "NOT_FOUND"
}

// IsUnauthorized returns true for 401 responses
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.Code == "UNAUTHORIZED"
}

// IsServerError returns true if the error is a server error
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}

// IsClientError returns true if the error is a client error
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsRetryable returns true if the error is retryable
func (e *APIError) IsRetryable() bool {
	if e.IsServerError() {
		return true
	}
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusRequestTimeout:
		return true
	}
	return false
}

// HTTPError is returned for non-2xx responses and for 2xx envelopes that
// report success:false. It embeds the envelope's APIError.
type HTTPError struct {
	APIError
	// Method and URL identify the failed request
	Method string
	URL    string
	// RequestID is the server's request ID, or the one the client sent
	RequestID string
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.APIError.Error())
}

// Unwrap exposes the embedded APIError to errors.As
func (e *HTTPError) Unwrap() error {
	return &e.APIError
}

// Is implements errors.Is for the status sentinels
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.IsNotFound()
	case ErrUnauthorized:
		return e.IsUnauthorized()
	case ErrServerError:
		return e.IsServerError()
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// NetworkError represents a transport failure such as connection refused,
// DNS resolution failure or a reset connection. Transport failures while
// online are surfaced, never queued.
//
// Example:
//
//	var netErr *sdk.NetworkError
//	if errors.As(err, &netErr) {
//	    log.Printf("Network error during %s: %v", netErr.Op, netErr.Err)
//	}
type NetworkError struct {
	// Op is the operation that failed, e.g. "GET http://host/api/portfolios"
	Op string
	// Err is the underlying network error
	Err error
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the network error is retryable
func (e *NetworkError) IsRetryable() bool {
	return true
}

// TimeoutError represents a request that exceeded its deadline
type TimeoutError struct {
	// Op is the operation that timed out
	Op string
	// Timeout is the budget that was exceeded, zero when the caller's
	// context carried the deadline
	Timeout time.Duration
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("timeout during %s after %s", e.Op, e.Timeout)
	}
	return fmt.Sprintf("timeout during %s", e.Op)
}

// Is implements errors.Is
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout || target == context.DeadlineExceeded
}

// IsRetryable returns true - timeout errors are always retryable
func (e *TimeoutError) IsRetryable() bool {
	return true
}

// CanceledError is returned when the caller's context is canceled while the
// request is in flight
type CanceledError struct {
	Op string
}

// Error implements the error interface
func (e *CanceledError) Error() string {
	return fmt.Sprintf("%s canceled", e.Op)
}

// Is implements errors.Is
func (e *CanceledError) Is(target error) bool {
	return target == ErrCanceled || target == context.Canceled
}

// OfflineError is returned for a request that was not sent because the
// client is offline and the request could not be queued. GET requests
// always fail this way while offline.
type OfflineError struct {
	Method string
	URL    string
}

// Error implements the error interface
func (e *OfflineError) Error() string {
	return fmt.Sprintf("%s %s: client is offline", e.Method, e.URL)
}

// Is implements errors.Is
func (e *OfflineError) Is(target error) bool {
	return target == ErrOffline
}

// QueuedError reports a request that was accepted but deferred: it sits in
// the offline queue and will be replayed when connectivity returns. The
// replay outcome arrives as a queue:success or queue:failed event carrying
// QueueID.
type QueuedError struct {
	QueueID string
	Method  string
	URL     string
}

// Error implements the error interface
func (e *QueuedError) Error() string {
	return fmt.Sprintf("%s %s: queued for replay as %s", e.Method, e.URL, e.QueueID)
}

// Is implements errors.Is
func (e *QueuedError) Is(target error) bool {
	return target == ErrQueued
}

// ValidationError is returned when a request is rejected before it is sent
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// parseAPIError extracts the envelope error from a response body. Parsing
// is fallible: an empty body yields "HTTP <status> error" and an unparseable
// one uses the trimmed body text as the message.
func parseAPIError(statusCode int, body []byte) (*APIError, string) {
	var env struct {
		Error     *APIError `json:"error"`
		Message   string    `json:"message"`
		RequestID string    `json:"requestId"`
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return synthesizeAPIError(statusCode, fmt.Sprintf("HTTP %d error", statusCode)), ""
	}

	if err := json.Unmarshal(body, &env); err != nil {
		return synthesizeAPIError(statusCode, truncate(trimmed, 512)), ""
	}

	if env.Error == nil || (env.Error.Message == "" && env.Error.Code == "") {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d error", statusCode)
		}
		return synthesizeAPIError(statusCode, msg), env.RequestID
	}

	apiErr := *env.Error
	apiErr.StatusCode = statusCode
	if apiErr.Code == "" {
		apiErr.Code = statusCodeName(statusCode)
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("HTTP %d error", statusCode)
	}
	return &apiErr, env.RequestID
}

func synthesizeAPIError(statusCode int, message string) *APIError {
	return &APIError{
		Code:       statusCodeName(statusCode),
		Message:    message,
		StatusCode: statusCode,
	}
}

// statusCodeName turns 404 into "NOT_FOUND"
func statusCodeName(statusCode int) string {
	text := http.StatusText(statusCode)
	if text == "" {
		return fmt.Sprintf("HTTP_%d", statusCode)
	}
	text = strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(text)
	return strings.ToUpper(text)
}

// truncate shortens s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// IsQueued reports whether err means the request was deferred to the
// offline queue
func IsQueued(err error) bool {
	return errors.Is(err, ErrQueued)
}

// IsOffline reports whether err means the request was refused offline
func IsOffline(err error) bool {
	return errors.Is(err, ErrOffline)
}

// IsNetwork reports whether err is a transport failure
func IsNetwork(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsTimeout reports whether err is a deadline failure
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsCanceled reports whether the caller canceled the request
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsNotFound checks if the error represents a "not found" condition
//
// Example:
//
//	p, err := client.Portfolios.Get(ctx, id)
//	if sdk.IsNotFound(err) {
//	    return nil
//	}
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsNotFound()
}

// IsUnauthorized checks if the error is a 401
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsUnauthorized()
}

// IsRetryable checks if an error is transient. Retryable errors include
// network failures, timeouts, 5xx and 429 responses. Queued, offline,
// canceled and 4xx errors are not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return timeoutErr.IsRetryable()
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.IsRetryable()
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}

	return false
}
