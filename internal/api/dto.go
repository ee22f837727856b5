package api

import (
	"time"

	"github.com/birbparty/nestlink/sdk"
	"github.com/gofiber/fiber/v2"
)

// Envelope is the body of every API response
type Envelope struct {
	Success    bool            `json:"success"`
	Data       interface{}     `json:"data,omitempty"`
	Error      *ErrorBody      `json:"error,omitempty"`
	Message    string          `json:"message,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	RequestID  string          `json:"requestId,omitempty"`
	Pagination *sdk.Pagination `json:"pagination,omitempty"`
}

// ErrorBody is the error object of a failure envelope
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks"`
}

// RefreshRequest is the body of POST /auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Error codes
const (
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeInternalError  = "INTERNAL_ERROR"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeTooLarge       = "PAYLOAD_TOO_LARGE"
)

// FieldError describes one invalid input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return c.Get("X-Request-ID")
}

// respond writes a success envelope
func respond(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(Envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
		RequestID: requestID(c),
	})
}

// respondPage writes a success envelope with pagination
func respondPage(c *fiber.Ctx, data interface{}, p sdk.Pagination) error {
	return c.Status(fiber.StatusOK).JSON(Envelope{
		Success:    true,
		Data:       data,
		Timestamp:  time.Now().UTC(),
		RequestID:  requestID(c),
		Pagination: &p,
	})
}

// respondError writes a failure envelope
func respondError(c *fiber.Ctx, status int, code, message string, details ...interface{}) error {
	body := &ErrorBody{Code: code, Message: message}
	if len(details) > 0 {
		body.Details = details[0]
	}
	return c.Status(status).JSON(Envelope{
		Success:   false,
		Error:     body,
		Timestamp: time.Now().UTC(),
		RequestID: requestID(c),
	})
}

// paginate slices items for page/pageSize. page starts at 1.
func paginate[T any](items []T, page, pageSize int) ([]T, sdk.Pagination) {
	total := len(items)
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return items[start:end], sdk.Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}
