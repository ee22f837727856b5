package api

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/birbparty/nestlink/internal/telemetry"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
)

const localUser = "user"

// SetupMiddleware configures all middleware for the application
func SetupMiddleware(app *fiber.App, cfg *Config) {
	// Request ID middleware, honouring the client's X-Request-ID
	app.Use(requestid.New(requestid.Config{
		Header: fiber.HeaderXRequestID,
	}))

	// Recover middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// CORS middleware
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-API-Version, X-Platform, X-Request-ID",
		ExposeHeaders: "X-Request-ID, X-Response-Time",
	}))

	if cfg.TelemetryEnabled {
		app.Use(telemetry.FiberLoggingMiddleware())
		app.Use(telemetry.FiberMetricsMiddleware())
	}

	// Custom error handler
	app.Use(errorHandler())

	// Timing middleware
	app.Use(timingMiddleware())
}

// ErrorHandler is the fiber.Config error handler. It turns errors that
// escape the middleware chain into failure envelopes.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	return respondError(c, code, errCodeFor(code), message)
}

// errorHandler creates a custom error handling middleware
func errorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err != nil {
			telemetry.WithContext(c.UserContext()).WithError(err).WithFields(logrus.Fields{
				"path":   c.Path(),
				"method": c.Method(),
			}).Error("Request failed")

			return ErrorHandler(c, err)
		}
		return nil
	}
}

func errCodeFor(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return ErrCodeNotFound
	case fiber.StatusBadRequest, fiber.StatusMethodNotAllowed:
		return ErrCodeInvalidRequest
	case fiber.StatusUnauthorized:
		return ErrCodeUnauthorized
	case fiber.StatusRequestTimeout:
		return ErrCodeTimeout
	case fiber.StatusTooManyRequests:
		return ErrCodeRateLimited
	case fiber.StatusRequestEntityTooLarge:
		return ErrCodeTooLarge
	}
	return ErrCodeInternalError
}

// timingMiddleware adds request timing headers
func timingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Process request
		err := c.Next()

		// Add timing headers
		c.Set("X-Response-Time", fmt.Sprintf("%d ms", time.Since(start).Milliseconds()))

		return err
	}
}

// bearerToken extracts the token from an Authorization: Bearer header
func bearerToken(c *fiber.Ctx) string {
	auth := c.Get(fiber.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// RequireAuth rejects requests without a live access token and stores the
// authenticated user in the request locals
func RequireAuth(store *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return respondError(c, fiber.StatusUnauthorized, ErrCodeUnauthorized, "missing bearer token")
		}

		user, err := store.Authenticate(token)
		if err != nil {
			return respondError(c, fiber.StatusUnauthorized, ErrCodeUnauthorized, "invalid or expired token")
		}

		c.Locals(localUser, user)
		return c.Next()
	}
}

// RateLimiter creates a simple in-memory rate limiter
func RateLimiter(requestsPerMinute int) fiber.Handler {
	type client struct {
		count     int
		lastReset time.Time
	}

	var mu sync.Mutex
	clients := make(map[string]*client)

	return func(c *fiber.Ctx) error {
		if requestsPerMinute <= 0 {
			return c.Next()
		}

		ip := c.IP()
		now := time.Now()

		mu.Lock()
		cl, exists := clients[ip]
		if !exists {
			cl = &client{lastReset: now}
			clients[ip] = cl
		}

		// Reset counter if a minute has passed
		if now.Sub(cl.lastReset) > time.Minute {
			cl.count = 0
			cl.lastReset = now
		}

		limited := cl.count >= requestsPerMinute
		if !limited {
			cl.count++
		}
		remaining := requestsPerMinute - cl.count
		reset := cl.lastReset.Add(time.Minute).Unix()
		mu.Unlock()

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", requestsPerMinute))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		c.Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset))

		if limited {
			return respondError(c, fiber.StatusTooManyRequests, ErrCodeRateLimited, "Rate limit exceeded")
		}
		return c.Next()
	}
}
