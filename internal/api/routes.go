package api

import (
	"github.com/gofiber/fiber/v2"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, handler *Handler, store *Store, cfg *Config) {
	api := app.Group("/api")

	api.Use(PrometheusMetricsMiddleware())
	api.Use(RateLimiter(cfg.RateLimit))

	// Public endpoints
	api.Get("/health", handler.Health)
	api.Get("/files/raw/*", handler.RawFile)

	auth := api.Group("/auth")
	auth.Post("/register", handler.Register)
	auth.Post("/login", handler.Login)
	auth.Post("/refresh", handler.Refresh)

	// Everything below requires a bearer token
	protected := api.Group("", RequireAuth(store))

	protected.Post("/auth/logout", handler.Logout)
	protected.Get("/auth/me", handler.Me)

	portfolios := protected.Group("/portfolios")
	portfolios.Get("/", handler.ListPortfolios)
	portfolios.Post("/", handler.CreatePortfolio)
	portfolios.Get("/:id", handler.GetPortfolio)
	portfolios.Put("/:id", handler.UpdatePortfolio)
	portfolios.Delete("/:id", handler.DeletePortfolio)
	portfolios.Get("/:id/projects", handler.ListProjects)
	portfolios.Post("/:id/projects", handler.CreateProject)

	projects := protected.Group("/projects")
	projects.Get("/:id", handler.GetProject)
	projects.Put("/:id", handler.UpdateProject)
	projects.Delete("/:id", handler.DeleteProject)

	analytics := protected.Group("/analytics")
	analytics.Get("/summary", handler.AnalyticsSummary)
	analytics.Post("/events", handler.TrackEvent)

	files := protected.Group("/files")
	files.Get("/", handler.ListFiles)
	files.Post("/", handler.UploadFile)
	files.Delete("/:id", handler.DeleteFile)

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "nestlink-api",
			"version": "1.0.0",
			"status":  "running",
			"endpoints": fiber.Map{
				"auth":       "POST /api/auth/{register,login,refresh,logout}, GET /api/auth/me",
				"portfolios": "GET|POST /api/portfolios, GET|PUT|DELETE /api/portfolios/:id",
				"projects":   "GET|POST /api/portfolios/:id/projects, GET|PUT|DELETE /api/projects/:id",
				"analytics":  "GET /api/analytics/summary, POST /api/analytics/events",
				"files":      "GET|POST /api/files, DELETE /api/files/:id",
				"health":     "GET /api/health",
				"metrics":    "GET " + cfg.MetricsPath,
			},
		})
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return respondError(c, fiber.StatusNotFound, ErrCodeNotFound, "Endpoint not found")
	})
}
