package api

import (
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/birbparty/nestlink/internal/storage"
	"github.com/birbparty/nestlink/internal/telemetry"
	"github.com/birbparty/nestlink/sdk"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handler holds all dependencies for API handlers
type Handler struct {
	store     *Store
	files     storage.FileStore
	analytics *AnalyticsWriter
	maxUpload int
}

// NewHandler creates a new handler instance
func NewHandler(store *Store, files storage.FileStore, analytics *AnalyticsWriter, maxUpload int) *Handler {
	return &Handler{
		store:     store,
		files:     files,
		analytics: analytics,
		maxUpload: maxUpload,
	}
}

// currentUser returns the user set by RequireAuth
func currentUser(c *fiber.Ctx) sdk.User {
	u, _ := c.Locals(localUser).(sdk.User)
	return u
}

// storeError maps store errors onto envelope failures
func storeError(c *fiber.Ctx, err error, resource string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return respondError(c, fiber.StatusNotFound, ErrCodeNotFound, resource+" not found")
	case errors.Is(err, ErrForbidden):
		return respondError(c, fiber.StatusForbidden, ErrCodeForbidden, "you do not own this "+strings.ToLower(resource))
	case errors.Is(err, ErrConflict):
		return respondError(c, fiber.StatusConflict, ErrCodeConflict, resource+" already exists")
	case errors.Is(err, ErrInvalidCredentials):
		return respondError(c, fiber.StatusUnauthorized, ErrCodeUnauthorized, "invalid credentials")
	}

	telemetry.WithContext(c.UserContext()).WithError(err).WithField("resource", resource).Error("Store operation failed")
	return respondError(c, fiber.StatusInternalServerError, ErrCodeInternalError, "internal error")
}

func invalid(c *fiber.Ctx, fields ...FieldError) error {
	return respondError(c, fiber.StatusBadRequest, ErrCodeValidation, fields[0].Message, fields)
}

// pageParams reads page and pageSize query parameters
func pageParams(c *fiber.Ctx) (page, size int, fields []FieldError) {
	page, size = 1, defaultPageSize

	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fields = append(fields, FieldError{Field: "page", Message: "page must be a positive integer"})
		} else {
			page = n
		}
	}
	if v := c.Query("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			fields = append(fields, FieldError{Field: "pageSize", Message: "pageSize must be between 1 and 100"})
		} else {
			size = n
		}
	}
	return page, size, fields
}

// Register handles POST /api/auth/register
func (h *Handler) Register(c *fiber.Ctx) error {
	var req sdk.Registration
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
	}

	var fields []FieldError
	if !strings.Contains(req.Email, "@") {
		fields = append(fields, FieldError{Field: "email", Message: "a valid email is required"})
	}
	if len(req.Password) < 8 {
		fields = append(fields, FieldError{Field: "password", Message: "password must be at least 8 characters"})
	}
	if len(fields) > 0 {
		return invalid(c, fields...)
	}

	session, err := h.store.Register(req)
	RecordAuthAttempt("register", err)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return respondError(c, fiber.StatusConflict, ErrCodeConflict, "email already registered")
		}
		return storeError(c, err, "User")
	}
	return respond(c, fiber.StatusCreated, session)
}

// Login handles POST /api/auth/login
func (h *Handler) Login(c *fiber.Ctx) error {
	var req sdk.Credentials
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
	}

	session, err := h.store.Login(req.Email, req.Password)
	RecordAuthAttempt("login", err)
	if err != nil {
		return storeError(c, err, "User")
	}
	return respond(c, fiber.StatusOK, session)
}

// Refresh handles POST /api/auth/refresh
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return invalid(c, FieldError{Field: "refreshToken", Message: "refreshToken is required"})
	}

	session, err := h.store.Refresh(req.RefreshToken)
	RecordAuthAttempt("refresh", err)
	if err != nil {
		return storeError(c, err, "Session")
	}
	return respond(c, fiber.StatusOK, session)
}

// Logout handles POST /api/auth/logout
func (h *Handler) Logout(c *fiber.Ctx) error {
	h.store.Logout(bearerToken(c))
	return respond(c, fiber.StatusOK, nil)
}

// Me handles GET /api/auth/me
func (h *Handler) Me(c *fiber.Ctx) error {
	return respond(c, fiber.StatusOK, currentUser(c))
}

func validatePortfolio(in sdk.PortfolioInput) []FieldError {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return []FieldError{{Field: "name", Message: "name is required"}}
	case len(name) > 100:
		return []FieldError{{Field: "name", Message: "name must be at most 100 characters"}}
	}
	return nil
}

// ListPortfolios handles GET /api/portfolios
func (h *Handler) ListPortfolios(c *fiber.Ctx) error {
	page, size, fields := pageParams(c)
	if len(fields) > 0 {
		return invalid(c, fields...)
	}

	items, p := paginate(h.store.ListPortfolios(currentUser(c).ID), page, size)
	return respondPage(c, items, p)
}

// GetPortfolio handles GET /api/portfolios/:id
func (h *Handler) GetPortfolio(c *fiber.Ctx) error {
	p, err := h.store.GetPortfolio(currentUser(c).ID, c.Params("id"))
	if err != nil {
		return storeError(c, err, "Portfolio")
	}
	return respond(c, fiber.StatusOK, p)
}

// CreatePortfolio handles POST /api/portfolios
func (h *Handler) CreatePortfolio(c *fiber.Ctx) error {
	var in sdk.PortfolioInput
	if err := c.BodyParser(&in); err != nil {
		return respondError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
	}
	if fields := validatePortfolio(in); len(fields) > 0 {
		return invalid(c, fields...)
	}

	p := h.store.CreatePortfolio(currentUser(c).ID, in)
	RecordResourceOperation("portfolio", "create", nil)
	return respond(c, fiber.StatusCreated, p)
}

// UpdatePortfolio handles PUT /api/portfolios/:id
func (h *Handler) UpdatePortfolio(c *fiber.Ctx) error {
	var in sdk.PortfolioInput
	if err := c.BodyParser(&in); err != nil {
		return respondError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
	}
	if fields := validatePortfolio(in); len(fields) > 0 {
		return invalid(c, fields...)
	}

	p, err := h.store.UpdatePortfolio(currentUser(c).ID, c.Params("id"), in)
	RecordResourceOperation("portfolio", "update", err)
	if err != nil {
		return storeError(c, err, "Portfolio")
	}
	return respond(c, fiber.StatusOK, p)
}

// DeletePortfolio handles DELETE /api/portfolios/:id
func (h *Handler) DeletePortfolio(c *fiber.Ctx) error {
	err := h.store.DeletePortfolio(currentUser(c).ID, c.Params("id"))
	RecordResourceOperation("portfolio", "delete", err)
	if err != nil {
		return storeError(c, err, "Portfolio")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func validateProject(in sdk.ProjectInput) []FieldError {
	if strings.TrimSpace(in.Title) == "" {
		return []FieldError{{Field: "title", Message: "title is required"}}
	}
	if len(in.Tags) > 20 {
		return []FieldError{{Field: "tags", Message: "at most 20 tags are allowed"}}
	}
	return nil
}

// ListProjects handles GET /api/portfolios/:id/projects
func (h *Handler) ListProjects(c *fiber.Ctx) error {
	page, size, fields := pageParams(c)
	if len(fields) > 0 {
		return invalid(c, fields...)
	}

	all, err := h.store.ListProjects(currentUser(c).ID, c.Params("id"))
	if err != nil {
		return storeError(c, err, "Portfolio")
	}
	items, p := paginate(all, page, size)
	return respondPage(c, items, p)
}

// GetProject handles GET /api/projects/:id
func (h *Handler) GetProject(c *fiber.Ctx) error {
	p, err := h.store.GetProject(currentUser(c).ID, c.Params("id"))
	if err != nil {
		return storeError(c, err, "Project")
	}
	return respond(c, fiber.StatusOK, p)
}

// CreateProject handles POST /api/portfolios/:id/projects
func (h *Handler) CreateProject(c *fiber.Ctx) error {
	var in sdk.ProjectInput
	if err := c.BodyParser(&in); err != nil {
		return respondError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
	}
	if fields := validateProject(in); len(fields) > 0 {
		return invalid(c, fields...)
	}

	p, err := h.store.CreateProject(currentUser(c).ID, c.Params("id"), in)
	RecordResourceOperation("project", "create", err)
	if err != nil {
		return storeError(c, err, "Portfolio")
	}
	return respond(c, fiber.StatusCreated, p)
}

// UpdateProject handles PUT /api/projects/:id
func (h *Handler) UpdateProject(c *fiber.Ctx) error {
	var in sdk.ProjectInput
	if err := c.BodyParser(&in); err != nil {
		return respondError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
	}
	if fields := validateProject(in); len(fields) > 0 {
		return invalid(c, fields...)
	}

	p, err := h.store.UpdateProject(currentUser(c).ID, c.Params("id"), in)
	RecordResourceOperation("project", "update", err)
	if err != nil {
		return storeError(c, err, "Project")
	}
	return respond(c, fiber.StatusOK, p)
}

// DeleteProject handles DELETE /api/projects/:id
func (h *Handler) DeleteProject(c *fiber.Ctx) error {
	err := h.store.DeleteProject(currentUser(c).ID, c.Params("id"))
	RecordResourceOperation("project", "delete", err)
	if err != nil {
		return storeError(c, err, "Project")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AnalyticsSummary handles GET /api/analytics/summary
func (h *Handler) AnalyticsSummary(c *fiber.Ctx) error {
	portfolioID := c.Query("portfolioId")
	if portfolioID == "" {
		return invalid(c, FieldError{Field: "portfolioId", Message: "portfolioId is required"})
	}

	summary, err := h.store.Summary(currentUser(c).ID, portfolioID, c.Query("period", "30d"))
	if err != nil {
		return storeError(c, err, "Portfolio")
	}
	return respond(c, fiber.StatusOK, summary)
}

// TrackEvent handles POST /api/analytics/events
func (h *Handler) TrackEvent(c *fiber.Ctx) error {
	var e sdk.AnalyticsEvent
	if err := c.BodyParser(&e); err != nil {
		return respondError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "Invalid request body")
	}

	var fields []FieldError
	if e.Type == "" {
		fields = append(fields, FieldError{Field: "type", Message: "type is required"})
	}
	if e.PortfolioID == "" {
		fields = append(fields, FieldError{Field: "portfolioId", Message: "portfolioId is required"})
	}
	if len(fields) > 0 {
		return invalid(c, fields...)
	}

	if !h.analytics.Write(c.UserContext(), currentUser(c).ID, e) {
		return respondError(c, fiber.StatusServiceUnavailable, ErrCodeRateLimited, "analytics queue is full")
	}
	return respond(c, fiber.StatusAccepted, nil)
}

// UploadFile handles POST /api/files
func (h *Handler) UploadFile(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return invalid(c, FieldError{Field: "file", Message: "a multipart \"file\" part is required"})
	}
	if h.maxUpload > 0 && fh.Size > int64(h.maxUpload) {
		return respondError(c, fiber.StatusRequestEntityTooLarge, ErrCodeTooLarge, "file is too large")
	}

	f, err := fh.Open()
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "unreadable file part")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "unreadable file part")
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	id := uuid.NewString()
	name := filepath.Base(fh.Filename)
	obj, err := h.files.Put(c.UserContext(), id+"/"+name, contentType, data)
	RecordResourceOperation("file", "upload", err)
	if err != nil {
		telemetry.WithContext(c.UserContext()).WithError(err).Error("File upload failed")
		return respondError(c, fiber.StatusBadGateway, ErrCodeInternalError, "file storage unavailable")
	}

	info := sdk.FileInfo{
		ID:          id,
		Name:        name,
		Size:        obj.Size,
		ContentType: contentType,
		URL:         obj.URL,
		UploadedAt:  time.Now().UTC(),
	}
	h.store.AddFile(currentUser(c).ID, obj.Key, info)
	RecordUpload(obj.Size)

	telemetry.WithContext(c.UserContext()).WithFields(logrus.Fields{
		"file_id": id,
		"size":    obj.Size,
	}).Info("File uploaded")

	return respond(c, fiber.StatusCreated, info)
}

// ListFiles handles GET /api/files
func (h *Handler) ListFiles(c *fiber.Ctx) error {
	page, size, fields := pageParams(c)
	if len(fields) > 0 {
		return invalid(c, fields...)
	}

	items, p := paginate(h.store.ListFiles(currentUser(c).ID), page, size)
	return respondPage(c, items, p)
}

// DeleteFile handles DELETE /api/files/:id
func (h *Handler) DeleteFile(c *fiber.Ctx) error {
	key, err := h.store.RemoveFile(currentUser(c).ID, c.Params("id"))
	if err != nil {
		return storeError(c, err, "File")
	}

	err = h.files.Delete(c.UserContext(), key)
	RecordResourceOperation("file", "delete", err)
	if err != nil {
		telemetry.WithContext(c.UserContext()).WithError(err).Warn("Failed to delete stored object")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RawFile handles GET /api/files/raw/*, serving objects from the in-memory
// file store
func (h *Handler) RawFile(c *fiber.Ctx) error {
	rc, err := h.files.Get(c.UserContext(), c.Params("*"))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return respondError(c, fiber.StatusNotFound, ErrCodeNotFound, "File not found")
		}
		return respondError(c, fiber.StatusBadGateway, ErrCodeInternalError, "file storage unavailable")
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return respondError(c, fiber.StatusBadGateway, ErrCodeInternalError, "file storage unavailable")
	}
	return c.Send(data)
}

// Health handles GET /api/health
func (h *Handler) Health(c *fiber.Ctx) error {
	checks := map[string]string{
		"store":     "healthy",
		"analytics": "healthy",
	}
	stats := h.analytics.Stats()
	if stats.QueueDepth >= stats.QueueCapacity {
		checks["analytics"] = "degraded: queue full"
	}

	status := "healthy"
	for _, check := range checks {
		if check != "healthy" {
			status = "degraded"
			break
		}
	}

	return respond(c, fiber.StatusOK, &HealthResponse{
		Status:  status,
		Service: "nestlink-api",
		Version: "1.0.0",
		Uptime:  time.Since(startTime).String(),
		Checks:  checks,
	})
}

var startTime = time.Now()
