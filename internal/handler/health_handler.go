package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"taskapi/internal/cache"
)

// APIVersion is reported by the health endpoint.
const APIVersion = "1.0.0"

// Checker reports whether a dependency is usable.
type Checker interface {
	Check(ctx context.Context) error
}

// Pinger is satisfied by *cache.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service health.
type HealthHandler struct {
	db      Checker
	cache   Pinger
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthHandler creates a health handler. cache may be nil.
func NewHealthHandler(db Checker, cache Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, timeout: 2 * time.Second, logger: logger}
}

// HealthResponse is the health endpoint body.
type HealthResponse struct {
	Status     string `json:"status"`
	Database   string `json:"database"`
	Cache      string `json:"cache"`
	APIVersion string `json:"api_version"`
}

// Health godoc
// @Summary Health check
// @Description The database decides the status code; cache state is informational.
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{
		Status:     "healthy",
		Database:   "healthy",
		Cache:      h.cacheStatus(ctx),
		APIVersion: APIVersion,
	}
	if err := h.db.Check(ctx); err != nil {
		h.logger.ErrorContext(ctx, "health check failed", "error", err)
		resp.Status = "unhealthy"
		resp.Database = "unhealthy"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *HealthHandler) cacheStatus(ctx context.Context) string {
	if h.cache == nil {
		return "disabled"
	}
	err := h.cache.Ping(ctx)
	switch {
	case err == nil:
		return "healthy"
	case errors.Is(err, cache.ErrDisabled):
		return "disabled"
	default:
		h.logger.WarnContext(ctx, "cache unreachable", "error", err)
		return "unhealthy"
	}
}
