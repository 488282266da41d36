package widget

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/domain/tenant"
)

const configCacheControl = "public, s-maxage=60, stale-while-revalidate=300"

type Handler struct {
	source ConfigSource
	logger zerolog.Logger
}

func NewHandler(source ConfigSource, logger zerolog.Logger) *Handler {
	return &Handler{source: source, logger: logger}
}

// RegisterRoutes mounts the public config endpoint on the widget group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/config", h.GetConfig)
}

func (h *Handler) GetConfig(c echo.Context) error {
	slug := c.QueryParam("slug")
	if slug == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing slug parameter"})
	}

	resp, err := h.source.Assemble(c.Request().Context(), slug)
	switch {
	case errors.Is(err, tenant.ErrUnavailable):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Tenant not found"})
	case errors.Is(err, ErrNotConfigured):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Widget not configured"})
	case err != nil:
		h.logger.Error().Err(err).Str("slug", slug).Msg("assemble widget config")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	c.Response().Header().Set("Cache-Control", configCacheControl)
	return c.JSON(http.StatusOK, resp)
}
