package submission

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/domain/tenant"
	"github.com/intake/intake/internal/platform/auth"
	"github.com/intake/intake/pkg/pagination"
)

type Handler struct {
	relay  *Relay
	logger zerolog.Logger
}

func NewHandler(relay *Relay, logger zerolog.Logger) *Handler {
	return &Handler{relay: relay, logger: logger}
}

// RegisterPublicRoutes mounts the widget submit endpoint.
func (h *Handler) RegisterPublicRoutes(widgetGroup *echo.Group) {
	widgetGroup.POST("/submit", h.Submit)
}

// RegisterRoutes mounts the staff endpoints on the authenticated API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))
	read.GET("/submissions", h.List)
	read.GET("/submissions/:id", h.Get)
	read.PATCH("/submissions/:id/lead-status", h.UpdateLeadStatus)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/submissions/:id/redeliver", h.Redeliver)
}

func (h *Handler) Submit(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error":   "Invalid submission",
			"details": map[string]string{"body": "malformed JSON"},
		})
	}

	s, err := h.relay.Submit(c.Request().Context(), req)
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error":   "Invalid submission",
			"details": verr.Fields,
		})
	case errors.Is(err, tenant.ErrUnavailable):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Tenant not found"})
	case err != nil:
		h.logger.Error().Err(err).Str("tenant_slug", req.TenantSlug).Msg("save submission")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save submission"})
	}

	return c.JSON(http.StatusCreated, map[string]any{"success": true, "id": s.ID})
}

func (h *Handler) List(c echo.Context) error {
	tenantID, err := auth.TenantID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusForbidden, "no tenant in token")
	}
	f := ListFilter{
		LeadStatus:    LeadStatus(c.QueryParam("lead_status")),
		WebhookStatus: WebhookStatus(c.QueryParam("webhook_status")),
	}
	if f.LeadStatus != "" && !f.LeadStatus.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid lead_status")
	}
	switch f.WebhookStatus {
	case "", WebhookPending, WebhookSent, WebhookFailed:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid webhook_status")
	}

	pg := pagination.FromContext(c)
	items, total, err := h.relay.List(c.Request().Context(), tenantID, f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Submission{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	tenantID, id, err := h.ids(c)
	if err != nil {
		return err
	}
	s, err := h.relay.Get(c.Request().Context(), tenantID, id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, s)
}

type leadStatusRequest struct {
	LeadStatus LeadStatus `json:"lead_status"`
}

func (h *Handler) UpdateLeadStatus(c echo.Context) error {
	tenantID, id, err := h.ids(c)
	if err != nil {
		return err
	}
	var body leadStatusRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.relay.UpdateLeadStatus(c.Request().Context(), tenantID, id, body.LeadStatus)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) Redeliver(c echo.Context) error {
	tenantID, id, err := h.ids(c)
	if err != nil {
		return err
	}
	s, err := h.relay.Redeliver(c.Request().Context(), tenantID, id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusAccepted, s)
}

func (h *Handler) ids(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	tenantID, err := auth.TenantID(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "no tenant in token")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return tenantID, id, nil
}

func toHTTPError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "submission not found")
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotRedeliverable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
