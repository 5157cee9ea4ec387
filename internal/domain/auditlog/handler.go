package auditlog

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/pkg/pagination"
)

type Handler struct {
	svc  *Service
	gate *auth.Gate
}

func NewHandler(svc *Service, gate *auth.Gate) *Handler {
	return &Handler{svc: svc, gate: gate}
}

// RegisterRoutes mounts the read-only audit trail. Owner/admin only; the
// trail itself is never writable over HTTP.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	managers := h.gate.Require(auth.ManagementRoles()...)
	api.GET("/audit-log", h.List, managers)
}

func (h *Handler) List(c echo.Context) error {
	ac := auth.AuthContextFrom(c)
	pg := pagination.FromContext(c)

	action := Action(c.QueryParam("action"))
	if action != "" && !action.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown action type")
	}

	items, total, err := h.svc.List(c.Request().Context(), ac.OrganizationID, action, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list audit log")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
