package features

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

type Handler struct {
	svc  *Service
	gate *auth.Gate
}

func NewHandler(svc *Service, gate *auth.Gate) *Handler {
	return &Handler{svc: svc, gate: gate}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Any member may see the toggle state; only owners and admins flip it.
	api.GET("/features", h.List, h.gate.Require())

	managers := h.gate.Require(auth.ManagementRoles()...)
	api.PUT("/features/:key", h.Set, managers)
	api.PATCH("/features", h.SetBulk, managers)
}

// List returns every known feature for the caller's organization, toggled or
// not, in registry order.
func (h *Handler) List(c echo.Context) error {
	ac := auth.AuthContextFrom(c)

	out, err := h.svc.Status(c.Request().Context(), ac.OrganizationID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list features")
	}
	return c.JSON(http.StatusOK, out)
}

type setFeatureRequest struct {
	Enabled  bool           `json:"enabled"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (h *Handler) Set(c echo.Context) error {
	ac := auth.AuthContextFrom(c)

	key := c.Param("key")
	if _, known := Lookup(key); !known {
		return echo.NewHTTPError(http.StatusNotFound, "unknown feature")
	}

	var req setFeatureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	f, err := h.svc.SetEnabled(c.Request().Context(), ac.OrganizationID, key, req.Enabled, ac.UserID, req.Metadata, c.RealIP())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update feature")
	}
	return c.JSON(http.StatusOK, f)
}

type setBulkRequest struct {
	Features map[string]bool `json:"features"`
}

// SetBulk flips several toggles in one call. Keys are validated up front so a
// typo rejects the whole batch instead of applying half of it.
func (h *Handler) SetBulk(c echo.Context) error {
	ac := auth.AuthContextFrom(c)

	var req setBulkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Features) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no features given")
	}
	for key := range req.Features {
		if _, known := Lookup(key); !known {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown feature: "+key)
		}
	}

	out := make([]*OrganizationFeature, 0, len(req.Features))
	for _, feature := range Registry() {
		enabled, ok := req.Features[feature.Key]
		if !ok {
			continue
		}
		f, err := h.svc.SetEnabled(c.Request().Context(), ac.OrganizationID, feature.Key, enabled, ac.UserID, nil, c.RealIP())
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to update feature "+feature.Key)
		}
		out = append(out, f)
	}
	return c.JSON(http.StatusOK, out)
}
