package records

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/domain/auditlog"
	"github.com/clinicore/clinicore/internal/domain/features"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/pkg/pagination"
)

type Handler struct {
	svc   *Service
	gate  *auth.Gate
	audit Auditor
}

func NewHandler(svc *Service, gate *auth.Gate, audit Auditor) *Handler {
	return &Handler{svc: svc, gate: gate, audit: audit}
}

// RegisterRoutes mounts the document endpoints. Extra middleware applies to
// the export route only, used in production to rate limit bulk reads.
func (h *Handler) RegisterRoutes(api *echo.Group, exportMW ...echo.MiddlewareFunc) {
	g := api.Group("/records")

	// Any member can read; clinical staff write.
	g.GET("", h.List, h.gate.Require())
	g.GET("/export", h.Export, append([]echo.MiddlewareFunc{h.gate.Require(auth.ManagementRoles()...)}, exportMW...)...)
	g.GET("/:id", h.Get, h.gate.Require())
	g.GET("/:id/versions", h.ListVersions, h.gate.Require())

	clinical := h.gate.Require(auth.ClinicalRoles()...)
	g.POST("", h.Create, clinical)
	g.PUT("/:id", h.Update, clinical)
	g.DELETE("/:id", h.Delete, clinical)
}

func (h *Handler) Create(c echo.Context) error {
	ac := auth.AuthContextFrom(c)

	var in DocumentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if in.Title == "" || in.PatientUserID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "title and patient_user_id are required")
	}

	d, err := h.svc.Create(c.Request().Context(), ac.OrganizationID, in, ac.UserID, c.RealIP())
	if err != nil {
		return recordError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) Get(c echo.Context) error {
	ac := auth.AuthContextFrom(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}

	d, err := h.svc.Get(c.Request().Context(), ac.OrganizationID, id)
	if err != nil {
		return recordError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Update(c echo.Context) error {
	ac := auth.AuthContextFrom(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}

	var in DocumentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	d, err := h.svc.Update(c.Request().Context(), ac.OrganizationID, id, in, ac.UserID, c.RealIP())
	if err != nil {
		return recordError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Delete(c echo.Context) error {
	ac := auth.AuthContextFrom(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}

	if err := h.svc.Delete(c.Request().Context(), ac.OrganizationID, id, ac.UserID, c.RealIP()); err != nil {
		return recordError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) List(c echo.Context) error {
	ac := auth.AuthContextFrom(c)
	pg := pagination.FromContext(c)

	docs, total, err := h.svc.List(c.Request().Context(), ac.OrganizationID, pg.Limit, pg.Offset)
	if err != nil {
		return recordError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(docs, total, pg))
}

func (h *Handler) ListVersions(c echo.Context) error {
	ac := auth.AuthContextFrom(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}

	versions, err := h.svc.ListVersions(c.Request().Context(), ac.OrganizationID, id)
	if err != nil {
		return recordError(err)
	}
	return c.JSON(http.StatusOK, versions)
}

// Export returns every document in the organization decrypted in one
// response. Owner/admin only, and each export lands in the audit trail.
func (h *Handler) Export(c echo.Context) error {
	ac := auth.AuthContextFrom(c)

	docs, _, err := h.svc.List(c.Request().Context(), ac.OrganizationID, 10000, 0)
	if err != nil {
		return recordError(err)
	}

	h.audit.Record(c.Request().Context(), auditlog.Entry{
		UserID:         &ac.UserID,
		OrganizationID: &ac.OrganizationID,
		Action:         auditlog.ActionExportRecords,
		EntityType:     entityType,
		Details:        map[string]any{"count": len(docs)},
		IPAddress:      c.RealIP(),
	})
	return c.JSON(http.StatusOK, docs)
}

func recordError(err error) error {
	var disabled *features.DisabledError
	switch {
	case errors.As(err, &disabled):
		return echo.NewHTTPError(http.StatusForbidden, disabled.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "record operation failed")
	}
}
