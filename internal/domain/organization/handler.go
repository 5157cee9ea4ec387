package organization

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
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
	// Identity-scoped: the caller's own organizations.
	api.POST("/organizations", h.Create)
	api.GET("/organizations", h.ListMine)
	api.POST("/organizations/:id/activate", h.Activate)

	// Organization-scoped, resolved from the x-organization-id header.
	members := api.Group("/members")
	members.GET("", h.ListMembers, h.gate.Require())
	members.POST("", h.InviteMember, h.gate.Require(auth.ManagementRoles()...))
	members.PUT("/:id/role", h.UpdateMemberRole, h.gate.Require(auth.ManagementRoles()...))
	members.DELETE("/:id", h.RemoveMember, h.gate.Require(auth.ManagementRoles()...))
}

type createOrgRequest struct {
	Name string `json:"name"`
}

func (h *Handler) Create(c echo.Context) error {
	identity, err := auth.RequireIdentity(c.Request().Context())
	if err != nil {
		return auth.HTTPError(err)
	}

	var req createOrgRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	org, err := h.svc.Create(c.Request().Context(), req.Name, identity, c.RealIP())
	if err != nil {
		if errors.Is(err, ErrNameRequired) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create organization")
	}
	return c.JSON(http.StatusCreated, org)
}

func (h *Handler) ListMine(c echo.Context) error {
	identity, err := auth.RequireIdentity(c.Request().Context())
	if err != nil {
		return auth.HTTPError(err)
	}

	memberships, err := h.svc.ListForUser(c.Request().Context(), identity.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list organizations")
	}
	return c.JSON(http.StatusOK, memberships)
}

// Activate sets the caller's default organization for future sessions. The
// choice travels in a short-lived cookie read back once by session refresh.
func (h *Handler) Activate(c echo.Context) error {
	identity, err := auth.RequireIdentity(c.Request().Context())
	if err != nil {
		return auth.HTTPError(err)
	}

	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid organization id")
	}

	// The gate is called with explicit parameters here: the target org comes
	// from the path, not the header.
	if _, err := h.gate.Authorize(c.Request().Context(), identity, orgID); err != nil {
		return auth.HTTPError(err)
	}

	auth.SetDefaultOrgCookie(c, orgID)
	return c.JSON(http.StatusOK, map[string]interface{}{"default_organization_id": orgID})
}

func (h *Handler) ListMembers(c echo.Context) error {
	ac := auth.AuthContextFrom(c)
	memberships, err := h.svc.ListForOrg(c.Request().Context(), ac.OrganizationID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list members")
	}
	return c.JSON(http.StatusOK, memberships)
}

type inviteRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
}

func (h *Handler) InviteMember(c echo.Context) error {
	ac := auth.AuthContextFrom(c)

	var req inviteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	m, err := h.svc.InviteMember(c.Request().Context(), ac, req.UserID, auth.OrgRole(req.Role), c.RealIP())
	if err != nil {
		return membershipError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

type roleUpdateRequest struct {
	Role string `json:"role"`
}

func (h *Handler) UpdateMemberRole(c echo.Context) error {
	ac := auth.AuthContextFrom(c)

	membershipID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid membership id")
	}

	var req roleUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	m, err := h.svc.UpdateMemberRole(c.Request().Context(), ac, membershipID, auth.OrgRole(req.Role), c.RealIP())
	if err != nil {
		return membershipError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) RemoveMember(c echo.Context) error {
	ac := auth.AuthContextFrom(c)

	membershipID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid membership id")
	}

	if err := h.svc.RemoveMember(c.Request().Context(), ac, membershipID, c.RealIP()); err != nil {
		return membershipError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func membershipError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrDuplicateMembership):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrCannotModifyOwner):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrMembershipNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidRole):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		// Repository and infrastructure failures never reach the client.
		return echo.NewHTTPError(http.StatusInternalServerError, "membership operation failed")
	}
}
