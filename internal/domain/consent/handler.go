package consent

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the consent flow. Everything here is identity-scoped;
// no organization header is involved. The resolve endpoints take extra
// middleware, used in production to rate limit token guessing.
func (h *Handler) RegisterRoutes(api *echo.Group, resolveMW ...echo.MiddlewareFunc) {
	api.POST("/consents", h.Propose)
	api.GET("/consents", h.ListMine)
	api.GET("/consents/resolve", h.ResolveByToken, resolveMW...)
	api.POST("/consents/:id/resolve", h.ResolveByID, resolveMW...)
	api.GET("/family-links", h.ListLinks)
}

type proposeRequest struct {
	SubjectUserID uuid.UUID `json:"subject_user_id"`
}

type proposeResponse struct {
	*ConsentRequest
	// Token is surfaced exactly once, at creation.
	Token string `json:"token"`
}

func (h *Handler) Propose(c echo.Context) error {
	identity, err := auth.RequireIdentity(c.Request().Context())
	if err != nil {
		return auth.HTTPError(err)
	}

	var req proposeRequest
	if err := c.Bind(&req); err != nil || req.SubjectUserID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "subject_user_id is required")
	}

	cr, err := h.svc.Propose(c.Request().Context(), identity.UserID, req.SubjectUserID, c.RealIP())
	if err != nil {
		return consentError(err)
	}
	return c.JSON(http.StatusCreated, proposeResponse{ConsentRequest: cr, Token: *cr.Token})
}

func (h *Handler) ListMine(c echo.Context) error {
	identity, err := auth.RequireIdentity(c.Request().Context())
	if err != nil {
		return auth.HTTPError(err)
	}

	items, err := h.svc.ListForUser(c.Request().Context(), identity.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list consent requests")
	}
	return c.JSON(http.StatusOK, items)
}

// ResolveByToken answers the request the emailed link points at. The subject
// still has to be signed in; the token alone proves nothing about who is
// clicking.
func (h *Handler) ResolveByToken(c echo.Context) error {
	identity, err := auth.RequireIdentity(c.Request().Context())
	if err != nil {
		return auth.HTTPError(err)
	}

	grant, err := parseAction(c.QueryParam("action"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cr, err := h.svc.ResolveByToken(c.Request().Context(), identity.UserID, c.QueryParam("token"), grant, c.RealIP())
	if err != nil {
		return consentError(err)
	}
	return c.JSON(http.StatusOK, cr)
}

type resolveRequest struct {
	Action string `json:"action"`
}

func (h *Handler) ResolveByID(c echo.Context) error {
	identity, err := auth.RequireIdentity(c.Request().Context())
	if err != nil {
		return auth.HTTPError(err)
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid consent request id")
	}

	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	grant, err := parseAction(req.Action)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cr, err := h.svc.ResolveByID(c.Request().Context(), identity.UserID, id, grant, c.RealIP())
	if err != nil {
		return consentError(err)
	}
	return c.JSON(http.StatusOK, cr)
}

func (h *Handler) ListLinks(c echo.Context) error {
	identity, err := auth.RequireIdentity(c.Request().Context())
	if err != nil {
		return auth.HTTPError(err)
	}

	links, err := h.svc.ListLinks(c.Request().Context(), identity.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list family links")
	}
	return c.JSON(http.StatusOK, links)
}

func parseAction(action string) (bool, error) {
	switch action {
	case "grant":
		return true, nil
	case "reject":
		return false, nil
	default:
		return false, errors.New("action must be grant or reject")
	}
}

func consentError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidToken):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrExpired):
		return echo.NewHTTPError(http.StatusGone, err.Error())
	case errors.Is(err, ErrNotYours):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrLinkExists), errors.Is(err, ErrPendingOpen):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrSelfConsent):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		// Repository and infrastructure failures never reach the client.
		return echo.NewHTTPError(http.StatusInternalServerError, "consent operation failed")
	}
}
