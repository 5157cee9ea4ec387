package auth

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// OrgIDHeader carries the target organization for organization-scoped
// requests.
const OrgIDHeader = "x-organization-id"

// DefaultOrgCookieName is the short-lived cookie holding a user's newly
// selected default organization. A session-refresh step reads it back once.
const DefaultOrgCookieName = "clinicore_default_org"

const defaultOrgCookieTTL = 5 * time.Minute

// OrgIDFromRequest reads the target organization id from the request header.
// A missing header is ErrOrganizationContextRequired; a malformed one is a
// plain validation failure with the same status.
func OrgIDFromRequest(c echo.Context) (uuid.UUID, error) {
	raw := c.Request().Header.Get(OrgIDHeader)
	if raw == "" {
		return uuid.Nil, ErrOrganizationContextRequired
	}
	orgID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &Failure{
			Code:    "INVALID_ORGANIZATION_ID",
			Status:  http.StatusBadRequest,
			Message: "invalid organization id",
		}
	}
	return orgID, nil
}

// SetDefaultOrgCookie writes the short-lived cookie that carries a user's new
// default organization choice to the next session refresh.
func SetDefaultOrgCookie(c echo.Context, organizationID uuid.UUID) {
	c.SetCookie(&http.Cookie{
		Name:     DefaultOrgCookieName,
		Value:    organizationID.String(),
		Path:     "/",
		MaxAge:   int(defaultOrgCookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ReadDefaultOrgCookie returns the pending default organization and expires
// the cookie so it is consumed exactly once. Returns uuid.Nil when no valid
// cookie is present.
func ReadDefaultOrgCookie(c echo.Context) uuid.UUID {
	cookie, err := c.Cookie(DefaultOrgCookieName)
	if err != nil || cookie.Value == "" {
		return uuid.Nil
	}

	c.SetCookie(&http.Cookie{
		Name:     DefaultOrgCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	orgID, err := uuid.Parse(cookie.Value)
	if err != nil {
		return uuid.Nil
	}
	return orgID
}
