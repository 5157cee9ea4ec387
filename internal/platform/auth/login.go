package auth

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/ratelimit"
)

// CredentialVerifier checks a credential pair against the user store.
// Credential storage and hashing live outside this core; the gate only
// consumes the resulting identity.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (*Identity, error)
}

// LoginAudit is called after a successful login so the caller can append an
// audit record. May be nil.
type LoginAudit func(ctx context.Context, identity *Identity, ipAddress string)

// LoginHandler authenticates a credential pair and issues a session token.
// Failed attempts are rate-limited per email within a fixed window; a
// successful login clears the counter immediately instead of letting the
// user wait out the window.
type LoginHandler struct {
	verifier CredentialVerifier
	limiter  *ratelimit.Limiter
	limit    ratelimit.Limit
	jwtCfg   JWTConfig
	audit    LoginAudit
}

func NewLoginHandler(verifier CredentialVerifier, limiter *ratelimit.Limiter, limit ratelimit.Limit, jwtCfg JWTConfig, audit LoginAudit) *LoginHandler {
	return &LoginHandler{
		verifier: verifier,
		limiter:  limiter,
		limit:    limit,
		jwtCfg:   jwtCfg,
		audit:    audit,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login handles POST /auth/login.
func (h *LoginHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	// Only failures are charged against the window. Correct credentials
	// always succeed and clear the counter, even when the caller is already
	// over the limit.
	key := ratelimit.Key("login", req.Email)
	identity, err := h.verifier.Verify(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		res := h.limiter.Check(key, h.limit)
		c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts")
		}
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	h.limiter.Clear(key)

	token, err := IssueToken(h.jwtCfg, identity)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}

	if h.audit != nil {
		h.audit(c.Request().Context(), identity, c.RealIP())
	}

	return c.JSON(http.StatusOK, loginResponse{Token: token})
}

// Session handles GET /auth/session: it returns the caller's identity and,
// exactly once, the default organization chosen since the last refresh.
func (h *LoginHandler) Session(c echo.Context) error {
	identity, err := RequireIdentity(c.Request().Context())
	if err != nil {
		return HTTPError(err)
	}

	resp := map[string]interface{}{
		"user_id":       identity.UserID,
		"email":         identity.Email,
		"platform_role": identity.PlatformRole,
	}
	if orgID := ReadDefaultOrgCookie(c); orgID != uuid.Nil {
		resp["default_organization_id"] = orgID
	}
	return c.JSON(http.StatusOK, resp)
}

// RegisterRoutes mounts the session endpoints.
func (h *LoginHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/auth/login", h.Login)
	g.GET("/auth/session", h.Session)
}
