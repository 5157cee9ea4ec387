package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller, resolved once per request by the
// session middleware and immutable for the request's lifetime.
type Identity struct {
	UserID       uuid.UUID
	Email        string
	PlatformRole PlatformRole
}

// Claims are the session token claims this platform issues and consumes.
type Claims struct {
	jwt.RegisteredClaims
	Email        string `json:"email"`
	PlatformRole string `json:"platform_role"`
}

// JWTConfig configures session token verification and issuance.
type JWTConfig struct {
	Issuer   string
	Audience string
	// SigningKey enables HS256 verification and token issuance. Without it,
	// tokens are verified against the issuer's JWKS endpoint.
	SigningKey []byte
	JWKSURL    string
	TokenTTL   time.Duration
}

// JWTMiddleware resolves an Identity from the Authorization header and stores
// it in the request context. Requests without a valid bearer token proceed
// with no identity attached; the gate rejects them where authentication is
// required, so public endpoints (health, login) need no special-casing here.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}
	if len(cfg.SigningKey) == 0 {
		jwksURL := cfg.JWKSURL
		if jwksURL == "" && cfg.Issuer != "" {
			jwksURL = strings.TrimSuffix(cfg.Issuer, "/") + "/.well-known/jwks.json"
		}
		keyFunc = jwksKeyFunc(jwksURL)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "HS256"}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return next(c)
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
			}

			identity := &Identity{
				UserID:       userID,
				Email:        claims.Email,
				PlatformRole: PlatformRole(claims.PlatformRole),
			}
			if !identity.PlatformRole.Valid() {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid platform role")
			}

			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), identity)))
			return next(c)
		}
	}
}

// DevAuthMiddleware is a permissive middleware for development that attaches a
// default provider identity to unauthenticated requests.
func DevAuthMiddleware() echo.MiddlewareFunc {
	devUserID := uuid.New()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if IdentityFromContext(c.Request().Context()) == nil {
				identity := &Identity{
					UserID:       devUserID,
					Email:        "dev@localhost",
					PlatformRole: PlatformRoleProvider,
				}
				c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), identity)))
			}
			return next(c)
		}
	}
}

// IssueToken signs a session token for the identity. Requires an HS256
// signing key; externally-issued tokens (JWKS mode) are never minted here.
func IssueToken(cfg JWTConfig, identity *Identity) (string, error) {
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = 12 * time.Hour
	}
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:        identity.Email,
		PlatformRole: string(identity.PlatformRole),
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
}

// WithIdentity attaches an identity to the context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the authenticated identity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// RateLimitIdentity keys a rate limit on the authenticated user, falling back
// to the client IP for anonymous requests.
func RateLimitIdentity(c echo.Context) string {
	if id := IdentityFromContext(c.Request().Context()); id != nil {
		return id.UserID.String()
	}
	return c.RealIP()
}
