package records

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/ratelimit"
)

// ownerResolver grants every caller an OWNER membership in the organization
// the request names.
type ownerResolver struct{}

func (ownerResolver) Lookup(_ context.Context, userID, orgID uuid.UUID) (*auth.MembershipInfo, error) {
	return &auth.MembershipInfo{UserID: userID, OrganizationID: orgID, Role: auth.OrgRoleOwner}, nil
}

func TestExport_RateLimited(t *testing.T) {
	svc, _, audit := newTestService(t)
	h := NewHandler(svc, auth.NewGate(ownerResolver{}), audit)

	e := echo.New()
	limiter := ratelimit.NewLimiter()
	mw := ratelimit.Middleware(limiter, "records_export",
		ratelimit.Limit{MaxAttempts: 2, Window: time.Hour}, auth.RateLimitIdentity)
	h.RegisterRoutes(e.Group("/api/v1"), mw)

	admin := uuid.New()
	orgID := uuid.New()
	export := func(userID uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/records/export", nil)
		req.Header.Set(auth.OrgIDHeader, orgID.String())
		identity := &auth.Identity{UserID: userID, Email: "admin@example.com", PlatformRole: auth.PlatformRoleProvider}
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := export(admin); rec.Code != http.StatusOK {
			t.Fatalf("export %d: status = %d, body = %s", i+1, rec.Code, rec.Body.String())
		}
	}

	rec := export(admin)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third export: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}

	// The read routes share no budget with export.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/records", nil)
	req.Header.Set(auth.OrgIDHeader, orgID.String())
	identity := &auth.Identity{UserID: admin, Email: "admin@example.com", PlatformRole: auth.PlatformRoleProvider}
	req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	listRec := httptest.NewRecorder()
	e.ServeHTTP(listRec, req)
	if listRec.Code != http.StatusOK {
		t.Errorf("list after export 429: status = %d, want 200", listRec.Code)
	}
}
