package organization

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

// =========== Helpers ===========

// staticResolver grants every caller the configured role in whatever
// organization the request names.
type staticResolver struct {
	role auth.OrgRole
}

func (r staticResolver) Lookup(_ context.Context, userID, orgID uuid.UUID) (*auth.MembershipInfo, error) {
	return &auth.MembershipInfo{UserID: userID, OrganizationID: orgID, Role: r.role}, nil
}

type failure struct{ msg string }

func (f failure) Error() string { return f.msg }

// =========== Error mapping ===========

type erroringOrgRepo struct {
	*mockOrgRepo
}

func (erroringOrgRepo) CreateOrganization(context.Context, *Organization) error {
	return failure{"pg: deadlock detected"}
}

func (erroringOrgRepo) GetMembership(context.Context, uuid.UUID) (*Membership, error) {
	return nil, failure{"pg: statement timeout"}
}

func newErroringHandler() (*Handler, *echo.Echo) {
	repo := erroringOrgRepo{mockOrgRepo: newMockOrgRepo()}
	svc := NewService(repo, noopTx{}, &mockSeeder{}, &captureAuditor{})
	h := NewHandler(svc, auth.NewGate(staticResolver{role: auth.OrgRoleAdmin}))
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))
	return h, e
}

func authenticate(req *http.Request) *http.Request {
	identity := &auth.Identity{UserID: uuid.New(), Email: "admin@example.com", PlatformRole: auth.PlatformRoleProvider}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func TestCreate_MasksRepositoryFailure(t *testing.T) {
	_, e := newErroringHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/organizations", strings.NewReader(`{"name":"Clinic"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, authenticate(req))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "deadlock") {
		t.Errorf("response leaks internal detail: %s", rec.Body.String())
	}
}

func TestCreate_BlankNameIsBadRequest(t *testing.T) {
	_, e := newErroringHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/organizations", strings.NewReader(`{"name":"  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, authenticate(req))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateMemberRole_MasksRepositoryFailure(t *testing.T) {
	_, e := newErroringHandler()

	req := httptest.NewRequest(http.MethodPut, "/api/v1/members/"+uuid.New().String()+"/role",
		strings.NewReader(`{"role":"NURSE"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(auth.OrgIDHeader, uuid.New().String())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, authenticate(req))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "timeout") {
		t.Errorf("response leaks internal detail: %s", rec.Body.String())
	}
}
