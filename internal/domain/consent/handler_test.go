package consent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/ratelimit"
)

// =========== Helpers ===========

func asUser(req *http.Request, userID uuid.UUID) *http.Request {
	identity := &auth.Identity{UserID: userID, Email: "subject@example.com", PlatformRole: auth.PlatformRolePatient}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

// =========== Rate limiting on the resolve routes ===========

func TestResolveRoutes_RateLimited(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)

	e := echo.New()
	limiter := ratelimit.NewLimiter()
	mw := ratelimit.Middleware(limiter, "consent_resolve",
		ratelimit.Limit{MaxAttempts: 2, Window: time.Minute}, auth.RateLimitIdentity)
	h.RegisterRoutes(e.Group("/api/v1"), mw)

	subject := uuid.New()
	resolve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/consents/resolve?token=nonsense&action=grant", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, asUser(req, subject))
		return rec
	}

	// Two guesses fit the window; each reads as an unknown token.
	for i := 0; i < 2; i++ {
		if rec := resolve(); rec.Code != http.StatusNotFound {
			t.Fatalf("guess %d: status = %d, want 404", i+1, rec.Code)
		}
	}

	rec := resolve()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third guess: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}

	// Routes outside the resolve pair are not limited.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/consents", nil)
	listRec := httptest.NewRecorder()
	e.ServeHTTP(listRec, asUser(req, subject))
	if listRec.Code != http.StatusOK {
		t.Errorf("list after 429: status = %d, want 200", listRec.Code)
	}

	// Another user has a budget of their own.
	other := httptest.NewRequest(http.MethodGet, "/api/v1/consents/resolve?token=nonsense&action=grant", nil)
	otherRec := httptest.NewRecorder()
	e.ServeHTTP(otherRec, asUser(other, uuid.New()))
	if otherRec.Code != http.StatusNotFound {
		t.Errorf("other user: status = %d, want 404", otherRec.Code)
	}
}

// =========== Error mapping ===========

type erroringConsentRepo struct {
	*mockConsentRepo
}

func (erroringConsentRepo) GetByToken(context.Context, string) (*ConsentRequest, error) {
	return nil, errors.New("pg: connection refused")
}

func TestResolveByToken_MasksRepositoryFailure(t *testing.T) {
	repo := erroringConsentRepo{mockConsentRepo: newMockConsentRepo()}
	h := NewHandler(NewService(repo, noopTx{}, &captureAuditor{}))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/consents/resolve?token=abc&action=grant", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(asUser(req, uuid.New()), rec)
	if err := h.ResolveByToken(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("response leaks internal detail: %s", rec.Body.String())
	}
}
