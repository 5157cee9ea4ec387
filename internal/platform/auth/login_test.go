package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/ratelimit"
)

type stubVerifier struct {
	identity *Identity
	err      error
	gotEmail string
}

func (s *stubVerifier) Verify(_ context.Context, email, password string) (*Identity, error) {
	s.gotEmail = email
	if s.err != nil {
		return nil, s.err
	}
	return s.identity, nil
}

func testJWTConfig() JWTConfig {
	return JWTConfig{Issuer: "clinicore-test", SigningKey: []byte("test-signing-key")}
}

func newLoginTest(verifier *stubVerifier, audit LoginAudit) *LoginHandler {
	limit := ratelimit.Limit{MaxAttempts: 5, Window: 15 * time.Minute}
	return NewLoginHandler(verifier, ratelimit.NewLimiter(), limit, testJWTConfig(), audit)
}

func postLogin(h *LoginHandler, body string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.Login(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestLogin_Success(t *testing.T) {
	identity := &Identity{UserID: uuid.New(), Email: "doc@example.com", PlatformRole: PlatformRoleProvider}
	verifier := &stubVerifier{identity: identity}

	var audited *Identity
	h := newLoginTest(verifier, func(_ context.Context, id *Identity, _ string) {
		audited = id
	})

	rec := postLogin(h, `{"email":"Doc@Example.COM","password":"secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	if verifier.gotEmail != "doc@example.com" {
		t.Errorf("email not lowercased: %q", verifier.gotEmail)
	}
	if audited == nil || audited.UserID != identity.UserID {
		t.Error("audit callback not invoked with the identity")
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp["token"] == "" {
		t.Error("response missing token")
	}
}

func TestLogin_MissingFields(t *testing.T) {
	h := newLoginTest(&stubVerifier{}, nil)

	for _, body := range []string{`{}`, `{"email":"a@b.c"}`, `{"password":"x"}`} {
		if rec := postLogin(h, body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	h := newLoginTest(&stubVerifier{err: errors.New("no such user")}, nil)

	rec := postLogin(h, `{"email":"doc@example.com","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	h := newLoginTest(&stubVerifier{err: errors.New("bad password")}, nil)
	body := `{"email":"doc@example.com","password":"wrong"}`

	for i := 0; i < 5; i++ {
		if rec := postLogin(h, body); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, rec.Code)
		}
	}

	rec := postLogin(h, body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("sixth attempt: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}

	// A different account still has a full budget.
	if rec := postLogin(h, `{"email":"other@example.com","password":"wrong"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("other account: status = %d, want 401", rec.Code)
	}
}

func TestLogin_SuccessClearsCounter(t *testing.T) {
	verifier := &stubVerifier{err: errors.New("bad password")}
	h := newLoginTest(verifier, nil)
	body := `{"email":"doc@example.com","password":"x"}`

	// Exhaust the window: five failures fit, the sixth is refused.
	for i := 0; i < 5; i++ {
		if rec := postLogin(h, body); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, rec.Code)
		}
	}
	if rec := postLogin(h, body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over-limit failure: status = %d, want 429", rec.Code)
	}

	// Correct credentials succeed even while over the limit.
	verifier.err = nil
	verifier.identity = &Identity{UserID: uuid.New(), Email: "doc@example.com", PlatformRole: PlatformRolePatient}
	if rec := postLogin(h, body); rec.Code != http.StatusOK {
		t.Fatalf("successful login while over limit: status = %d", rec.Code)
	}

	// The window was cleared, so five more failures fit before a 429.
	verifier.err = errors.New("bad password")
	for i := 0; i < 5; i++ {
		if rec := postLogin(h, body); rec.Code != http.StatusUnauthorized {
			t.Fatalf("post-clear attempt %d: status = %d, want 401", i+1, rec.Code)
		}
	}
}

func TestSession(t *testing.T) {
	identity := &Identity{UserID: uuid.New(), Email: "doc@example.com", PlatformRole: PlatformRoleProvider}
	h := newLoginTest(&stubVerifier{}, nil)
	e := echo.New()

	t.Run("unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := h.Session(c); err != nil {
			e.HTTPErrorHandler(err, c)
		}
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("with default org cookie", func(t *testing.T) {
		orgID := uuid.New()
		req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
		req.AddCookie(&http.Cookie{Name: DefaultOrgCookieName, Value: orgID.String()})
		req = req.WithContext(WithIdentity(req.Context(), identity))
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := h.Session(c); err != nil {
			e.HTTPErrorHandler(err, c)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}

		var resp map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid response: %v", err)
		}
		if resp["default_organization_id"] != orgID.String() {
			t.Errorf("default_organization_id = %v", resp["default_organization_id"])
		}

		// The cookie is consumed: the response expires it.
		expired := false
		for _, ck := range rec.Result().Cookies() {
			if ck.Name == DefaultOrgCookieName && ck.MaxAge < 0 {
				expired = true
			}
		}
		if !expired {
			t.Error("default org cookie was not expired after being read")
		}
	})
}

func TestDefaultOrgCookie_RoundTrip(t *testing.T) {
	e := echo.New()
	orgID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	SetDefaultOrgCookie(c, orgID)

	var set *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == DefaultOrgCookieName {
			set = ck
		}
	}
	if set == nil {
		t.Fatal("cookie not set")
	}
	if set.Value != orgID.String() || !set.HttpOnly {
		t.Errorf("cookie = %+v", set)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(&http.Cookie{Name: DefaultOrgCookieName, Value: set.Value})
	c2 := e.NewContext(req2, httptest.NewRecorder())
	if got := ReadDefaultOrgCookie(c2); got != orgID {
		t.Errorf("read back %v, want %v", got, orgID)
	}

	req3 := httptest.NewRequest(http.MethodGet, "/", nil)
	req3.AddCookie(&http.Cookie{Name: DefaultOrgCookieName, Value: "garbage"})
	c3 := e.NewContext(req3, httptest.NewRecorder())
	if got := ReadDefaultOrgCookie(c3); got != uuid.Nil {
		t.Errorf("garbage cookie should read as nil, got %v", got)
	}
}

func TestIssueToken_RoundTrip(t *testing.T) {
	cfg := testJWTConfig()
	identity := &Identity{UserID: uuid.New(), Email: "doc@example.com", PlatformRole: PlatformRoleAdmin}

	token, err := IssueToken(cfg, identity)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if token == "" || len(strings.Split(token, ".")) != 3 {
		t.Fatalf("not a JWT: %q", token)
	}
}
