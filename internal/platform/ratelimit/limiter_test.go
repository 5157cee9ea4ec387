package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter()
	l.now = clock.Now
	return l, clock
}

func TestCheck_AllowsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter()
	limit := Limit{MaxAttempts: 5, Window: 15 * time.Minute}

	for i := 0; i < 5; i++ {
		res := l.Check("login:alice", limit)
		if !res.Allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
		if res.Remaining != 5-(i+1) {
			t.Errorf("attempt %d: remaining = %d, want %d", i+1, res.Remaining, 5-(i+1))
		}
	}

	res := l.Check("login:alice", limit)
	if res.Allowed {
		t.Fatal("sixth attempt should be denied")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > 15*time.Minute {
		t.Errorf("RetryAfter = %v, want within (0, 15m]", res.RetryAfter)
	}
}

func TestCheck_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter()
	limit := Limit{MaxAttempts: 1, Window: time.Minute}

	if res := l.Check("login:alice", limit); !res.Allowed {
		t.Fatal("alice's first attempt should pass")
	}
	if res := l.Check("login:alice", limit); res.Allowed {
		t.Fatal("alice's second attempt should be denied")
	}
	if res := l.Check("login:bob", limit); !res.Allowed {
		t.Fatal("bob should be unaffected by alice's budget")
	}
	if res := l.Check("export:alice", limit); !res.Allowed {
		t.Fatal("a different category should have its own budget")
	}
}

func TestCheck_WindowResets(t *testing.T) {
	l, clock := newTestLimiter()
	limit := Limit{MaxAttempts: 2, Window: 15 * time.Minute}

	l.Check("login:alice", limit)
	l.Check("login:alice", limit)
	if res := l.Check("login:alice", limit); res.Allowed {
		t.Fatal("third attempt in window should be denied")
	}

	clock.Advance(15*time.Minute + time.Second)
	res := l.Check("login:alice", limit)
	if !res.Allowed {
		t.Fatal("attempt after window expiry should open a fresh window")
	}
	if res.Remaining != 1 {
		t.Errorf("fresh window remaining = %d, want 1", res.Remaining)
	}
}

func TestClear_ResetsImmediately(t *testing.T) {
	l, _ := newTestLimiter()
	limit := Limit{MaxAttempts: 1, Window: time.Hour}

	l.Check("login:alice", limit)
	if res := l.Check("login:alice", limit); res.Allowed {
		t.Fatal("should be denied before clear")
	}

	l.Clear("login:alice")
	if res := l.Check("login:alice", limit); !res.Allowed {
		t.Fatal("should be allowed after clear")
	}
}

func TestSweep_PrunesOnlyExpired(t *testing.T) {
	l, clock := newTestLimiter()

	l.Check("short", Limit{MaxAttempts: 5, Window: time.Minute})
	l.Check("long", Limit{MaxAttempts: 5, Window: time.Hour})

	clock.Advance(2 * time.Minute)
	if pruned := l.Sweep(); pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if len(l.windows) != 1 {
		t.Errorf("windows remaining = %d, want 1", len(l.windows))
	}
	if _, ok := l.windows["long"]; !ok {
		t.Error("unexpired window was swept")
	}
}

func TestKey(t *testing.T) {
	if got := Key("login", "alice@example.com"); got != "login:alice@example.com" {
		t.Errorf("got %q", got)
	}
}

func TestMiddleware_SetsHeadersAndRejects(t *testing.T) {
	l, _ := newTestLimiter()
	limit := Limit{MaxAttempts: 2, Window: time.Minute}

	e := echo.New()
	handler := Middleware(l, "api", limit, ByIP)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := handler(c); err != nil {
			e.HTTPErrorHandler(err, c)
		}
		return rec
	}

	first := do()
	if first.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", first.Code)
	}
	if first.Header().Get("X-RateLimit-Limit") != "2" {
		t.Errorf("X-RateLimit-Limit = %q, want 2", first.Header().Get("X-RateLimit-Limit"))
	}
	if first.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Errorf("X-RateLimit-Remaining = %q, want 1", first.Header().Get("X-RateLimit-Remaining"))
	}

	do()
	third := do()
	if third.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: status = %d, want 429", third.Code)
	}
	if third.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
}
