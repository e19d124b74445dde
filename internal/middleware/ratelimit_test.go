package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/livenex/internal/model"
)

func newTestRateLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)
	return rl
}

func signinRequest(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/user/signin", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestNewRateLimiterConfig_PerMinute(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 10)

	if cfg.GeneralRate != rate.Limit(2) || cfg.GeneralBurst != 120 {
		t.Errorf("general = %v/%d", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.SigninBurst != 10 {
		t.Errorf("SigninBurst = %d, want 10", cfg.SigninBurst)
	}
}

func TestRateLimiter_Signin_PerIP(t *testing.T) {
	rl := newTestRateLimiter(t, NewRateLimiterConfig(120, 3))
	h := rl.SigninMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, signinRequest("203.0.113.5:4000"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, signinRequest("203.0.113.5:4001"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "20" {
		t.Errorf("Retry-After = %q, want %q", w.Header().Get("Retry-After"), "20")
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodeRateLimited {
		t.Errorf("code = %q", body.Code)
	}

	// 別IPは独立して制限される
	w = httptest.NewRecorder()
	h.ServeHTTP(w, signinRequest("198.51.100.7:4000"))
	if w.Code != http.StatusOK {
		t.Errorf("other IP: status = %d, want 200", w.Code)
	}
	if rl.SigninLimiterCount() != 2 {
		t.Errorf("SigninLimiterCount = %d, want 2", rl.SigninLimiterCount())
	}
}

func TestRateLimiter_General_PerUser(t *testing.T) {
	rl := newTestRateLimiter(t, NewRateLimiterConfig(2, 10))
	h := rl.GeneralMiddleware()(okHandler())

	userReq := func(id string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/user/gettickets", nil)
		return req.WithContext(ContextWithUser(req.Context(), &model.User{ID: id}))
	}

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, userReq("user-1"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, w.Code)
		}
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, userReq("user-1"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, userReq("user-2"))
	if w.Code != http.StatusOK {
		t.Errorf("user-2: status = %d, want 200", w.Code)
	}
}

func TestRateLimiter_General_AnonymousFallsBackToIP(t *testing.T) {
	rl := newTestRateLimiter(t, NewRateLimiterConfig(1, 10))
	h := rl.GeneralMiddleware()(okHandler())

	h.ServeHTTP(httptest.NewRecorder(), signinRequest("192.0.2.1:1000"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, signinRequest("192.0.2.1:1001"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestRateLimiter_TokensRefill(t *testing.T) {
	rl := newTestRateLimiter(t, NewRateLimiterConfig(120, 1))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.SigninMiddleware()(okHandler())

	h.ServeHTTP(httptest.NewRecorder(), signinRequest("203.0.113.9:1"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, signinRequest("203.0.113.9:1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	now = now.Add(61 * time.Second)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, signinRequest("203.0.113.9:1"))
	if w.Code != http.StatusOK {
		t.Errorf("after refill: status = %d, want 200", w.Code)
	}
}

func TestRateLimiter_Cleanup_EvictsIdleEntries(t *testing.T) {
	cfg := NewRateLimiterConfig(120, 10)
	cfg.CleanupInterval = time.Minute
	rl := newTestRateLimiter(t, cfg)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.SigninMiddleware()(okHandler())

	h.ServeHTTP(httptest.NewRecorder(), signinRequest("203.0.113.1:1"))
	now = now.Add(90 * time.Second)
	h.ServeHTTP(httptest.NewRecorder(), signinRequest("203.0.113.2:1"))

	now = now.Add(60 * time.Second)
	rl.cleanup()

	if got := rl.SigninLimiterCount(); got != 1 {
		t.Errorf("SigninLimiterCount = %d, want 1", got)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	if got := clientIP(req); got != "2001:db8::1" {
		t.Errorf("clientIP = %q", got)
	}
	req.RemoteAddr = "no-port"
	if got := clientIP(req); got != "no-port" {
		t.Errorf("clientIP = %q", got)
	}
}
