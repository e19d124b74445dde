package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseSameSite(t *testing.T) {
	tests := map[string]http.SameSite{
		"none":   http.SameSiteNoneMode,
		"None":   http.SameSiteNoneMode,
		"strict": http.SameSiteStrictMode,
		"lax":    http.SameSiteLaxMode,
		"":       http.SameSiteLaxMode,
		"bogus":  http.SameSiteLaxMode,
	}
	for in, want := range tests {
		if got := ParseSameSite(in); got != want {
			t.Errorf("ParseSameSite(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCookieConfig_WriteCookie_CrossSite(t *testing.T) {
	cfg := CookieConfig{Secure: true, SameSite: http.SameSiteNoneMode, Domain: "api.example.com"}
	rec := httptest.NewRecorder()
	cfg.WriteCookie(rec, Token{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)})

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != CookieName || c.Value != "tok" {
		t.Errorf("cookie = %s=%s", c.Name, c.Value)
	}
	if !c.HttpOnly {
		t.Error("cookie must be HttpOnly")
	}
	if !c.Secure {
		t.Error("cookie must be Secure")
	}
	if c.SameSite != http.SameSiteNoneMode {
		t.Errorf("SameSite = %v, want None", c.SameSite)
	}
	if c.MaxAge <= 0 || c.MaxAge > 3600 {
		t.Errorf("MaxAge = %d, want within (0, 3600]", c.MaxAge)
	}
	if c.Path != "/" {
		t.Errorf("Path = %q, want /", c.Path)
	}
}

func TestCookieConfig_SameSiteNoneRequiresSecure(t *testing.T) {
	cfg := CookieConfig{Secure: false, SameSite: http.SameSiteNoneMode}
	rec := httptest.NewRecorder()
	cfg.WriteCookie(rec, Token{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)})

	if got := rec.Result().Cookies()[0].SameSite; got != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax for insecure cookie", got)
	}
}

func TestCookieConfig_ClearCookie(t *testing.T) {
	cfg := CookieConfig{Secure: true, SameSite: http.SameSiteNoneMode}
	rec := httptest.NewRecorder()
	cfg.ClearCookie(rec)

	c := rec.Result().Cookies()[0]
	if c.Name != CookieName || c.Value != "" || c.MaxAge >= 0 {
		t.Errorf("unexpected clear cookie: %+v", c)
	}
}

func TestReadCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := ReadCookie(req); got != "" {
		t.Errorf("ReadCookie() = %q, want empty", got)
	}
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "abc"})
	if got := ReadCookie(req); got != "abc" {
		t.Errorf("ReadCookie() = %q, want %q", got, "abc")
	}
}
