package session

import (
	"net/http"
	"strings"
	"time"
)

// CookieName はセッションCookie名。
const CookieName = "livenex_session"

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// ParseSameSite はCOOKIE_SAMESITEの値をhttp.SameSiteに変換する。
// 不明な値はLaxとして扱う。
func ParseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return http.SameSiteNoneMode
	case "strict":
		return http.SameSiteStrictMode
	default:
		return http.SameSiteLaxMode
	}
}

// sameSite はSecureでない場合にNoneを使わない（ブラウザが拒否するため）。
func (c CookieConfig) sameSite() http.SameSite {
	if c.SameSite == http.SameSiteNoneMode && !c.Secure {
		return http.SameSiteLaxMode
	}
	if c.SameSite == 0 {
		return http.SameSiteLaxMode
	}
	return c.SameSite
}

// WriteCookie はセッショントークンをHTTP Only Cookieとして設定する。
func (c CookieConfig) WriteCookie(w http.ResponseWriter, token Token) {
	maxAge := int(time.Until(token.ExpiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token.Value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   maxAge,
		Expires:  token.ExpiresAt,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
	})
}

// ClearCookie はセッションCookieを削除する。
func (c CookieConfig) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
	})
}

// ReadCookie はリクエストからセッショントークンを取り出す。未提示の場合は空文字を返す。
func ReadCookie(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
