package oauth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/livenex/internal/model"
)

// StateCookieName はstateのnonceを保持するCookie名。
const StateCookieName = "livenex_oauth_state"

const defaultStateTTL = 10 * time.Minute

// NewAdapter はIdP名に対応するAdapterを生成する。
func NewAdapter(p model.Provider, cc ClientConfig) (Adapter, error) {
	switch p {
	case model.ProviderGoogle:
		return NewGoogle(cc), nil
	case model.ProviderYouTube:
		return NewYouTube(cc), nil
	case model.ProviderFacebook:
		return NewFacebook(cc), nil
	case model.ProviderTwitch:
		return NewTwitch(cc), nil
	default:
		return nil, newProviderError(p, ErrUnsupportedProvider, nil)
	}
}

// FlowConfig はFlowの設定。
type FlowConfig struct {
	StateSecret  []byte
	StateTTL     time.Duration
	CookieSecure bool
	Now          func() time.Time
}

// Flow は有効なIdPごとの認可開始とコールバック処理を行う。
// stateはHMAC署名付きで、同じnonceをCookieにも保存して照合する。
type Flow struct {
	adapters map[model.Provider]Adapter
	secret   []byte
	ttl      time.Duration
	secure   bool
	now      func() time.Time
}

// Result はコールバック処理の結果。
// LinkUserIDは連携開始時にログイン済みだったユーザーのID（匿名開始なら空）。
type Result struct {
	Identity   *ExternalIdentity
	LinkUserID string
}

// statePayload はstateに埋め込む内容。
type statePayload struct {
	Nonce    string `json:"n"`
	Provider string `json:"p"`
	UserID   string `json:"u,omitempty"`
	Expires  int64  `json:"e"`
}

// NewFlow はFlowを生成する。
func NewFlow(cfg FlowConfig, adapters ...Adapter) *Flow {
	f := &Flow{
		adapters: make(map[model.Provider]Adapter, len(adapters)),
		secret:   cfg.StateSecret,
		ttl:      cfg.StateTTL,
		secure:   cfg.CookieSecure,
		now:      cfg.Now,
	}
	if f.ttl <= 0 {
		f.ttl = defaultStateTTL
	}
	if f.now == nil {
		f.now = time.Now
	}
	for _, a := range adapters {
		f.adapters[a.Provider()] = a
	}
	return f
}

// Enabled は指定IdPが設定済みかを返す。
func (f *Flow) Enabled(p model.Provider) bool {
	_, ok := f.adapters[p]
	return ok
}

// Providers は設定済みIdPの一覧を返す。
func (f *Flow) Providers() []model.Provider {
	var out []model.Provider
	for _, p := range model.Providers() {
		if f.Enabled(p) {
			out = append(out, p)
		}
	}
	return out
}

// Begin はstateを発行してCookieに保存し、IdPの認可URLを返す。
// linkUserIDが空でなければ、コールバック時にそのユーザーへ連携する。
func (f *Flow) Begin(w http.ResponseWriter, p model.Provider, linkUserID string) (string, error) {
	adapter, ok := f.adapters[p]
	if !ok {
		return "", newProviderError(p, ErrUnsupportedProvider, nil)
	}

	nonce, err := randomToken(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate state nonce: %w", err)
	}
	state, err := f.signState(statePayload{
		Nonce:    nonce,
		Provider: string(p),
		UserID:   linkUserID,
		Expires:  f.now().Add(f.ttl).Unix(),
	})
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    nonce,
		Path:     "/",
		MaxAge:   int(f.ttl.Seconds()),
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return adapter.AuthCodeURL(state), nil
}

// Complete はコールバックリクエストを検証し、認可コードを交換する。
// state Cookieは結果に関わらず削除する（stateは1回限り）。
func (f *Flow) Complete(ctx context.Context, w http.ResponseWriter, r *http.Request, p model.Provider) (*Result, error) {
	adapter, ok := f.adapters[p]
	if !ok {
		return nil, newProviderError(p, ErrUnsupportedProvider, nil)
	}

	f.clearStateCookie(w)

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		return nil, newProviderError(p, ErrAuthorizationDenied, errors.New(e))
	}

	payload, err := f.verifyState(q.Get("state"))
	if err != nil {
		return nil, newProviderError(p, ErrStateMismatch, err)
	}
	if payload.Provider != string(p) {
		return nil, newProviderError(p, ErrStateMismatch, errors.New("state issued for another provider"))
	}
	if f.now().Unix() > payload.Expires {
		return nil, newProviderError(p, ErrStateMismatch, errors.New("state expired"))
	}
	cookie, err := r.Cookie(StateCookieName)
	if err != nil || !hmac.Equal([]byte(cookie.Value), []byte(payload.Nonce)) {
		return nil, newProviderError(p, ErrStateMismatch, errors.New("state cookie missing or mismatched"))
	}

	code := q.Get("code")
	if code == "" {
		return nil, newProviderError(p, ErrAuthorizationDenied, errors.New("missing code"))
	}

	ext, err := adapter.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	return &Result{Identity: ext, LinkUserID: payload.UserID}, nil
}

func (f *Flow) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (f *Flow) signState(p statePayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(raw)
	return body + "." + base64.RawURLEncoding.EncodeToString(f.mac(body)), nil
}

func (f *Flow) verifyState(state string) (*statePayload, error) {
	body, sig, ok := strings.Cut(state, ".")
	if !ok || body == "" || sig == "" {
		return nil, errors.New("malformed state")
	}
	gotMAC, err := base64.RawURLEncoding.Strict().DecodeString(sig)
	if err != nil || strings.ContainsAny(sig, "\r\n") {
		return nil, errors.New("malformed state signature")
	}
	if !hmac.Equal(gotMAC, f.mac(body)) {
		return nil, errors.New("state signature mismatch")
	}
	raw, err := base64.RawURLEncoding.Strict().DecodeString(body)
	if err != nil {
		return nil, errors.New("malformed state body")
	}
	var p statePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.New("malformed state body")
	}
	return &p, nil
}

func (f *Flow) mac(body string) []byte {
	h := hmac.New(sha256.New, f.secret)
	h.Write([]byte(body))
	return h.Sum(nil)
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
