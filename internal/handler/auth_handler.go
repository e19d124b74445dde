package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/livenex/internal/auth"
	"github.com/hitoshi/livenex/internal/metrics"
	"github.com/hitoshi/livenex/internal/middleware"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/session"
	"github.com/hitoshi/livenex/internal/user"
)

// ログイン方式（メトリクスのmethodラベル）
const (
	loginMethodPassword = "password"
	loginMethodAdmin    = "admin"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, in auth.SignupInput) (*model.User, error)
	Signin(ctx context.Context, email, password string) (*model.User, error)
	AdminLogin(ctx context.Context, email, password string) (*model.User, error)
}

// SessionIssuer はセッショントークンの発行と失効を行う。
type SessionIssuer interface {
	Issue(userID string, role model.Role) (session.Token, error)
	Revoke(ctx context.Context, claims *session.Claims) error
}

// ProfileReader はログインユーザーのプロフィールを取得する。
type ProfileReader interface {
	Profile(ctx context.Context, u *model.User) (*user.Profile, error)
}

// AuthHandler はローカル認証とセッション関連のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	sessions  SessionIssuer
	profiles  ProfileReader
	cookies   session.CookieConfig
	collector metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(
	service AuthServiceInterface,
	sessions SessionIssuer,
	profiles ProfileReader,
	cookies session.CookieConfig,
	collector metrics.MetricsCollector,
) *AuthHandler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &AuthHandler{
		service:   service,
		sessions:  sessions,
		profiles:  profiles,
		cookies:   cookies,
		collector: collector,
	}
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID              string           `json:"id"`
	Email           string           `json:"email"`
	Name            string           `json:"name"`
	Role            model.Role       `json:"role"`
	LinkedProviders []model.Provider `json:"linked_providers,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// Signup はローカルアカウントを作成し、ログイン状態にする。
// POST /api/user/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.Signup(r.Context(), auth.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if !h.startSession(w, r, u) {
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// Signin はメールアドレスとパスワードでログインする。
// POST /api/user/signin
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, loginMethodPassword, h.service.Signin)
}

// AdminLogin は管理者としてログインする。
// POST /api/user/admin/login
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, loginMethodAdmin, h.service.AdminLogin)
}

func (h *AuthHandler) login(
	w http.ResponseWriter,
	r *http.Request,
	method string,
	authenticate func(ctx context.Context, email, password string) (*model.User, error),
) {
	var req signinRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.collector.RecordLogin(method, false)
		handleServiceError(w, r, err)
		return
	}
	h.collector.RecordLogin(method, true)

	if !h.startSession(w, r, u) {
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// startSession はセッショントークンを発行してCookieに設定する。
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, u *model.User) bool {
	token, err := h.sessions.Issue(u.ID, u.Role)
	if err != nil {
		handleServiceError(w, r, err)
		return false
	}
	h.cookies.WriteCookie(w, token)
	return true
}

// Logout はセッションを失効させCookieを削除する。
// GET /api/user/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		if err := h.sessions.Revoke(r.Context(), claims); err != nil {
			// 失効に失敗してもCookieは削除する
			slog.ErrorContext(r.Context(), "failed to revoke session",
				slog.String("user_id", claims.UserID()),
				slog.String("error", err.Error()),
			)
		}
	}

	h.cookies.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me はログインユーザーの情報と連携済みIdPを返す。
// GET /api/user/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	profile, err := h.profiles.Profile(r.Context(), u)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := toUserResponse(profile.User)
	resp.LinkedProviders = profile.LinkedProviders()
	writeJSON(w, http.StatusOK, resp)
}
