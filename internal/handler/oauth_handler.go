package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/livenex/internal/auth"
	"github.com/hitoshi/livenex/internal/metrics"
	"github.com/hitoshi/livenex/internal/middleware"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/oauth"
	"github.com/hitoshi/livenex/internal/session"
)

// リダイレクト先に渡す連携失敗の理由。
const (
	reasonIdentityBound = "identity_bound_to_another_user"
	reasonUserNotFound  = "user_not_found"
)

// OAuthFlow は認可コードフローの開始とコールバック検証を行う。
type OAuthFlow interface {
	Enabled(p model.Provider) bool
	Begin(w http.ResponseWriter, p model.Provider, linkUserID string) (string, error)
	Complete(ctx context.Context, w http.ResponseWriter, r *http.Request, p model.Provider) (*oauth.Result, error)
}

// IdentityLinker は外部アカウントを内部ユーザーに紐付ける。
type IdentityLinker interface {
	Link(ctx context.Context, userID string, ext *oauth.ExternalIdentity) (*model.User, error)
}

// OAuthHandlerConfig はOAuthハンドラーの設定。
type OAuthHandlerConfig struct {
	// FrontendURL はログイン完了・失敗時のリダイレクト先。空の場合はJSONで応答する。
	FrontendURL string
	Cookies     session.CookieConfig
}

// OAuthHandler はIdPログイン・アカウント連携のHTTPハンドラー。
type OAuthHandler struct {
	flow      OAuthFlow
	linker    IdentityLinker
	sessions  SessionIssuer
	collector metrics.MetricsCollector
	config    OAuthHandlerConfig
}

// NewOAuthHandler はOAuthHandlerを生成する。
func NewOAuthHandler(
	flow OAuthFlow,
	linker IdentityLinker,
	sessions SessionIssuer,
	collector metrics.MetricsCollector,
	config OAuthHandlerConfig,
) *OAuthHandler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	config.FrontendURL = strings.TrimRight(config.FrontendURL, "/")
	return &OAuthHandler{
		flow:      flow,
		linker:    linker,
		sessions:  sessions,
		collector: collector,
		config:    config,
	}
}

// Begin はIdPの認可画面へリダイレクトする。
// ログイン済みの場合はそのユーザーへの連携として開始する。
// GET /api/user/auth/{provider}
func (h *OAuthHandler) Begin(p model.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.flow.Enabled(p) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUnsupportedProviderError(string(p)))
			return
		}

		var linkUserID string
		if u, ok := middleware.UserFromContext(r.Context()); ok {
			linkUserID = u.ID
		}

		authURL, err := h.flow.Begin(w, p, linkUserID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// Callback はIdPからのコールバックを検証し、連携とセッション発行を行う。
// GET /api/user/auth/{provider}-callback?code=xxx&state=yyy
func (h *OAuthHandler) Callback(p model.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.flow.Enabled(p) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUnsupportedProviderError(string(p)))
			return
		}

		// 1. stateの検証と認可コードの交換
		result, err := h.flow.Complete(r.Context(), w, r, p)
		if err != nil {
			h.failProvider(w, r, p, err)
			return
		}

		// 2. 内部ユーザーへの紐付け
		u, err := h.linker.Link(r.Context(), result.LinkUserID, result.Identity)
		if errors.Is(err, auth.ErrIdentityBoundToAnotherUser) {
			h.collector.RecordOAuthFailure(string(p), reasonIdentityBound)
			slog.WarnContext(r.Context(), "identity bound to another user",
				slog.String("provider", string(p)),
				slog.String("user_id", result.LinkUserID),
			)
			if h.config.FrontendURL != "" {
				h.redirectError(w, r, p, reasonIdentityBound)
				return
			}
			middleware.WriteErrorResponse(w, http.StatusConflict, model.NewIdentityBoundToAnotherUserError(p))
			return
		}
		if errors.Is(err, auth.ErrUserNotFound) {
			// 連携開始後に連携先ユーザーが削除された
			h.collector.RecordOAuthFailure(string(p), reasonUserNotFound)
			slog.WarnContext(r.Context(), "link target user no longer exists",
				slog.String("provider", string(p)),
				slog.String("user_id", result.LinkUserID),
			)
			if h.config.FrontendURL != "" {
				h.redirectError(w, r, p, reasonUserNotFound)
				return
			}
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
			return
		}
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		// 3. セッションCookieを設定（HTTP Only）
		token, err := h.sessions.Issue(u.ID, u.Role)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		h.config.Cookies.WriteCookie(w, token)
		h.collector.RecordLogin(string(p), true)

		// 4. フロントエンドにリダイレクト
		if h.config.FrontendURL == "" {
			writeJSON(w, http.StatusOK, toUserResponse(u))
			return
		}
		http.Redirect(w, r, h.config.FrontendURL+"/", http.StatusFound)
	}
}

// failProvider はIdPとのやり取りの失敗を記録し、エラーページへ誘導する。
func (h *OAuthHandler) failProvider(w http.ResponseWriter, r *http.Request, p model.Provider, err error) {
	reason := oauth.Reason(err)
	h.collector.RecordOAuthFailure(string(p), reason)
	h.collector.RecordLogin(string(p), false)

	statusCode, apiErr := providerError(p, err)
	slog.WarnContext(r.Context(), "oauth callback failed",
		slog.String("provider", string(p)),
		slog.String("reason", reason),
		slog.Int("status", statusCode),
		slog.String("error", err.Error()),
	)

	if h.config.FrontendURL != "" {
		h.redirectError(w, r, p, reason)
		return
	}
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// redirectError はフロントエンドのエラーページへリダイレクトする。
func (h *OAuthHandler) redirectError(w http.ResponseWriter, r *http.Request, p model.Provider, reason string) {
	query := url.Values{"provider": {string(p)}, "reason": {reason}}
	target := h.config.FrontendURL + "/auth/error?" + query.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

// providerError はProviderErrorの種別をHTTPステータスとAPIErrorに対応付ける。
func providerError(p model.Provider, err error) (int, *model.APIError) {
	switch {
	case errors.Is(err, oauth.ErrStateMismatch):
		return http.StatusBadRequest, model.NewStateMismatchError()
	case errors.Is(err, oauth.ErrAuthorizationDenied):
		return http.StatusBadRequest, model.NewAuthorizationDeniedError(p)
	case errors.Is(err, oauth.ErrUnsupportedProvider):
		return http.StatusNotFound, model.NewUnsupportedProviderError(string(p))
	case errors.Is(err, oauth.ErrNoRefreshToken):
		return http.StatusBadGateway, model.NewNoRefreshTokenError(p)
	case errors.Is(err, oauth.ErrProfileFetchFailed):
		return http.StatusBadGateway, model.NewProfileFetchFailedError(p)
	case errors.Is(err, oauth.ErrTokenExchangeFailed):
		return http.StatusBadGateway, model.NewTokenExchangeFailedError(p)
	default:
		return http.StatusInternalServerError, model.NewInternalError()
	}
}
