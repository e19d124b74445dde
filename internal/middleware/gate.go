// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/livenex/internal/metrics"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userContextKey   = contextKey("user")
	claimsContextKey = contextKey("claims")
)

// SessionVerifier はセッショントークンを検証する。session.Codecが実装する。
type SessionVerifier interface {
	Verify(ctx context.Context, raw string) (*session.Claims, error)
}

// UserFinder はセッションの主体となるユーザーを取得する。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// State はゲートにおけるリクエストの認可状態。
type State int

const (
	// StateUnauthenticated はセッションが未提示または期限切れ。
	StateUnauthenticated State = iota
	// StateSessionValidated はトークンの署名と有効期限を確認済み。
	StateSessionValidated
	// StateUserLoaded はトークンの主体となるユーザーが存在することを確認済み。
	StateUserLoaded
	// StateAdmitted は要求されたロールを満たし、ハンドラーに到達できる。
	StateAdmitted
	// StateRejected は拒否された。
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateSessionValidated:
		return "session_validated"
	case StateUserLoaded:
		return "user_loaded"
	case StateAdmitted:
		return "admitted"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Decision はゲートの評価結果。
// StateAdmittedの場合のみUserとClaimsが設定される。
// StateUnauthenticatedとStateRejectedの場合はStatusとErrorでレスポンスを決める。
type Decision struct {
	State  State
	User   *model.User
	Claims *session.Claims
	Status int
	Error  *model.APIError
	// Reason はメトリクス・ログ用の拒否理由。
	Reason string
}

// Gate はセッションCookieを検証し、ユーザーとロールに基づいてリクエストを通過させる。
type Gate struct {
	verifier   SessionVerifier
	users      UserFinder
	collector  metrics.MetricsCollector
	logger     *slog.Logger
	redirectTo string
}

// NewGate はGateを生成する。
func NewGate(verifier SessionVerifier, users UserFinder, collector metrics.MetricsCollector, logger *slog.Logger) *Gate {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{verifier: verifier, users: users, collector: collector, logger: logger}
}

// RedirectTo は未ログイン（未提示・期限切れ）時に401の代わりにurlへリダイレクトするGateを返す。
// 改ざん等の不正なセッションは引き続き401で拒否する。
func (g *Gate) RedirectTo(url string) *Gate {
	cp := *g
	cp.redirectTo = url
	return &cp
}

// Evaluate はリクエストのセッションを検証し、認可状態を返す。
func (g *Gate) Evaluate(r *http.Request, requireAdmin bool) Decision {
	ctx := r.Context()

	claims, err := g.verifier.Verify(ctx, session.ReadCookie(r))
	if err != nil {
		kind, ok := session.KindOf(err)
		switch {
		case !ok:
			g.logger.ErrorContext(ctx, "failed to verify session", slog.String("error", err.Error()))
			return Decision{State: StateRejected, Status: http.StatusInternalServerError, Error: model.NewInternalError(), Reason: "store_error"}
		case session.IsAnonymous(err):
			return Decision{State: StateUnauthenticated, Status: http.StatusUnauthorized, Error: model.NewUnauthorizedError(), Reason: kind.String()}
		default:
			return Decision{State: StateRejected, Status: http.StatusUnauthorized, Error: model.NewSessionInvalidError(), Reason: kind.String()}
		}
	}

	// StateSessionValidated: 署名と有効期限は確認済み。ユーザーの存在を確認する
	user, err := g.users.FindByID(ctx, claims.UserID())
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to load session user",
			slog.String("user_id", claims.UserID()),
			slog.String("error", err.Error()),
		)
		return Decision{State: StateRejected, Status: http.StatusInternalServerError, Error: model.NewInternalError(), Reason: "store_error"}
	}
	if user == nil {
		return Decision{State: StateRejected, Status: http.StatusUnauthorized, Error: model.NewUserNotFoundError(), Reason: "user_deleted"}
	}

	// StateUserLoaded: ロールはトークンではなく現在のユーザーレコードで判定する
	if requireAdmin && !user.IsAdmin() {
		return Decision{State: StateRejected, Status: http.StatusForbidden, Error: model.NewForbiddenError(), Reason: "not_admin"}
	}

	return Decision{State: StateAdmitted, User: user, Claims: claims}
}

// Require はセッション必須のミドルウェアを返す。
func (g *Gate) Require(next http.Handler) http.Handler {
	return g.guard(next, false)
}

// RequireAdmin は管理者ロール必須のミドルウェアを返す。
func (g *Gate) RequireAdmin(next http.Handler) http.Handler {
	return g.guard(next, true)
}

func (g *Gate) guard(next http.Handler, requireAdmin bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Evaluate(r, requireAdmin)
		if d.State != StateAdmitted {
			g.reject(w, r, d)
			return
		}
		next.ServeHTTP(w, r.WithContext(withDecision(r.Context(), d)))
	})
}

// Optional はセッションがあればユーザーをコンテキストに注入し、なければそのまま通過させる。
// 改ざん・失効したセッションは拒否する。
func (g *Gate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Evaluate(r, false)
		switch d.State {
		case StateAdmitted:
			next.ServeHTTP(w, r.WithContext(withDecision(r.Context(), d)))
		case StateUnauthenticated:
			next.ServeHTTP(w, r)
		default:
			g.reject(w, r, d)
		}
	})
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, d Decision) {
	g.collector.RecordSessionRejected(d.Reason)

	if d.State == StateUnauthenticated && g.redirectTo != "" {
		http.Redirect(w, r, g.redirectTo, http.StatusFound)
		return
	}

	if d.Status != http.StatusInternalServerError {
		g.logger.InfoContext(r.Context(), "request rejected by gate",
			slog.String("path", r.URL.Path),
			slog.String("state", d.State.String()),
			slog.String("reason", d.Reason),
		)
	}
	WriteErrorResponse(w, d.Status, d.Error)
}

func withDecision(ctx context.Context, d Decision) context.Context {
	ctx = ContextWithUser(ctx, d.User)
	return context.WithValue(ctx, claimsContextKey, d.Claims)
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok && user != nil {
		info.setUserID(user.ID)
	}
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext はゲートを通過したリクエストのユーザーを返す。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	return user, ok && user != nil
}

// ClaimsFromContext はゲートを通過したリクエストのセッションクレームを返す。
func ClaimsFromContext(ctx context.Context) (*session.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*session.Claims)
	return claims, ok && claims != nil
}
