package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/livenex/internal/metrics"
	"github.com/hitoshi/livenex/internal/middleware"
	"github.com/hitoshi/livenex/internal/model"
)

// APIPrefix は全APIルートの接頭辞。
const APIPrefix = "/api/user"

// healthCheckTimeout は/healthでのDB疎通確認の上限。
const healthCheckTimeout = 2 * time.Second

// HealthChecker は依存先（DB）の疎通を確認する。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// legacyRoute は既存フロントエンドが使っているIdP別のパス。
type legacyRoute struct {
	begin    string
	callback string
}

var legacyOAuthRoutes = map[model.Provider]legacyRoute{
	model.ProviderGoogle:   {callback: "/auth/google/callback"},
	model.ProviderYouTube:  {begin: "/auth/youtubeauth", callback: "/auth/youtube-oauth-callback"},
	model.ProviderFacebook: {begin: "/auth/fbauuth", callback: "/auth/facebook-oauth-callback"},
	model.ProviderTwitch:   {begin: "/auth/twitchauth", callback: "/auth/twitch-oauth-callback"},
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Gate               *middleware.Gate
	Entitlements       middleware.EntitlementChecker
	RateLimiter        *middleware.RateLimiter
	CORSAllowedOrigins []string
	CSRF               middleware.CSRFConfig
	SecurityHeaders    middleware.SecurityHeadersConfig
	Logger             *slog.Logger
	Collector          metrics.MetricsCollector

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ハンドラー
	Auth    *AuthHandler
	OAuth   *OAuthHandler
	Payment *PaymentHandler
	Ticket  *TicketHandler
	Admin   *AdminHandler
	Live    *LiveHandler
	YouTube *YouTubeHandler
	Upload  *UploadHandler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → RealIP → Logging → SecurityHeaders → CORS → CSRF → RateLimit → Gate
//
// /health と /metrics はミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger, deps.Collector))
	r.Use(chimw.RealIP)

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	gate := deps.Gate
	strictCSRF := middleware.NewStrictCSRFMiddleware()

	r.Route(APIPrefix, func(r chi.Router) {
		r.Use(middleware.NewLoggingMiddleware(logger, deps.Collector))
		r.Use(middleware.NewSecurityHeadersMiddleware(deps.SecurityHeaders))
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
		r.Use(middleware.NewCSRFMiddleware())

		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

		// --- 認証不要のルート（IP単位のレート制限） ---
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.SigninMiddleware())
			r.Post("/signup", deps.Auth.Signup)
			r.Post("/signin", deps.Auth.Signin)
			r.Post("/admin/login", deps.Auth.AdminLogin)
		})

		// --- IdPログイン・連携（ログイン済みなら連携として扱う） ---
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.SigninMiddleware())
			for _, p := range model.Providers() {
				begin := deps.OAuth.Begin(p)
				callback := deps.OAuth.Callback(p)

				r.With(gate.Optional).Get("/auth/"+string(p), begin)
				r.Get("/auth/"+string(p)+"-callback", callback)

				legacy := legacyOAuthRoutes[p]
				if legacy.begin != "" {
					r.With(gate.Optional).Get(legacy.begin, begin)
				}
				if legacy.callback != "" {
					r.Get(legacy.callback, callback)
				}
			}
		})

		// --- ログインが必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(gate.Require)
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.With(strictCSRF).Get("/logout", deps.Auth.Logout)
			r.Get("/me", deps.Auth.Me)

			// 決済・サブスクリプション
			r.Get("/issubscribed", deps.Payment.IsSubscribed)
			r.Get("/getSubscriptionDetails", deps.Payment.SubscriptionDetails)
			r.Get("/razor/orders", deps.Payment.CreateOrder)
			r.Post("/razor/success", deps.Payment.Confirm)

			// サポートチケット（GETで作成するため厳格なCSRF検証を行う）
			r.With(strictCSRF).Get("/createticket", deps.Ticket.Create)
			r.Get("/gettickets", deps.Ticket.List)
			r.Get("/tickets/{id}", deps.Ticket.Get)

			// ライブ配信メタデータ
			r.Post("/setlivedata", deps.Live.Set)
			r.Get("/getpastlives", deps.Live.Past)

			// YouTube
			r.Post("/scheduleinfoupdate", deps.YouTube.UpdateSchedule)
			r.Post("/reply", deps.YouTube.Reply)

			// 動画アップロード（サブスクリプション必須）
			r.With(middleware.RequireEntitlement(deps.Entitlements)).Post("/uploadvideo", deps.Upload.Upload)
		})

		// 未ログイン時はYouTube連携の開始へ誘導する
		r.Group(func(r chi.Router) {
			r.Use(gate.RedirectTo(APIPrefix + "/auth/" + string(model.ProviderYouTube)).Require)
			r.Use(deps.RateLimiter.GeneralMiddleware())
			r.Get("/getUpcomingLives", deps.YouTube.UpcomingLives)
		})

		// --- 管理者専用のルート ---
		r.Group(func(r chi.Router) {
			r.Use(gate.RequireAdmin)
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/admin/getusers", deps.Admin.ListUsers)
			r.With(strictCSRF).Get("/admin/deleteuser", deps.Admin.DeleteUser)
			r.Get("/admin/getalltickets", deps.Admin.ListTickets)
			r.Post("/admin/sentticketreply", deps.Admin.ReplyTicket)
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.ErrorContext(r.Context(), "health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
