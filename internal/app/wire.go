package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/livenex/internal/auth"
	"github.com/hitoshi/livenex/internal/config"
	"github.com/hitoshi/livenex/internal/entitlement"
	"github.com/hitoshi/livenex/internal/events"
	"github.com/hitoshi/livenex/internal/handler"
	"github.com/hitoshi/livenex/internal/live"
	"github.com/hitoshi/livenex/internal/metrics"
	"github.com/hitoshi/livenex/internal/middleware"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/oauth"
	"github.com/hitoshi/livenex/internal/payment"
	"github.com/hitoshi/livenex/internal/repository"
	"github.com/hitoshi/livenex/internal/security"
	"github.com/hitoshi/livenex/internal/session"
	"github.com/hitoshi/livenex/internal/storage"
	"github.com/hitoshi/livenex/internal/ticket"
	"github.com/hitoshi/livenex/internal/user"
	"github.com/hitoshi/livenex/internal/youtube"
)

// routerInfra はbuildRouterに渡す外部接続。
type routerInfra struct {
	DB             *sql.DB
	Revocations    session.RevocationStore
	Publisher      events.Publisher
	Collector      metrics.MetricsCollector
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// newRevocationStore はセッション失効リストを生成する。
// REDIS_ADDRが設定されていればRedis、なければPostgresを使う。
func newRevocationStore(ctx context.Context, cfg *config.Config, db *sql.DB) (repository.RevocationRepository, func(), error) {
	if cfg.RedisAddr == "" {
		return repository.NewPostgresRevocationRepo(db), func() {}, nil
	}

	client, err := repository.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("using redis revocation store", slog.String("addr", cfg.RedisAddr))
	return repository.NewRedisRevocationStore(client), func() { _ = client.Close() }, nil
}

// newPublisher はドメインイベントの発行先を生成する。
// AMQP_URLが未設定、または接続できない場合はログ出力にフォールバックする。
func newPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, func()) {
	fallback := events.Logging{Logger: logger}
	if cfg.AMQPURL == "" {
		return fallback, func() {}
	}

	publisher, err := events.DialAMQP(cfg.AMQPURL, events.DefaultExchange, logger)
	if err != nil {
		logger.Warn("failed to connect to amqp broker, falling back to log publisher",
			slog.String("error", err.Error()),
		)
		return fallback, func() {}
	}
	return publisher, func() { _ = publisher.Close() }
}

// deriveKey はSESSION_SECRETから用途別の鍵を導出する。
func deriveKey(secret, purpose string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(purpose))
	return mac.Sum(nil)
}

// oauthClientConfig はIdPの設定をアダプター用に変換する。
func oauthClientConfig(c config.OAuthClient, httpClient *http.Client) oauth.ClientConfig {
	return oauth.ClientConfig{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		HTTPClient:   httpClient,
	}
}

// newOAuthAdapters は設定済みのIdPのアダプターを生成する。
func newOAuthAdapters(cfg *config.Config, httpClient *http.Client) ([]oauth.Adapter, error) {
	var adapters []oauth.Adapter
	for _, p := range model.Providers() {
		c, ok := cfg.Providers[string(p)]
		if !ok {
			continue
		}
		a, err := oauth.NewAdapter(p, oauthClientConfig(c, httpClient))
		if err != nil {
			return nil, fmt.Errorf("failed to configure %s: %w", p, err)
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// hstsMaxAge はHTTPS運用時のみHSTSを有効にする。
func hstsMaxAge(cfg *config.Config) time.Duration {
	if !cfg.CookieSecure {
		return 0
	}
	return 180 * 24 * time.Hour
}

// buildRouter は全依存関係をワイヤリングしてルーターを返す。
// 戻り値のstopはバックグラウンドゴルーチン（レート制限の掃除）を停止する。
func buildRouter(cfg *config.Config, infra routerInfra) (http.Handler, func()) {
	logger := infra.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := infra.Collector
	if collector == nil {
		collector = metrics.Nop{}
	}
	publisher := infra.Publisher
	if publisher == nil {
		publisher = events.Logging{Logger: logger}
	}

	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(infra.DB)
	identRepo := repository.NewPostgresIdentityRepo(infra.DB)
	paymentRepo := repository.NewPostgresPaymentRepo(infra.DB)
	ticketRepo := repository.NewPostgresTicketRepo(infra.DB)
	liveRepo := repository.NewPostgresLiveRepo(infra.DB)

	// 2. セキュリティ
	guard := security.NewGuard()
	outbound := guard.NewClient(cfg.OutboundTimeout)
	sanitizer := security.NewSanitizer()

	// 3. セッション
	var codecOpts []session.Option
	if infra.Revocations != nil {
		codecOpts = append(codecOpts, session.WithRevocationStore(infra.Revocations))
	}
	codec := session.NewCodec(cfg.SessionSecret, time.Duration(cfg.SessionMaxAge)*time.Second, codecOpts...)
	sameSite := session.ParseSameSite(cfg.CookieSameSite)
	cookies := session.CookieConfig{
		Domain:   cfg.CookieDomain,
		Secure:   cfg.CookieSecure,
		SameSite: sameSite,
	}

	// 4. OAuth
	adapters, err := newOAuthAdapters(cfg, outbound)
	if err != nil {
		// config.Loadで検証済みのため到達しない
		logger.Error("oauth configuration error", slog.String("error", err.Error()))
	}
	flow := oauth.NewFlow(oauth.FlowConfig{
		StateSecret:  deriveKey(cfg.SessionSecret, "oauth-state"),
		CookieSecure: cfg.CookieSecure,
	}, adapters...)
	if len(adapters) == 0 {
		logger.Warn("no identity providers configured")
	}

	// 5. ドメインサービス
	authService := auth.NewService(userRepo, publisher, auth.ServiceConfig{BcryptCost: cfg.BcryptCost})
	linker := auth.NewLinker(userRepo, identRepo, publisher, collector)
	userService := user.NewService(userRepo, identRepo, publisher, logger)

	if !cfg.PaymentEnabled() {
		logger.Warn("razorpay credentials are not configured; payment endpoints will fail")
	}
	razorpay := payment.NewRazorpayClient(outbound, logger, cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	paymentService := payment.NewService(razorpay, paymentRepo, publisher, collector, payment.ServiceConfig{
		KeySecret: cfg.RazorpayKeySecret,
		Amount:    cfg.SubscriptionAmount,
		Currency:  cfg.SubscriptionCurrency,
		Days:      cfg.SubscriptionDays,
	})
	entitlements := entitlement.NewChecker(paymentRepo)

	ticketService := ticket.NewService(ticketRepo, sanitizer)
	liveService := live.NewService(liveRepo, sanitizer, security.ValidatePublicURL)

	youtubeCC := oauthClientConfig(cfg.Providers[string(model.ProviderYouTube)], outbound)
	youtubeService := youtube.NewService(youtube.NewClient(outbound), identRepo,
		func(ctx context.Context, identity *model.Identity) oauth2.TokenSource {
			return oauth.YouTubeTokenSource(ctx, youtubeCC, identity)
		},
	)

	if !cfg.UploadEnabled() {
		logger.Warn("S3_BUCKET is not configured; video uploads will fail")
	}
	s3Config := storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretKey,
	}
	uploader := storage.NewUploader(storage.NewS3Client(s3Config), s3Config, cfg.UploadMaxBytes)

	// 6. ミドルウェア
	gate := middleware.NewGate(codec, userRepo, collector, logger)
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSignin))

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		Gate:               gate,
		Entitlements:       entitlements,
		RateLimiter:        rateLimiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		CSRF: middleware.CSRFConfig{
			CookieSecure:   cfg.CookieSecure,
			CookieDomain:   cfg.CookieDomain,
			CookieSameSite: sameSite,
		},
		SecurityHeaders: middleware.SecurityHeadersConfig{HSTSMaxAge: hstsMaxAge(cfg)},
		Logger:          logger,
		Collector:       collector,

		MetricsHandler: infra.MetricsHandler,

		Auth: handler.NewAuthHandler(authService, codec, userService, cookies, collector),
		OAuth: handler.NewOAuthHandler(flow, linker, codec, collector, handler.OAuthHandlerConfig{
			FrontendURL: cfg.FrontendURL,
			Cookies:     cookies,
		}),
		Payment: handler.NewPaymentHandler(paymentService, entitlements, cfg.RazorpayKeyID),
		Ticket:  handler.NewTicketHandler(ticketService),
		Admin:   handler.NewAdminHandler(userService, ticketService),
		Live:    handler.NewLiveHandler(liveService),
		YouTube: handler.NewYouTubeHandler(youtubeService),
		Upload:  handler.NewUploadHandler(uploader),
	}
	if infra.DB != nil {
		deps.HealthChecker = infra.DB
	}

	return handler.NewRouter(deps), rateLimiter.Stop
}
