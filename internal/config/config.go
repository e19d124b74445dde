package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// providerNames は環境変数のプレフィックスとなるIdP名。
var providerNames = []string{"google", "youtube", "facebook", "twitch"}

// OAuthClient は1つのIdPに対するクライアント設定（client id/secret/redirect URL）。
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionSecret string
	SessionMaxAge int

	// OAuth（設定されたIdPのみ有効化する）
	Providers map[string]OAuthClient

	// Local credentials
	BcryptCost int

	// Payment (Razorpay)
	RazorpayKeyID        string
	RazorpayKeySecret    string
	SubscriptionAmount   int64
	SubscriptionCurrency string
	SubscriptionDays     int

	// Upload (S3)
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	AWSAccessKeyID string
	AWSSecretKey   string
	UploadMaxBytes int64

	// Optional infrastructure
	RedisAddr     string
	RedisPassword string
	AMQPURL       string

	// Rate Limit（req/min）
	RateLimitSignin  int
	RateLimitGeneral int

	// Outbound HTTP
	OutboundTimeout time.Duration

	// Worker
	CleanupInterval time.Duration

	// Logging / Tracing
	LogLevel     string
	OTELEndpoint string

	// Server
	ServerPort  string
	BaseURL     string
	FrontendURL string

	// Cookie
	CookieSecure   bool
	CookieDomain   string
	CookieSameSite string

	// CORS
	CORSAllowedOrigins []string
}

// LoadDotEnv は.envファイルを読み込み、未設定の環境変数のみを補完する。
// ファイルが存在しない場合は何もしない。
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、またはIdP設定が不完全な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	// IdPごとの3点セットは、1つでも設定されていれば全て必須とする
	cfg.Providers = make(map[string]OAuthClient)
	for _, name := range providerNames {
		prefix := strings.ToUpper(name)
		client := OAuthClient{
			ClientID:     os.Getenv(prefix + "_CLIENT_ID"),
			ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
			RedirectURL:  os.Getenv(prefix + "_REDIRECT_URL"),
		}
		if client.ClientID == "" && client.ClientSecret == "" && client.RedirectURL == "" {
			continue
		}
		if client.ClientID == "" {
			missing = append(missing, prefix+"_CLIENT_ID")
		}
		if client.ClientSecret == "" {
			missing = append(missing, prefix+"_CLIENT_SECRET")
		}
		if client.RedirectURL == "" {
			missing = append(missing, prefix+"_REDIRECT_URL")
		}
		cfg.Providers[name] = client
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 12)
	cfg.RazorpayKeyID = getEnvString("RAZORPAY_KEY_ID", "")
	cfg.RazorpayKeySecret = getEnvString("RAZORPAY_KEY_SECRET", "")
	cfg.SubscriptionAmount = getEnvInt64("SUBSCRIPTION_AMOUNT", 49900)
	cfg.SubscriptionCurrency = getEnvString("SUBSCRIPTION_CURRENCY", "INR")
	cfg.SubscriptionDays = getEnvInt("SUBSCRIPTION_DAYS", 30)
	cfg.S3Bucket = getEnvString("S3_BUCKET", "")
	cfg.S3Region = getEnvString("S3_REGION", "eu-north-1")
	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.AWSAccessKeyID = getEnvString("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretKey = getEnvString("AWS_SECRET_ACCESS_KEY", "")
	cfg.UploadMaxBytes = getEnvInt64("UPLOAD_MAX_BYTES", 512<<20)
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.AMQPURL = getEnvString("AMQP_URL", "")
	cfg.RateLimitSignin = getEnvInt("RATE_LIMIT_SIGNIN", 10)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.OutboundTimeout = getEnvDuration("OUTBOUND_TIMEOUT", 10*time.Second)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.OTELEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.FrontendURL = getEnvString("FRONTEND_URL", "http://localhost:3000")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CookieSameSite = getEnvString("COOKIE_SAMESITE", defaultSameSite(cfg.CookieSecure))
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{cfg.FrontendURL})

	return cfg, nil
}

// ProviderEnabled は指定IdPの設定が存在するかを返す。
func (c *Config) ProviderEnabled(name string) bool {
	_, ok := c.Providers[name]
	return ok
}

// PaymentEnabled はRazorpayの資格情報が設定されているかを返す。
func (c *Config) PaymentEnabled() bool {
	return c.RazorpayKeyID != "" && c.RazorpayKeySecret != ""
}

// UploadEnabled はS3アップロード先が設定されているかを返す。
func (c *Config) UploadEnabled() bool {
	return c.S3Bucket != ""
}

// defaultSameSite はフロントエンドとAPIが別オリジンの前提で、
// HTTPS運用時はクロスサイト送信可能なNoneを既定にする。
func defaultSameSite(secure bool) string {
	if secure {
		return "none"
	}
	return "lax"
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.TrimSuffix(part, "/"))
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
