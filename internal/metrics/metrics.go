// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordLogin(method string, success bool)
	RecordOAuthFailure(provider string, reason string)
	RecordIdentityLinked(provider string, outcome string)
	RecordSessionRejected(kind string)
	RecordPaymentConfirmed()
	RecordHTTPStatus(statusCode int)
	RecordProviderLatency(provider string, duration time.Duration)
	RecordCleanupDeleted(target string, count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins           *prometheus.CounterVec
	oauthFailures    *prometheus.CounterVec
	identityLinks    *prometheus.CounterVec
	sessionRejected  *prometheus.CounterVec
	paymentConfirmed prometheus.Counter
	httpStatus       *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	cleanupDeleted   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livenex_login_total",
			Help: "ログイン試行数（method: local, admin, google, youtube, facebook, twitch）",
		}, []string{"method", "result"}),
		oauthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livenex_oauth_failure_total",
			Help: "OAuthコールバック失敗数",
		}, []string{"provider", "reason"}),
		identityLinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livenex_identity_link_total",
			Help: "外部アカウント連携の結果別件数",
		}, []string{"provider", "outcome"}),
		sessionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livenex_session_rejected_total",
			Help: "拒否されたセッションの種別別件数",
		}, []string{"kind"}),
		paymentConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livenex_payment_confirmed_total",
			Help: "署名検証済みの決済数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livenex_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livenex_provider_exchange_seconds",
			Help:    "IdPとのコード交換とプロフィール取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livenex_cleanup_deleted_total",
			Help: "クリーンアップジョブで削除した行数",
		}, []string{"target"}),
	}

	reg.MustRegister(
		c.logins,
		c.oauthFailures,
		c.identityLinks,
		c.sessionRejected,
		c.paymentConfirmed,
		c.httpStatus,
		c.providerLatency,
		c.cleanupDeleted,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(method string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(method, result).Inc()
}

// RecordOAuthFailure はOAuthコールバックの失敗を記録する。
func (c *Collector) RecordOAuthFailure(provider string, reason string) {
	c.oauthFailures.WithLabelValues(provider, reason).Inc()
}

// RecordIdentityLinked は連携結果（signup, attach, login, conflict）を記録する。
func (c *Collector) RecordIdentityLinked(provider string, outcome string) {
	c.identityLinks.WithLabelValues(provider, outcome).Inc()
}

// RecordSessionRejected は拒否されたセッションを記録する。
func (c *Collector) RecordSessionRejected(kind string) {
	c.sessionRejected.WithLabelValues(kind).Inc()
}

// RecordPaymentConfirmed は決済確定を記録する。
func (c *Collector) RecordPaymentConfirmed() {
	c.paymentConfirmed.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordProviderLatency はIdP呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(provider string, duration time.Duration) {
	c.providerLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordCleanupDeleted はクリーンアップで削除した行数を記録する。
func (c *Collector) RecordCleanupDeleted(target string, count int64) {
	c.cleanupDeleted.WithLabelValues(target).Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordLogin(string, bool)                    {}
func (Nop) RecordOAuthFailure(string, string)           {}
func (Nop) RecordIdentityLinked(string, string)         {}
func (Nop) RecordSessionRejected(string)                {}
func (Nop) RecordPaymentConfirmed()                     {}
func (Nop) RecordHTTPStatus(int)                        {}
func (Nop) RecordProviderLatency(string, time.Duration) {}
func (Nop) RecordCleanupDeleted(string, int64)          {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
