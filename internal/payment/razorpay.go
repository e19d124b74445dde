// Package payment はRazorpayによるサブスクリプション決済（注文作成と決済確定）を提供する。
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const (
	// defaultBaseURL はRazorpay REST APIのベースURL。
	defaultBaseURL  = "https://api.razorpay.com/v1"
	maxResponseSize = 1 << 20
)

// Order はRazorpayの注文。
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// OrderCreator は決済ゲートウェイへの注文作成を抽象化する。
type OrderCreator interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error)
}

// RazorpayClient はRazorpay Orders APIのクライアント。
type RazorpayClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	keyID      string
	keySecret  string
	baseURL    string // テスト用に差し替え可能
}

// NewRazorpayClient はRazorpayClientを生成する。
func NewRazorpayClient(httpClient *http.Client, logger *slog.Logger, keyID, keySecret string) *RazorpayClient {
	return &RazorpayClient{
		httpClient: httpClient,
		logger:     logger,
		keyID:      keyID,
		keySecret:  keySecret,
		baseURL:    defaultBaseURL,
	}
}

// KeyID はフロントエンドのCheckoutに渡す公開キーIDを返す。
func (c *RazorpayClient) KeyID() string {
	return c.keyID
}

// CreateOrder は注文を作成する。amountは最小通貨単位。
func (c *RazorpayClient) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error) {
	payload, err := json.Marshal(map[string]any{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	})
	if err != nil {
		return nil, fmt.Errorf("注文リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Razorpay APIの呼び出しに失敗しました", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrGatewayFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Razorpay APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: razorpay returned status %d", ErrGatewayFailed, resp.StatusCode)
	}

	var order Order
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("%w: failed to parse order: %v", ErrGatewayFailed, err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: order id missing in response", ErrGatewayFailed)
	}
	return &order, nil
}

// VerifySignature はCheckout完了時の署名 hex(HMAC-SHA256(order_id|payment_id, key_secret)) を検証する。
func VerifySignature(orderID, paymentID, signature, keySecret string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hmac.Equal(got, mac.Sum(nil))
}

var _ OrderCreator = (*RazorpayClient)(nil)
