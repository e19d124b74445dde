package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/livenex/internal/middleware"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/payment"
)

// PaymentServiceInterface は決済ハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	CreateOrder(ctx context.Context, userID string) (*model.Payment, error)
	Confirm(ctx context.Context, userID, orderID, paymentID, signature string) (*model.Payment, error)
}

// EntitlementReader はサブスクリプションの有効状態を参照する。
type EntitlementReader interface {
	IsEntitled(ctx context.Context, userID string) (bool, error)
	Active(ctx context.Context, userID string) (*model.Payment, error)
}

// PaymentHandler は決済とサブスクリプション状態のHTTPハンドラー。
type PaymentHandler struct {
	service      PaymentServiceInterface
	entitlements EntitlementReader
	keyID        string
}

// NewPaymentHandler はPaymentHandlerを生成する。keyIDはCheckoutに渡す公開キー。
func NewPaymentHandler(service PaymentServiceInterface, entitlements EntitlementReader, keyID string) *PaymentHandler {
	return &PaymentHandler{
		service:      service,
		entitlements: entitlements,
		keyID:        keyID,
	}
}

// confirmPaymentRequest はCheckout完了時にフロントエンドから送られる値。
type confirmPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

type orderResponse struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"key_id"`
}

type paymentResponse struct {
	OrderID   string              `json:"order_id"`
	PaymentID string              `json:"payment_id,omitempty"`
	Amount    int64               `json:"amount"`
	Currency  string              `json:"currency"`
	Status    model.PaymentStatus `json:"status"`
	PaidAt    *time.Time          `json:"paid_at,omitempty"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
}

type subscriptionResponse struct {
	Subscribed   bool             `json:"subscribed"`
	Subscription *paymentResponse `json:"subscription,omitempty"`
}

func toPaymentResponse(p *model.Payment) *paymentResponse {
	return &paymentResponse{
		OrderID:   p.OrderID,
		PaymentID: p.PaymentID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    p.Status,
		PaidAt:    p.PaidAt,
		ExpiresAt: p.ExpiresAt,
	}
}

// CreateOrder はRazorpayの注文を作成する。
// GET /api/user/razor/orders
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	p, err := h.service.CreateOrder(r.Context(), u.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, orderResponse{
		OrderID:  p.OrderID,
		Amount:   p.Amount,
		Currency: p.Currency,
		KeyID:    h.keyID,
	})
}

// Confirm は決済署名を検証してサブスクリプションを有効にする。
// POST /api/user/razor/success
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req confirmPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("razorpay_order_id、razorpay_payment_id、razorpay_signatureは必須です"))
		return
	}

	p, err := h.service.Confirm(r.Context(), u.ID, req.OrderID, req.PaymentID, req.Signature)
	if errors.Is(err, payment.ErrOrderNotFound) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewOrderNotFoundError(req.OrderID))
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

// IsSubscribed はサブスクリプションが有効かどうかを返す。
// GET /api/user/issubscribed
func (h *PaymentHandler) IsSubscribed(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	entitled, err := h.entitlements.IsEntitled(r.Context(), u.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, subscriptionResponse{Subscribed: entitled})
}

// SubscriptionDetails は有効なサブスクリプションの決済情報を返す。
// GET /api/user/getSubscriptionDetails
func (h *PaymentHandler) SubscriptionDetails(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}

	active, err := h.entitlements.Active(r.Context(), u.ID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := subscriptionResponse{}
	if active != nil {
		resp.Subscribed = true
		resp.Subscription = toPaymentResponse(active)
	}
	writeJSON(w, http.StatusOK, resp)
}
