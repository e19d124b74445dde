package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sign(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRazorpayClient_CreateOrder_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_key" || pass != "rzp_secret" {
			t.Errorf("basic auth = %q/%q/%v", user, pass, ok)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["amount"] != float64(49900) || body["currency"] != "INR" {
			t.Errorf("unexpected body: %v", body)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "order_ABC", "amount": 49900, "currency": "INR", "receipt": body["receipt"], "status": "created",
		})
	}))
	defer server.Close()

	c := NewRazorpayClient(server.Client(), discardLogger(), "rzp_key", "rzp_secret")
	c.baseURL = server.URL

	order, err := c.CreateOrder(context.Background(), 49900, "INR", "rcpt_1")
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if order.ID != "order_ABC" || order.Amount != 49900 {
		t.Errorf("unexpected order: %+v", order)
	}
}

func TestRazorpayClient_CreateOrder_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"Authentication failed"}}`))
	}))
	defer server.Close()

	c := NewRazorpayClient(server.Client(), discardLogger(), "k", "s")
	c.baseURL = server.URL

	_, err := c.CreateOrder(context.Background(), 100, "INR", "r")
	if !errors.Is(err, ErrGatewayFailed) {
		t.Fatalf("expected ErrGatewayFailed, got %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	valid := sign("order_1", "pay_1", "secret")

	tests := []struct {
		name                        string
		order, payment, sig, secret string
		want                        bool
	}{
		{"valid", "order_1", "pay_1", valid, "secret", true},
		{"wrong secret", "order_1", "pay_1", valid, "other", false},
		{"swapped payment", "order_1", "pay_2", valid, "secret", false},
		{"not hex", "order_1", "pay_1", "zz", "secret", false},
		{"empty signature", "order_1", "pay_1", "", "secret", false},
		{"empty order", "", "pay_1", valid, "secret", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.order, tt.payment, tt.sig, tt.secret); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReceiptOf_TruncatesTo40(t *testing.T) {
	if got := receiptOf("0123456789012345678901234567890123456789"); len(got) != 40 {
		t.Errorf("len(receipt) = %d, want 40", len(got))
	}
}
