package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/livenex/internal/events"
	"github.com/hitoshi/livenex/internal/metrics"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/repository"
)

var (
	// ErrGatewayFailed は決済ゲートウェイ呼び出しの失敗。
	ErrGatewayFailed = errors.New("payment gateway failed")
	// ErrSignatureMismatch は決済署名の検証失敗。
	ErrSignatureMismatch = errors.New("payment signature mismatch")
	// ErrOrderNotFound は注文が存在しない、または他ユーザーの注文であることを表す。
	ErrOrderNotFound = errors.New("order not found")
)

// ServiceConfig は決済サービスの設定。
type ServiceConfig struct {
	KeySecret string
	Amount    int64
	Currency  string
	// Days は1回の決済で付与する利用期間（日）。
	Days int
}

// Service は注文作成と決済確定を行う。
type Service struct {
	gateway   OrderCreator
	payments  repository.PaymentRepository
	publisher events.Publisher
	collector metrics.MetricsCollector
	config    ServiceConfig
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	gateway OrderCreator,
	payments repository.PaymentRepository,
	publisher events.Publisher,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		gateway:   gateway,
		payments:  payments,
		publisher: publisher,
		collector: collector,
		config:    config,
		now:       time.Now,
	}
}

// CreateOrder はゲートウェイに注文を作成し、未決済の決済レコードを保存する。
func (s *Service) CreateOrder(ctx context.Context, userID string) (*model.Payment, error) {
	paymentID := uuid.New().String()
	order, err := s.gateway.CreateOrder(ctx, s.config.Amount, s.config.Currency, receiptOf(paymentID))
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &model.Payment{
		ID:        paymentID,
		UserID:    userID,
		OrderID:   order.ID,
		Amount:    order.Amount,
		Currency:  order.Currency,
		Status:    model.PaymentStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	slog.InfoContext(ctx, "payment order created",
		slog.String("user_id", userID),
		slog.String("order_id", order.ID),
	)
	return p, nil
}

// Confirm は署名を検証して注文を決済済みにする。
// 利用期間は現在有効な期間の末尾から延長する。同じ決済の再送は冪等に成功する。
func (s *Service) Confirm(ctx context.Context, userID, orderID, paymentID, signature string) (*model.Payment, error) {
	if !VerifySignature(orderID, paymentID, signature, s.config.KeySecret) {
		return nil, ErrSignatureMismatch
	}

	p, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	if p == nil || p.UserID != userID {
		return nil, ErrOrderNotFound
	}
	if p.Status == model.PaymentStatusPaid {
		return settled(p, paymentID)
	}

	now := s.now()
	start := now
	active, err := s.payments.FindActiveByUserID(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find active payment: %w", err)
	}
	if active != nil && active.ExpiresAt != nil && active.ExpiresAt.After(now) {
		start = *active.ExpiresAt
	}
	expiresAt := start.AddDate(0, 0, s.config.Days)

	err = s.payments.MarkPaid(ctx, orderID, paymentID, now, expiresAt)
	if errors.Is(err, repository.ErrNotFound) {
		// 並行する確定処理が先に更新したか、クリーンアップで削除された
		latest, err := s.payments.FindByOrderID(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("failed to find order: %w", err)
		}
		if latest == nil || latest.UserID != userID || latest.Status != model.PaymentStatusPaid {
			return nil, ErrOrderNotFound
		}
		return settled(latest, paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}

	p.PaymentID = paymentID
	p.Status = model.PaymentStatusPaid
	p.PaidAt = &now
	p.ExpiresAt = &expiresAt
	p.UpdatedAt = now

	slog.InfoContext(ctx, "payment confirmed",
		slog.String("user_id", userID),
		slog.String("order_id", orderID),
		slog.Time("expires_at", expiresAt),
	)
	s.collector.RecordPaymentConfirmed()
	if err := s.publisher.Publish(ctx, events.New(events.TypePaymentConfirmed, userID, map[string]string{"order_id": orderID})); err != nil {
		slog.WarnContext(ctx, "failed to publish event", slog.String("error", err.Error()))
	}
	return p, nil
}

// receiptOf はRazorpayのreceipt（最大40文字）を生成する。
func receiptOf(paymentID string) string {
	r := "rcpt_" + paymentID
	if len(r) > 40 {
		r = r[:40]
	}
	return r
}

// settled は決済済みの注文に対する確定要求を判定する。
// 同じpayment_idの再送のみ成功とする。
func settled(p *model.Payment, paymentID string) (*model.Payment, error) {
	if p.PaymentID == paymentID {
		return p, nil
	}
	return nil, ErrSignatureMismatch
}
