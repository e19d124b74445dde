package model

import "time"

// PaymentStatus は決済の状態を表す。
type PaymentStatus string

const (
	// PaymentStatusCreated は注文作成済み・未決済。
	PaymentStatusCreated PaymentStatus = "created"
	// PaymentStatusPaid は署名検証済みの決済完了。
	PaymentStatusPaid PaymentStatus = "paid"
)

// Payment は決済プロバイダー（Razorpay）の注文と決済結果を表す。
// エンタイトルメントはこのレコードから導出され、単独では保存しない。
type Payment struct {
	ID        string
	UserID    string
	OrderID   string
	PaymentID string
	Amount    int64 // 最小通貨単位（paise等）
	Currency  string
	Status    PaymentStatus
	PaidAt    *time.Time
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActiveAt は指定時刻にエンタイトルメントを付与する決済かどうかを返す。
func (p *Payment) IsActiveAt(now time.Time) bool {
	if p.Status != PaymentStatusPaid || p.ExpiresAt == nil {
		return false
	}
	return p.ExpiresAt.After(now)
}
