// Package events はドメインイベントの発行を提供する。
// 発行失敗は呼び出し元の処理を止めない（ログのみ）。
package events

import (
	"context"
	"time"
)

// イベント種別（AMQPのルーティングキーとしても使用する）
const (
	TypeUserSignedUp     = "user.signed_up"
	TypeIdentityLinked   = "identity.linked"
	TypePaymentConfirmed = "payment.confirmed"
	TypeUserDeleted      = "user.deleted"
)

// Event はドメインイベント。
type Event struct {
	Type       string            `json:"type"`
	UserID     string            `json:"user_id"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// New はOccurredAtを現在時刻にしたEventを生成する。
func New(eventType, userID string, attrs map[string]string) Event {
	return Event{Type: eventType, UserID: userID, Attributes: attrs, OccurredAt: time.Now().UTC()}
}

// Publisher はイベントの発行先。
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop はAMQP_URL未設定時に使用する何もしないPublisher。
type Noop struct{}

// Publish は何もしない。
func (Noop) Publish(context.Context, Event) error { return nil }
