// Package entitlement はサブスクリプション（決済済み期間）に基づく利用権限を判定する。
// 利用権限は保存せず、決済レコードから毎回導出する。
package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/repository"
)

// Checker は利用権限の判定を行う。
type Checker struct {
	payments repository.PaymentRepository
	now      func() time.Time
}

// NewChecker はCheckerを生成する。
func NewChecker(payments repository.PaymentRepository) *Checker {
	return &Checker{payments: payments, now: time.Now}
}

// IsEntitled はユーザーが現在有効な決済を持つかを返す。
func (c *Checker) IsEntitled(ctx context.Context, userID string) (bool, error) {
	p, err := c.Active(ctx, userID)
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

// Active は現在有効な決済のうち最も遅く失効するものを返す。無ければnil。
func (c *Checker) Active(ctx context.Context, userID string) (*model.Payment, error) {
	now := c.now()
	p, err := c.payments.FindActiveByUserID(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find active payment: %w", err)
	}
	if p == nil || !p.IsActiveAt(now) {
		return nil, nil
	}
	return p, nil
}
