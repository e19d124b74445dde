package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/livenex/internal/model"
)

// PostgresPaymentRepo はPostgreSQLを使用した決済リポジトリ。
type PostgresPaymentRepo struct {
	db *sql.DB
}

// NewPostgresPaymentRepo はPostgresPaymentRepoを生成する。
func NewPostgresPaymentRepo(db *sql.DB) *PostgresPaymentRepo {
	return &PostgresPaymentRepo{db: db}
}

const paymentColumns = `id, user_id, order_id, payment_id, amount, currency, status,
	paid_at, expires_at, created_at, updated_at`

func scanPayment(row rowScanner) (*model.Payment, error) {
	p := &model.Payment{}
	var status string
	var paidAt, expiresAt sql.NullTime
	err := row.Scan(&p.ID, &p.UserID, &p.OrderID, &p.PaymentID, &p.Amount, &p.Currency, &status,
		&paidAt, &expiresAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = model.PaymentStatus(status)
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		p.ExpiresAt = &t
	}
	return p, nil
}

// Create は注文作成時の決済レコードを登録する。
func (r *PostgresPaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (id, user_id, order_id, amount, currency, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.UserID, p.OrderID, p.Amount, p.Currency, string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// FindByOrderID は注文IDで決済を取得する。見つからない場合はnilを返す。
func (r *PostgresPaymentRepo) FindByOrderID(ctx context.Context, orderID string) (*model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`,
		orderID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment by order ID: %w", err)
	}
	return p, nil
}

// MarkPaid は未決済の注文を決済完了に更新する。
// status = 'created' の条件付き更新のため、同じ注文の二重確定は行われない。
func (r *PostgresPaymentRepo) MarkPaid(ctx context.Context, orderID, paymentID string, paidAt, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payments
		 SET status = 'paid', payment_id = $2, paid_at = $3, expires_at = $4, updated_at = $3
		 WHERE order_id = $1 AND status = 'created'`,
		orderID, paymentID, paidAt, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark payment paid: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindActiveByUserID は指定時刻に有効な決済のうち最も遅く失効するものを返す。
func (r *PostgresPaymentRepo) FindActiveByUserID(ctx context.Context, userID string, now time.Time) (*model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE user_id = $1 AND status = 'paid' AND expires_at > $2
		 ORDER BY expires_at DESC
		 LIMIT 1`,
		userID, now,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active payment: %w", err)
	}
	return p, nil
}

// DeleteStaleUnpaid はbefore以前に作成された未決済注文を削除する。
func (r *PostgresPaymentRepo) DeleteStaleUnpaid(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM payments WHERE status = 'created' AND created_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale orders: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ PaymentRepository = (*PostgresPaymentRepo)(nil)
