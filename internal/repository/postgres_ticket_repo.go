package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/livenex/internal/model"
)

// PostgresTicketRepo はPostgreSQLを使用したサポートチケットリポジトリ。
type PostgresTicketRepo struct {
	db *sql.DB
}

// NewPostgresTicketRepo はPostgresTicketRepoを生成する。
func NewPostgresTicketRepo(db *sql.DB) *PostgresTicketRepo {
	return &PostgresTicketRepo{db: db}
}

const ticketColumns = `id, user_id, subject, body, status, reply, replied_at, created_at, updated_at`

func scanTicket(row rowScanner) (*model.Ticket, error) {
	t := &model.Ticket{}
	var status string
	var repliedAt sql.NullTime
	err := row.Scan(&t.ID, &t.UserID, &t.Subject, &t.Body, &status, &t.Reply, &repliedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = model.TicketStatus(status)
	if repliedAt.Valid {
		ts := repliedAt.Time
		t.RepliedAt = &ts
	}
	return t, nil
}

// Create はチケットを作成する。
func (r *PostgresTicketRepo) Create(ctx context.Context, t *model.Ticket) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tickets (id, user_id, subject, body, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, t.Subject, t.Body, string(t.Status), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ticket: %w", err)
	}
	return nil
}

// FindByID は指定IDのチケットを取得する。見つからない場合はnilを返す。
func (r *PostgresTicketRepo) FindByID(ctx context.Context, id string) (*model.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ticket: %w", err)
	}
	return t, nil
}

// ListByUserID はユーザーのチケットを作成日時の降順で返す。
func (r *PostgresTicketRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Ticket, error) {
	return r.list(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
}

// ListAll は全チケットを作成日時の降順で返す。
func (r *PostgresTicketRepo) ListAll(ctx context.Context) ([]*model.Ticket, error) {
	return r.list(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY created_at DESC`)
}

func (r *PostgresTicketRepo) list(ctx context.Context, query string, args ...any) ([]*model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tickets: %w", err)
	}
	return tickets, nil
}

// Reply はチケットに回答を記録しステータスをansweredにする。
func (r *PostgresTicketRepo) Reply(ctx context.Context, id, reply string, repliedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET reply = $2, status = 'answered', replied_at = $3, updated_at = $3
		 WHERE id = $1`,
		id, reply, repliedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to reply ticket: %w", err)
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

// compile-time interface check
var _ TicketRepository = (*PostgresTicketRepo)(nil)
