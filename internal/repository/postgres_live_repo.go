package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/livenex/internal/model"
)

// PostgresLiveRepo はPostgreSQLを使用したライブ配信メタデータリポジトリ。
type PostgresLiveRepo struct {
	db *sql.DB
}

// NewPostgresLiveRepo はPostgresLiveRepoを生成する。
func NewPostgresLiveRepo(db *sql.DB) *PostgresLiveRepo {
	return &PostgresLiveRepo{db: db}
}

// Create はライブ配信を登録する。
func (r *PostgresLiveRepo) Create(ctx context.Context, l *model.LiveStream) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO live_streams (id, user_id, title, description, platform, stream_url, scheduled_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.ID, l.UserID, l.Title, l.Description, string(l.Platform), l.StreamURL, l.ScheduledAt, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert live stream: %w", err)
	}
	return nil
}

// ListPastByUserID はbefore以前に予定されていた配信を新しい順に返す。
func (r *PostgresLiveRepo) ListPastByUserID(ctx context.Context, userID string, before time.Time) ([]*model.LiveStream, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, description, platform, stream_url, scheduled_at, created_at
		 FROM live_streams
		 WHERE user_id = $1 AND scheduled_at <= $2
		 ORDER BY scheduled_at DESC`,
		userID, before,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list past lives: %w", err)
	}
	defer rows.Close()

	var lives []*model.LiveStream
	for rows.Next() {
		l := &model.LiveStream{}
		var platform string
		if err := rows.Scan(&l.ID, &l.UserID, &l.Title, &l.Description, &platform, &l.StreamURL, &l.ScheduledAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan live stream: %w", err)
		}
		l.Platform = model.Provider(platform)
		lives = append(lives, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate live streams: %w", err)
	}
	return lives, nil
}

// compile-time interface check
var _ LiveRepository = (*PostgresLiveRepo)(nil)
