package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/oauth"
	"github.com/hitoshi/livenex/internal/repository"
)

var (
	// ErrNotLinked はYouTubeチャンネルが未連携であることを表す。
	ErrNotLinked = errors.New("youtube channel not linked")
	// ErrNoRefreshToken は保存済みのリフレッシュトークンが無いか失効していることを表す。
	ErrNoRefreshToken = oauth.ErrNoRefreshToken
	// ErrInvalidInput は入力値の不備を表す。
	ErrInvalidInput = errors.New("invalid input")
)

const maxCommentLength = 10000

// TokenSourceFunc は保存済みidentityからTokenSourceを生成する。
type TokenSourceFunc func(ctx context.Context, identity *model.Identity) oauth2.TokenSource

// Service はユーザーの連携済みチャンネルに対してYouTube APIを呼び出す。
type Service struct {
	client      *Client
	identities  repository.IdentityRepository
	tokenSource TokenSourceFunc
}

// NewService はServiceを生成する。
func NewService(client *Client, identities repository.IdentityRepository, tokenSource TokenSourceFunc) *Service {
	return &Service{client: client, identities: identities, tokenSource: tokenSource}
}

// UpcomingLives はユーザーのチャンネルの予約済み配信を返す。
func (s *Service) UpcomingLives(ctx context.Context, userID string) ([]model.UpcomingLive, error) {
	var lives []model.UpcomingLive
	err := s.withToken(ctx, userID, func(ts oauth2.TokenSource) error {
		var err error
		lives, err = s.client.UpcomingLives(ctx, ts)
		return err
	})
	return lives, err
}

// UpdateSchedule は配信のタイトル・説明・開始予定時刻を更新する。
func (s *Service) UpdateSchedule(ctx context.Context, userID string, u ScheduleUpdate) error {
	if strings.TrimSpace(u.BroadcastID) == "" || strings.TrimSpace(u.Title) == "" || u.ScheduledStartTime.IsZero() {
		return fmt.Errorf("%w: broadcast id, title and scheduled start time are required", ErrInvalidInput)
	}
	return s.withToken(ctx, userID, func(ts oauth2.TokenSource) error {
		return s.client.UpdateSchedule(ctx, ts, u)
	})
}

// ReplyToComment はコメントに返信する。
func (s *Service) ReplyToComment(ctx context.Context, userID, parentID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if parentID == "" || text == "" {
		return "", fmt.Errorf("%w: comment id and text are required", ErrInvalidInput)
	}
	if len([]rune(text)) > maxCommentLength {
		return "", fmt.Errorf("%w: text must be at most %d characters", ErrInvalidInput, maxCommentLength)
	}
	var id string
	err := s.withToken(ctx, userID, func(ts oauth2.TokenSource) error {
		var err error
		id, err = s.client.ReplyToComment(ctx, ts, parentID, text)
		return err
	})
	return id, err
}

// withToken はユーザーのTokenSourceでfnを実行し、更新されたアクセストークンを保存する。
func (s *Service) withToken(ctx context.Context, userID string, fn func(oauth2.TokenSource) error) error {
	identity, err := s.identities.FindByUserAndProvider(ctx, userID, model.ProviderYouTube)
	if err != nil {
		return fmt.Errorf("failed to find youtube identity: %w", err)
	}
	if identity == nil {
		return ErrNotLinked
	}
	if !identity.HasRefreshToken() {
		return ErrNoRefreshToken
	}

	ts := oauth2.ReuseTokenSource(nil, s.tokenSource(ctx, identity))
	callErr := fn(ts)

	var rerr *oauth2.RetrieveError
	if errors.As(callErr, &rerr) && rerr.ErrorCode == "invalid_grant" {
		// ユーザーがGoogle側で連携を取り消した
		return fmt.Errorf("%w: %v", ErrNoRefreshToken, callErr)
	}

	s.persistRefreshed(ctx, identity, ts)
	return callErr
}

func (s *Service) persistRefreshed(ctx context.Context, identity *model.Identity, ts oauth2.TokenSource) {
	tok, err := ts.Token()
	if err != nil || tok.AccessToken == identity.AccessToken {
		return
	}
	updated := *identity
	updated.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		updated.TokenExpiry = &exp
	}
	if err := s.identities.UpdateTokens(ctx, &updated); err != nil {
		slog.WarnContext(ctx, "failed to persist refreshed youtube token",
			slog.String("user_id", identity.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// ParseScheduledTime はRFC3339またはdatetime-local形式（UTCとみなす）の時刻を解釈する。
func ParseScheduledTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized time %q", ErrInvalidInput, s)
}
