// Package user はユーザー情報の参照と管理者によるユーザー削除を提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/livenex/internal/events"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/repository"
)

var (
	// ErrNotFound は対象ユーザーが存在しないことを表す。
	ErrNotFound = errors.New("user not found")
	// ErrSelfDeletion は管理者が自分自身を削除しようとしたことを表す。
	ErrSelfDeletion = errors.New("cannot delete the acting admin")
)

// IdentityLister はユーザーの連携済みidentityを取得する。
// repository.IdentityRepositoryの部分集合として定義する。
type IdentityLister interface {
	ListByUserID(ctx context.Context, userID string) ([]*model.Identity, error)
}

// Profile はユーザーと連携済みIdPの一覧。
type Profile struct {
	User       *model.User
	Identities []*model.Identity
}

// LinkedProviders は連携済みIdPの一覧を返す。
func (p *Profile) LinkedProviders() []model.Provider {
	providers := make([]model.Provider, 0, len(p.Identities))
	for _, id := range p.Identities {
		providers = append(providers, id.Provider)
	}
	return providers
}

// Service はユーザー管理のサービス層。
type Service struct {
	users      repository.UserRepository
	identities IdentityLister
	publisher  events.Publisher
	logger     *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	users repository.UserRepository,
	identities IdentityLister,
	publisher events.Publisher,
	logger *slog.Logger,
) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:      users,
		identities: identities,
		publisher:  publisher,
		logger:     logger,
	}
}

// Profile はユーザーと連携済みidentityを取得する。
func (s *Service) Profile(ctx context.Context, user *model.User) (*Profile, error) {
	identities, err := s.identities.ListByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("連携情報の取得に失敗しました: %w", err)
	}
	return &Profile{User: user, Identities: identities}, nil
}

// List は全ユーザーを作成日時の降順で返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Delete は管理者としてユーザーを削除する。
// identities、payments、tickets、live_streamsはCASCADE削除される。
// 削除されたユーザーのセッションは次のリクエストでユーザーが見つからず拒否される。
func (s *Service) Delete(ctx context.Context, actor *model.User, userID string) error {
	if userID == "" {
		return ErrNotFound
	}
	if actor != nil && actor.ID == userID {
		return ErrSelfDeletion
	}

	if err := s.users.DeleteByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	attrs := map[string]string{}
	if actor != nil {
		attrs["deleted_by"] = actor.ID
	}
	if err := s.publisher.Publish(ctx, events.New(events.TypeUserDeleted, userID, attrs)); err != nil {
		s.logger.WarnContext(ctx, "イベントの送信に失敗しました",
			slog.String("type", events.TypeUserDeleted),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "ユーザーを削除しました",
		slog.String("user_id", userID),
		slog.String("deleted_by", attrs["deleted_by"]),
	)
	return nil
}
