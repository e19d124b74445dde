package auth

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
	"github.com/hitoshi/livenex/internal/oauth"
	"github.com/hitoshi/livenex/internal/repository"
)

// 連携結果（メトリクスのoutcomeラベル）
const (
	OutcomeLogin    = "login"
	OutcomeAttach   = "attach"
	OutcomeSignup   = "signup"
	OutcomeConflict = "conflict"
)

// Linker は外部アカウントを内部ユーザーに紐付ける。
// 一意性はDBの一意制約とトランザクションで保証し、プロセス内ロックは持たない。
type Linker struct {
	users      repository.UserRepository
	identities repository.IdentityRepository
	publisher  events.Publisher
	collector  metrics.MetricsCollector
	now        func() time.Time
}

// NewLinker はLinkerを生成する。publisher, collectorはnil可。
func NewLinker(
	users repository.UserRepository,
	identities repository.IdentityRepository,
	publisher events.Publisher,
	collector metrics.MetricsCollector,
) *Linker {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Linker{
		users:      users,
		identities: identities,
		publisher:  publisher,
		collector:  collector,
		now:        time.Now,
	}
}

// Link は外部アカウントをユーザーに紐付け、ログインすべきユーザーを返す。
// userIDが空の場合はログイン（未登録ならユーザーを新規作成）、
// 空でない場合はそのユーザーへの連携として扱う。
func (l *Linker) Link(ctx context.Context, userID string, ext *oauth.ExternalIdentity) (*model.User, error) {
	existing, err := l.identities.FindByProviderAndProviderUserID(ctx, ext.Provider, ext.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	switch {
	case existing != nil:
		return l.refresh(ctx, userID, existing, ext)
	case userID != "":
		return l.attach(ctx, userID, ext)
	default:
		return l.signup(ctx, ext)
	}
}

// refresh は連携済みidentityのトークンとプロフィールを更新し、所有者を返す。
func (l *Linker) refresh(ctx context.Context, userID string, existing *model.Identity, ext *oauth.ExternalIdentity) (*model.User, error) {
	if userID != "" && existing.UserID != userID {
		l.collector.RecordIdentityLinked(string(ext.Provider), OutcomeConflict)
		return nil, ErrIdentityBoundToAnotherUser
	}

	updated := ext.ToIdentity(existing.ID, existing.UserID, existing.LinkedAt)
	if err := l.identities.UpdateTokens(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to update identity tokens: %w", err)
	}

	owner, err := l.users.FindByID(ctx, existing.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity owner: %w", err)
	}
	if owner == nil {
		return nil, ErrUserNotFound
	}

	l.collector.RecordIdentityLinked(string(ext.Provider), OutcomeLogin)
	return owner, nil
}

// attach は未連携の外部アカウントを指定ユーザーに紐付ける。
// 同じIdPの既存連携は上書きする。
func (l *Linker) attach(ctx context.Context, userID string, ext *oauth.ExternalIdentity) (*model.User, error) {
	user, err := l.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	identity := ext.ToIdentity(uuid.New().String(), userID, l.now())
	err = l.identities.Upsert(ctx, identity)
	if errors.Is(err, repository.ErrIdentityConflict) {
		// 並行する連携が先に登録した
		return l.resolveConflict(ctx, userID, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to link identity: %w", err)
	}

	slog.InfoContext(ctx, "identity linked",
		slog.String("user_id", userID),
		slog.String("provider", string(ext.Provider)),
	)
	l.collector.RecordIdentityLinked(string(ext.Provider), OutcomeAttach)
	l.publish(ctx, events.New(events.TypeIdentityLinked, userID, map[string]string{"provider": string(ext.Provider)}))
	return user, nil
}

// signup はユーザーとidentityを同一トランザクションで作成する。
func (l *Linker) signup(ctx context.Context, ext *oauth.ExternalIdentity) (*model.User, error) {
	now := l.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     ext.Email,
		Name:      displayNameOf(ext),
		Role:      model.RoleStandard,
		CreatedAt: now,
		UpdatedAt: now,
	}
	identity := ext.ToIdentity(uuid.New().String(), user.ID, now)

	err := l.users.CreateWithIdentity(ctx, user, identity)
	if errors.Is(err, repository.ErrIdentityConflict) {
		return l.resolveConflict(ctx, "", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.InfoContext(ctx, "new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", string(ext.Provider)),
	)
	l.collector.RecordIdentityLinked(string(ext.Provider), OutcomeSignup)
	l.publish(ctx, events.New(events.TypeUserSignedUp, user.ID, map[string]string{"provider": string(ext.Provider)}))
	return user, nil
}

// resolveConflict は一意制約違反後に勝者のidentityを読み直して結果を決める。
func (l *Linker) resolveConflict(ctx context.Context, userID string, ext *oauth.ExternalIdentity) (*model.User, error) {
	winner, err := l.identities.FindByProviderAndProviderUserID(ctx, ext.Provider, ext.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read identity after conflict: %w", err)
	}
	if winner == nil {
		return nil, fmt.Errorf("identity conflict but no winner found for %s", ext.Provider)
	}
	return l.refresh(ctx, userID, winner, ext)
}

func (l *Linker) publish(ctx context.Context, e events.Event) {
	if err := l.publisher.Publish(ctx, e); err != nil {
		slog.WarnContext(ctx, "failed to publish event",
			slog.String("type", e.Type),
			slog.String("error", err.Error()),
		)
	}
}

func displayNameOf(ext *oauth.ExternalIdentity) string {
	switch {
	case ext.DisplayName != "":
		return ext.DisplayName
	case ext.Email != "":
		return ext.Email
	default:
		return string(ext.Provider) + ":" + ext.ProviderUserID
	}
}
