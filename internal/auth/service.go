package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/livenex/internal/events"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/repository"
)

const (
	minPasswordLength = 8
	// bcryptは72バイトを超える入力を拒否する
	maxPasswordLength = 72
	maxNameLength     = 100
)

// ServiceConfig はローカル認証サービスの設定。
type ServiceConfig struct {
	BcryptCost int
}

// Service はメールアドレスとパスワードによる認証を提供する。
type Service struct {
	users     repository.UserRepository
	publisher events.Publisher
	cost      int
	// dummyHash は存在しないメールアドレスでも同じ計算量を掛けるための比較対象
	dummyHash []byte
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, publisher events.Publisher, config ServiceConfig) *Service {
	cost := config.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("livenex-dummy-password"), cost)
	return &Service{
		users:     users,
		publisher: publisher,
		cost:      cost,
		dummyHash: dummy,
		now:       time.Now,
	}
}

// SignupInput はローカルアカウント作成の入力。
type SignupInput struct {
	Email    string
	Password string
	Name     string
}

// Signup はローカルアカウントを作成する。
func (s *Service) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = email
	}
	if len([]rune(name)) > maxNameLength {
		return nil, &ValidationError{Reason: fmt.Sprintf("name must be at most %d characters", maxNameLength)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         model.RoleStandard,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.users.Create(ctx, user)
	if errors.Is(err, repository.ErrEmailTaken) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.InfoContext(ctx, "local user created", slog.String("user_id", user.ID))
	if err := s.publisher.Publish(ctx, events.New(events.TypeUserSignedUp, user.ID, map[string]string{"provider": "local"})); err != nil {
		slog.WarnContext(ctx, "failed to publish event", slog.String("error", err.Error()))
	}
	return user, nil
}

// Signin はメールアドレスとパスワードを検証し、ユーザーを返す。
// 不一致の理由（未登録かパスワード違いか）は区別しない。
func (s *Service) Signin(ctx context.Context, email, password string) (*model.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil || password == "" || len(password) > maxPasswordLength {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.HasPassword() {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// AdminLogin は管理者ロールのユーザーのみログインを許可する。
func (s *Service) AdminLogin(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.Signin(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		return nil, ErrNotAdmin
	}
	return user, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", &ValidationError{Reason: "email is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", &ValidationError{Reason: "email is invalid"}
	}
	return email, nil
}

func validatePassword(pw string) error {
	if len(pw) < minPasswordLength {
		return &ValidationError{Reason: fmt.Sprintf("password must be at least %d characters", minPasswordLength)}
	}
	if len(pw) > maxPasswordLength {
		return &ValidationError{Reason: fmt.Sprintf("password must be at most %d bytes", maxPasswordLength)}
	}
	return nil
}
