// Package ticket はサポートチケットの起票と管理者による回答を提供する。
package ticket

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/repository"
)

const (
	maxSubjectLength = 200
	maxBodyLength    = 5000
	maxReplyLength   = 5000
)

var (
	// ErrNotFound はチケットが存在しない、または閲覧権限がないことを表す。
	ErrNotFound = errors.New("ticket not found")
	// ErrInvalidInput は入力値の不備を表す。
	ErrInvalidInput = errors.New("invalid input")
)

// Sanitizer はユーザー入力の無害化を行う。
type Sanitizer interface {
	Text(input string) string
	RichText(input string) string
}

// Service はチケットのユースケースを提供する。
type Service struct {
	tickets   repository.TicketRepository
	sanitizer Sanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(tickets repository.TicketRepository, sanitizer Sanitizer) *Service {
	return &Service{tickets: tickets, sanitizer: sanitizer, now: time.Now}
}

// Create はユーザーのチケットを起票する。
// 件名はタグを全て除去し、本文は許可されたタグのみ残す。
func (s *Service) Create(ctx context.Context, userID, subject, body string) (*model.Ticket, error) {
	subject = s.sanitizer.Text(subject)
	body = s.sanitizer.RichText(body)

	if subject == "" || body == "" {
		return nil, fmt.Errorf("%w: subject and body are required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(subject) > maxSubjectLength {
		return nil, fmt.Errorf("%w: subject must be at most %d characters", ErrInvalidInput, maxSubjectLength)
	}
	if utf8.RuneCountInString(body) > maxBodyLength {
		return nil, fmt.Errorf("%w: body must be at most %d characters", ErrInvalidInput, maxBodyLength)
	}

	now := s.now()
	t := &model.Ticket{
		ID:        uuid.New().String(),
		UserID:    userID,
		Subject:   subject,
		Body:      body,
		Status:    model.TicketStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tickets.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	return t, nil
}

// ListByUser はユーザー自身のチケットを新しい順に返す。
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*model.Ticket, error) {
	tickets, err := s.tickets.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// Get はチケットを取得する。本人以外かつ管理者でない場合は存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, viewer *model.User, ticketID string) (*model.Ticket, error) {
	t, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to find ticket: %w", err)
	}
	if t == nil || (t.UserID != viewer.ID && !viewer.IsAdmin()) {
		return nil, ErrNotFound
	}
	return t, nil
}

// ListAll は全ユーザーのチケットを返す。管理者ルートからのみ呼び出す。
func (s *Service) ListAll(ctx context.Context) ([]*model.Ticket, error) {
	tickets, err := s.tickets.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list all tickets: %w", err)
	}
	return tickets, nil
}

// Reply は管理者の回答を記録し、更新後のチケットを返す。
// 回答済みのチケットへの再回答は上書きとなる。
func (s *Service) Reply(ctx context.Context, ticketID, reply string) (*model.Ticket, error) {
	if ticketID == "" {
		return nil, fmt.Errorf("%w: ticket id is required", ErrInvalidInput)
	}
	reply = s.sanitizer.RichText(reply)
	if reply == "" {
		return nil, fmt.Errorf("%w: reply is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(reply) > maxReplyLength {
		return nil, fmt.Errorf("%w: reply must be at most %d characters", ErrInvalidInput, maxReplyLength)
	}

	if err := s.tickets.Reply(ctx, ticketID, reply, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to reply ticket: %w", err)
	}

	t, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to find ticket: %w", err)
	}
	if t == nil {
		return nil, ErrNotFound
	}
	return t, nil
}
