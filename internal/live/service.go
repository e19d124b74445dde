// Package live は配信者が登録するライブ配信メタデータを扱う。
package live

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/repository"
)

const (
	maxTitleLength       = 100
	maxDescriptionLength = 5000
)

// ErrInvalidInput は入力値の不備を表す。
var ErrInvalidInput = errors.New("invalid input")

// streamingPlatforms は配信先として登録できるプラットフォーム。
var streamingPlatforms = map[model.Provider]bool{
	model.ProviderYouTube:  true,
	model.ProviderFacebook: true,
	model.ProviderTwitch:   true,
}

// Sanitizer はユーザー入力の無害化を行う。
type Sanitizer interface {
	Text(input string) string
	RichText(input string) string
}

// URLValidator は配信URLを検証する。
type URLValidator func(rawURL string) (*url.URL, error)

// Input はライブ配信登録の入力。
type Input struct {
	Title       string
	Description string
	Platform    string
	StreamURL   string
	ScheduledAt time.Time
}

// Service はライブ配信メタデータのユースケースを提供する。
type Service struct {
	lives     repository.LiveRepository
	sanitizer Sanitizer
	validate  URLValidator
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(lives repository.LiveRepository, sanitizer Sanitizer, validate URLValidator) *Service {
	return &Service{lives: lives, sanitizer: sanitizer, validate: validate, now: time.Now}
}

// Set はライブ配信を登録する。
func (s *Service) Set(ctx context.Context, userID string, in Input) (*model.LiveStream, error) {
	title := s.sanitizer.Text(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, fmt.Errorf("%w: title must be at most %d characters", ErrInvalidInput, maxTitleLength)
	}
	description := s.sanitizer.RichText(in.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return nil, fmt.Errorf("%w: description must be at most %d characters", ErrInvalidInput, maxDescriptionLength)
	}

	platform, err := model.ParseProvider(in.Platform)
	if err != nil || !streamingPlatforms[platform] {
		return nil, fmt.Errorf("%w: unsupported platform %q", ErrInvalidInput, in.Platform)
	}

	streamURL := ""
	if in.StreamURL != "" {
		u, err := s.validate(in.StreamURL)
		if err != nil {
			return nil, fmt.Errorf("%w: stream url: %v", ErrInvalidInput, err)
		}
		streamURL = u.String()
	}

	if in.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: scheduled time is required", ErrInvalidInput)
	}

	l := &model.LiveStream{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       title,
		Description: description,
		Platform:    platform,
		StreamURL:   streamURL,
		ScheduledAt: in.ScheduledAt.UTC(),
		CreatedAt:   s.now(),
	}
	if err := s.lives.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to create live stream: %w", err)
	}
	return l, nil
}

// Past は予定時刻を過ぎた配信を新しい順に返す。
func (s *Service) Past(ctx context.Context, userID string) ([]*model.LiveStream, error) {
	lives, err := s.lives.ListPastByUserID(ctx, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list past lives: %w", err)
	}
	return lives, nil
}
