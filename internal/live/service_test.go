package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/security"
)

type mockLiveRepo struct {
	CreateFunc           func(ctx context.Context, l *model.LiveStream) error
	ListPastByUserIDFunc func(ctx context.Context, userID string, before time.Time) ([]*model.LiveStream, error)
}

func (m *mockLiveRepo) Create(ctx context.Context, l *model.LiveStream) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, l)
	}
	return nil
}

func (m *mockLiveRepo) ListPastByUserID(ctx context.Context, userID string, before time.Time) ([]*model.LiveStream, error) {
	if m.ListPastByUserIDFunc != nil {
		return m.ListPastByUserIDFunc(ctx, userID, before)
	}
	return nil, nil
}

var fixedNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func newTestService(repo *mockLiveRepo) *Service {
	s := NewService(repo, security.NewSanitizer(), security.ValidatePublicURL)
	s.now = func() time.Time { return fixedNow }
	return s
}

func validInput() Input {
	return Input{
		Title:       "週末ゲーム配信",
		Description: "<p>参加型</p>",
		Platform:    "twitch",
		StreamURL:   "https://twitch.tv/streamer",
		ScheduledAt: time.Date(2026, 5, 12, 20, 0, 0, 0, time.FixedZone("JST", 9*3600)),
	}
}

func TestService_Set_StoresLiveStream(t *testing.T) {
	var stored *model.LiveStream
	repo := &mockLiveRepo{
		CreateFunc: func(_ context.Context, l *model.LiveStream) error {
			stored = l
			return nil
		},
	}

	got, err := newTestService(repo).Set(context.Background(), "user-1", validInput())
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if stored == nil || stored.ID != got.ID {
		t.Fatal("live stream was not stored")
	}
	if got.Platform != model.ProviderTwitch {
		t.Errorf("Platform = %q, want %q", got.Platform, model.ProviderTwitch)
	}
	if got.ScheduledAt.Location() != time.UTC {
		t.Errorf("ScheduledAt should be normalized to UTC, got %v", got.ScheduledAt)
	}
	if !got.ScheduledAt.Equal(time.Date(2026, 5, 12, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("ScheduledAt = %v", got.ScheduledAt)
	}
	if !got.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, fixedNow)
	}
}

func TestService_Set_StreamURLOptional(t *testing.T) {
	in := validInput()
	in.StreamURL = ""

	got, err := newTestService(&mockLiveRepo{}).Set(context.Background(), "user-1", in)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got.StreamURL != "" {
		t.Errorf("StreamURL = %q, want empty", got.StreamURL)
	}
}

func TestService_Set_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Input)
	}{
		{"empty title", func(in *Input) { in.Title = "" }},
		{"title with only tags", func(in *Input) { in.Title = "<script>x</script>" }},
		{"google is not a streaming platform", func(in *Input) { in.Platform = "google" }},
		{"unknown platform", func(in *Input) { in.Platform = "tiktok" }},
		{"private stream URL", func(in *Input) { in.StreamURL = "http://192.168.0.1/live" }},
		{"javascript stream URL", func(in *Input) { in.StreamURL = "javascript:alert(1)" }},
		{"missing schedule", func(in *Input) { in.ScheduledAt = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			repo := &mockLiveRepo{
				CreateFunc: func(context.Context, *model.LiveStream) error {
					called = true
					return nil
				},
			}
			in := validInput()
			tt.modify(&in)

			_, err := newTestService(repo).Set(context.Background(), "user-1", in)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if called {
				t.Error("repository should not be called on validation error")
			}
		})
	}
}

func TestService_Past_UsesCurrentTime(t *testing.T) {
	var gotBefore time.Time
	repo := &mockLiveRepo{
		ListPastByUserIDFunc: func(_ context.Context, userID string, before time.Time) ([]*model.LiveStream, error) {
			gotBefore = before
			return []*model.LiveStream{{ID: "l1", UserID: userID}}, nil
		},
	}

	lives, err := newTestService(repo).Past(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Past() error = %v", err)
	}
	if len(lives) != 1 || lives[0].ID != "l1" {
		t.Errorf("Past() = %+v", lives)
	}
	if !gotBefore.Equal(fixedNow) {
		t.Errorf("before = %v, want %v", gotBefore, fixedNow)
	}
}

func TestService_Past_StoreError(t *testing.T) {
	repo := &mockLiveRepo{
		ListPastByUserIDFunc: func(context.Context, string, time.Time) ([]*model.LiveStream, error) {
			return nil, errors.New("db down")
		},
	}
	if _, err := newTestService(repo).Past(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error, got nil")
	}
}
