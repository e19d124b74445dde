package user

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/livenex/internal/events"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	listFn       func(ctx context.Context) ([]*model.User, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(context.Context, string) (*model.User, error)    { return nil, nil }
func (m *mockUserRepo) FindByEmail(context.Context, string) (*model.User, error) { return nil, nil }
func (m *mockUserRepo) Create(context.Context, *model.User) error                { return nil }
func (m *mockUserRepo) CreateWithIdentity(context.Context, *model.User, *model.Identity) error {
	return nil
}

func (m *mockUserRepo) List(ctx context.Context) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockIdentityLister struct {
	identities []*model.Identity
	err        error
}

func (m *mockIdentityLister) ListByUserID(context.Context, string) ([]*model.Identity, error) {
	return m.identities, m.err
}

type capturePublisher struct {
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return nil
}

var admin = &model.User{ID: "admin-1", Role: model.RoleAdmin}

// --- テスト ---

func TestService_Profile_ListsLinkedProviders(t *testing.T) {
	identities := &mockIdentityLister{identities: []*model.Identity{
		{Provider: model.ProviderGoogle},
		{Provider: model.ProviderTwitch},
	}}
	svc := NewService(&mockUserRepo{}, identities, nil, nil)

	p, err := svc.Profile(context.Background(), &model.User{ID: "user-42"})
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	got := p.LinkedProviders()
	if len(got) != 2 || got[0] != model.ProviderGoogle || got[1] != model.ProviderTwitch {
		t.Errorf("LinkedProviders() = %v", got)
	}
}

func TestService_Profile_StoreError(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockIdentityLister{err: errors.New("db down")}, nil, nil)

	if _, err := svc.Profile(context.Background(), &model.User{ID: "user-42"}); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestService_List(t *testing.T) {
	repo := &mockUserRepo{listFn: func(context.Context) ([]*model.User, error) {
		return []*model.User{{ID: "a"}, {ID: "b"}}, nil
	}}

	users, err := NewService(repo, &mockIdentityLister{}, nil, nil).List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(users) != 2 {
		t.Errorf("len = %d, want 2", len(users))
	}
}

func TestService_Delete_PublishesEvent(t *testing.T) {
	var deleted string
	repo := &mockUserRepo{deleteByIDFn: func(_ context.Context, id string) error {
		deleted = id
		return nil
	}}
	pub := &capturePublisher{}

	if err := NewService(repo, &mockIdentityLister{}, pub, nil).Delete(context.Background(), admin, "user-42"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted != "user-42" {
		t.Errorf("deleted = %q, want user-42", deleted)
	}
	if len(pub.events) != 1 {
		t.Fatalf("events = %d, want 1", len(pub.events))
	}
	e := pub.events[0]
	if e.Type != events.TypeUserDeleted || e.UserID != "user-42" || e.Attributes["deleted_by"] != "admin-1" {
		t.Errorf("event = %+v", e)
	}
}

func TestService_Delete_Errors(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		repoErr error
		want    error
	}{
		{"empty id", "", nil, ErrNotFound},
		{"self", "admin-1", nil, ErrSelfDeletion},
		{"missing", "ghost", repository.ErrNotFound, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockUserRepo{deleteByIDFn: func(context.Context, string) error { return tt.repoErr }}
			pub := &capturePublisher{}

			err := NewService(repo, &mockIdentityLister{}, pub, nil).Delete(context.Background(), admin, tt.userID)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if len(pub.events) != 0 {
				t.Error("no event should be published on failure")
			}
		})
	}
}

func TestService_Delete_StoreError(t *testing.T) {
	repo := &mockUserRepo{deleteByIDFn: func(context.Context, string) error { return errors.New("db down") }}

	err := NewService(repo, &mockIdentityLister{}, nil, nil).Delete(context.Background(), admin, "user-42")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want wrapped store error", err)
	}
}
