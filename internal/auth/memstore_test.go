package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/hitoshi/livenex/internal/events"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/repository"
)

// memStore はusers/identitiesの一意制約をミューテックスで再現するインメモリリポジトリ。
type memStore struct {
	mu         sync.Mutex
	users      map[string]*model.User
	identities []*model.Identity
	// findErr が設定されている場合、検索系メソッドはこのエラーを返す
	findErr error
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*model.User)}
}

func (m *memStore) addUser(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *memStore) addIdentity(i *model.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities = append(m.identities, i)
}

func (m *memStore) snapshot() ([]model.User, []model.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []model.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	var ids []model.Identity
	for _, i := range m.identities {
		ids = append(ids, *i)
	}
	return users, ids
}

// --- UserRepository ---

func (m *memStore) FindByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.HasPassword() && strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.HasPassword() && user.HasPassword() && strings.EqualFold(u.Email, user.Email) {
			return repository.ErrEmailTaken
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memStore) CreateWithIdentity(_ context.Context, user *model.User, identity *model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.identities {
		if i.Provider == identity.Provider && i.ProviderUserID == identity.ProviderUserID {
			return repository.ErrIdentityConflict
		}
	}
	u := *user
	id := *identity
	m.users[user.ID] = &u
	m.identities = append(m.identities, &id)
	return nil
}

func (m *memStore) List(_ context.Context) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.User
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.users, id)
	kept := m.identities[:0]
	for _, i := range m.identities {
		if i.UserID != id {
			kept = append(kept, i)
		}
	}
	m.identities = kept
	return nil
}

// --- IdentityRepository ---

func (m *memStore) FindByProviderAndProviderUserID(_ context.Context, provider model.Provider, providerUserID string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, i := range m.identities {
		if i.Provider == provider && i.ProviderUserID == providerUserID {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindByUserAndProvider(_ context.Context, userID string, provider model.Provider) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.identities {
		if i.UserID == userID && i.Provider == provider {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListByUserID(_ context.Context, userID string) ([]*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Identity
	for _, i := range m.identities {
		if i.UserID == userID {
			cp := *i
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) Upsert(_ context.Context, identity *model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.identities {
		if i.Provider == identity.Provider && i.ProviderUserID == identity.ProviderUserID && i.UserID != identity.UserID {
			return repository.ErrIdentityConflict
		}
	}
	for _, i := range m.identities {
		if i.UserID == identity.UserID && i.Provider == identity.Provider {
			refresh := i.RefreshToken
			*i = *identity
			if identity.RefreshToken == "" {
				i.RefreshToken = refresh
			}
			return nil
		}
	}
	cp := *identity
	m.identities = append(m.identities, &cp)
	return nil
}

func (m *memStore) UpdateTokens(_ context.Context, identity *model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.identities {
		if i.ID == identity.ID {
			i.AccessToken = identity.AccessToken
			if identity.RefreshToken != "" {
				i.RefreshToken = identity.RefreshToken
			}
			i.TokenExpiry = identity.TokenExpiry
			i.DisplayName = identity.DisplayName
			i.AvatarURL = identity.AvatarURL
			i.Email = identity.Email
			return nil
		}
	}
	return repository.ErrNotFound
}

// recordingPublisher は発行されたイベントを記録する。
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var (
	_ repository.UserRepository     = (*memStore)(nil)
	_ repository.IdentityRepository = (*memStore)(nil)
	_ events.Publisher              = (*recordingPublisher)(nil)
)
