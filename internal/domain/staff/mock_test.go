package staff

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type mockRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Staff
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Staff)}
}

func clone(s *Staff) *Staff {
	c := *s
	c.PasswordHash = append([]byte(nil), s.PasswordHash...)
	return &c
}

func (m *mockRepo) Create(_ context.Context, s *Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if strings.EqualFold(existing.Email, s.Email) {
			return ErrEmailTaken
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.items[s.ID] = clone(s)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *mockRepo) GetByEmail(_ context.Context, email string) (*Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.items {
		if strings.EqualFold(s.Email, email) {
			return clone(s), nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Update(_ context.Context, s *Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.items[s.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Name, existing.Role, existing.Active = s.Name, s.Role, s.Active
	return nil
}

func (m *mockRepo) SetPasswordHash(_ context.Context, id uuid.UUID, hash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	existing.PasswordHash = append([]byte(nil), hash...)
	return nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter) ([]*Staff, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Staff
	for _, s := range m.items {
		if f.Role != "" && s.Role != f.Role {
			continue
		}
		if f.ActiveOnly && !s.Active {
			continue
		}
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := len(out)
	if f.Offset < len(out) {
		out = out[f.Offset:]
	} else {
		out = nil
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}
