package memory

import (
	"context"
	"sync"
	"time"

	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/service/drip"
)

// UserStore is a map-backed user directory.
type UserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

// NewUserStore creates a directory seeded with users.
func NewUserStore(users ...domain.User) *UserStore {
	s := &UserStore{users: make(map[string]*domain.User)}
	for _, u := range users {
		s.Put(u)
	}
	return s
}

// Put inserts or replaces a user.
func (s *UserStore) Put(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.ID] = &cp
}

// SetPlan changes a user's plan.
func (s *UserStore) SetPlan(id, plan string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.Plan = plan
	}
}

func (s *UserStore) Get(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, drip.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *UserStore) SetUnsubscribed(_ context.Context, id string, unsubscribed bool, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return drip.ErrUserNotFound
	}
	u.Unsubscribed = unsubscribed
	if unsubscribed {
		t := at
		u.UnsubscribedAt = &t
		u.UnsubscribeReason = reason
	} else {
		u.UnsubscribedAt = nil
		u.UnsubscribeReason = ""
	}
	return nil
}
