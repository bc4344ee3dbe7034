package memory

import (
	"context"
	"sync"

	"github.com/nguthrie/ucp-agent/internal/domain"
	"github.com/nguthrie/ucp-agent/internal/repository"
)

// SessionStore is an in-memory implementation of repository.SessionStore.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]repository.SessionState
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]repository.SessionState),
	}
}

// Save inserts or replaces the state for a checkout id.
func (s *SessionStore) Save(_ context.Context, state *repository.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state.CheckoutID] = *state
	return nil
}

// Get retrieves a copy of the state for a checkout id.
func (s *SessionStore) Get(_ context.Context, checkoutID string) (*repository.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[checkoutID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &state, nil
}

// ProfileStore is an in-memory implementation of repository.ProfileStore.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*domain.MerchantProfile
}

// NewProfileStore creates an empty in-memory profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		profiles: make(map[string]*domain.MerchantProfile),
	}
}

// Save inserts or replaces the profile for a merchant URL.
func (s *ProfileStore) Save(_ context.Context, merchantURL string, profile *domain.MerchantProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[merchantURL] = profile
	return nil
}

// Get retrieves the profile for a merchant URL.
func (s *ProfileStore) Get(_ context.Context, merchantURL string) (*domain.MerchantProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[merchantURL]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return profile, nil
}
