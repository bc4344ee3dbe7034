package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nguthrie/ucp-agent/internal/domain"
	"github.com/nguthrie/ucp-agent/internal/repository"
)

const (
	sessionKeyPrefix = "ucp:session:"
	profileKeyPrefix = "ucp:profile:"
)

// SessionStore implements repository.SessionStore using Redis. Entries are
// TTL-bound: an abandoned checkout eventually ages out of the store.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore creates a Redis-backed session store.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
	}
}

// Save persists session state with the configured TTL.
func (s *SessionStore) Save(ctx context.Context, state *repository.SessionState) error {
	key := sessionKeyPrefix + state.CheckoutID

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session state: %w", err)
	}

	return nil
}

// Get retrieves session state by checkout id.
func (s *SessionStore) Get(ctx context.Context, checkoutID string) (*repository.SessionState, error) {
	key := sessionKeyPrefix + checkoutID

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get session state: %w", err)
	}

	var state repository.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}

	// Stored status strings are normalized on read so records written with
	// the merchant wire alias "complete" load as completed.
	status, err := domain.ParseCheckoutStatus(string(state.Status))
	if err != nil {
		return nil, fmt.Errorf("invalid stored session status: %w", err)
	}
	state.Status = status

	return &state, nil
}

// ProfileStore implements repository.ProfileStore using Redis.
type ProfileStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProfileStore creates a Redis-backed merchant profile store.
func NewProfileStore(client *redis.Client, ttl time.Duration) *ProfileStore {
	return &ProfileStore{
		client: client,
		ttl:    ttl,
	}
}

// Save persists a merchant profile with the configured TTL.
func (s *ProfileStore) Save(ctx context.Context, merchantURL string, profile *domain.MerchantProfile) error {
	key := profileKeyPrefix + merchantURL

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal merchant profile: %w", err)
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set merchant profile: %w", err)
	}

	return nil
}

// Get retrieves a merchant profile by normalized merchant URL.
func (s *ProfileStore) Get(ctx context.Context, merchantURL string) (*domain.MerchantProfile, error) {
	key := profileKeyPrefix + merchantURL

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get merchant profile: %w", err)
	}

	var profile domain.MerchantProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("unmarshal merchant profile: %w", err)
	}

	return &profile, nil
}
