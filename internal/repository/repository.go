package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nguthrie/ucp-agent/internal/domain"
)

// ErrNotFound is returned when a key has no entry in the store.
var ErrNotFound = errors.New("repository: not found")

// SessionState is the locally tracked lifecycle record for one checkout.
// The merchant remains authoritative for amounts; this record only pins the
// lifecycle position, the currency fixed at creation, and the last known
// total for the agent's own bookkeeping.
type SessionState struct {
	CheckoutID  string                `json:"checkout_id"`
	MerchantURL string                `json:"merchant_url"`
	Status      domain.CheckoutStatus `json:"status"`
	Currency    string                `json:"currency"`
	Total       int64                 `json:"total"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// SessionStore persists session state keyed by checkout id. Implementations
// must be safe for concurrent use; operations on distinct checkout ids are
// independent.
type SessionStore interface {
	// Save inserts or replaces the state for a checkout id.
	Save(ctx context.Context, state *SessionState) error

	// Get retrieves the state for a checkout id, or ErrNotFound.
	Get(ctx context.Context, checkoutID string) (*SessionState, error)
}

// ProfileStore caches merchant discovery results keyed by normalized
// merchant base URL.
type ProfileStore interface {
	// Save inserts or replaces the profile for a merchant URL.
	Save(ctx context.Context, merchantURL string, profile *domain.MerchantProfile) error

	// Get retrieves the profile for a merchant URL, or ErrNotFound.
	Get(ctx context.Context, merchantURL string) (*domain.MerchantProfile, error)
}
