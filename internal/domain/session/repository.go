package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for session persistence
type Repository interface {
	// Create creates a new session
	Create(ctx context.Context, sess *Session) error

	// GetByID retrieves a session by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)

	// GetByIdempotencyKey retrieves a session by idempotency key
	GetByIdempotencyKey(ctx context.Context, key string) (*Session, error)

	// GetByProviderTxID retrieves a session by provider transaction identifier
	GetByProviderTxID(ctx context.Context, txID string) (*Session, error)

	// Update updates an existing session
	Update(ctx context.Context, sess *Session) error

	// List lists sessions with filters
	List(ctx context.Context, filter ListFilter) ([]*Session, error)

	// ExpireStale marks sessions past their deadline as expired and returns
	// how many were updated
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// ListFilter defines filters for listing sessions
type ListFilter struct {
	ContractID *string
	Status     *Status
	Method     *PaymentMethod
	Limit      int
	Offset     int
	SortBy     string
	SortOrder  string
}
