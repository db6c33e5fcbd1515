// Package storage defines persistence contracts for context and activation
// records.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a record with the same id already exists.
	ErrAlreadyExists = errors.New("record already exists")
)

// ContextStore persists context records. Records are write-once.
type ContextStore interface {
	CreateContext(ctx context.Context, record domain.ContextRecord) error
	GetContext(ctx context.Context, id string) (domain.ContextRecord, error)
	// DeleteContextsExpiredBefore removes records whose expiry is before cutoff.
	DeleteContextsExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// ActivationStore persists activation records.
type ActivationStore interface {
	CreateActivation(ctx context.Context, activation domain.Activation) error
	GetActivation(ctx context.Context, id string) (domain.Activation, error)
	// UpdateActivation applies mutate to the stored record atomically and
	// returns the stored result. Returning an error from mutate aborts the
	// update.
	UpdateActivation(ctx context.Context, id string, mutate func(*domain.Activation) error) (domain.Activation, error)
}

// Store is the full persistence surface of the service.
type Store interface {
	ContextStore
	ActivationStore
	Close() error
}
