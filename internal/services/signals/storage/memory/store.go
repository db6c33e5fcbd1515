// Package memory provides a process-local storage implementation.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
	"github.com/louisbranch/signals.agent/internal/services/signals/storage"
)

// Store keeps records in sync.Maps. Each activation entry carries its own
// lock, so updates to different activations never contend.
type Store struct {
	contexts    sync.Map // id -> domain.ContextRecord
	activations sync.Map // id -> *activationEntry
}

type activationEntry struct {
	mu     sync.Mutex
	record domain.Activation
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// CreateContext stores a context record unless its id is taken.
func (s *Store) CreateContext(ctx context.Context, record domain.ContextRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, loaded := s.contexts.LoadOrStore(record.ID, cloneContext(record)); loaded {
		return storage.ErrAlreadyExists
	}
	return nil
}

// GetContext returns a copy of the context record with id.
func (s *Store) GetContext(ctx context.Context, id string) (domain.ContextRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.ContextRecord{}, err
	}
	value, ok := s.contexts.Load(id)
	if !ok {
		return domain.ContextRecord{}, storage.ErrNotFound
	}
	return cloneContext(value.(domain.ContextRecord)), nil
}

// DeleteContextsExpiredBefore drops records whose expiry precedes cutoff.
func (s *Store) DeleteContextsExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	s.contexts.Range(func(key, value any) bool {
		if ctx.Err() != nil {
			return false
		}
		if value.(domain.ContextRecord).ExpiresAt.Before(cutoff) {
			s.contexts.Delete(key)
			deleted++
		}
		return true
	})
	return deleted, ctx.Err()
}

// CreateActivation stores an activation record unless its id is taken.
func (s *Store) CreateActivation(ctx context.Context, activation domain.Activation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, loaded := s.activations.LoadOrStore(activation.ID, &activationEntry{record: activation}); loaded {
		return storage.ErrAlreadyExists
	}
	return nil
}

// GetActivation returns the activation record with id.
func (s *Store) GetActivation(ctx context.Context, id string) (domain.Activation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Activation{}, err
	}
	value, ok := s.activations.Load(id)
	if !ok {
		return domain.Activation{}, storage.ErrNotFound
	}
	entry := value.(*activationEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.record, nil
}

// UpdateActivation mutates one record under its entry lock.
func (s *Store) UpdateActivation(ctx context.Context, id string, mutate func(*domain.Activation) error) (domain.Activation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Activation{}, err
	}
	value, ok := s.activations.Load(id)
	if !ok {
		return domain.Activation{}, storage.ErrNotFound
	}
	entry := value.(*activationEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	updated := entry.record
	if err := mutate(&updated); err != nil {
		return entry.record, err
	}
	updated.ID = entry.record.ID
	entry.record = updated
	return updated, nil
}

// cloneContext copies the payload slices so callers cannot mutate stored records.
func cloneContext(record domain.ContextRecord) domain.ContextRecord {
	payload := record.Payload
	payload.Results = append([]domain.ResultRef(nil), payload.Results...)
	payload.Proposals = append([]domain.Proposal(nil), payload.Proposals...)
	payload.PlatformItems = append([]domain.Signal(nil), payload.PlatformItems...)
	payload.Platforms = append([]string(nil), payload.Platforms...)
	record.Payload = payload
	return record
}

var _ storage.Store = (*Store)(nil)
