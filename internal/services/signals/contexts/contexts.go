// Package contexts mints and resolves context records shared by both
// protocol front ends.
package contexts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/louisbranch/signals.agent/internal/platform/clock"
	apperrors "github.com/louisbranch/signals.agent/internal/platform/errors"
	"github.com/louisbranch/signals.agent/internal/platform/id"
	"github.com/louisbranch/signals.agent/internal/platform/logging"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
	"github.com/louisbranch/signals.agent/internal/services/signals/storage"
)

const (
	idPrefix       = "ctx_"
	suffixBytes    = 3
	maxIDAttempts  = 8
	defaultGrace   = 24 * time.Hour
	minSweepPeriod = time.Minute
)

var idPattern = regexp.MustCompile(`^ctx_[0-9]+_[0-9a-f]+$`)

// Store creates and reads context records with a fixed TTL.
type Store struct {
	repo   storage.ContextStore
	clock  clock.Clock
	logger logging.Logger
	newID  func(now time.Time) (string, error)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by the sweeper.
func WithLogger(logger logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator replaces the context id generator.
func WithIDGenerator(newID func(now time.Time) (string, error)) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// New returns a Store backed by repo.
func New(repo storage.ContextStore, clk clock.Clock, opts ...Option) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	s := &Store{
		repo:   repo,
		clock:  clk,
		logger: logging.Discard(),
		newID:  NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID returns a context id embedding the creation epoch.
func NewID(now time.Time) (string, error) {
	suffix, err := id.NewHex(suffixBytes)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d_%s", idPrefix, now.Unix(), suffix), nil
}

// ValidID reports whether value has the context id shape.
func ValidID(value string) bool {
	return idPattern.MatchString(value)
}

// Draft is the content of a context about to be created.
type Draft struct {
	Kind        domain.ContextKind
	PrincipalID string
	ParentID    string
	Payload     domain.ContextPayload
}

// Create mints an id, stamps the TTL and persists the record. Proposals in
// the payload are bound to the minted id. Once Create returns, Get observes
// the record.
func (s *Store) Create(ctx context.Context, draft Draft) (domain.ContextRecord, error) {
	switch draft.Kind {
	case domain.ContextDiscovery, domain.ContextActivation:
	default:
		return domain.ContextRecord{}, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unknown context kind %q", draft.Kind))
	}
	now := s.clock.Now().UTC()
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		contextID, err := s.newID(now)
		if err != nil {
			return domain.ContextRecord{}, fmt.Errorf("generate context id: %w", err)
		}
		record := domain.ContextRecord{
			ID:          contextID,
			Kind:        draft.Kind,
			ParentID:    draft.ParentID,
			PrincipalID: draft.PrincipalID,
			CreatedAt:   now,
			ExpiresAt:   now.Add(domain.ContextTTL),
			Payload:     bindProposals(draft.Payload, contextID),
		}
		err = s.repo.CreateContext(ctx, record)
		if errors.Is(err, storage.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return domain.ContextRecord{}, fmt.Errorf("store context: %w", err)
		}
		return record, nil
	}
	return domain.ContextRecord{}, fmt.Errorf("store context: no unique id after %d attempts", maxIDAttempts)
}

// Get returns the record with contextID. Unknown ids yield NOT_FOUND and
// records past their expiry yield EXPIRED_CONTEXT.
func (s *Store) Get(ctx context.Context, contextID string) (domain.ContextRecord, error) {
	contextID = strings.TrimSpace(contextID)
	if contextID == "" {
		return domain.ContextRecord{}, apperrors.New(apperrors.CodeValidation, "context_id is required")
	}
	record, err := s.repo.GetContext(ctx, contextID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.ContextRecord{}, apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("context %s not found", contextID),
			map[string]string{"resource": "context", "context_id": contextID})
	}
	if err != nil {
		return domain.ContextRecord{}, fmt.Errorf("load context: %w", err)
	}
	if record.Expired(s.clock.Now()) {
		return domain.ContextRecord{}, apperrors.WithMetadata(apperrors.CodeExpiredContext,
			fmt.Sprintf("context %s expired at %s", contextID, record.ExpiresAt.Format(time.RFC3339)),
			map[string]string{"context_id": contextID})
	}
	return record, nil
}

// GetFor is Get restricted to records principalID may read. Records owned
// by another principal yield an authorization error.
func (s *Store) GetFor(ctx context.Context, contextID, principalID string) (domain.ContextRecord, error) {
	record, err := s.Get(ctx, contextID)
	if err != nil {
		return domain.ContextRecord{}, err
	}
	if !record.OwnedBy(principalID) {
		return domain.ContextRecord{}, apperrors.New(apperrors.CodeAuthorization,
			fmt.Sprintf("principal %q cannot read context %s", principalID, contextID))
	}
	return record, nil
}

// Sweep deletes records that expired more than grace ago. Reads never rely
// on it.
func (s *Store) Sweep(ctx context.Context, grace time.Duration) (int, error) {
	if grace < 0 {
		grace = 0
	}
	return s.repo.DeleteContextsExpiredBefore(ctx, s.clock.Now().Add(-grace))
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval, grace time.Duration) {
	if interval < minSweepPeriod {
		interval = minSweepPeriod
	}
	if grace <= 0 {
		grace = defaultGrace
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.Sweep(ctx, grace)
			if err != nil {
				s.logger.WithError(err).Warn("context sweep failed")
				continue
			}
			if deleted > 0 {
				s.logger.WithField("deleted", deleted).Debug("swept expired contexts")
			}
		}
	}
}

func bindProposals(payload domain.ContextPayload, contextID string) domain.ContextPayload {
	if len(payload.Proposals) == 0 {
		return payload
	}
	bound := make([]domain.Proposal, len(payload.Proposals))
	for i, proposal := range payload.Proposals {
		proposal.ContextID = contextID
		bound[i] = proposal
	}
	payload.Proposals = bound
	return payload
}
