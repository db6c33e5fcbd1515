package activation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/signals.agent/internal/platform/clock"
	apperrors "github.com/louisbranch/signals.agent/internal/platform/errors"
	"github.com/louisbranch/signals.agent/internal/platform/id"
	"github.com/louisbranch/signals.agent/internal/platform/logging"
	"github.com/louisbranch/signals.agent/internal/platform/metrics"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
	"github.com/louisbranch/signals.agent/internal/services/signals/storage"
)

const idPrefix = "act_"

// errNoTransition aborts an update that would not change the record.
var errNoTransition = errors.New("no transition")

// Machine owns every write to activation records.
type Machine struct {
	repo    storage.ActivationStore
	clock   clock.Clock
	logger  logging.Logger
	metrics *metrics.Metrics
	newID   func() (string, error)
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the machine logger.
func WithLogger(logger logging.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records activation transitions.
func WithMetrics(mtr *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mtr }
}

// WithIDGenerator replaces the activation id generator.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(m *Machine) {
		if newID != nil {
			m.newID = newID
		}
	}
}

// New returns a Machine persisting to repo.
func New(repo storage.ActivationStore, clk clock.Clock, opts ...Option) *Machine {
	if clk == nil {
		clk = clock.Real()
	}
	m := &Machine{
		repo:   repo,
		clock:  clk,
		logger: logging.Discard(),
		newID: func() (string, error) {
			value, err := id.NewID()
			if err != nil {
				return "", err
			}
			return idPrefix + value, nil
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewID returns a fresh activation id for Request.ID.
func (m *Machine) NewID() (string, error) {
	return m.newID()
}

// Request describes an activation about to be opened.
type Request struct {
	// ID is minted by Open when empty.
	ID          string
	SignalID    string
	SignalName  string
	Platform    string
	Account     string
	PrincipalID string
	ContextID   string
	Origin      domain.OriginKind
}

// Open persists a PENDING record for req.
func (m *Machine) Open(ctx context.Context, req Request) (domain.Activation, error) {
	if strings.TrimSpace(req.SignalID) == "" || strings.TrimSpace(req.Platform) == "" {
		return domain.Activation{}, apperrors.New(apperrors.CodeValidation, "signal id and platform are required")
	}
	origin := req.Origin
	if origin == "" {
		origin = domain.OriginCatalog
	}
	activationID := strings.TrimSpace(req.ID)
	if activationID == "" {
		generated, err := m.newID()
		if err != nil {
			return domain.Activation{}, fmt.Errorf("generate activation id: %w", err)
		}
		activationID = generated
	}
	now := m.clock.Now().UTC()
	record := domain.Activation{
		ID:          activationID,
		SignalID:    req.SignalID,
		SignalName:  req.SignalName,
		Platform:    req.Platform,
		Account:     req.Account,
		PrincipalID: req.PrincipalID,
		ContextID:   req.ContextID,
		Origin:      origin,
		State:       domain.StatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.repo.CreateActivation(ctx, record); err != nil {
		return domain.Activation{}, fmt.Errorf("store activation: %w", err)
	}
	return record, nil
}

// Start moves a PENDING record to ACTIVATING with the adapter's ticket.
func (m *Machine) Start(ctx context.Context, activationID, ticketID, segmentID string) (domain.Activation, error) {
	record, err := m.update(ctx, activationID, func(a *domain.Activation) error {
		if a.State != domain.StatePending {
			return fmt.Errorf("activation %s is %s, not %s", a.ID, a.State, domain.StatePending)
		}
		a.State = domain.StateActivating
		a.TicketID = ticketID
		a.AssignedSegmentID = segmentID
		return nil
	})
	if err != nil {
		return domain.Activation{}, err
	}
	m.record(record)
	return record, nil
}

// Fail moves a non-terminal record to FAILED. Terminal records are returned
// unchanged.
func (m *Machine) Fail(ctx context.Context, activationID, reason string) (domain.Activation, error) {
	record, err := m.update(ctx, activationID, func(a *domain.Activation) error {
		if a.State.Terminal() {
			return errNoTransition
		}
		a.State = domain.StateFailed
		a.Error = reason
		return nil
	})
	if errors.Is(err, errNoTransition) {
		return m.load(ctx, activationID)
	}
	if err != nil {
		return domain.Activation{}, err
	}
	m.record(record)
	m.logger.WithFields(logging.Fields{
		"activation_id": record.ID,
		"platform":      record.Platform,
		"reason":        reason,
	}).Warn("activation failed")
	return record, nil
}

// Get returns the activation if principalID may observe it. Unknown ids
// yield NOT_FOUND and foreign ones an authorization error.
func (m *Machine) Get(ctx context.Context, activationID, principalID string) (domain.Activation, error) {
	record, err := m.load(ctx, activationID)
	if err != nil {
		return domain.Activation{}, err
	}
	if !record.VisibleTo(principalID) {
		return domain.Activation{}, apperrors.New(apperrors.CodeAuthorization,
			fmt.Sprintf("principal %q cannot observe activation %s", principalID, activationID))
	}
	return record, nil
}

// Observation is what a platform reported about a ticket.
type Observation struct {
	// Failure, when set, is the platform's failure message.
	Failure           string
	PlatformSegmentID string
}

// Observe advances the record to the state reached now. A platform failure
// moves a non-terminal record to FAILED. Repeated calls are idempotent and
// a terminal record never changes.
func (m *Machine) Observe(ctx context.Context, activationID string, obs Observation) (domain.Activation, error) {
	now := m.clock.Now().UTC()
	record, err := m.update(ctx, activationID, func(a *domain.Activation) error {
		if a.State.Terminal() {
			return errNoTransition
		}
		if obs.Failure != "" {
			a.State = domain.StateFailed
			a.Error = obs.Failure
			return nil
		}
		if obs.PlatformSegmentID != "" && a.AssignedSegmentID == "" {
			a.AssignedSegmentID = obs.PlatformSegmentID
		}
		next, changed := Advance(*a, now)
		if !changed {
			return errNoTransition
		}
		*a = next
		return nil
	})
	if errors.Is(err, errNoTransition) {
		return m.load(ctx, activationID)
	}
	if err != nil {
		return domain.Activation{}, err
	}
	m.record(record)
	return record, nil
}

// update stamps UpdatedAt on every successful mutation.
func (m *Machine) update(ctx context.Context, activationID string, mutate func(*domain.Activation) error) (domain.Activation, error) {
	now := m.clock.Now().UTC()
	record, err := m.repo.UpdateActivation(ctx, activationID, func(a *domain.Activation) error {
		if err := mutate(a); err != nil {
			return err
		}
		if a.UpdatedAt.Before(now) {
			a.UpdatedAt = now
		}
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Activation{}, notFound(activationID)
	}
	return record, err
}

func (m *Machine) load(ctx context.Context, activationID string) (domain.Activation, error) {
	activationID = strings.TrimSpace(activationID)
	if activationID == "" {
		return domain.Activation{}, apperrors.New(apperrors.CodeValidation, "activation_id is required")
	}
	record, err := m.repo.GetActivation(ctx, activationID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Activation{}, notFound(activationID)
	}
	if err != nil {
		return domain.Activation{}, fmt.Errorf("load activation: %w", err)
	}
	return record, nil
}

func (m *Machine) record(a domain.Activation) {
	m.metrics.Activation(strings.ToLower(string(a.State)), string(a.Origin))
}

func notFound(activationID string) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("activation %s not found", activationID),
		map[string]string{"resource": "activation", "activation_id": activationID})
}
