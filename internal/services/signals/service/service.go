// Package service implements the discover, activate and status operations
// shared by both protocol front ends.
package service

import (
	"context"
	"fmt"

	"github.com/louisbranch/signals.agent/internal/platform/clock"
	apperrors "github.com/louisbranch/signals.agent/internal/platform/errors"
	"github.com/louisbranch/signals.agent/internal/platform/logging"
	"github.com/louisbranch/signals.agent/internal/platform/metrics"
	"github.com/louisbranch/signals.agent/internal/services/signals/activation"
	"github.com/louisbranch/signals.agent/internal/services/signals/catalog"
	"github.com/louisbranch/signals.agent/internal/services/signals/contexts"
	"github.com/louisbranch/signals.agent/internal/services/signals/platform"
	"github.com/louisbranch/signals.agent/internal/services/signals/ranking"
)

// Config wires the collaborators of a Service.
type Config struct {
	Catalog     *catalog.Controller
	Contexts    *contexts.Store
	Activations *activation.Machine
	Platforms   *platform.Registry
	// Ranker defaults to deterministic-only ranking.
	Ranker  *ranking.Engine
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  logging.Logger
}

// Service runs operations against the catalog, platforms and stores.
type Service struct {
	catalog     *catalog.Controller
	contexts    *contexts.Store
	activations *activation.Machine
	platforms   *platform.Registry
	ranker      *ranking.Engine
	clock       clock.Clock
	metrics     *metrics.Metrics
	logger      logging.Logger
}

// New validates cfg and returns a Service.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Catalog == nil:
		return nil, fmt.Errorf("catalog is required")
	case cfg.Contexts == nil:
		return nil, fmt.Errorf("context store is required")
	case cfg.Activations == nil:
		return nil, fmt.Errorf("activation machine is required")
	case cfg.Platforms == nil:
		return nil, fmt.Errorf("platform registry is required")
	}
	s := &Service{
		catalog:     cfg.Catalog,
		contexts:    cfg.Contexts,
		activations: cfg.Activations,
		platforms:   cfg.Platforms,
		ranker:      cfg.Ranker,
		clock:       cfg.Clock,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
	if s.ranker == nil {
		s.ranker = &ranking.Engine{}
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s, nil
}

// Platforms returns the registered platform names.
func (s *Service) Platforms() []string {
	return s.platforms.Names()
}

// Execute dispatches op to its operation and records failures.
func (s *Service) Execute(ctx context.Context, op Operation) (Outcome, error) {
	var (
		outcome Outcome
		err     error
	)
	switch op := op.(type) {
	case DiscoverRequest:
		var result DiscoveryResult
		result, err = s.Discover(ctx, op)
		outcome = Outcome{Kind: OperationDiscover, Discovery: &result}
	case ActivateRequest:
		var result ActivationResult
		result, err = s.Activate(ctx, op)
		outcome = Outcome{Kind: OperationActivate, Activation: &result}
	case StatusRequest:
		var result ActivationResult
		result, err = s.Status(ctx, op)
		outcome = Outcome{Kind: OperationStatus, Activation: &result}
	default:
		return Outcome{}, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unsupported operation %T", op))
	}
	if err != nil {
		code := apperrors.GetCode(err)
		s.metrics.OperationError(string(op.Kind()), string(code))
		entry := s.logger.WithError(err).WithFields(logging.Fields{
			"operation": string(op.Kind()),
			"code":      string(code),
		})
		if code == apperrors.CodeUnknown {
			entry.Error("operation failed")
		} else {
			entry.Info("operation rejected")
		}
		return Outcome{Kind: op.Kind()}, err
	}
	return outcome, nil
}
