package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/signals.agent/internal/platform/errors"
	"github.com/louisbranch/signals.agent/internal/platform/logging"
	"github.com/louisbranch/signals.agent/internal/platform/requestctx"
	"github.com/louisbranch/signals.agent/internal/services/signals/activation"
	"github.com/louisbranch/signals.agent/internal/services/signals/contexts"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
	"github.com/louisbranch/signals.agent/internal/services/signals/platform"
	"github.com/louisbranch/signals.agent/internal/services/signals/ranking"
)

// ActivationResult describes an activation and its current progress.
type ActivationResult struct {
	ActivationID                 string `json:"activation_id"`
	ContextID                    string `json:"context_id"`
	SegmentID                    string `json:"signals_agent_segment_id"`
	SignalName                   string `json:"signal_name"`
	Platform                     string `json:"platform"`
	Account                      string `json:"account,omitempty"`
	Status                       string `json:"status"`
	Origin                       string `json:"origin"`
	DecisioningPlatformSegmentID string `json:"decisioning_platform_segment_id,omitempty"`
	CreatedAt                    string `json:"created_at"`
	EstimatedDurationMinutes     int    `json:"estimated_activation_duration_minutes"`
	Message                      string `json:"message"`
	Error                        string `json:"error,omitempty"`

	State domain.ActivationState `json:"-"`
}

// target is what an activation resolves to.
type target struct {
	signal          domain.Signal
	origin          domain.OriginKind
	sourceSegmentID string
}

// Activate resolves the signal, opens an activation and hands it to the
// platform. A platform rejection is recorded as a FAILED activation rather
// than returned as an error.
func (s *Service) Activate(ctx context.Context, req ActivateRequest) (ActivationResult, error) {
	signalID := strings.TrimSpace(req.SignalID)
	if signalID == "" {
		return ActivationResult{}, apperrors.New(apperrors.CodeValidation, "signals_agent_segment_id is required")
	}
	platformName := strings.TrimSpace(req.Platform)
	if platformName == "" {
		return ActivationResult{}, apperrors.New(apperrors.CodeValidation, "platform is required")
	}
	if _, err := s.platforms.Get(platformName); err != nil {
		return ActivationResult{}, err
	}

	principal := s.catalog.Principal(requestctx.ResolvePrincipalID(ctx, req.PrincipalID))
	contextID := strings.TrimSpace(req.ContextID)
	var discovery *domain.ContextRecord
	if contextID != "" {
		record, err := s.contexts.GetFor(ctx, contextID, principal.ID)
		if err != nil {
			return ActivationResult{}, err
		}
		if record.Kind != domain.ContextDiscovery {
			return ActivationResult{}, apperrors.New(apperrors.CodeValidation,
				fmt.Sprintf("context %s is not a discovery context", contextID))
		}
		discovery = &record
	}
	resolved, err := s.resolveTarget(principal, signalID, platformName, discovery)
	if err != nil {
		return ActivationResult{}, err
	}

	account, err := accountFor(principal, platformName, req.Account)
	if err != nil {
		return ActivationResult{}, err
	}

	// The activation context is minted first so the record can point at it.
	activationID, err := s.activations.NewID()
	if err != nil {
		return ActivationResult{}, fmt.Errorf("generate activation id: %w", err)
	}
	activationContext, err := s.contexts.Create(ctx, contexts.Draft{
		Kind:        domain.ContextActivation,
		PrincipalID: principal.ID,
		ParentID:    contextID,
		Payload: domain.ContextPayload{
			ActivationID: activationID,
			Platforms:    []string{platformName},
		},
	})
	if err != nil {
		return ActivationResult{}, err
	}

	record, err := s.activations.Open(ctx, activation.Request{
		ID:          activationID,
		SignalID:    signalID,
		SignalName:  resolved.signal.Name,
		Platform:    platformName,
		Account:     account,
		PrincipalID: principal.ID,
		ContextID:   activationContext.ID,
		Origin:      resolved.origin,
	})
	if err != nil {
		return ActivationResult{}, err
	}

	ticket, activateErr := s.platforms.Activate(ctx, platformName, platform.ActivationRequest{
		SignalID:        signalID,
		SignalName:      resolved.signal.Name,
		Description:     resolved.signal.Description,
		Account:         account,
		PrincipalID:     principal.ID,
		Origin:          resolved.origin,
		SourceSegmentID: resolved.sourceSegmentID,
	})
	if activateErr != nil {
		s.logger.WithError(activateErr).WithFields(logging.Fields{
			"platform":   platformName,
			"signal_id":  signalID,
			"error_kind": string(platform.Classify(activateErr)),
		}).Warn("platform rejected activation")
		record, err = s.activations.Fail(ctx, record.ID, activationFailure(platformName, activateErr))
		if err != nil {
			return ActivationResult{}, err
		}
		return s.activationResult(record), nil
	}

	started, err := s.activations.Start(ctx, record.ID, ticket.ID, ticket.PlatformSegmentID)
	if err != nil {
		s.logger.WithError(err).WithField("activation_id", record.ID).Error("record activation ticket")
		if _, failErr := s.activations.Fail(ctx, record.ID, "activation ticket could not be recorded"); failErr != nil {
			s.logger.WithError(failErr).WithField("activation_id", record.ID).Error("fail activation")
		}
		return ActivationResult{}, err
	}
	return s.activationResult(started), nil
}

// resolveTarget finds the signal behind signalID: a custom proposal or a
// platform segment recorded in the discovery, or a catalog signal.
func (s *Service) resolveTarget(principal domain.Principal, signalID, platformName string, discovery *domain.ContextRecord) (target, error) {
	if ranking.IsProposalID(signalID) {
		if discovery == nil {
			return target{}, apperrors.WithMetadata(apperrors.CodeNotFound,
				fmt.Sprintf("custom proposal %s requires the context_id of its discovery", signalID),
				map[string]string{"resource": "signal"})
		}
		proposal, ok := discovery.Payload.Proposal(signalID)
		if !ok {
			return target{}, apperrors.WithMetadata(apperrors.CodeNotFound,
				fmt.Sprintf("custom proposal %s not found in context %s", signalID, discovery.ID),
				map[string]string{"resource": "signal"})
		}
		return target{
			signal: domain.Signal{ID: proposal.ID, Name: proposal.Name, Description: proposal.Description},
			origin: domain.OriginCustom,
		}, nil
	}

	candidate, err := s.catalog.Lookup(principal, signalID)
	if err == nil {
		return target{signal: candidate.Signal, origin: domain.OriginCatalog}, nil
	}
	if !apperrors.IsCode(err, apperrors.CodeNotFound) || discovery == nil {
		return target{}, err
	}
	signal, ok := discovery.Payload.PlatformSignal(signalID)
	if !ok {
		return target{}, err
	}
	if signal.Source != platformName {
		return target{}, apperrors.WithMetadata(apperrors.CodeValidation,
			fmt.Sprintf("signal %s comes from %s and cannot be activated on %s", signalID, signal.Source, platformName),
			map[string]string{"reason": fmt.Sprintf("signal %s is only available on %s", signalID, signal.Source)})
	}
	resolved := target{signal: signal, origin: domain.OriginCatalog}
	for _, deployment := range signal.Deployments {
		if deployment.Platform == platformName {
			resolved.sourceSegmentID = deployment.PlatformSegmentID
			break
		}
	}
	return resolved, nil
}

// Status reports an activation's progress, folding in what its platform
// says about the ticket. A transient platform failure does not fail the
// call and elapsed time still advances the activation; any other adapter
// error moves the activation to FAILED.
func (s *Service) Status(ctx context.Context, req StatusRequest) (ActivationResult, error) {
	principal := s.catalog.Principal(requestctx.ResolvePrincipalID(ctx, req.PrincipalID))
	record, err := s.activations.Get(ctx, req.ActivationID, principal.ID)
	if err != nil {
		return ActivationResult{}, err
	}

	var observation activation.Observation
	if !record.State.Terminal() && record.TicketID != "" {
		report, err := s.platforms.CheckStatus(ctx, record.Platform, record.TicketID)
		switch {
		case err != nil && platform.Transient(err):
			s.logger.WithError(err).WithFields(logging.Fields{
				"platform":      record.Platform,
				"activation_id": record.ID,
				"error_kind":    string(platform.Classify(err)),
			}).Warn("platform status check failed")
		case err != nil:
			observation.Failure = activationFailure(record.Platform, err)
		case report.State == platform.RemoteFailed:
			observation.Failure = report.Message
			if observation.Failure == "" {
				observation.Failure = "platform reported the activation as failed"
			}
		default:
			observation.PlatformSegmentID = report.PlatformSegmentID
		}
	}
	record, err = s.activations.Observe(ctx, record.ID, observation)
	if err != nil {
		return ActivationResult{}, err
	}
	return s.activationResult(record), nil
}

func (s *Service) activationResult(record domain.Activation) ActivationResult {
	now := s.clock.Now()
	result := ActivationResult{
		ActivationID: record.ID,
		ContextID:    record.ContextID,
		SegmentID:    record.SignalID,
		SignalName:   record.SignalName,
		Platform:     record.Platform,
		Account:      record.Account,
		Status:       strings.ToLower(string(record.State)),
		Origin:       string(record.Origin),
		CreatedAt:    record.CreatedAt.UTC().Format(time.RFC3339),
		Error:        record.Error,
		State:        record.State,
	}
	if record.State == domain.StateDeployed {
		result.DecisioningPlatformSegmentID = record.PlatformSegmentID
	}
	if !record.State.Terminal() {
		remaining := activation.Remaining(record.CreatedAt, now, record.Origin)
		result.EstimatedDurationMinutes = int((remaining + time.Minute - 1) / time.Minute)
	}
	result.Message = activationMessage(record, result.EstimatedDurationMinutes)
	return result
}

func activationMessage(record domain.Activation, minutes int) string {
	name := record.SignalName
	if name == "" {
		name = record.SignalID
	}
	switch record.State {
	case domain.StateDeployed:
		return fmt.Sprintf("Signal '%s' is now live on %s and ready for immediate use.", name, record.Platform)
	case domain.StateFailed:
		return fmt.Sprintf("Failed to activate signal '%s' on %s. Please check the error details.", name, record.Platform)
	case domain.StateActivating:
		if minutes > 0 {
			return fmt.Sprintf("Signal '%s' is being activated on %s. Estimated completion time: %d minutes.", name, record.Platform, minutes)
		}
		return fmt.Sprintf("Signal '%s' is being activated on %s.", name, record.Platform)
	default:
		return fmt.Sprintf("Signal '%s' activation status on %s: %s", name, record.Platform, strings.ToLower(string(record.State)))
	}
}

func activationFailure(platformName string, err error) string {
	switch platform.Classify(err) {
	case platform.KindAuthentication:
		return platformName + " rejected the credentials"
	case platform.KindTimeout:
		return platformName + " did not answer in time"
	case platform.KindCircuitOpen:
		return platformName + " is temporarily unavailable"
	default:
		return err.Error()
	}
}
