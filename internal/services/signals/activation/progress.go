// Package activation tracks activation tickets from creation to a terminal
// state. Progress is computed from timestamps, never by waiting.
package activation

import (
	"time"

	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
)

const (
	// CatalogDuration is the nominal provisioning time of a catalog signal.
	CatalogDuration = 60 * time.Minute
	// CustomDuration is the nominal provisioning time of a custom proposal.
	CustomDuration = 120 * time.Minute
)

// NominalDuration returns how long an activation of origin takes to deploy.
func NominalDuration(origin domain.OriginKind) time.Duration {
	if origin == domain.OriginCustom {
		return CustomDuration
	}
	return CatalogDuration
}

// Progress returns the state an activation created at createdAt has reached
// at now, ignoring failures.
func Progress(createdAt, now time.Time, origin domain.OriginKind) domain.ActivationState {
	if now.Before(createdAt.Add(NominalDuration(origin))) {
		return domain.StateActivating
	}
	return domain.StateDeployed
}

// Remaining returns the time left until nominal completion, never negative.
func Remaining(createdAt, now time.Time, origin domain.OriginKind) time.Duration {
	left := createdAt.Add(NominalDuration(origin)).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// StrandedReason is recorded on a PENDING activation that never received a
// platform ticket within its nominal duration.
const StrandedReason = "activation was never handed to the platform"

// Advance moves a into the state reached at now. Terminal records are
// returned unchanged. A PENDING record fails once its nominal duration has
// passed without a ticket. The boolean reports a transition.
func Advance(a domain.Activation, now time.Time) (domain.Activation, bool) {
	if a.State == domain.StatePending {
		if Remaining(a.CreatedAt, now, a.Origin) > 0 {
			return a, false
		}
		a.State = domain.StateFailed
		a.Error = StrandedReason
		a.UpdatedAt = now
		return a, true
	}
	if a.State != domain.StateActivating {
		return a, false
	}
	if Progress(a.CreatedAt, now, a.Origin) != domain.StateDeployed {
		return a, false
	}
	a.State = domain.StateDeployed
	a.UpdatedAt = now
	if a.PlatformSegmentID == "" {
		a.PlatformSegmentID = a.AssignedSegmentID
	}
	return a, true
}
