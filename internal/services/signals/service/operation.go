package service

import (
	"github.com/louisbranch/signals.agent/internal/services/signals/catalog"
	"github.com/louisbranch/signals.agent/internal/services/signals/platform"
)

// OperationKind names an internal operation.
type OperationKind string

const (
	OperationDiscover OperationKind = "discover"
	OperationActivate OperationKind = "activate"
	OperationStatus   OperationKind = "status"
)

// Operation is one of DiscoverRequest, ActivateRequest or StatusRequest.
type Operation interface {
	Kind() OperationKind
	operation()
}

// DiscoverRequest searches the catalog and platforms for a query.
type DiscoverRequest struct {
	Query       string
	PrincipalID string
	// Platforms are the delivery targets. Empty means every registered
	// platform. Accounts resolve to the principal's; naming any other
	// account is refused. Explicit targets also narrow each signal's
	// deployments.
	Platforms  []platform.Target
	Filters    catalog.Filters
	MaxResults *int
	Ranking    string
	// ParentContextID links a follow-up query to an earlier discovery.
	ParentContextID string
}

// ActivateRequest activates a catalog signal, a platform segment or a
// custom proposal on a platform.
type ActivateRequest struct {
	SignalID    string
	Platform    string
	Account     string
	PrincipalID string
	ContextID   string
}

// StatusRequest reads the progress of an activation.
type StatusRequest struct {
	ActivationID string
	PrincipalID  string
}

func (DiscoverRequest) Kind() OperationKind { return OperationDiscover }
func (ActivateRequest) Kind() OperationKind { return OperationActivate }
func (StatusRequest) Kind() OperationKind   { return OperationStatus }

func (DiscoverRequest) operation() {}
func (ActivateRequest) operation() {}
func (StatusRequest) operation()   {}

// Outcome carries the result of an operation. Discovery is set for
// discover, Activation for activate and status.
type Outcome struct {
	Kind       OperationKind
	Discovery  *DiscoveryResult
	Activation *ActivationResult
}
