package domain

import "time"

// ActivationState is a state of the activation lifecycle.
type ActivationState string

const (
	StatePending    ActivationState = "PENDING"
	StateActivating ActivationState = "ACTIVATING"
	StateDeployed   ActivationState = "DEPLOYED"
	StateFailed     ActivationState = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s ActivationState) Terminal() bool {
	return s == StateDeployed || s == StateFailed
}

// OriginKind tells whether an activation targets a catalog signal or a
// custom proposal.
type OriginKind string

const (
	OriginCatalog OriginKind = "catalog"
	OriginCustom  OriginKind = "custom"
)

// Activation is the record of one activation ticket.
type Activation struct {
	ID          string
	SignalID    string
	SignalName  string
	Platform    string
	Account     string
	PrincipalID string
	ContextID   string
	Origin      OriginKind
	State       ActivationState
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// TicketID is the adapter's handle for status checks.
	TicketID string
	// AssignedSegmentID is the platform segment id the adapter will publish.
	AssignedSegmentID string
	// PlatformSegmentID is set once the activation is deployed.
	PlatformSegmentID string
	Error             string
}

// VisibleTo reports whether principalID may observe the activation.
func (a Activation) VisibleTo(principalID string) bool {
	return a.PrincipalID == "" || a.PrincipalID == principalID
}
