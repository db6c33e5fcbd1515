// Package platform normalizes decisioning platforms behind one adapter
// contract and adds caching, fan-out and failure isolation on top.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
)

// Scope identifies whose view of a platform is requested.
type Scope struct {
	PrincipalID string
	Account     string
}

// Key is the cache key component for the scope.
func (s Scope) Key() string {
	principal := s.PrincipalID
	if principal == "" {
		principal = "public"
	}
	return principal + "|" + s.Account
}

// Segment is one audience segment listed by a platform.
type Segment struct {
	PlatformSegmentID string            `json:"platform_segment_id" yaml:"platform_segment_id"`
	Name              string            `json:"name" yaml:"name"`
	Description       string            `json:"description,omitempty" yaml:"description"`
	Provider          string            `json:"provider,omitempty" yaml:"provider"`
	Type              domain.SignalType `json:"signal_type,omitempty" yaml:"signal_type"`
	Coverage          *float64          `json:"coverage_percentage" yaml:"coverage_percentage"`
	CPM               *float64          `json:"cpm" yaml:"cpm"`
	Currency          string            `json:"currency,omitempty" yaml:"currency"`
	Account           string            `json:"account,omitempty" yaml:"account"`
	IsLive            bool              `json:"is_live" yaml:"is_live"`
	// SignalID links the segment to a catalog signal when the platform
	// already carries it.
	SignalID string `json:"signal_id,omitempty" yaml:"signal_id"`
}

// Signal converts a segment with no catalog counterpart into a
// platform-sourced signal.
func (s Segment) Signal(platform string) domain.Signal {
	signalID := platform + "_" + s.PlatformSegmentID
	visibility := domain.AccessPublic
	scope := domain.ScopePlatformWide
	if s.Account != "" {
		signalID = platform + "_" + s.Account + "_" + s.PlatformSegmentID
		visibility = domain.AccessPersonalized
		scope = domain.ScopeAccountSpecific
	}
	signalType := s.Type
	if signalType == "" {
		signalType = domain.SignalMarketplace
	}
	var pricing domain.Pricing
	if s.CPM != nil {
		pricing = domain.Pricing{CPM: s.CPM, Currency: s.Currency}
	}
	return domain.Signal{
		ID:          signalID,
		Name:        s.Name,
		Description: s.Description,
		Provider:    s.Provider,
		Type:        signalType,
		Visibility:  visibility,
		Coverage:    s.Coverage,
		Pricing:     pricing,
		Deployments: []domain.Deployment{{
			Platform:          platform,
			Account:           s.Account,
			Scope:             scope,
			IsLive:            s.IsLive,
			PlatformSegmentID: s.PlatformSegmentID,
		}},
		Source: platform,
	}
}

// ActivationRequest asks a platform to provision a signal.
type ActivationRequest struct {
	SignalID    string
	SignalName  string
	Description string
	Account     string
	PrincipalID string
	Origin      domain.OriginKind
	// SourceSegmentID is the platform's own id for platform-sourced signals.
	SourceSegmentID string
}

// Ticket is the platform's handle for an activation in progress.
type Ticket struct {
	ID                string
	PlatformSegmentID string
}

// RemoteState is the state a platform reports for a ticket.
type RemoteState string

const (
	RemoteActivating RemoteState = "activating"
	RemoteDeployed   RemoteState = "deployed"
	RemoteFailed     RemoteState = "failed"
	RemoteUnknown    RemoteState = "unknown"
)

// StatusReport is a platform's answer to a status probe.
type StatusReport struct {
	State             RemoteState
	PlatformSegmentID string
	Message           string
}

// Adapter is the uniform contract for one decisioning platform.
type Adapter interface {
	Name() string
	Authenticate(ctx context.Context) error
	ListSegments(ctx context.Context, scope Scope) ([]Segment, error)
	Activate(ctx context.Context, req ActivationRequest) (Ticket, error)
	CheckStatus(ctx context.Context, ticketID string) (StatusReport, error)
}

// SegmentID is the decisioning platform segment id assigned to an
// activation: platform, signal and, when present, account.
func SegmentID(platform, signalID, account string) string {
	parts := []string{platform, signalID}
	if account != "" {
		parts = append(parts, account)
	}
	return strings.Join(parts, "_")
}

// ErrorKind classifies why a platform contribution is unavailable.
type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindTimeout        ErrorKind = "timeout"
	KindCircuitOpen    ErrorKind = "circuit_open"
	KindUpstream       ErrorKind = "upstream"
)

// ErrAuthentication marks credential and token failures.
var ErrAuthentication = errors.New("platform authentication failed")

func authError(platform string, err error) error {
	return fmt.Errorf("%s: %w: %w", platform, ErrAuthentication, err)
}

// Classify maps an adapter error onto an ErrorKind.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, circuitbreaker.ErrOpen):
		return KindCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindUpstream
}
