package domain

import "time"

// ContextKind distinguishes discovery and activation contexts.
type ContextKind string

const (
	ContextDiscovery  ContextKind = "discovery"
	ContextActivation ContextKind = "activation"
)

// ContextTTL is the fixed lifetime of a context record.
const ContextTTL = 7 * 24 * time.Hour

// ContextRecord is the cross-protocol record of a prior call.
type ContextRecord struct {
	ID          string
	Kind        ContextKind
	ParentID    string
	PrincipalID string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Payload     ContextPayload
}

// Expired reports whether the record is past its expiry at now.
func (r ContextRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// OwnedBy reports whether principalID may read the record. Records without
// an owner are public.
func (r ContextRecord) OwnedBy(principalID string) bool {
	return r.PrincipalID == "" || r.PrincipalID == principalID
}

// ContextPayload is the write-once body of a context record.
type ContextPayload struct {
	Query         string      `json:"query,omitempty"`
	RankingMethod string      `json:"ranking_method,omitempty"`
	Results       []ResultRef `json:"results,omitempty"`
	Proposals     []Proposal  `json:"proposals,omitempty"`
	PlatformItems []Signal    `json:"platform_signals,omitempty"`
	ActivationID  string      `json:"activation_id,omitempty"`
	Platforms     []string    `json:"platforms,omitempty"`
}

// ResultRef records one ranked result of a discovery.
type ResultRef struct {
	SignalID  string `json:"signal_id"`
	Score     int    `json:"score"`
	Rationale string `json:"rationale,omitempty"`
}

// Proposal finds the proposal with id in the payload.
func (p ContextPayload) Proposal(id string) (Proposal, bool) {
	for _, proposal := range p.Proposals {
		if proposal.ID == id {
			return proposal, true
		}
	}
	return Proposal{}, false
}

// PlatformSignal finds a platform-sourced signal recorded in the payload.
func (p ContextPayload) PlatformSignal(id string) (Signal, bool) {
	for _, signal := range p.PlatformItems {
		if signal.ID == id {
			return signal, true
		}
	}
	return Signal{}, false
}

// EstimationTag marks proposal figures as model estimates rather than
// unknown catalog values.
const EstimationTag = "estimated"

// Proposal is a synthesized, non-catalog signal suggested by AI ranking.
type Proposal struct {
	ID                          string   `json:"id"`
	ContextID                   string   `json:"context_id"`
	Name                        string   `json:"name"`
	Description                 string   `json:"description"`
	EstimatedCoveragePercentage *float64 `json:"estimated_coverage_percentage"`
	EstimatedCPM                *float64 `json:"estimated_cpm"`
	Estimation                  string   `json:"estimation"`
	Rationale                   string   `json:"rationale"`
}
