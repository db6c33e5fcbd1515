// Package domain defines the value types shared by the signals components.
package domain

import (
	"fmt"
	"strings"
)

// AccessLevel is both a signal's visibility scope and a principal's access.
type AccessLevel string

const (
	AccessPublic       AccessLevel = "public"
	AccessPersonalized AccessLevel = "personalized"
	AccessPrivate      AccessLevel = "private"
)

// ParseAccessLevel normalizes a textual access level. Empty input is public.
func ParseAccessLevel(value string) (AccessLevel, error) {
	switch AccessLevel(strings.ToLower(strings.TrimSpace(value))) {
	case "", AccessPublic:
		return AccessPublic, nil
	case AccessPersonalized:
		return AccessPersonalized, nil
	case AccessPrivate:
		return AccessPrivate, nil
	default:
		return "", fmt.Errorf("unknown access level %q", value)
	}
}

// Specificity orders visibility scopes from narrowest (0) to broadest.
func (a AccessLevel) Specificity() int {
	switch a {
	case AccessPrivate:
		return 0
	case AccessPersonalized:
		return 1
	default:
		return 2
	}
}

// SignalType classifies what a signal targets.
type SignalType string

const (
	SignalAudience      SignalType = "audience"
	SignalBidding       SignalType = "bidding"
	SignalContextual    SignalType = "contextual"
	SignalGeographical  SignalType = "geographical"
	SignalTemporal      SignalType = "temporal"
	SignalEnvironmental SignalType = "environmental"
	SignalMarketplace   SignalType = "marketplace"
	SignalPrivate       SignalType = "private"
)

// SourceCatalog marks signals loaded from the catalog collaborator. Signals
// listed by a platform adapter carry the platform name instead.
const SourceCatalog = "catalog"

// DeploymentScope tells whether a deployment covers a whole platform or one account.
type DeploymentScope string

const (
	ScopePlatformWide    DeploymentScope = "platform-wide"
	ScopeAccountSpecific DeploymentScope = "account-specific"
)

// Deployment describes a signal's availability on one decisioning platform.
type Deployment struct {
	Platform          string          `json:"platform" yaml:"platform"`
	Account           string          `json:"account,omitempty" yaml:"account"`
	Scope             DeploymentScope `json:"scope" yaml:"scope"`
	IsLive            bool            `json:"is_live" yaml:"is_live"`
	PlatformSegmentID string          `json:"decisioning_platform_segment_id,omitempty" yaml:"platform_segment_id"`
}

// Pricing is the price of a signal. Nil fields are unknown, never estimated.
type Pricing struct {
	CPM                    *float64 `json:"cpm" yaml:"cpm"`
	RevenueSharePercentage *float64 `json:"revenue_share_percentage" yaml:"revenue_share_percentage"`
	Currency               string   `json:"currency,omitempty" yaml:"currency"`
}

// Signal is an immutable catalog entry.
type Signal struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description" yaml:"description"`
	Provider    string       `json:"provider" yaml:"provider"`
	Type        SignalType   `json:"signal_type" yaml:"signal_type"`
	Visibility  AccessLevel  `json:"visibility" yaml:"visibility"`
	Coverage    *float64     `json:"coverage_percentage" yaml:"coverage_percentage"`
	Pricing     Pricing      `json:"pricing" yaml:"pricing"`
	Deployments []Deployment `json:"deployments,omitempty" yaml:"deployments"`
	Source      string       `json:"source,omitempty" yaml:"-"`
}

// DeploymentOn returns the deployment for platform, preferring the one for
// account over a platform-wide entry.
func (s Signal) DeploymentOn(platform, account string) (Deployment, bool) {
	var fallback *Deployment
	for i := range s.Deployments {
		d := s.Deployments[i]
		if d.Platform != platform {
			continue
		}
		if account != "" && d.Account == account {
			return d, true
		}
		if d.Account == "" && fallback == nil {
			fallback = &s.Deployments[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Deployment{}, false
}

// Float returns a pointer to v, for building optional values.
func Float(v float64) *float64 {
	return &v
}

// FormatUnknown renders an optional number with format, or "Unknown".
func FormatUnknown(value *float64, format string) string {
	if value == nil {
		return "Unknown"
	}
	return fmt.Sprintf(format, *value)
}
