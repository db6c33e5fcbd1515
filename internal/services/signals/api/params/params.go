// Package params holds the request parameters shared by both protocol front
// ends and their conversion into service operations.
package params

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/signals.agent/internal/platform/errors"
	"github.com/louisbranch/signals.agent/internal/services/signals/catalog"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
	"github.com/louisbranch/signals.agent/internal/services/signals/platform"
	"github.com/louisbranch/signals.agent/internal/services/signals/service"
)

// Discovery is a discovery request.
type Discovery struct {
	SignalSpec  string     `json:"signal_spec" jsonschema:"natural-language description of the audience or targeting signal"`
	DeliverTo   *DeliverTo `json:"deliver_to,omitempty" jsonschema:"platforms and countries the signals must be delivered to"`
	Filters     *Filters   `json:"filters,omitempty" jsonschema:"optional catalog filters"`
	MaxResults  *int       `json:"max_results,omitempty" jsonschema:"maximum number of signals to return (default 10, at most 100)"`
	PrincipalID string     `json:"principal_id,omitempty" jsonschema:"principal requesting the signals; ignored when the caller is authenticated"`
	ContextID   string     `json:"context_id,omitempty" jsonschema:"earlier discovery context this query follows up on"`
	Ranking     string     `json:"ranking,omitempty" jsonschema:"ranking mode: auto (default) or deterministic"`
}

// DeliverTo lists delivery targets.
type DeliverTo struct {
	Platforms any      `json:"platforms,omitempty" jsonschema:"the string all, or a list of platform names or objects with platform and optional account"`
	Countries []string `json:"countries,omitempty" jsonschema:"ISO country codes"`
}

// Filters narrows discovery results.
type Filters struct {
	CatalogTypes          []string `json:"catalog_types,omitempty" jsonschema:"signal types to keep (audience, bidding, contextual, geographical, temporal, environmental, marketplace, private)"`
	DataProviders         []string `json:"data_providers,omitempty" jsonschema:"data providers to keep"`
	MaxCPM                *float64 `json:"max_cpm,omitempty" jsonschema:"maximum CPM in the signal currency"`
	MinCoveragePercentage *float64 `json:"min_coverage_percentage,omitempty" jsonschema:"minimum coverage percentage"`
	IncludeUnknown        bool     `json:"include_unknown,omitempty" jsonschema:"keep signals whose price or coverage is unknown"`
}

// Request converts d into a discover operation. Countries are accepted for
// compatibility and do not narrow results.
func (d Discovery) Request() (service.DiscoverRequest, error) {
	req := service.DiscoverRequest{
		Query:           d.SignalSpec,
		PrincipalID:     d.PrincipalID,
		MaxResults:      d.MaxResults,
		Ranking:         d.Ranking,
		ParentContextID: d.ContextID,
	}
	if d.DeliverTo != nil {
		targets, err := ParseTargets(d.DeliverTo.Platforms)
		if err != nil {
			return service.DiscoverRequest{}, err
		}
		req.Platforms = targets
	}
	if f := d.Filters; f != nil {
		req.Filters = catalog.Filters{
			MaxCPM:         f.MaxCPM,
			MinCoverage:    f.MinCoveragePercentage,
			DataProviders:  f.DataProviders,
			IncludeUnknown: f.IncludeUnknown,
		}
		for _, t := range f.CatalogTypes {
			req.Filters.CatalogTypes = append(req.Filters.CatalogTypes, domain.SignalType(strings.ToLower(strings.TrimSpace(t))))
		}
	}
	return req, nil
}

// Activation is an activation request.
type Activation struct {
	SegmentID   string `json:"signals_agent_segment_id" jsonschema:"signal or custom proposal id returned by discovery"`
	Platform    string `json:"platform" jsonschema:"decisioning platform to activate on"`
	Account     string `json:"account,omitempty" jsonschema:"platform account (defaults to the principal's account)"`
	PrincipalID string `json:"principal_id,omitempty" jsonschema:"principal requesting the activation; ignored when the caller is authenticated"`
	ContextID   string `json:"context_id,omitempty" jsonschema:"discovery context the signal was returned in"`
}

// Request converts a into an activate operation.
func (a Activation) Request() service.ActivateRequest {
	return service.ActivateRequest{
		SignalID:    a.SegmentID,
		Platform:    a.Platform,
		Account:     a.Account,
		PrincipalID: a.PrincipalID,
		ContextID:   a.ContextID,
	}
}

// Status is an activation status read.
type Status struct {
	ActivationID string `json:"activation_id" jsonschema:"activation id returned by an activation"`
	PrincipalID  string `json:"principal_id,omitempty" jsonschema:"principal that owns the activation; ignored when the caller is authenticated"`
}

// Request converts s into a status operation.
func (s Status) Request() service.StatusRequest {
	return service.StatusRequest{ActivationID: s.ActivationID, PrincipalID: s.PrincipalID}
}

// ParseTargets accepts "all", a list of platform names or a list of
// {platform, account} objects. Nil and "all" select every platform.
func ParseTargets(value any) ([]platform.Target, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.EqualFold(strings.TrimSpace(v), "all") {
			return nil, nil
		}
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("deliver_to.platforms must be %q or a list, got %q", "all", v))
	case []any:
		targets := make([]platform.Target, 0, len(v))
		for i, item := range v {
			target, err := parseTarget(item)
			if err != nil {
				return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("deliver_to.platforms[%d]: %v", i, err))
			}
			targets = append(targets, target)
		}
		return targets, nil
	default:
		return nil, apperrors.New(apperrors.CodeValidation, "deliver_to.platforms must be \"all\" or a list")
	}
}

func parseTarget(item any) (platform.Target, error) {
	if name, ok := item.(string); ok {
		return platform.Target{Platform: name}, nil
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return platform.Target{}, err
	}
	var target struct {
		Platform string `json:"platform"`
		Account  string `json:"account"`
	}
	if err := json.Unmarshal(raw, &target); err != nil {
		return platform.Target{}, fmt.Errorf("expected a platform name or {platform, account}")
	}
	if strings.TrimSpace(target.Platform) == "" {
		return platform.Target{}, fmt.Errorf("platform is required")
	}
	return platform.Target{Platform: target.Platform, Account: target.Account}, nil
}

// NormalizeDiscovery replaces nil lists with empty ones so every list in the
// payload encodes as an array.
func NormalizeDiscovery(result service.DiscoveryResult) service.DiscoveryResult {
	if result.Signals == nil {
		result.Signals = []service.SignalView{}
	}
	if result.Proposals == nil {
		result.Proposals = []domain.Proposal{}
	}
	if result.Platforms == nil {
		result.Platforms = []service.PlatformView{}
	}
	for i := range result.Signals {
		if result.Signals[i].Deployments == nil {
			result.Signals[i].Deployments = []service.DeploymentView{}
		}
	}
	return result
}
