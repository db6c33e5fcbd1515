package service

import (
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
	"github.com/louisbranch/signals.agent/internal/services/signals/platform"
	"github.com/louisbranch/signals.agent/internal/services/signals/ranking"
)

// SignalView is a ranked signal as returned to callers. Unknown numbers are
// null and their display fields read "Unknown".
type SignalView struct {
	SegmentID          string           `json:"signals_agent_segment_id"`
	Name               string           `json:"name"`
	Description        string           `json:"description"`
	SignalType         string           `json:"signal_type"`
	DataProvider       string           `json:"data_provider"`
	CoveragePercentage *float64         `json:"coverage_percentage"`
	CoverageDisplay    string           `json:"coverage_display"`
	Pricing            PricingView      `json:"pricing"`
	Deployments        []DeploymentView `json:"deployments"`
	Source             string           `json:"source"`
	Score              int              `json:"score"`
	Rationale          string           `json:"rationale,omitempty"`
}

// PricingView is principal-resolved pricing.
type PricingView struct {
	CPM                    *float64 `json:"cpm"`
	RevenueSharePercentage *float64 `json:"revenue_share_percentage"`
	Currency               string   `json:"currency,omitempty"`
	Source                 string   `json:"source"`
	CPMDisplay             string   `json:"cpm_display"`
	RevenueShareDisplay    string   `json:"revenue_share_display"`
}

// DeploymentView is a signal's availability on one platform.
type DeploymentView struct {
	Platform          string `json:"platform"`
	Account           string `json:"account,omitempty"`
	Scope             string `json:"scope"`
	IsLive            bool   `json:"is_live"`
	PlatformSegmentID string `json:"decisioning_platform_segment_id,omitempty"`
}

// PlatformView is one platform's contribution to a discovery.
type PlatformView struct {
	Platform  string `json:"platform"`
	Account   string `json:"account,omitempty"`
	Available bool   `json:"available"`
	ErrorKind string `json:"error_kind,omitempty"`
	Segments  int    `json:"segments"`
}

// deliveryFilter maps each requested platform to the principal's account on
// it. A nil filter keeps every deployment.
type deliveryFilter map[string]string

func newDeliveryFilter(targets []platform.Target) deliveryFilter {
	filter := make(deliveryFilter, len(targets))
	for _, target := range targets {
		filter[target.Platform] = target.Account
	}
	return filter
}

// keep reports whether deployment is on a requested platform and, for
// account deployments, on the requested account.
func (f deliveryFilter) keep(deployment domain.Deployment) bool {
	if f == nil {
		return true
	}
	account, ok := f[deployment.Platform]
	if !ok {
		return false
	}
	return deployment.Account == "" || account == "" || deployment.Account == account
}

func newSignalView(item ranking.Scored, deliveries deliveryFilter) SignalView {
	signal := item.Candidate.Signal
	pricing := item.Candidate.Pricing
	view := SignalView{
		SegmentID:          signal.ID,
		Name:               signal.Name,
		Description:        signal.Description,
		SignalType:         string(signal.Type),
		DataProvider:       signal.Provider,
		CoveragePercentage: signal.Coverage,
		CoverageDisplay:    domain.FormatUnknown(signal.Coverage, "%.1f%%"),
		Pricing: PricingView{
			CPM:                    pricing.CPM,
			RevenueSharePercentage: pricing.RevenueSharePercentage,
			Currency:               pricing.Currency,
			Source:                 string(pricing.Source),
			CPMDisplay:             domain.FormatUnknown(pricing.CPM, "$%.2f"),
			RevenueShareDisplay:    domain.FormatUnknown(pricing.RevenueSharePercentage, "%.1f%%"),
		},
		Deployments: make([]DeploymentView, 0, len(signal.Deployments)),
		Source:      signal.Source,
		Score:       item.Score,
		Rationale:   item.Rationale,
	}
	for _, deployment := range signal.Deployments {
		if !deliveries.keep(deployment) {
			continue
		}
		view.Deployments = append(view.Deployments, DeploymentView{
			Platform:          deployment.Platform,
			Account:           deployment.Account,
			Scope:             string(deployment.Scope),
			IsLive:            deployment.IsLive,
			PlatformSegmentID: deployment.PlatformSegmentID,
		})
	}
	return view
}

func newPlatformView(contribution platform.Contribution) PlatformView {
	return PlatformView{
		Platform:  contribution.Platform,
		Account:   contribution.Account,
		Available: contribution.Available,
		ErrorKind: string(contribution.ErrorKind),
		Segments:  len(contribution.Segments),
	}
}
