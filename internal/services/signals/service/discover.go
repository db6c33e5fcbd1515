package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	apperrors "github.com/louisbranch/signals.agent/internal/platform/errors"
	"github.com/louisbranch/signals.agent/internal/platform/requestctx"
	"github.com/louisbranch/signals.agent/internal/services/signals/catalog"
	"github.com/louisbranch/signals.agent/internal/services/signals/contexts"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
	"github.com/louisbranch/signals.agent/internal/services/signals/platform"
	"github.com/louisbranch/signals.agent/internal/services/signals/ranking"
)

const (
	clarifyNoMatch = "No matching signals found. Try broadening your search terms or checking available platforms."
	clarifyVague   = "Consider being more specific about your target audience characteristics, such as demographics, interests, or behaviors."
)

// DiscoveryResult is the outcome of a discovery.
type DiscoveryResult struct {
	Message             string                 `json:"message"`
	ContextID           string                 `json:"context_id"`
	Signals             []SignalView           `json:"signals"`
	Proposals           []domain.Proposal      `json:"custom_segment_proposals"`
	ClarificationNeeded string                 `json:"clarification_needed,omitempty"`
	RankingMethod       ranking.Method         `json:"ranking_method"`
	FallbackReason      ranking.FallbackReason `json:"fallback_reason,omitempty"`
	Platforms           []PlatformView         `json:"platforms"`
}

// Discover ranks the signals visible to the principal for a query, persists
// the result as a discovery context and returns it.
func (s *Service) Discover(ctx context.Context, req DiscoverRequest) (DiscoveryResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return DiscoveryResult{}, apperrors.New(apperrors.CodeValidation, "signal_spec is required")
	}
	maxResults, err := ranking.ResolveMaxResults(req.MaxResults)
	if err != nil {
		return DiscoveryResult{}, err
	}
	mode, err := ranking.ParseMode(req.Ranking)
	if err != nil {
		return DiscoveryResult{}, err
	}
	if err := req.Filters.Validate(); err != nil {
		return DiscoveryResult{}, err
	}

	principal := s.catalog.Principal(requestctx.ResolvePrincipalID(ctx, req.PrincipalID))
	targets, err := s.targets(principal, req.Platforms)
	if err != nil {
		return DiscoveryResult{}, err
	}
	if err := s.platforms.Validate(targets); err != nil {
		return DiscoveryResult{}, err
	}
	var deliveries deliveryFilter
	if len(req.Platforms) > 0 {
		deliveries = newDeliveryFilter(targets)
	}
	parentID := strings.TrimSpace(req.ParentContextID)
	if parentID != "" {
		if _, err := s.contexts.GetFor(ctx, parentID, principal.ID); err != nil {
			return DiscoveryResult{}, err
		}
	}

	contributions := s.platforms.ListAll(ctx, principal.ID, targets)
	candidates := mergeSegments(principal, req.Filters, s.catalog.Visible(principal, req.Filters), contributions)

	ranked := s.ranker.Rank(ctx, ranking.Request{
		Query:      query,
		Candidates: candidates,
		MaxResults: maxResults,
		Mode:       mode,
	})

	payload := domain.ContextPayload{
		Query:         query,
		RankingMethod: string(ranked.Method),
		Results:       make([]domain.ResultRef, 0, len(ranked.Items)),
		Proposals:     ranked.Proposals,
		Platforms:     make([]string, 0, len(targets)),
	}
	for _, item := range ranked.Items {
		signal := item.Candidate.Signal
		payload.Results = append(payload.Results, domain.ResultRef{
			SignalID:  signal.ID,
			Score:     item.Score,
			Rationale: item.Rationale,
		})
		if signal.Source != domain.SourceCatalog {
			payload.PlatformItems = append(payload.PlatformItems, signal)
		}
	}
	for _, target := range targets {
		payload.Platforms = append(payload.Platforms, target.Platform)
	}

	record, err := s.contexts.Create(ctx, contexts.Draft{
		Kind:        domain.ContextDiscovery,
		PrincipalID: principal.ID,
		ParentID:    parentID,
		Payload:     payload,
	})
	if err != nil {
		return DiscoveryResult{}, err
	}

	result := DiscoveryResult{
		ContextID:      record.ID,
		Signals:        make([]SignalView, 0, len(ranked.Items)),
		Proposals:      record.Payload.Proposals,
		RankingMethod:  ranked.Method,
		FallbackReason: ranked.Fallback,
		Platforms:      make([]PlatformView, 0, len(contributions)),
	}
	if result.Proposals == nil {
		result.Proposals = []domain.Proposal{}
	}
	for _, item := range ranked.Items {
		result.Signals = append(result.Signals, newSignalView(item, deliveries))
	}
	for _, contribution := range contributions {
		result.Platforms = append(result.Platforms, newPlatformView(contribution))
	}
	result.Message = discoveryMessage(query, result)
	switch {
	case len(result.Signals) == 0 && len(result.Proposals) == 0:
		result.ClarificationNeeded = clarifyNoMatch
	case len(ranking.Tokenize(query)) < 2:
		result.ClarificationNeeded = clarifyVague
	}

	s.metrics.Discovery(string(ranked.Method))
	return result, nil
}

// targets resolves delivery targets. Accounts always come from the
// principal; naming an account the principal does not hold is an
// authorization error.
func (s *Service) targets(principal domain.Principal, requested []platform.Target) ([]platform.Target, error) {
	if len(requested) == 0 {
		names := s.platforms.Names()
		requested = make([]platform.Target, 0, len(names))
		for _, name := range names {
			requested = append(requested, platform.Target{Platform: name})
		}
	}
	targets := make([]platform.Target, 0, len(requested))
	seen := make(map[platform.Target]struct{}, len(requested))
	for _, target := range requested {
		target.Platform = strings.TrimSpace(target.Platform)
		account, err := accountFor(principal, target.Platform, target.Account)
		if err != nil {
			return nil, err
		}
		target.Account = account
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		targets = append(targets, target)
	}
	return targets, nil
}

// accountFor returns the principal's account on platformName.
func accountFor(principal domain.Principal, platformName, requested string) (string, error) {
	owned := principal.AccountOn(platformName)
	requested = strings.TrimSpace(requested)
	if requested != "" && requested != owned {
		return "", apperrors.WithMetadata(apperrors.CodeAuthorization,
			fmt.Sprintf("principal %q holds no account %q on %s", principal.ID, requested, platformName),
			map[string]string{"resource": "account"})
	}
	return owned, nil
}

// ownsSegment reports whether principal may see segment. Platform-wide
// segments are open to everyone; account segments only to the account holder.
func ownsSegment(principal domain.Principal, platformName string, segment platform.Segment) bool {
	return segment.Account == "" || principal.AccountOn(platformName) == segment.Account
}

// mergeSegments marks catalog deployments live as platforms report them and
// adds segments without a catalog counterpart as platform-sourced
// candidates. Account segments the principal does not hold are skipped. The
// result is ordered by id.
func mergeSegments(principal domain.Principal, filters catalog.Filters, candidates []domain.Candidate, contributions []platform.Contribution) []domain.Candidate {
	byID := make(map[string]int, len(candidates))
	for i, candidate := range candidates {
		byID[candidate.Signal.ID] = i
	}
	for _, contribution := range contributions {
		if !contribution.Available {
			continue
		}
		for _, segment := range contribution.Segments {
			if !ownsSegment(principal, contribution.Platform, segment) {
				continue
			}
			if segment.SignalID != "" {
				if i, ok := byID[segment.SignalID]; ok {
					candidates[i].Signal = withLiveDeployment(candidates[i].Signal, contribution.Platform, segment)
				}
				continue
			}
			signal := segment.Signal(contribution.Platform)
			if _, ok := byID[signal.ID]; ok || !catalog.CanSee(principal, signal) {
				continue
			}
			candidate := catalog.Candidate(principal, signal)
			if !filters.Match(candidate) {
				continue
			}
			byID[signal.ID] = len(candidates)
			candidates = append(candidates, candidate)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Signal.ID < candidates[j].Signal.ID
	})
	return candidates
}

// withLiveDeployment returns signal with the deployment on platform updated
// from segment. The catalog's deployment slice is never written.
func withLiveDeployment(signal domain.Signal, platformName string, segment platform.Segment) domain.Signal {
	deployments := slices.Clone(signal.Deployments)
	for i, deployment := range deployments {
		if deployment.Platform != platformName || deployment.Account != segment.Account {
			continue
		}
		deployments[i].IsLive = segment.IsLive
		if deployments[i].PlatformSegmentID == "" {
			deployments[i].PlatformSegmentID = segment.PlatformSegmentID
		}
		signal.Deployments = deployments
		return signal
	}
	scope := domain.ScopePlatformWide
	if segment.Account != "" {
		scope = domain.ScopeAccountSpecific
	}
	signal.Deployments = append(deployments, domain.Deployment{
		Platform:          platformName,
		Account:           segment.Account,
		Scope:             scope,
		IsLive:            segment.IsLive,
		PlatformSegmentID: segment.PlatformSegmentID,
	})
	return signal
}

func discoveryMessage(query string, result DiscoveryResult) string {
	var parts []string
	if len(result.Signals) == 0 && len(result.Proposals) == 0 {
		parts = append(parts, fmt.Sprintf("No signals found matching %q. Try broadening your search or checking platform availability.", query))
	}
	if len(result.Signals) > 0 {
		parts = append(parts, fmt.Sprintf("Found %s for %q with %s coverage, %s CPM, %s.",
			plural(len(result.Signals), "signal"), query,
			coverageRange(result.Signals), cpmRange(result.Signals), livePlatforms(result.Signals)))
	}
	if len(result.Proposals) > 0 {
		parts = append(parts, fmt.Sprintf("Additionally, %s can be created to better match your specific targeting needs.",
			plural(len(result.Proposals), "custom segment")))
	}
	var unavailable []string
	for _, view := range result.Platforms {
		if !view.Available {
			unavailable = append(unavailable, fmt.Sprintf("%s (%s)", view.Platform, view.ErrorKind))
		}
	}
	if len(unavailable) > 0 {
		parts = append(parts, "Unavailable platforms: "+strings.Join(unavailable, ", ")+".")
	}
	if result.FallbackReason != ranking.FallbackNone {
		parts = append(parts, fmt.Sprintf("AI ranking unavailable (%s); results use deterministic ranking.", result.FallbackReason))
	}
	return strings.Join(parts, " ")
}

func coverageRange(signals []SignalView) string {
	low, high, ok := bounds(signals, func(view SignalView) *float64 { return view.CoveragePercentage })
	switch {
	case !ok:
		return "unknown"
	case low == high:
		return fmt.Sprintf("%.1f%%", low)
	default:
		return fmt.Sprintf("%.1f%%-%.1f%%", low, high)
	}
}

func cpmRange(signals []SignalView) string {
	low, high, ok := bounds(signals, func(view SignalView) *float64 { return view.Pricing.CPM })
	switch {
	case !ok:
		return "unknown"
	case low == high:
		return fmt.Sprintf("$%.2f", low)
	default:
		return fmt.Sprintf("$%.2f-$%.2f", low, high)
	}
}

func bounds(signals []SignalView, field func(SignalView) *float64) (float64, float64, bool) {
	var low, high float64
	found := false
	for _, view := range signals {
		value := field(view)
		if value == nil {
			continue
		}
		if !found || *value < low {
			low = *value
		}
		if !found || *value > high {
			high = *value
		}
		found = true
	}
	return low, high, found
}

func livePlatforms(signals []SignalView) string {
	live := map[string]struct{}{}
	for _, view := range signals {
		for _, deployment := range view.Deployments {
			if deployment.IsLive {
				live[deployment.Platform] = struct{}{}
			}
		}
	}
	if len(live) == 0 {
		return "requiring activation"
	}
	return "available on " + plural(len(live), "platform")
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
