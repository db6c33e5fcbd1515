package ranking

import (
	"fmt"
	"strings"

	"github.com/louisbranch/signals.agent/internal/platform/id"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
)

const (
	maxProposals        = 5
	proposalSuffixBytes = 2
	proposalPrefix      = "custom_"
)

// IsProposalID reports whether value has the custom proposal id shape.
func IsProposalID(value string) bool {
	return strings.HasPrefix(value, proposalPrefix)
}

// ProposalGenerator turns collaborator suggestions into proposals that do
// not duplicate existing catalog entries.
type ProposalGenerator struct {
	// Exists reports whether the catalog already has a signal named name.
	Exists    func(name string) bool
	newSuffix func() (string, error)
}

// Generate returns at most five proposals. Suggestions without a name, or
// whose name matches a catalog entry or an earlier suggestion, are dropped.
// Ids are numbered in order and carry a random suffix; the context id is
// bound when the originating context is stored.
func (g ProposalGenerator) Generate(suggestions []AIProposal) ([]domain.Proposal, error) {
	newSuffix := g.newSuffix
	if newSuffix == nil {
		newSuffix = func() (string, error) { return id.NewHex(proposalSuffixBytes) }
	}
	proposals := make([]domain.Proposal, 0, min(len(suggestions), maxProposals))
	seen := make(map[string]struct{}, len(suggestions))
	for _, suggestion := range suggestions {
		if len(proposals) == maxProposals {
			break
		}
		name := strings.TrimSpace(suggestion.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(strings.Join(strings.Fields(name), " "))
		if _, ok := seen[key]; ok {
			continue
		}
		if g.Exists != nil && g.Exists(name) {
			continue
		}
		seen[key] = struct{}{}
		suffix, err := newSuffix()
		if err != nil {
			return nil, fmt.Errorf("generate proposal id: %w", err)
		}
		proposals = append(proposals, domain.Proposal{
			ID:                          fmt.Sprintf("%s%d_%s", proposalPrefix, len(proposals)+1, suffix),
			Name:                        name,
			Description:                 strings.TrimSpace(suggestion.Description),
			EstimatedCoveragePercentage: clampPercentage(suggestion.EstimatedCoveragePercentage),
			EstimatedCPM:                nonNegative(suggestion.EstimatedCPM),
			Estimation:                  domain.EstimationTag,
			Rationale:                   strings.TrimSpace(suggestion.Rationale),
		})
	}
	return proposals, nil
}

func clampPercentage(value *float64) *float64 {
	if value == nil {
		return nil
	}
	return domain.Float(max(0, min(100, *value)))
}

func nonNegative(value *float64) *float64 {
	if value == nil || *value < 0 {
		return nil
	}
	return domain.Float(*value)
}
