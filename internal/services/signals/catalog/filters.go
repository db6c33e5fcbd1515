package catalog

import (
	"slices"
	"strings"

	apperrors "github.com/louisbranch/signals.agent/internal/platform/errors"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
)

// Filters narrow a candidate set. A numeric filter only matches candidates
// with a known value on that dimension unless IncludeUnknown is set.
type Filters struct {
	MaxCPM         *float64
	MinCoverage    *float64
	CatalogTypes   []domain.SignalType
	DataProviders  []string
	IncludeUnknown bool
}

// Validate rejects negative bounds and unknown signal types.
func (f Filters) Validate() error {
	if f.MaxCPM != nil && *f.MaxCPM < 0 {
		return apperrors.New(apperrors.CodeValidation, "max_cpm must not be negative")
	}
	if f.MinCoverage != nil && (*f.MinCoverage < 0 || *f.MinCoverage > 100) {
		return apperrors.New(apperrors.CodeValidation, "min_coverage_percentage must be between 0 and 100")
	}
	for _, signalType := range f.CatalogTypes {
		if !knownType(signalType) {
			return apperrors.New(apperrors.CodeValidation, "unknown catalog type "+string(signalType))
		}
	}
	return nil
}

// Match reports whether candidate passes every filter.
func (f Filters) Match(candidate domain.Candidate) bool {
	if f.MaxCPM != nil {
		cpm := candidate.Pricing.CPM
		if cpm == nil {
			if !f.IncludeUnknown {
				return false
			}
		} else if *cpm > *f.MaxCPM {
			return false
		}
	}
	if f.MinCoverage != nil {
		coverage := candidate.Signal.Coverage
		if coverage == nil {
			if !f.IncludeUnknown {
				return false
			}
		} else if *coverage < *f.MinCoverage {
			return false
		}
	}
	if len(f.CatalogTypes) > 0 && !slices.Contains(f.CatalogTypes, candidate.Signal.Type) {
		return false
	}
	if len(f.DataProviders) > 0 {
		matched := false
		for _, provider := range f.DataProviders {
			if strings.EqualFold(strings.TrimSpace(provider), candidate.Signal.Provider) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func knownType(signalType domain.SignalType) bool {
	switch signalType {
	case domain.SignalAudience, domain.SignalBidding, domain.SignalContextual,
		domain.SignalGeographical, domain.SignalTemporal, domain.SignalEnvironmental,
		domain.SignalMarketplace, domain.SignalPrivate:
		return true
	default:
		return false
	}
}
