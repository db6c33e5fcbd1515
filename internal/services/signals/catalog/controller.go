// Package catalog resolves which signals a principal may see and at what
// price.
package catalog

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	apperrors "github.com/louisbranch/signals.agent/internal/platform/errors"
	"github.com/louisbranch/signals.agent/internal/services/signals/domain"
)

const defaultCurrency = "USD"

// Controller answers visibility and pricing questions over an immutable
// snapshot. It is safe for concurrent use.
type Controller struct {
	signals    []domain.Signal
	byID       map[string]int
	byName     map[string]struct{}
	principals map[string]domain.Principal
}

// Load reads the source once and validates it.
func Load(ctx context.Context, source Source) (*Controller, error) {
	if source == nil {
		return nil, fmt.Errorf("catalog source is required")
	}
	snapshot, err := source.Load(ctx)
	if err != nil {
		return nil, err
	}
	return New(snapshot)
}

// New builds a controller from snapshot.
func New(snapshot Snapshot) (*Controller, error) {
	c := &Controller{
		signals:    make([]domain.Signal, 0, len(snapshot.Signals)),
		byID:       make(map[string]int, len(snapshot.Signals)),
		byName:     make(map[string]struct{}, len(snapshot.Signals)),
		principals: make(map[string]domain.Principal, len(snapshot.Principals)),
	}
	for _, signal := range snapshot.Signals {
		signal.ID = strings.TrimSpace(signal.ID)
		if signal.ID == "" {
			return nil, fmt.Errorf("catalog signal without id")
		}
		if _, ok := c.byID[signal.ID]; ok {
			return nil, fmt.Errorf("duplicate catalog signal %q", signal.ID)
		}
		if strings.TrimSpace(signal.Name) == "" {
			return nil, fmt.Errorf("catalog signal %q has no name", signal.ID)
		}
		visibility, err := domain.ParseAccessLevel(string(signal.Visibility))
		if err != nil {
			return nil, fmt.Errorf("catalog signal %q: %w", signal.ID, err)
		}
		signal.Visibility = visibility
		if signal.Type == "" {
			signal.Type = domain.SignalAudience
		}
		signal.Source = domain.SourceCatalog
		c.byID[signal.ID] = len(c.signals)
		c.byName[normalizeName(signal.Name)] = struct{}{}
		c.signals = append(c.signals, signal)
	}
	for _, principal := range snapshot.Principals {
		principal.ID = strings.TrimSpace(principal.ID)
		if principal.ID == "" {
			return nil, fmt.Errorf("catalog principal without id")
		}
		if _, ok := c.principals[principal.ID]; ok {
			return nil, fmt.Errorf("duplicate catalog principal %q", principal.ID)
		}
		level, err := domain.ParseAccessLevel(string(principal.AccessLevel))
		if err != nil {
			return nil, fmt.Errorf("catalog principal %q: %w", principal.ID, err)
		}
		principal.AccessLevel = level
		c.principals[principal.ID] = principal
	}
	return c, nil
}

// Principal returns the principal with id. Empty and unknown ids resolve to
// the anonymous public principal.
func (c *Controller) Principal(id string) domain.Principal {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Anonymous()
	}
	principal, ok := c.principals[id]
	if !ok {
		return domain.Anonymous()
	}
	return principal
}

// Signals returns every catalog signal regardless of visibility.
func (c *Controller) Signals() []domain.Signal {
	return slices.Clone(c.signals)
}

// HasName reports whether a catalog signal already uses name, ignoring case
// and surrounding whitespace.
func (c *Controller) HasName(name string) bool {
	_, ok := c.byName[normalizeName(name)]
	return ok
}

// CanSee reports whether principal may see signal.
func CanSee(principal domain.Principal, signal domain.Signal) bool {
	switch signal.Visibility {
	case domain.AccessPublic, "":
		return true
	}
	switch principal.AccessLevel {
	case domain.AccessPrivate:
		return true
	case domain.AccessPersonalized:
		return signal.Visibility == domain.AccessPersonalized && tiedTo(principal, signal)
	default:
		return false
	}
}

// tiedTo reports whether a personalized signal is linked to the principal
// through a grant, a pricing agreement or one of its platform accounts.
func tiedTo(principal domain.Principal, signal domain.Signal) bool {
	if slices.Contains(principal.GrantedSignals, signal.ID) {
		return true
	}
	if _, ok := principal.PricingOverrides[signal.ID]; ok {
		return true
	}
	for _, deployment := range signal.Deployments {
		if deployment.Account != "" && principal.AccountOn(deployment.Platform) == deployment.Account {
			return true
		}
	}
	return false
}

// ResolvePricing applies the principal override, then the platform default.
// Fields known by neither stay nil.
func ResolvePricing(principal domain.Principal, signal domain.Signal) domain.ResolvedPricing {
	base := signal.Pricing
	resolved := domain.ResolvedPricing{Pricing: base, Source: domain.PricingFromPlatform}
	if override, ok := principal.PricingOverrides[signal.ID]; ok {
		overridden := false
		if override.CPM != nil {
			resolved.CPM = override.CPM
			overridden = true
		}
		if override.RevenueSharePercentage != nil {
			resolved.RevenueSharePercentage = override.RevenueSharePercentage
			overridden = true
		}
		if override.Currency != "" {
			resolved.Currency = override.Currency
		}
		if overridden {
			resolved.Source = domain.PricingFromPrincipal
		}
	}
	if resolved.CPM == nil && resolved.RevenueSharePercentage == nil {
		resolved.Source = domain.PricingUnknown
		resolved.Currency = ""
		return resolved
	}
	if resolved.Currency == "" {
		resolved.Currency = defaultCurrency
	}
	return resolved
}

// Candidate pairs signal with the pricing principal sees.
func Candidate(principal domain.Principal, signal domain.Signal) domain.Candidate {
	return domain.Candidate{Signal: signal, Pricing: ResolvePricing(principal, signal)}
}

// Visible returns the catalog candidates principal may see that pass
// filters, ordered by id.
func (c *Controller) Visible(principal domain.Principal, filters Filters) []domain.Candidate {
	candidates := make([]domain.Candidate, 0, len(c.signals))
	for _, signal := range c.signals {
		if !CanSee(principal, signal) {
			continue
		}
		candidate := Candidate(principal, signal)
		if !filters.Match(candidate) {
			continue
		}
		candidates = append(candidates, candidate)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Signal.ID < candidates[j].Signal.ID
	})
	return candidates
}

// Lookup returns the catalog signal with id as principal sees it. Signals
// hidden from principal yield an authorization error.
func (c *Controller) Lookup(principal domain.Principal, id string) (domain.Candidate, error) {
	index, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return domain.Candidate{}, apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("signal %q not found", id), map[string]string{"resource": "signal"})
	}
	signal := c.signals[index]
	if !CanSee(principal, signal) {
		return domain.Candidate{}, apperrors.New(apperrors.CodeAuthorization,
			fmt.Sprintf("principal %q cannot see signal %q", principal.ID, id))
	}
	return Candidate(principal, signal), nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
