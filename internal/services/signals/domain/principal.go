package domain

// Principal is the identity a request acts for.
type Principal struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name,omitempty" yaml:"name"`
	AccessLevel AccessLevel `json:"access_level" yaml:"access_level"`
	// Accounts maps a platform name to the principal's account on it.
	Accounts map[string]string `json:"accounts,omitempty" yaml:"accounts"`
	// PricingOverrides maps a signal id to principal-specific pricing. Nil
	// fields in an override fall through to the platform default.
	PricingOverrides map[string]Pricing `json:"pricing_overrides,omitempty" yaml:"pricing_overrides"`
	// GrantedSignals lists personalized signals granted outside account mapping.
	GrantedSignals []string `json:"granted_signals,omitempty" yaml:"granted_signals"`
}

// Anonymous is the principal used when a request names none.
func Anonymous() Principal {
	return Principal{AccessLevel: AccessPublic}
}

// IsAnonymous reports whether p carries no identity.
func (p Principal) IsAnonymous() bool {
	return p.ID == ""
}

// AccountOn returns the principal's account on platform.
func (p Principal) AccountOn(platform string) string {
	if p.Accounts == nil {
		return ""
	}
	return p.Accounts[platform]
}

// PricingSource tells where resolved pricing came from.
type PricingSource string

const (
	PricingFromPrincipal PricingSource = "principal"
	PricingFromPlatform  PricingSource = "platform"
	PricingUnknown       PricingSource = "unknown"
)

// ResolvedPricing is a signal's pricing as seen by one principal.
type ResolvedPricing struct {
	Pricing
	Source PricingSource `json:"source"`
}

// Candidate is a visible signal with principal-resolved pricing.
type Candidate struct {
	Signal  Signal
	Pricing ResolvedPricing
}
