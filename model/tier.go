// Package model provides tier-based model selection for the command
// pipeline. Commands carry a subscription tier (1-3) and the registry
// resolves it to a concrete model endpoint with a fallback chain. The
// tier-to-model mapping is configuration: the only property the pipeline
// relies on is that model capability never decreases as tier increases.
package model

import "fmt"

// Tier is a subscription level gating model capability and feature
// access.
type Tier int

const (
	// TierLaunch is the entry tier.
	TierLaunch Tier = 1

	// TierScale adds store management and theme customization.
	TierScale Tier = 2

	// TierDominate adds store builds and custom integrations.
	TierDominate Tier = 3
)

// IsValid reports whether t is within the supported range.
func (t Tier) IsValid() bool {
	return t >= TierLaunch && t <= TierDominate
}

// String returns the marketing name for the tier.
func (t Tier) String() string {
	switch t {
	case TierLaunch:
		return "launch"
	case TierScale:
		return "scale"
	case TierDominate:
		return "dominate"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier validates an integer tier value.
func ParseTier(n int) (Tier, error) {
	t := Tier(n)
	if !t.IsValid() {
		return 0, fmt.Errorf("tier must be between %d and %d, got %d", TierLaunch, TierDominate, n)
	}
	return t, nil
}

// Tiers lists all tiers in ascending order.
func Tiers() []Tier {
	return []Tier{TierLaunch, TierScale, TierDominate}
}
