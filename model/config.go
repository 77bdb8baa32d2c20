package model

import (
	"fmt"
)

// RegistryConfig is the serializable form of the registry, embedded in
// the application config under "models".
type RegistryConfig struct {
	Tiers     map[int]*TierConfig        `json:"tiers" yaml:"tiers"`
	Endpoints map[string]*EndpointConfig `json:"endpoints" yaml:"endpoints"`
	Defaults  *DefaultsConfig            `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

// NewRegistryFromConfig builds a Registry from configuration,
// validating tier numbers and endpoint references.
func NewRegistryFromConfig(cfg *RegistryConfig) (*Registry, error) {
	tiers := make(map[Tier]*TierConfig, len(cfg.Tiers))
	for n, tc := range cfg.Tiers {
		tier, err := ParseTier(n)
		if err != nil {
			return nil, fmt.Errorf("models.tiers: %w", err)
		}
		tiers[tier] = tc
	}

	for n, tc := range cfg.Tiers {
		for _, name := range append(append([]string{}, tc.Preferred...), tc.Fallback...) {
			if _, ok := cfg.Endpoints[name]; !ok {
				return nil, fmt.Errorf("models.tiers[%d] references unknown endpoint %q", n, name)
			}
		}
	}

	r := NewRegistry(tiers, cfg.Endpoints)
	if cfg.Defaults != nil {
		r.defaults = cfg.Defaults
	}
	return r, nil
}

// ToConfig converts a Registry to its serializable form.
func (r *Registry) ToConfig() *RegistryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tiers := make(map[int]*TierConfig, len(r.tiers))
	for tier, cfg := range r.tiers {
		tiers[int(tier)] = cfg
	}

	return &RegistryConfig{
		Tiers:     tiers,
		Endpoints: r.endpoints,
		Defaults:  r.defaults,
	}
}
