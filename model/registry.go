package model

import (
	"sync"
)

// Registry manages model selection by subscription tier. It maps tiers
// to preferred models with fallback chains and tracks endpoint health
// for circuit breaking.
type Registry struct {
	mu        sync.RWMutex
	tiers     map[Tier]*TierConfig
	endpoints map[string]*EndpointConfig
	defaults  *DefaultsConfig
	health    *healthState
}

// TierConfig defines model preferences and entitlements for a tier.
type TierConfig struct {
	// Name is the display name of the subscription plan.
	Name string `json:"name" yaml:"name"`

	// Preferred lists models in order of preference. The first
	// available model is used.
	Preferred []string `json:"preferred" yaml:"preferred"`

	// Fallback lists backup models if all preferred fail.
	Fallback []string `json:"fallback" yaml:"fallback"`

	// MessageLimit is the monthly command budget for the tier.
	MessageLimit int `json:"message_limit" yaml:"message_limit"`

	// StoreLimit is how many stores a tenant on this tier may connect.
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

// EndpointConfig defines an available model endpoint.
type EndpointConfig struct {
	// Provider is the model provider (openai, anthropic, ollama).
	Provider string `json:"provider" yaml:"provider"`

	// URL is the API endpoint URL; empty uses the provider default.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Model is the identifier sent to the provider.
	Model string `json:"model" yaml:"model"`

	// MaxTokens is the completion token budget.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// DefaultsConfig holds fallback settings when no tier matches.
type DefaultsConfig struct {
	Model string `json:"model" yaml:"model"`
}

// NewRegistry creates a registry with the given tier and endpoint
// configuration.
func NewRegistry(tiers map[Tier]*TierConfig, endpoints map[string]*EndpointConfig) *Registry {
	return &Registry{
		tiers:     tiers,
		endpoints: endpoints,
		defaults:  &DefaultsConfig{Model: "gpt-3.5-turbo"},
		health:    newHealthState(DefaultHealthConfig()),
	}
}

// NewDefaultRegistry creates a registry mirroring the stock
// Launch/Scale/Dominate plans. Used when no configuration is provided.
func NewDefaultRegistry() *Registry {
	return &Registry{
		tiers: map[Tier]*TierConfig{
			TierLaunch: {
				Name:         "Launch",
				Preferred:    []string{"gpt-3.5-turbo"},
				MessageLimit: 100,
				StoreLimit:   1,
			},
			TierScale: {
				Name:         "Scale",
				Preferred:    []string{"gpt-4o"},
				Fallback:     []string{"gpt-3.5-turbo"},
				MessageLimit: 400,
				StoreLimit:   2,
			},
			TierDominate: {
				Name:         "Dominate",
				Preferred:    []string{"gpt-4o"},
				Fallback:     []string{"gpt-3.5-turbo"},
				MessageLimit: 1000,
				StoreLimit:   5,
			},
		},
		endpoints: map[string]*EndpointConfig{
			"gpt-3.5-turbo": {
				Provider:  "openai",
				Model:     "gpt-3.5-turbo",
				MaxTokens: 16385,
			},
			"gpt-4o": {
				Provider:  "openai",
				Model:     "gpt-4o",
				MaxTokens: 128000,
			},
		},
		defaults: &DefaultsConfig{Model: "gpt-3.5-turbo"},
		health:   newHealthState(DefaultHealthConfig()),
	}
}

// Resolve returns the preferred model for a tier.
func (r *Registry) Resolve(tier Tier) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.tiers[tier]; ok && len(cfg.Preferred) > 0 {
		return cfg.Preferred[0]
	}
	return r.defaults.Model
}

// GetFallbackChain returns all models for a tier in order of
// preference.
func (r *Registry) GetFallbackChain(tier Tier) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.tiers[tier]; ok {
		chain := make([]string, 0, len(cfg.Preferred)+len(cfg.Fallback))
		chain = append(chain, cfg.Preferred...)
		chain = append(chain, cfg.Fallback...)
		if len(chain) > 0 {
			return chain
		}
	}
	return []string{r.defaults.Model}
}

// GetAvailableFallbackChain returns the fallback chain filtered to
// endpoints whose circuit is closed. If everything is unavailable the
// full chain is returned: better to try something than nothing.
func (r *Registry) GetAvailableFallbackChain(tier Tier) []string {
	chain := r.GetFallbackChain(tier)
	available := make([]string, 0, len(chain))

	for _, name := range chain {
		if r.IsEndpointAvailable(name) {
			available = append(available, name)
		}
	}

	if len(available) == 0 {
		return chain
	}
	return available
}

// GetEndpoint returns the endpoint configuration for a model name, or
// nil if not configured.
func (r *Registry) GetEndpoint(modelName string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.endpoints[modelName]
}

// GetTier returns the configuration for a tier, or nil.
func (r *Registry) GetTier(tier Tier) *TierConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.tiers[tier]
}

// SetTier updates or adds a tier configuration.
func (r *Registry) SetTier(tier Tier, cfg *TierConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tiers == nil {
		r.tiers = make(map[Tier]*TierConfig)
	}
	r.tiers[tier] = cfg
}

// SetEndpoint updates or adds an endpoint configuration.
func (r *Registry) SetEndpoint(name string, cfg *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.endpoints == nil {
		r.endpoints = make(map[string]*EndpointConfig)
	}
	r.endpoints[name] = cfg
}

// SetDefault sets the default model.
func (r *Registry) SetDefault(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.defaults == nil {
		r.defaults = &DefaultsConfig{}
	}
	r.defaults.Model = model
}

// ListEndpoints returns all configured endpoint names.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	return names
}
