// Package config provides configuration loading and management for
// Storepilot.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/storepilot/storepilot/cache"
	"github.com/storepilot/storepilot/command"
	"github.com/storepilot/storepilot/model"
	"github.com/storepilot/storepilot/policy"
	"github.com/storepilot/storepilot/ratelimit"
	"github.com/storepilot/storepilot/router"
)

// Config represents the complete Storepilot configuration.
type Config struct {
	Shop       ShopConfig                 `yaml:"shop"`
	Models     model.RegistryConfig       `yaml:"models"`
	Retry      RetryConfig                `yaml:"retry"`
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"`
	Cache      map[string]CacheConfig     `yaml:"cache"`
	Policy     PolicyConfig               `yaml:"policy"`
	NATS       NATSConfig                 `yaml:"nats"`
}

// ShopConfig configures the Shopify connection.
type ShopConfig struct {
	// Domain is the shop domain (e.g., "example.myshopify.com").
	Domain string `yaml:"domain"`
	// AccessToken is the Admin API token. Falls back to the
	// SHOPIFY_ACCESS_TOKEN environment variable when empty.
	AccessToken string `yaml:"access_token"`
}

// RetryConfig configures the execution router's retry loop.
type RetryConfig struct {
	// MaxAttempts is the total attempt budget per command.
	MaxAttempts int `yaml:"max_attempts"`
	// InitialDelayMs is the backoff before the second attempt.
	InitialDelayMs int `yaml:"initial_delay_ms"`
	// BackoffFactor multiplies the delay after each failure.
	BackoffFactor float64 `yaml:"backoff_factor"`
	// MaxDelayMs caps the backoff.
	MaxDelayMs int `yaml:"max_delay_ms"`
}

// RateLimitConfig configures one command type's admission window.
type RateLimitConfig struct {
	// MaxRequests is the number of admissions per window.
	MaxRequests int `yaml:"max_requests"`
	// WindowSeconds is the fixed window length.
	WindowSeconds int `yaml:"window_seconds"`
}

// CacheConfig configures one command type's cache policy.
type CacheConfig struct {
	// TTLSeconds is how long entries stay fresh.
	TTLSeconds int `yaml:"ttl_seconds"`
	// MaxSizeBytes is the serialized byte limit per entry.
	MaxSizeBytes int `yaml:"max_size_bytes"`
}

// PolicyConfig configures the safety engine's keyword lists. These are
// product decisions, deliberately not hardcoded invariants.
type PolicyConfig struct {
	DestructiveVerbs []string `yaml:"destructive_verbs"`
	BulkTerms        []string `yaml:"bulk_terms"`
	CriticalActions  []string `yaml:"critical_actions"`
	Tier2Phrases     []string `yaml:"tier2_phrases"`
	Tier3Phrases     []string `yaml:"tier3_phrases"`
}

// NATSConfig configures the NATS connection backing the shared store.
type NATSConfig struct {
	// URL is the NATS server URL.
	URL string `yaml:"url"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	rateLimits := make(map[string]RateLimitConfig)
	for t, limit := range ratelimit.DefaultLimits() {
		rateLimits[t.String()] = RateLimitConfig{
			MaxRequests:   limit.MaxRequests,
			WindowSeconds: int(limit.Window / time.Second),
		}
	}

	cachePolicies := make(map[string]CacheConfig)
	for t, p := range cache.DefaultPolicies() {
		cachePolicies[t.String()] = CacheConfig{
			TTLSeconds:   int(p.TTL / time.Second),
			MaxSizeBytes: p.MaxSize,
		}
	}

	return &Config{
		Models: *model.NewDefaultRegistry().ToConfig(),
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialDelayMs: 1000,
			BackoffFactor:  2,
			MaxDelayMs:     10000,
		},
		RateLimits: rateLimits,
		Cache:      cachePolicies,
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
	}
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.BackoffFactor < 1 {
		return fmt.Errorf("retry.backoff_factor must be at least 1")
	}

	for name, limit := range c.RateLimits {
		if !command.Type(name).IsValid() {
			return fmt.Errorf("rate_limits: unknown command type %q", name)
		}
		if limit.MaxRequests < 1 || limit.WindowSeconds < 1 {
			return fmt.Errorf("rate_limits.%s: max_requests and window_seconds must be positive", name)
		}
	}

	for name, policy := range c.Cache {
		if !command.Type(name).IsValid() {
			return fmt.Errorf("cache: unknown command type %q", name)
		}
		if policy.TTLSeconds < 1 || policy.MaxSizeBytes < 1 {
			return fmt.Errorf("cache.%s: ttl_seconds and max_size_bytes must be positive", name)
		}
	}

	if _, err := model.NewRegistryFromConfig(&c.Models); err != nil {
		return fmt.Errorf("models: %w", err)
	}
	return nil
}

// ResolveAccessToken returns the configured token or the environment
// fallback.
func (c *ShopConfig) ResolveAccessToken() string {
	if c.AccessToken != "" {
		return c.AccessToken
	}
	return os.Getenv("SHOPIFY_ACCESS_TOKEN")
}

// RateLimitTable converts the configured limits to the limiter's form.
func (c *Config) RateLimitTable() map[command.Type]ratelimit.Limit {
	table := make(map[command.Type]ratelimit.Limit, len(c.RateLimits))
	for name, limit := range c.RateLimits {
		table[command.Type(name)] = ratelimit.Limit{
			MaxRequests: limit.MaxRequests,
			Window:      time.Duration(limit.WindowSeconds) * time.Second,
		}
	}
	return table
}

// CacheTable converts the configured policies to the cache's form.
func (c *Config) CacheTable() map[command.Type]cache.Policy {
	table := make(map[command.Type]cache.Policy, len(c.Cache))
	for name, p := range c.Cache {
		table[command.Type(name)] = cache.Policy{
			TTL:     time.Duration(p.TTLSeconds) * time.Second,
			MaxSize: p.MaxSizeBytes,
		}
	}
	return table
}

// RetryPolicy converts the configured retry settings to the router's
// form.
func (c *Config) RetryPolicy() router.RetryPolicy {
	return router.RetryPolicy{
		MaxAttempts:   c.Retry.MaxAttempts,
		InitialDelay:  time.Duration(c.Retry.InitialDelayMs) * time.Millisecond,
		BackoffFactor: c.Retry.BackoffFactor,
		MaxDelay:      time.Duration(c.Retry.MaxDelayMs) * time.Millisecond,
	}
}

// PolicyOptions converts the configured keyword lists to policy engine
// options. Empty lists keep the engine's stock defaults.
func (c *Config) PolicyOptions() []policy.Option {
	var opts []policy.Option
	if len(c.Policy.DestructiveVerbs) > 0 {
		opts = append(opts, policy.WithDestructiveVerbs(c.Policy.DestructiveVerbs))
	}
	if len(c.Policy.BulkTerms) > 0 {
		opts = append(opts, policy.WithBulkTerms(c.Policy.BulkTerms))
	}
	if len(c.Policy.CriticalActions) > 0 {
		opts = append(opts, policy.WithCriticalActions(c.Policy.CriticalActions))
	}
	if len(c.Policy.Tier2Phrases) > 0 || len(c.Policy.Tier3Phrases) > 0 {
		opts = append(opts, policy.WithTierPhrases(c.Policy.Tier2Phrases, c.Policy.Tier3Phrases))
	}
	return opts
}

// LoadFromFile loads configuration from a YAML file, layered over the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence
// for non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Shop.Domain != "" {
		c.Shop.Domain = other.Shop.Domain
	}
	if other.Shop.AccessToken != "" {
		c.Shop.AccessToken = other.Shop.AccessToken
	}

	if len(other.Models.Tiers) > 0 {
		c.Models.Tiers = other.Models.Tiers
	}
	if len(other.Models.Endpoints) > 0 {
		c.Models.Endpoints = other.Models.Endpoints
	}
	if other.Models.Defaults != nil {
		c.Models.Defaults = other.Models.Defaults
	}

	if other.Retry.MaxAttempts != 0 {
		c.Retry.MaxAttempts = other.Retry.MaxAttempts
	}
	if other.Retry.InitialDelayMs != 0 {
		c.Retry.InitialDelayMs = other.Retry.InitialDelayMs
	}
	if other.Retry.BackoffFactor != 0 {
		c.Retry.BackoffFactor = other.Retry.BackoffFactor
	}
	if other.Retry.MaxDelayMs != 0 {
		c.Retry.MaxDelayMs = other.Retry.MaxDelayMs
	}

	for name, limit := range other.RateLimits {
		c.RateLimits[name] = limit
	}
	for name, policy := range other.Cache {
		c.Cache[name] = policy
	}

	if len(other.Policy.DestructiveVerbs) > 0 {
		c.Policy.DestructiveVerbs = other.Policy.DestructiveVerbs
	}
	if len(other.Policy.BulkTerms) > 0 {
		c.Policy.BulkTerms = other.Policy.BulkTerms
	}
	if len(other.Policy.CriticalActions) > 0 {
		c.Policy.CriticalActions = other.Policy.CriticalActions
	}
	if len(other.Policy.Tier2Phrases) > 0 {
		c.Policy.Tier2Phrases = other.Policy.Tier2Phrases
	}
	if len(other.Policy.Tier3Phrases) > 0 {
		c.Policy.Tier3Phrases = other.Policy.Tier3Phrases
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
}
