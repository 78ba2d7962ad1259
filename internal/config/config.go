// Package config provides configuration loading for scoutd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the scoutd daemon.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Providers   []ProviderConfig  `koanf:"providers"`
	Reliability ReliabilityConfig `koanf:"reliability"`
	Session     SessionConfig     `koanf:"session"`
	Learning    LearningConfig    `koanf:"learning"`
	Storage     StorageConfig     `koanf:"storage"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ProviderConfig describes one AI reasoning provider.
// Providers are tried in declaration order by the failover reasoner.
type ProviderConfig struct {
	// Name identifies the provider ("anthropic" or "openai").
	Name string `koanf:"name"`

	// APIKey authenticates against the provider API.
	APIKey Secret `koanf:"api_key"`

	// Model overrides the provider's default model.
	Model string `koanf:"model"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `koanf:"base_url"`
}

// ReliabilityConfig controls the outbound-call protection layer.
type ReliabilityConfig struct {
	// Timeout bounds every provider call. Default: 30s.
	Timeout Duration `koanf:"timeout"`

	// MaxRetries is the number of retries after the first attempt. Default: 2.
	MaxRetries int `koanf:"max_retries"`

	// BaseDelay is the initial backoff delay. Default: 1s.
	BaseDelay Duration `koanf:"base_delay"`

	// FailureThreshold opens a provider's circuit after this many
	// consecutive failures. Default: 3.
	FailureThreshold int `koanf:"failure_threshold"`

	// ResetTimeout is how long an open circuit waits before allowing
	// a half-open probe. Default: 60s.
	ResetTimeout Duration `koanf:"reset_timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ReliabilityConfig) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = Duration(30 * time.Second)
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = Duration(time.Second)
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 3
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = Duration(60 * time.Second)
	}
}

// SessionConfig controls the session learning store lifecycle.
type SessionConfig struct {
	// IdleWindow is how long an untouched session survives. Default: 120m.
	IdleWindow Duration `koanf:"idle_window"`

	// SweepInterval is how often the expiry sweep runs. Default: 5m.
	SweepInterval Duration `koanf:"sweep_interval"`
}

// ApplyDefaults sets default values for unset fields.
func (c *SessionConfig) ApplyDefaults() {
	if c.IdleWindow == 0 {
		c.IdleWindow = Duration(120 * time.Minute)
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = Duration(5 * time.Minute)
	}
}

// LearningConfig holds the pattern learning policy knobs.
//
// These defaults come straight from the source system's hand-tuned
// constants; they are config-surfaced so they can be recalibrated
// against real outcome data without a rebuild.
type LearningConfig struct {
	// MinConfidence is the retention floor for session patterns. Default: 0.6.
	MinConfidence float64 `koanf:"min_confidence"`

	// WarmStartConfidence is the floor for durable patterns seeded into
	// new sessions. Default: 0.7.
	WarmStartConfidence float64 `koanf:"warm_start_confidence"`

	// PromotionConfidence is the floor for promoting session patterns to
	// durable storage at session close. Default: 0.8.
	PromotionConfidence float64 `koanf:"promotion_confidence"`
}

// ApplyDefaults sets default values for unset fields.
func (c *LearningConfig) ApplyDefaults() {
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.6
	}
	if c.WarmStartConfidence == 0 {
		c.WarmStartConfidence = 0.7
	}
	if c.PromotionConfidence == 0 {
		c.PromotionConfidence = 0.8
	}
}

// StorageConfig selects and configures the durable document store.
type StorageConfig struct {
	// Backend is "badger" or "memory". Default: badger.
	Backend string `koanf:"backend"`

	// Path is the on-disk location for the badger backend.
	Path string `koanf:"path"`
}

// ApplyDefaults sets default values for unset fields.
func (c *StorageConfig) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = "badger"
	}
	if c.Path == "" {
		c.Path = ".scoutd/store"
	}
}

// Validate checks the full configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0-65535, got %d", c.Server.Port)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	for i, p := range c.Providers {
		switch p.Name {
		case "anthropic", "openai":
		default:
			return fmt.Errorf("providers[%d].name must be 'anthropic' or 'openai', got %q", i, p.Name)
		}
		if !p.APIKey.IsSet() {
			return fmt.Errorf("providers[%d] (%s): api_key is required", i, p.Name)
		}
	}
	if c.Learning.MinConfidence < 0 || c.Learning.MinConfidence > 1 {
		return fmt.Errorf("learning.min_confidence must be in [0,1]")
	}
	if c.Learning.PromotionConfidence < c.Learning.MinConfidence {
		return fmt.Errorf("learning.promotion_confidence cannot be below learning.min_confidence")
	}
	switch c.Storage.Backend {
	case "", "badger", "memory":
	default:
		return fmt.Errorf("storage.backend must be 'badger' or 'memory', got %q", c.Storage.Backend)
	}
	return nil
}

// ApplyDefaults sets defaults across all sections.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9180
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	c.Reliability.ApplyDefaults()
	c.Session.ApplyDefaults()
	c.Learning.ApplyDefaults()
	c.Storage.ApplyDefaults()
}
