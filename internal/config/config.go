// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the LinguaPlay practice server.
package config

import "time"

// LogLevel controls log verbosity for the LinguaPlay server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

const (
	// DefaultListenAddr is used when server.listen_addr is empty.
	DefaultListenAddr = ":8080"

	// DefaultSessionTTL is how long an idle practice session is kept.
	DefaultSessionTTL = 2 * time.Hour

	// MinSessionTTL is the smallest accepted practice.session_ttl.
	MinSessionTTL = time.Minute

	// DefaultPruneInterval is how often idle sessions are swept.
	DefaultPruneInterval = 5 * time.Minute

	DefaultBreakerMaxFailures  = 5
	DefaultBreakerResetTimeout = 30 * time.Second
	DefaultBreakerHalfOpenMax  = 1
)

// Config is the root configuration structure for LinguaPlay.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Practice  PracticeConfig  `yaml:"practice"`
}

// ServerConfig holds network and logging settings for the HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation backs each external
// dependency. Each field selects a named provider registered in the [Registry].
// Both are optional: without an LLM challenges come from the built-in phrase
// bank, and without STT only text attempts are accepted.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`

	// LLMFallbacks are tried in order when the primary LLM fails or its
	// circuit breaker is open.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	// STTFallbacks are tried in order when the primary STT fails.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`

	// Breaker tunes the circuit breaker wrapped around every provider.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes provider circuit breakers. Zero values select the
// defaults below.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that open a breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker waits before probing again.
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// HalfOpenMax is the number of successful probes needed to close again.
	HalfOpenMax int `yaml:"half_open_max"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "base").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// PracticeConfig tunes practice sessions.
type PracticeConfig struct {
	// DefaultLanguage is used when a session is created without a language.
	// Must be a supported language code. Defaults to "en".
	DefaultLanguage string `yaml:"default_language"`

	// SessionTTL is how long a session may sit idle before it is pruned.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// PruneInterval is how often idle sessions are swept.
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// ApplyDefaults fills zero-valued optional fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Practice.DefaultLanguage == "" {
		c.Practice.DefaultLanguage = "en"
	}
	if c.Practice.SessionTTL == 0 {
		c.Practice.SessionTTL = DefaultSessionTTL
	}
	if c.Practice.PruneInterval == 0 {
		c.Practice.PruneInterval = DefaultPruneInterval
	}
	b := &c.Providers.Breaker
	if b.MaxFailures == 0 {
		b.MaxFailures = DefaultBreakerMaxFailures
	}
	if b.ResetTimeout == 0 {
		b.ResetTimeout = DefaultBreakerResetTimeout
	}
	if b.HalfOpenMax == 0 {
		b.HalfOpenMax = DefaultBreakerHalfOpenMax
	}
}
