package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/linguaplay/internal/challenge"
	"github.com/MrWong99/linguaplay/pkg/provider/stt/whisper"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "openrouter", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"whisper"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, validates the result and
// applies defaults. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when server.tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when server.tls is set"))
		}
	}

	// Providers
	errs = append(errs, validateEntry("providers.llm", "llm", cfg.Providers.LLM)...)
	errs = append(errs, validateEntry("providers.stt", "stt", cfg.Providers.STT)...)
	for i, e := range cfg.Providers.LLMFallbacks {
		errs = append(errs, validateEntry(fmt.Sprintf("providers.llm_fallbacks[%d]", i), "llm", e)...)
	}
	for i, e := range cfg.Providers.STTFallbacks {
		errs = append(errs, validateEntry(fmt.Sprintf("providers.stt_fallbacks[%d]", i), "stt", e)...)
	}
	if cfg.Providers.LLM.Name == "" {
		if len(cfg.Providers.LLMFallbacks) > 0 {
			errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
		} else {
			slog.Warn("no LLM provider configured; challenges will come from the built-in phrase bank")
		}
	}
	if cfg.Providers.STT.Name == "" && len(cfg.Providers.STTFallbacks) > 0 {
		errs = append(errs, errors.New("providers.stt_fallbacks requires providers.stt"))
	}
	b := cfg.Providers.Breaker
	if b.MaxFailures < 0 || b.HalfOpenMax < 0 || b.ResetTimeout < 0 {
		errs = append(errs, errors.New("providers.breaker values must not be negative"))
	}

	// Practice
	p := cfg.Practice
	if p.DefaultLanguage != "" && !challenge.IsSupported(p.DefaultLanguage) {
		errs = append(errs, fmt.Errorf("practice.default_language %q is not supported; valid values: %v", p.DefaultLanguage, languageCodes()))
	}
	if p.SessionTTL < 0 || (p.SessionTTL > 0 && p.SessionTTL < MinSessionTTL) {
		errs = append(errs, fmt.Errorf("practice.session_ttl %s is too short; minimum is %s", p.SessionTTL, MinSessionTTL))
	}
	if p.PruneInterval < 0 {
		errs = append(errs, fmt.Errorf("practice.prune_interval %s must be positive", p.PruneInterval))
	}

	return errors.Join(errs...)
}

// validateEntry checks one provider entry. path is its YAML location for
// error messages.
func validateEntry(path, kind string, e ProviderEntry) []error {
	validateProviderName(kind, e.Name)
	if e.Name != "whisper" {
		return nil
	}
	var errs []error
	if e.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%s.base_url is required for whisper", path))
	}
	if mode, ok := e.Options["api_mode"].(string); ok {
		if _, err := whisper.ParseMode(mode); err != nil {
			errs = append(errs, fmt.Errorf("%s.options.api_mode %q is invalid; valid values: whispercpp, fastapi", path, mode))
		}
	}
	return errs
}

// languageCodes lists the supported practice languages for error messages.
func languageCodes() []string {
	langs := challenge.Languages()
	codes := make([]string, 0, len(langs))
	for _, l := range langs {
		codes = append(codes, l.Code)
	}
	return codes
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
