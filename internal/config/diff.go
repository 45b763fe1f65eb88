package config

import "time"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider changes
// are reported so the caller can warn that a restart is needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SessionTTLChanged bool
	NewSessionTTL     time.Duration

	DefaultLanguageChanged bool
	NewDefaultLanguage     string

	// ProvidersChanged is true when any provider entry differs. Providers are
	// built once at startup, so this change only takes effect after a restart.
	ProvidersChanged bool
}

// Changed reports whether d contains any change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.SessionTTLChanged || d.DefaultLanguageChanged || d.ProvidersChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Practice.SessionTTL != new.Practice.SessionTTL {
		d.SessionTTLChanged = true
		d.NewSessionTTL = new.Practice.SessionTTL
	}

	if old.Practice.DefaultLanguage != new.Practice.DefaultLanguage {
		d.DefaultLanguageChanged = true
		d.NewDefaultLanguage = new.Practice.DefaultLanguage
	}

	d.ProvidersChanged = !entryEqual(old.Providers.LLM, new.Providers.LLM) ||
		!entryEqual(old.Providers.STT, new.Providers.STT) ||
		!entriesEqual(old.Providers.LLMFallbacks, new.Providers.LLMFallbacks) ||
		!entriesEqual(old.Providers.STTFallbacks, new.Providers.STTFallbacks) ||
		old.Providers.Breaker != new.Providers.Breaker

	return d
}

func entriesEqual(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !entryEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// entryEqual compares the scalar fields of two provider entries and the
// string form of their options.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || optionString(av) != optionString(bv) {
			return false
		}
	}
	return true
}
