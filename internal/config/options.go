package config

import "fmt"

// OptionString extracts a string value from e.Options. Returns "" if the map
// is nil, the key is absent, or the value is not a string.
func (e ProviderEntry) OptionString(key string) string {
	if e.Options == nil {
		return ""
	}
	s, ok := e.Options[key].(string)
	if !ok {
		return ""
	}
	return s
}

// optionString renders an option value for comparison.
func optionString(v any) string {
	return fmt.Sprint(v)
}
