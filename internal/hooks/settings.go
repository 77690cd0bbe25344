package hooks

import "strings"

// Setting returns the value stored under key, matching ASCII
// case-insensitively. TOML decoding lowercases settings keys, so builders
// must not rely on the casing they document.
func Setting(settings map[string]any, key string) (any, bool) {
	if v, ok := settings[key]; ok {
		return v, true
	}
	for k, v := range settings {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
