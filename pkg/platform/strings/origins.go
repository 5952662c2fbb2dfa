// Package strings normalizes string lists read from configuration.
package strings

import (
	"strings"
)

// NormalizeOrigins prepares a CORS allow-list: entries are trimmed, lowercased,
// stripped of a trailing slash and deduplicated in order. "*" is kept as-is.
//
//	NormalizeOrigins([]string{" https://A.example/ ", "https://a.example", ""})
//	// []string{"https://a.example"}
func NormalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return origins
	}

	seen := make(map[string]struct{}, len(origins))
	result := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		if o == "" {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		result = append(result, o)
	}
	return result
}
