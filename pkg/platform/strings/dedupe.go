// Package strings holds small string-slice helpers shared by domain models.
package strings

import (
	"strings"
)

// DedupeAndTrimLower trims, lowercases, and de-duplicates a slice, dropping
// entries that are empty after trimming. First-seen order is preserved.
// Species lists arrive from handwritten forms, so "Trout, trout , TROUT"
// must collapse to one entry before it reaches a fingerprint.
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		normalized := strings.ToLower(strings.TrimSpace(v))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}

	return result
}
