// Package strings holds slice helpers shared by config parsing and provider
// response normalization.
package strings

import (
	"strings"
)

// Dedupe drops repeated values, keeping the first occurrence order. A nil or
// empty input returns nil.
func Dedupe[T comparable](values []T) []T {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[T]struct{}, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// DedupeAndTrim trims each element, drops empties, then dedupes.
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "}) // ["foo" "bar"]
func DedupeAndTrim(values []string) []string {
	trimmed := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			trimmed = append(trimmed, v)
		}
	}
	return Dedupe(trimmed)
}
