// Package strings holds small string helpers shared by the output
// formatting paths.
package strings

import (
	"strings"
)

// DefaultDescriptionMaxLen is the column width descriptions are
// truncated to in table output.
const DefaultDescriptionMaxLen = 60

// MinTruncateLen is the smallest usable maxLen: one rune plus "...".
const MinTruncateLen = 4

// TruncateDescription flattens s to a single line (all whitespace runs
// collapse to one space) and truncates it to maxLen runes, appending
// "..." when anything was cut. Rune-based slicing keeps multi-byte
// characters intact. maxLen values below MinTruncateLen are clamped.
func TruncateDescription(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
