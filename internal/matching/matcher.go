package matching

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// containMinLen is the shortest token length, in runes, that may match by
// substring containment. Shorter tokens only match exactly.
const containMinLen = 4

// Matches reports whether a spoken token counts as the target word. Tokens are
// expected to be normalized. Two empty tokens match through equality.
func Matches(spoken, target string) bool {
	if spoken == target {
		return true
	}
	if utf8.RuneCountInString(spoken) >= containMinLen && strings.Contains(target, spoken) {
		return true
	}
	if utf8.RuneCountInString(target) >= containMinLen && strings.Contains(spoken, target) {
		return true
	}
	return false
}

// Similarity scores how close a failed attempt came to the target word,
// from 0 to 1. It is informational only and never decides a match.
func Similarity(spoken, target string) float64 {
	if spoken == "" || target == "" {
		return 0
	}
	return matchr.JaroWinkler(spoken, target, false)
}

// commonPrefix returns the number of leading runes a and b share
func commonPrefix(a, b string) int {
	n := 0
	for a != "" && b != "" {
		ra, sa := utf8.DecodeRuneInString(a)
		rb, sb := utf8.DecodeRuneInString(b)
		if ra != rb {
			break
		}
		n++
		a, b = a[sa:], b[sb:]
	}
	return n
}
