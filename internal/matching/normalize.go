// Package matching compares spoken tokens with the words of a target sentence.
//
// Everything here is pure: Normalize and Matches are plain functions, and
// Sequence and Drill are value types whose methods return updated copies.
package matching

import "strings"

// punctuation is the character class removed from every token before comparison
const punctuation = ".,/#!$%^&*;:{}=-_`~()"

func stripPunctuation(r rune) rune {
	if strings.ContainsRune(punctuation, r) {
		return -1
	}
	return r
}

// Normalize lowercases text, strips punctuation and splits it on whitespace.
// Empty tokens are dropped. The same routine is used for target sentences and
// recognizer output.
func Normalize(text string) []string {
	return strings.Fields(strings.Map(stripPunctuation, strings.ToLower(text)))
}

// NormalizeAll normalizes each fragment and flattens the result
func NormalizeAll(fragments []string) []string {
	var tokens []string
	for _, f := range fragments {
		tokens = append(tokens, Normalize(f)...)
	}
	return tokens
}
