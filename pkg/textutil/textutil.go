package textutil

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize lowercases and strips all whitespace, option labels on the site
// are padded with full width and regular spaces inconsistently.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.TrimSpace(s)
	s = whitespaceRegex.ReplaceAllString(s, "")
	return s
}

// Contains reports whether needle occurs in s after normalization.
func Contains(s, needle string) bool {
	return strings.Contains(Normalize(s), Normalize(needle))
}

// Similarity is the Jaro-Winkler similarity of the normalized strings in
// [0, 1].
func Similarity(a, b string) float64 {
	return matchr.JaroWinkler(Normalize(a), Normalize(b), false)
}

// BestMatch returns the index of the candidate that contains needle, or
// failing that the most similar candidate scoring at least minScore. It
// returns -1 if nothing qualifies.
func BestMatch(candidates []string, needle string, minScore float64) int {
	for i, c := range candidates {
		if Contains(c, needle) {
			return i
		}
	}

	best := -1
	bestScore := minScore
	for i, c := range candidates {
		score := Similarity(c, needle)
		if score >= bestScore {
			best = i
			bestScore = score
		}
	}
	return best
}
