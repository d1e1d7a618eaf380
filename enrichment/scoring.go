package enrichment

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

const (
	matchScoreWeight = 0.6
	similarityWeight = 0.4
)

// Similarity returns (maxLen - distance) / maxLen for the Levenshtein
// distance of a and b, compared case-insensitively in runes.
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1.0
	}
	distance := levenshtein.ComputeDistance(a, b)
	return float64(maxLen-distance) / float64(maxLen)
}

// Confidence combines a corpus match score and a name similarity, both in
// [0,1], into a cross-reference confidence in [0,100].
func Confidence(matchScore, similarity float64) int {
	score := math.Round(100 * (matchScoreWeight*matchScore + similarityWeight*similarity))
	return int(min(max(score, 0), 100))
}
