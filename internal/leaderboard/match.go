package leaderboard

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"jotihunt/internal/domain"
)

// BestMatch returns the entry whose group name is closest to name. An exact
// case-insensitive match wins; otherwise the highest normalized Levenshtein
// similarity is used, the first entry winning ties. It returns false only
// when entries is empty.
func BestMatch(entries []domain.LeaderboardEntry, name string) (domain.LeaderboardEntry, bool) {
	if len(entries) == 0 {
		return domain.LeaderboardEntry{}, false
	}

	for _, e := range entries {
		if strings.EqualFold(e.GroupName, name) {
			return e, true
		}
	}

	query := strings.ToLower(name)
	best, bestScore := 0, -1.0
	for i, e := range entries {
		if score := Similarity(query, strings.ToLower(e.GroupName)); score > bestScore {
			best, bestScore = i, score
		}
	}
	return entries[best], true
}

// Similarity is 1 - distance/maxLen, in [0, 1].
func Similarity(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}
