// Package match reconciles extracted text against reference datasets.
package match

import (
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"

	"github.com/sells-group/worklog-cli/internal/normalize"
)

// containmentBonus is the weight of the shorter/longer length ratio added
// when one string contains the other.
const containmentBonus = 0.2

// Similarity returns a score in [0,1] for two already-normalized strings.
// The base is the rune-level Levenshtein ratio; a containment bonus is added
// when one string is a substring of the other.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	score := levenshtein.Similarity(a, b, nil)

	if strings.Contains(a, b) || strings.Contains(b, a) {
		score += lengthRatio(a, b) * containmentBonus
	}

	return clamp01(score)
}

// Score normalizes both inputs before computing Similarity.
func Score(a, b string) float64 {
	return Similarity(normalize.Text(a), normalize.Text(b))
}

// lengthRatio returns len(shorter)/len(longer) in runes.
func lengthRatio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	if la > lb {
		la, lb = lb, la
	}
	return float64(la) / float64(lb)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
