// Package similarity scores string pairs for the site resolver.
package similarity

import (
	"math"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// Scorer scores two strings on a 0-100 scale. Implementations must be
// pure so resolver runs stay reproducible on identical input.
type Scorer interface {
	Score(a, b string) int
}

// TokenSetScorer combines order-independent token overlap with
// edit-distance scoring. Shared tokens are factored out into a common
// prefix, then the three canonical combinations are compared pairwise
// and the best ratio wins. Word reordering ("General Hospital Boston"
// vs "Boston General Hospital") therefore scores 100.
type TokenSetScorer struct{}

// NewTokenSetScorer returns the default scorer used by the resolver.
func NewTokenSetScorer() *TokenSetScorer {
	return &TokenSetScorer{}
}

// Score returns the token-set similarity of a and b in [0, 100].
func (s *TokenSetScorer) Score(a, b string) int {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 100
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var shared, onlyA, onlyB []string
	for tok := range ta {
		if tb[tok] {
			shared = append(shared, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range tb {
		if !ta[tok] {
			onlyB = append(onlyB, tok)
		}
	}
	sort.Strings(shared)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(shared, " ")
	combinedA := joinNonEmpty(base, strings.Join(onlyA, " "))
	combinedB := joinNonEmpty(base, strings.Join(onlyB, " "))

	best := ratio(base, combinedA)
	if r := ratio(base, combinedB); r > best {
		best = r
	}
	if r := ratio(combinedA, combinedB); r > best {
		best = r
	}
	return best
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = true
	}
	return set
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func ratio(a, b string) int {
	if a == "" && b == "" {
		return 0
	}
	return int(math.Round(levenshtein.Similarity(a, b, nil) * 100))
}
