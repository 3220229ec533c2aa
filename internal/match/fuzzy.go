package match

import (
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/adrg/strutil/metrics"
)

// A substitution costs one deletion plus one insertion, so Distance is the
// indel distance
var indel = &metrics.Levenshtein{
	CaseSensitive: true,
	InsertCost:    1,
	DeleteCost:    1,
	ReplaceCost:   2,
}

// ratio returns the indel similarity of a and b, 100 * (1 - dist/(lenA+lenB)),
// rounded half to even
func ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	dist := indel.Distance(a, b)
	return math.RoundToEven(100 * float64(total-dist) / float64(total))
}

// TokenSetRatio scores two strings 0-100 by comparing their word sets.
// The shared words are compared against each side's full set, so extra
// words on one side ("remastered 2012", "live") barely lower the score.
// Either input empty scores 0.
func TokenSetRatio(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for tok := range tokensA {
		if tokensB[tok] {
			common = append(common, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range tokensB {
		if !tokensA[tok] {
			onlyB = append(onlyB, tok)
		}
	}
	slices.Sort(common)
	slices.Sort(onlyA)
	slices.Sort(onlyB)

	base := strings.Join(common, " ")
	withA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := ratio(withA, withB)
	if base != "" {
		best = max(best, ratio(base, withA), ratio(base, withB))
	}
	return best
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
