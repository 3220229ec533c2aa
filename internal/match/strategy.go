package match

import "github.com/franz/track-index/internal/store"

// prefixRule takes the first Len runes of a field when the field is longer
// than MinLen runes
type prefixRule struct {
	Len    int
	MinLen int
}

// Strategy parameterizes one fuzzy matching tier
type Strategy struct {
	Name string

	// Title-exact lookup accepting the same artist or a blank one, tried
	// when the artist is longer than this many runes
	ArtistOrBlankMinLen int

	// Title-exact lookup with the artist containing its first
	// ArtistContainsLen runes, tried when the artist is longer than
	// ArtistContainsMinLen. Zero ArtistContainsLen disables the step.
	ArtistContainsLen    int
	ArtistContainsMinLen int

	// Prefixes used to pull fuzzy candidates from the index
	TitlePrefixes  []prefixRule
	ArtistPrefixes []prefixRule

	// Descending score thresholds, tried in order
	Thresholds []float64

	// Share of the combined score taken by the title; the artist gets the rest
	TitleWeight float64

	// Title-only fuzzy pass on a TitleOnlyLen-rune prefix, tried when the
	// title is longer than TitleOnlyMinLen. Zero TitleOnlyLen disables it.
	TitleOnlyLen       int
	TitleOnlyMinLen    int
	TitleOnlyThreshold float64
}

// BalancedStrategy favours precision. It is used when deciding whether a
// track should be recorded as missing.
var BalancedStrategy = Strategy{
	Name:                 "balanced",
	ArtistOrBlankMinLen:  1,
	ArtistContainsLen:    4,
	ArtistContainsMinLen: 2,
	TitlePrefixes:        []prefixRule{{Len: 4, MinLen: 3}, {Len: 6, MinLen: 6}},
	ArtistPrefixes:       []prefixRule{{Len: 4, MinLen: 2}, {Len: 5, MinLen: 5}},
	Thresholds:           []float64{85, 80, 75, 70},
	TitleWeight:          0.75,
	TitleOnlyLen:         3,
	TitleOnlyMinLen:      3,
	TitleOnlyThreshold:   75,
}

// SmartStrategy favours recall. It is used by proactive rescans of
// missing tracks.
var SmartStrategy = Strategy{
	Name:                "smart",
	ArtistOrBlankMinLen: 2,
	TitlePrefixes:       []prefixRule{{Len: 4, MinLen: 3}},
	ArtistPrefixes:      []prefixRule{{Len: 4, MinLen: 3}},
	Thresholds:          []float64{90, 80, 70, 60},
	TitleWeight:         0.7,
}

// StrategyByName returns the named strategy
func StrategyByName(name string) (Strategy, bool) {
	switch name {
	case BalancedStrategy.Name:
		return BalancedStrategy, true
	case SmartStrategy.Name:
		return SmartStrategy, true
	}
	return Strategy{}, false
}

// combinedScore weights title and artist similarity. When either artist is
// blank only the title counts.
func (s Strategy) combinedScore(title, artist string, c store.Candidate) float64 {
	titleScore := TokenSetRatio(title, c.TitleClean)
	if artist == "" || c.ArtistClean == "" {
		return titleScore
	}
	artistScore := TokenSetRatio(artist, c.ArtistClean)
	return titleScore*s.TitleWeight + artistScore*(1-s.TitleWeight)
}
