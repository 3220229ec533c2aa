package match

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"

	"github.com/franz/track-index/internal/meta"
	"github.com/franz/track-index/internal/store"
	"github.com/franz/track-index/internal/util"
)

const (
	// DefaultFSTimeout bounds one filesystem fallback search
	DefaultFSTimeout = 5 * time.Second

	// DefaultFSCacheSize is how many filesystem answers an engine remembers
	DefaultFSCacheSize = 4096
)

// Step names the lookup that produced a match
type Step string

const (
	StepNone          Step = ""
	StepExact         Step = "exact"
	StepArtistOrBlank Step = "title+artist-or-blank"
	StepArtistPrefix  Step = "title+artist-prefix"
	StepFuzzy         Step = "fuzzy"
	StepTitleOnly     Step = "title-only"
)

// Method names the tier that confirmed a track in Verify
type Method string

const (
	MethodExact      Method = "exact"
	MethodSmart      Method = "smart"
	MethodFilesystem Method = "filesystem"
	MethodNone       Method = "none"
)

// Result describes how a strategy decided
type Result struct {
	Strategy   string
	Matched    bool
	Step       Step
	Threshold  float64         // Threshold met by a fuzzy step
	Score      float64         // Best fuzzy score seen
	Best       store.Candidate // Candidate with the best score
	Candidates int             // Candidates scored
	Err        error           // Storage error that ended the run
}

// Verification is the outcome of Verify
type Verification struct {
	Exists bool
	Method Method
}

// Engine answers whether a (title, artist) pair is in the library
type Engine struct {
	store       *store.Store
	fs          afero.Fs
	libraryRoot string
	fsTimeout   time.Duration
	fsCache     *lru.Cache[string, bool] // nil when disabled
}

// Config holds engine configuration
type Config struct {
	Store       *store.Store
	Fs          afero.Fs // Defaults to the OS filesystem
	LibraryRoot string   // Empty disables the filesystem fallback
	FSTimeout   time.Duration
	FSCacheSize int // Completed filesystem searches kept; negative disables
}

// New creates a new Engine
func New(cfg *Config) *Engine {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.FSTimeout <= 0 {
		cfg.FSTimeout = DefaultFSTimeout
	}
	if cfg.FSCacheSize == 0 {
		cfg.FSCacheSize = DefaultFSCacheSize
	}

	e := &Engine{
		store:       cfg.Store,
		fs:          cfg.Fs,
		libraryRoot: cfg.LibraryRoot,
		fsTimeout:   cfg.FSTimeout,
	}
	if cfg.FSCacheSize > 0 {
		e.fsCache, _ = lru.New[string, bool](cfg.FSCacheSize)
	}
	return e
}

// Exact reports whether the normalized pair is indexed verbatim
func (e *Engine) Exact(ctx context.Context, title, artist string) bool {
	found, err := e.store.HasExactTrack(ctx, meta.Normalize(title), meta.Normalize(artist))
	if err != nil {
		util.ErrorLog("Exact match failed for %q - %q: %v", title, artist, err)
		return false
	}
	return found
}

// Balanced runs the precision-oriented strategy
func (e *Engine) Balanced(ctx context.Context, title, artist string) bool {
	return e.Explain(ctx, BalancedStrategy, title, artist).Matched
}

// Smart runs the recall-oriented strategy
func (e *Engine) Smart(ctx context.Context, title, artist string) bool {
	return e.Explain(ctx, SmartStrategy, title, artist).Matched
}

// Explain runs strategy s and reports which step matched
func (e *Engine) Explain(ctx context.Context, s Strategy, title, artist string) Result {
	titleClean := meta.Normalize(title)
	artistClean := meta.Normalize(artist)

	res := e.run(ctx, s, titleClean, artistClean)
	res.Strategy = s.Name
	if res.Err != nil {
		util.ErrorLog("%s match failed for %q - %q: %v", s.Name, title, artist, res.Err)
		res.Matched = false
		return res
	}

	if res.Matched {
		util.DebugLog("%s match: %q - %q via %s (score %.1f)", s.Name, titleClean, artistClean, res.Step, res.Score)
	}
	return res
}

func (e *Engine) run(ctx context.Context, s Strategy, title, artist string) Result {
	var res Result

	found, err := e.store.HasExactTrack(ctx, title, artist)
	if err != nil || found {
		return Result{Matched: found, Step: StepExact, Err: err}
	}

	artistLen := utf8.RuneCountInString(artist)
	titleLen := utf8.RuneCountInString(title)

	if artist != "" && artistLen > s.ArtistOrBlankMinLen {
		found, err := e.store.HasTitleWithArtistOrBlank(ctx, title, artist)
		if err != nil || found {
			return Result{Matched: found, Step: StepArtistOrBlank, Err: err}
		}
	}

	if s.ArtistContainsLen > 0 && artist != "" && artistLen > s.ArtistContainsMinLen {
		found, err := e.store.HasTitleWithArtistContaining(ctx, title, meta.Truncate(artist, s.ArtistContainsLen))
		if err != nil || found {
			return Result{Matched: found, Step: StepArtistPrefix, Err: err}
		}
	}

	var fragments []string
	for _, p := range s.TitlePrefixes {
		if titleLen > p.MinLen {
			fragments = append(fragments, meta.Truncate(title, p.Len))
		}
	}
	for _, p := range s.ArtistPrefixes {
		if artistLen > p.MinLen {
			fragments = append(fragments, meta.Truncate(artist, p.Len))
		}
	}

	if len(fragments) > 0 {
		candidates, err := e.store.FindCandidates(ctx, fragments)
		if err != nil {
			return Result{Err: err}
		}
		res.Candidates = len(candidates)

		for _, c := range candidates {
			if score := s.combinedScore(title, artist, c); score > res.Score {
				res.Score = score
				res.Best = c
			}
		}

		// The first threshold any candidate meets is the highest one at or
		// below the best score
		for _, threshold := range s.Thresholds {
			if res.Score >= threshold {
				res.Matched = true
				res.Step = StepFuzzy
				res.Threshold = threshold
				return res
			}
		}
	}

	if s.TitleOnlyLen > 0 && titleLen > s.TitleOnlyMinLen {
		titles, err := e.store.FindTitlesContaining(ctx, meta.Truncate(title, s.TitleOnlyLen))
		if err != nil {
			res.Err = err
			return res
		}
		for _, t := range titles {
			if score := TokenSetRatio(title, t); score >= s.TitleOnlyThreshold {
				res.Matched = true
				res.Step = StepTitleOnly
				res.Threshold = s.TitleOnlyThreshold
				res.Score = score
				res.Best = store.Candidate{TitleClean: t}
				return res
			}
		}
	}

	return res
}

// Verify runs exact, then smart, then the filesystem fallback, stopping at
// the first tier that finds the track
func (e *Engine) Verify(ctx context.Context, title, artist string) Verification {
	if e.Exact(ctx, title, artist) {
		return Verification{Exists: true, Method: MethodExact}
	}
	if e.Smart(ctx, title, artist) {
		return Verification{Exists: true, Method: MethodSmart}
	}
	if e.InFilesystem(ctx, title, artist) {
		return Verification{Exists: true, Method: MethodFilesystem}
	}
	return Verification{Exists: false, Method: MethodNone}
}

// AlbumExists reports whether any track of the album is indexed, trying
// progressively looser matches on album and artist
func (e *Engine) AlbumExists(ctx context.Context, artist, album string) bool {
	albumClean := meta.Normalize(album)
	artistClean := meta.Normalize(artist)
	if albumClean == "" {
		return false
	}

	attempts := []struct {
		name                        string
		albumPartial, artistPartial bool
	}{
		{"exact", false, false},
		{"partial album", true, false},
		{"partial artist", false, true},
		{"partial album and artist", true, true},
	}

	for _, a := range attempts {
		n, err := e.store.CountAlbumTracks(ctx, albumClean, artistClean, a.albumPartial, a.artistPartial)
		if err != nil {
			util.ErrorLog("Album lookup failed for %q - %q: %v", artist, album, err)
			return false
		}
		if n > 0 {
			util.DebugLog("Album %q - %q found (%s match): %d tracks", artistClean, albumClean, a.name, n)
			return true
		}
	}

	// Runs of words from a multi-word artist ("soprano molly grace" -> "molly grace")
	words := strings.Fields(artistClean)
	if len(words) < 2 {
		return false
	}
	for i := range words {
		for j := i + 1; j <= len(words); j++ {
			combo := strings.Join(words[i:j], " ")
			if utf8.RuneCountInString(combo) <= 3 {
				continue
			}
			n, err := e.store.CountAlbumTracks(ctx, albumClean, combo, true, true)
			if err != nil {
				util.ErrorLog("Album lookup failed for %q - %q: %v", artist, album, err)
				return false
			}
			if n > 0 {
				util.DebugLog("Album %q found with artist words %q: %d tracks", albumClean, combo, n)
				return true
			}
		}
	}
	return false
}
