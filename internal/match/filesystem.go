package match

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/afero"

	"github.com/franz/track-index/internal/meta"
	"github.com/franz/track-index/internal/util"
)

const (
	fsFieldMaxLen   = 30
	fsFieldMinLen   = 3
	fsPatternPrefix = 15
)

var errFileFound = errors.New("file found")

// filesystemPatterns builds the search patterns for one track. Each matches
// a slash-separated path relative to the library root, ignoring case:
//
//	**/<artist>*/**/<title>*.mp3
//	**/<artist>*/**/<title>*.flac
//	**/*<title>*<artist>*.mp3
func filesystemPatterns(title, artist string) []*regexp.Regexp {
	t := regexp.QuoteMeta(meta.Truncate(title, fsPatternPrefix))
	a := regexp.QuoteMeta(meta.Truncate(artist, fsPatternPrefix))

	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:.*/)?` + a + `[^/]*/(?:.*/)?` + t + `[^/]*\.mp3$`),
		regexp.MustCompile(`(?i)^(?:.*/)?` + a + `[^/]*/(?:.*/)?` + t + `[^/]*\.flac$`),
		regexp.MustCompile(`(?i)^(?:.*/)?[^/]*` + t + `[^/]*` + a + `[^/]*\.mp3$`),
	}
}

// filesystemField sanitizes a raw title or artist for pattern use. It
// returns false when too little is left to search for.
func filesystemField(s string) (string, bool) {
	s = strings.TrimSpace(meta.SanitizePathFragment(s))
	s = strings.TrimSpace(meta.Truncate(s, fsFieldMaxLen))
	return s, utf8.RuneCountInString(s) >= fsFieldMinLen
}

// InFilesystem searches the library root for an audio file named after the
// track. The walk is bounded by the configured timeout; any error or a
// missing root yields false.
func (e *Engine) InFilesystem(ctx context.Context, title, artist string) bool {
	if e.libraryRoot == "" {
		util.DebugLog("Filesystem check skipped: no library root configured")
		return false
	}

	t, okTitle := filesystemField(title)
	a, okArtist := filesystemField(artist)
	if !okTitle || !okArtist {
		return false
	}

	root := filepath.Clean(e.libraryRoot)
	if info, err := e.fs.Stat(root); err != nil || !info.IsDir() {
		util.DebugLog("Filesystem check skipped: library root %s not accessible", root)
		return false
	}

	// The same track often sits in the registry once per playlist
	key := strings.ToLower(t + "\x00" + a)
	if e.fsCache != nil {
		if found, ok := e.fsCache.Get(key); ok {
			return found
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.fsTimeout)
	defer cancel()

	patterns := filesystemPatterns(t, a)
	start := time.Now()
	var found string

	err := afero.Walk(e.fs, root, func(path string, info fs.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable entries are skipped
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, p := range patterns {
			if p.MatchString(rel) {
				found = rel
				return errFileFound
			}
		}
		return nil
	})

	switch {
	case errors.Is(err, errFileFound):
		util.DebugLog("File found in library: %s for %q - %q", filepath.Base(found), title, artist)
		e.remember(key, true)
		return true
	case errors.Is(err, context.DeadlineExceeded):
		util.DebugLog("Filesystem search timed out after %v for %q - %q", e.fsTimeout, title, artist)
	case err != nil:
		util.DebugLog("Filesystem search failed for %q - %q: %v", title, artist, err)
	default:
		util.DebugLog("Filesystem search found nothing for %q - %q in %v", title, artist, time.Since(start).Round(time.Millisecond))
		e.remember(key, false)
	}
	return false
}

// remember caches the answer of a search that ran to completion
func (e *Engine) remember(key string, found bool) {
	if e.fsCache != nil {
		e.fsCache.Add(key, found)
	}
}
