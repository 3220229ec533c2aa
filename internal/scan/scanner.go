package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/track-index/internal/index"
	"github.com/franz/track-index/internal/meta"
	"github.com/franz/track-index/internal/util"
)

// Scanner reads the tracks of a music library directory. It implements
// index.Source.
type Scanner struct {
	fs          afero.Fs
	root        string
	concurrency int
}

// Config holds scanner configuration
type Config struct {
	Fs          afero.Fs
	Root        string
	Concurrency int
}

// New creates a new Scanner
func New(cfg *Config) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}

	return &Scanner{
		fs:          cfg.Fs,
		root:        cfg.Root,
		concurrency: cfg.Concurrency,
	}
}

// Root returns the library directory
func (s *Scanner) Root() string {
	return s.root
}

// Result represents a scan result
type Result struct {
	Tracks       []index.Track
	FilesFound   int
	FromFilename int // Tracks whose tags were unreadable
	Errors       []error
}

// audioFile is one discovered file
type audioFile struct {
	path  string
	mtime time.Time
}

var _ index.Source = (*Scanner)(nil)

// Tracks returns every track in the library
func (s *Scanner) Tracks(ctx context.Context) ([]index.Track, error) {
	result, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return result.Tracks, nil
}

// RecentlyAdded returns up to limit tracks ordered by modification time,
// newest first. Only the selected files have their tags read.
func (s *Scanner) RecentlyAdded(ctx context.Context, limit int) ([]index.Track, error) {
	var files []audioFile
	err := s.walk(ctx, func(f audioFile) error {
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].mtime.After(files[j].mtime)
	})
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}

	tracks := make([]index.Track, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		track, _ := s.readTrack(ctx, f)
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// Scan walks the library and reads the tags of every audio file with a
// pool of workers
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	if s.root == "" {
		return nil, fmt.Errorf("%w: library root is required", util.ErrInvalidConfig)
	}
	util.InfoLog("Starting scan of: %s", s.root)

	result := &Result{
		Errors: make([]error, 0),
	}
	var mu sync.Mutex

	files := make(chan audioFile, 100)

	var filesFound atomic.Int64
	var fromFilename atomic.Int64

	bar := util.NewProgressBar(-1, "Scanning", "files")

	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range files {
				select {
				case <-ctx.Done():
					continue
				default:
				}

				track, tagErr := s.readTrack(ctx, f)
				if tagErr != nil {
					fromFilename.Add(1)
				}
				if bar != nil {
					bar.Add(1)
				}

				mu.Lock()
				if track.Empty() {
					result.Errors = append(result.Errors, fmt.Errorf("no title or artist: %s", f.path))
				} else {
					result.Tracks = append(result.Tracks, track)
				}
				mu.Unlock()
			}
		}()
	}

	walkErr := s.walk(ctx, func(f audioFile) error {
		filesFound.Add(1)
		select {
		case files <- f:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	close(files)
	wg.Wait()

	if bar != nil {
		bar.Finish()
	}

	result.FilesFound = int(filesFound.Load())
	result.FromFilename = int(fromFilename.Load())

	if walkErr != nil {
		return result, fmt.Errorf("walk error: %w", walkErr)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	util.SuccessLog("Scan complete: %d files found, %d tracks, %d from filenames, %d errors",
		result.FilesFound, len(result.Tracks), result.FromFilename, len(result.Errors))

	return result, nil
}

// walk calls fn for every audio file below the root. Unreadable entries are
// logged and skipped.
func (s *Scanner) walk(ctx context.Context, fn func(audioFile) error) error {
	if s.root == "" {
		return fmt.Errorf("%w: library root is required", util.ErrInvalidConfig)
	}
	if _, err := util.RetryableStat(ctx, s.fs, s.root, util.DefaultRetryConfig()); err != nil {
		return fmt.Errorf("library root unavailable: %w", err)
	}

	return afero.Walk(s.fs, s.root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			util.WarnLog("Error accessing path %s: %v", path, err)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !meta.IsAudioFile(path) {
			return nil
		}
		return fn(audioFile{path: path, mtime: info.ModTime()})
	})
}

// ReadTrack reads one file into a track, falling back to the filename and
// directory layout for anything the tags leave empty
func (s *Scanner) ReadTrack(ctx context.Context, path string) (index.Track, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		return index.Track{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	track, _ := s.readTrack(ctx, audioFile{path: path, mtime: info.ModTime()})
	if track.Empty() {
		return track, fmt.Errorf("no title or artist: %s", path)
	}
	return track, nil
}

// readTrack returns the tag error, if any; the track is still filled from
// the filename in that case
func (s *Scanner) readTrack(ctx context.Context, f audioFile) (index.Track, error) {
	tags, err := meta.ReadTags(ctx, s.fs, f.path)
	if err != nil {
		util.DebugLog("Tags unreadable, using filename: %s (%v)", f.path, err)
		tags = &meta.Tags{}
	}
	if tags.Title == "" || tags.Artist == "" || tags.Album == "" {
		tags.FillFromFilename(s.relative(f.path))
	}

	return index.Track{
		Title:   tags.Title,
		Artist:  tags.Artist,
		Album:   tags.Album,
		Year:    tags.Year,
		AddedAt: f.mtime,
	}, err
}

// relative trims the root so directories above the library are never read
// as artist or album
func (s *Scanner) relative(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return path
	}
	return rel
}
