package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/franz/track-index/internal/index"
	"github.com/franz/track-index/internal/meta"
	"github.com/franz/track-index/internal/util"
)

const (
	// DefaultDebounce is how long a file must stay quiet before it is indexed
	DefaultDebounce = 30 * time.Second

	// MaxBatchSize bounds how many files one flush indexes between
	// cancellation checks
	MaxBatchSize = 50
)

// TrackReader turns an audio file into a track
type TrackReader interface {
	ReadTrack(ctx context.Context, path string) (index.Track, error)
}

// Watcher indexes audio files as they appear under the library root
type Watcher struct {
	indexer   *index.Indexer
	reader    TrackReader
	root      string
	debounce  time.Duration
	batchSize int

	ready   chan struct{}
	indexed atomic.Int64
	failed  atomic.Int64

	mu      sync.Mutex
	pending map[string]time.Time
}

// Config holds watcher configuration
type Config struct {
	Indexer   *index.Indexer
	Reader    TrackReader
	Root      string
	Debounce  time.Duration
	BatchSize int
}

// New creates a new Watcher
func New(cfg *Config) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}

	return &Watcher{
		indexer:   cfg.Indexer,
		reader:    cfg.Reader,
		root:      cfg.Root,
		debounce:  cfg.Debounce,
		batchSize: cfg.BatchSize,
		ready:     make(chan struct{}),
		pending:   make(map[string]time.Time),
	}
}

// Ready is closed once the library tree is being watched
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Indexed returns how many files were accepted by the index
func (w *Watcher) Indexed() int64 {
	return w.indexed.Load()
}

// Failed returns how many files could not be read or indexed
func (w *Watcher) Failed() int64 {
	return w.failed.Load()
}

// Run watches the library until ctx is done. Files still waiting for their
// debounce when ctx ends are not indexed.
func (w *Watcher) Run(ctx context.Context) error {
	if w.root == "" {
		return fmt.Errorf("%w: library root is required", util.ErrInvalidConfig)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dirs, err := w.addTree(watcher, w.root)
	if err != nil {
		return err
	}
	util.InfoLog("Watching %s (%d directories, debounce %s, batches of %d)",
		w.root, dirs, w.debounce, w.batchSize)
	close(w.ready)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	// New files are never ready before the pending deadline, so events only
	// arm an idle timer
	armed := false

	for {
		select {
		case <-ctx.Done():
			util.InfoLog("Watcher stopped: %d indexed, %d failed", w.Indexed(), w.Failed())
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if w.handleEvent(watcher, ev) && !armed {
				armed = true
				timer.Reset(w.debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			util.WarnLog("Directory watcher error: %v", err)

		case <-timer.C:
			armed = false
			if next := w.flush(ctx, time.Now()); next > 0 {
				armed = true
				timer.Reset(next)
			}
		}
	}
}

// handleEvent records the event and reports whether a file was queued
func (w *Watcher) handleEvent(watcher *fsnotify.Watcher, ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		// Index rows are never removed; only drop what has not been indexed yet
		w.mu.Lock()
		delete(w.pending, ev.Name)
		w.mu.Unlock()
		return false
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		util.DebugLog("Watch event stat failed for %s: %v", ev.Name, err)
		return false
	}

	if info.IsDir() {
		if ev.Has(fsnotify.Create) {
			if _, err := w.addTree(watcher, ev.Name); err != nil {
				util.WarnLog("Failed to watch new directory %s: %v", ev.Name, err)
			}
			return w.queueTree(ev.Name)
		}
		return false
	}

	if !meta.IsAudioFile(ev.Name) {
		return false
	}
	w.queue(ev.Name, time.Now())
	return true
}

// addTree watches dir and every directory below it
func (w *Watcher) addTree(watcher *fsnotify.Watcher, dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			util.WarnLog("Error accessing path %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		count++
		return nil
	})
	return count, err
}

// queueTree queues audio files already present in a new directory, which
// may have been moved in whole
func (w *Watcher) queueTree(dir string) bool {
	queued := false
	now := time.Now()
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && meta.IsAudioFile(path) {
			w.queue(path, now)
			queued = true
		}
		return nil
	})
	return queued
}

func (w *Watcher) queue(path string, at time.Time) {
	w.mu.Lock()
	w.pending[path] = at
	w.mu.Unlock()
}

// takeReady removes and returns files that have been quiet for the debounce
// period, oldest first, plus the wait until the next pending file is ready
// (0 when nothing is left)
func (w *Watcher) takeReady(now time.Time) ([]string, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	var next time.Duration
	for path, at := range w.pending {
		wait := w.debounce - now.Sub(at)
		if wait <= 0 {
			ready = append(ready, path)
			delete(w.pending, path)
			continue
		}
		if next == 0 || wait < next {
			next = wait
		}
	}

	sort.Strings(ready)
	return ready, next
}

// flush indexes every ready file in batches, checking ctx between batches.
// It returns the wait until more files are ready.
func (w *Watcher) flush(ctx context.Context, now time.Time) time.Duration {
	ready, next := w.takeReady(now)
	if len(ready) == 0 {
		return next
	}

	for start := 0; start < len(ready); start += w.batchSize {
		if ctx.Err() != nil {
			return 0
		}
		end := min(start+w.batchSize, len(ready))
		w.indexBatch(ctx, ready[start:end])
	}

	util.InfoLog("Watcher: %d new files processed (%d indexed in total)", len(ready), w.Indexed())
	return next
}

func (w *Watcher) indexBatch(ctx context.Context, paths []string) {
	for _, path := range paths {
		track, err := w.reader.ReadTrack(ctx, path)
		if err != nil {
			util.WarnLog("Watcher: skipping %s: %v", path, err)
			w.failed.Add(1)
			continue
		}
		if !w.indexer.AddOne(ctx, track) {
			w.failed.Add(1)
			continue
		}
		w.indexed.Add(1)
		util.DebugLog("Watcher: indexed %s - %s", track.Artist, track.Title)
	}
}
