package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/franz/track-index/internal/index"
	"github.com/franz/track-index/internal/match"
	"github.com/franz/track-index/internal/registry"
	"github.com/franz/track-index/internal/report"
	"github.com/franz/track-index/internal/util"
)

const (
	// RecentWindow is how far back RescanMissing looks for new library tracks
	RecentWindow = 30 * time.Minute

	// RecentLimit caps how many recently added tracks RescanMissing fetches
	RecentLimit = 500

	// checkEvery is how many items a sequential job handles between
	// cancellation checks
	checkEvery = 50
)

// Sweeper runs the batch jobs that reconcile the registry with the library
type Sweeper struct {
	indexer  *index.Indexer
	engine   *match.Engine
	registry *registry.Registry
	events   *report.EventLogger
	workers  int
}

// Config holds sweeper configuration
type Config struct {
	Indexer  *index.Indexer
	Engine   *match.Engine
	Registry *registry.Registry
	Events   *report.EventLogger // nil disables the event log
	Workers  int
}

// New creates a new Sweeper
func New(cfg *Config) *Sweeper {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Sweeper{
		indexer:  cfg.Indexer,
		engine:   cfg.Engine,
		registry: cfg.Registry,
		events:   cfg.Events,
		workers:  cfg.Workers,
	}
}

// OpenEventLog creates the event log for one sweep run under a fresh run ID
func OpenEventLog(fsys afero.Fs, dir string, minLevel report.EventLevel) (*report.EventLogger, error) {
	return report.NewEventLogger(fsys, dir, uuid.NewString(), minLevel)
}

// IndexLookup checks the local index with the smart strategy. It is the
// default lookup for VerifyDownloaded when no live source is available.
func (s *Sweeper) IndexLookup(ctx context.Context, title, artist string) (bool, error) {
	return s.engine.Smart(ctx, title, artist), nil
}

// RescanResult summarizes a RescanMissing run
type RescanResult struct {
	Indexed   int // Recently added tracks written to the index
	Checked   int // Missing items matched against the index
	Found     int // Items marked downloaded
	Cancelled bool
}

// RescanMissing indexes tracks recently added to src (nil skips this step),
// then smart-matches every missing item and marks found ones downloaded
func (s *Sweeper) RescanMissing(ctx context.Context, src index.Source) (*RescanResult, error) {
	const job = "rescan"
	start := time.Now()
	s.events.LogRunStart(job)
	util.InfoLog("Starting post-download rescan of missing items")

	result := &RescanResult{}

	if src != nil {
		n, err := s.indexer.AddRecent(ctx, src, RecentWindow, RecentLimit)
		if err != nil {
			// The index may still hold newer rows from other writers
			util.WarnLog("Could not index recently added tracks: %v", err)
			s.events.LogError(job, 0, err)
		}
		result.Indexed = n
		s.events.LogIndex(job, n)
	}

	items, err := s.registry.List(ctx, registry.StatusMissing)
	if err != nil {
		s.endRun(job, start, nil, err)
		return nil, fmt.Errorf("failed to list missing items: %w", err)
	}
	util.InfoLog("Checking %d missing items against the index", len(items))

	for i, item := range items {
		if i%checkEvery == 0 && ctx.Err() != nil {
			result.Cancelled = true
			util.WarnLog("Rescan stopped after %d/%d items", i, len(items))
			break
		}
		result.Checked++

		if !s.engine.Smart(ctx, item.Title, item.Artist) {
			continue
		}
		if err := s.registry.SetStatus(ctx, item.ID, registry.StatusDownloaded); err != nil {
			util.ErrorLog("Failed to mark %q - %q downloaded: %v", item.Title, item.Artist, err)
			s.events.LogError(job, item.ID, err)
			continue
		}
		result.Found++
		s.events.LogMatch(item.ID, item.Title, item.Artist, string(match.MethodSmart))
		util.InfoLog("Now present: %q - %q", item.Title, item.Artist)
	}

	s.endRun(job, start, map[string]int{
		"indexed": result.Indexed,
		"checked": result.Checked,
		"found":   result.Found,
	}, nil)
	util.SuccessLog("Rescan complete: %d indexed, %d/%d missing items found",
		result.Indexed, result.Found, result.Checked)
	return result, nil
}

// VerifyDownloaded re-checks every downloaded item with lookup (nil uses
// IndexLookup) and resets unconfirmed items to missing
func (s *Sweeper) VerifyDownloaded(ctx context.Context, lookup registry.LookupFunc) (confirmed, reset int, err error) {
	const job = "verify-downloaded"
	start := time.Now()
	s.events.LogRunStart(job)

	if lookup == nil {
		lookup = s.IndexLookup
	}

	confirmed, reset, err = s.registry.VerifyDownloaded(ctx, lookup)
	s.endRun(job, start, map[string]int{"confirmed": confirmed, "reset": reset}, err)
	return confirmed, reset, err
}

// endRun logs the end of a job and records its metrics; counters may be nil
func (s *Sweeper) endRun(job string, start time.Time, counters map[string]int, err error) {
	duration := time.Since(start)
	s.events.LogRunEnd(job, duration, counters, err)
	observeRun(job, duration, counters, err)
}
