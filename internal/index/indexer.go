package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/franz/track-index/internal/meta"
	"github.com/franz/track-index/internal/store"
	"github.com/franz/track-index/internal/util"
)

const (
	// DefaultChunkSize bounds how many rows one bulk transaction writes
	DefaultChunkSize = 1000

	// RebuildBatchSize is how many source tracks a rebuild hands to AddBulk
	// between cancellation checks
	RebuildBatchSize = 2500
)

// Track is one record from a media source. Title, Artist and Album may be
// empty; Year 0 and a zero AddedAt mean unknown.
type Track struct {
	Title   string
	Artist  string
	Album   string
	Year    int
	AddedAt time.Time
}

// Empty reports whether the track has neither title nor artist
func (t Track) Empty() bool {
	return t.Title == "" && t.Artist == ""
}

// Source enumerates tracks of a media library
type Source interface {
	// Tracks returns every track in the library
	Tracks(ctx context.Context) ([]Track, error)
	// RecentlyAdded returns up to limit tracks, newest first
	RecentlyAdded(ctx context.Context, limit int) ([]Track, error)
}

// Stats summarizes the index
type Stats struct {
	TotalIndexed int64
}

// RebuildResult summarizes a full re-index
type RebuildResult struct {
	Processed int // Tracks received from the source
	Indexed   int // Rows written
	Batches   int // Batches completed
	Cancelled bool
}

// Indexer populates the library index
type Indexer struct {
	store     *store.Store
	chunkSize int
}

// Config holds indexer configuration
type Config struct {
	Store     *store.Store
	ChunkSize int
}

// New creates a new Indexer
func New(cfg *Config) *Indexer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Indexer{
		store:     cfg.Store,
		chunkSize: cfg.ChunkSize,
	}
}

// toRow normalizes a track into an index row
func toRow(t Track) store.IndexedTrack {
	row := store.IndexedTrack{
		TitleClean:  meta.Normalize(t.Title),
		ArtistClean: meta.Normalize(t.Artist),
		AlbumClean:  meta.Normalize(t.Album),
	}
	if t.Year > 0 {
		row.Year = sql.NullInt64{Int64: int64(t.Year), Valid: true}
	}
	if !t.AddedAt.IsZero() {
		row.AddedAt = sql.NullTime{Time: t.AddedAt.UTC(), Valid: true}
	}
	return row
}

// AddOne indexes a single track. It returns false when the track was
// rejected (no title and no artist) or could not be written; a duplicate
// counts as accepted.
func (ix *Indexer) AddOne(ctx context.Context, t Track) bool {
	if t.Empty() {
		util.DebugLog("Index: skipping track with empty title and artist")
		return false
	}

	row := toRow(t)
	if _, err := ix.store.InsertIndexedTrack(ctx, &row); err != nil {
		util.ErrorLog("Index: failed to add %q - %q: %v", t.Title, t.Artist, err)
		return false
	}
	return true
}

// AddBulk indexes tracks in chunks of chunkSize (<= 0 uses the configured
// size), one transaction per chunk. A failed chunk is logged and skipped.
// Returns the number of rows actually inserted; duplicates are not counted.
func (ix *Indexer) AddBulk(ctx context.Context, tracks []Track, chunkSize int) int {
	if chunkSize <= 0 {
		chunkSize = ix.chunkSize
	}

	rows := make([]store.IndexedTrack, 0, len(tracks))
	for _, t := range tracks {
		if t.Empty() {
			continue
		}
		rows = append(rows, toRow(t))
	}

	if len(rows) == 0 {
		if len(tracks) > 0 {
			util.WarnLog("Index: no valid tracks among %d records", len(tracks))
		}
		return 0
	}

	totalChunks := (len(rows) + chunkSize - 1) / chunkSize
	util.DebugLog("Index: inserting %d valid tracks in %d chunks of %d", len(rows), totalChunks, chunkSize)

	var inserted int64
	start := time.Now()
	for chunkStart := 0; chunkStart < len(rows); chunkStart += chunkSize {
		chunkEnd := min(chunkStart+chunkSize, len(rows))
		chunkNum := chunkStart/chunkSize + 1

		n, err := ix.store.InsertIndexedTracks(ctx, rows[chunkStart:chunkEnd])
		if err != nil {
			util.ErrorLog("Index: chunk %d/%d failed: %v", chunkNum, totalChunks, err)
			continue
		}
		inserted += n

		util.DebugLog("Index: chunk %d/%d: %d/%d inserted (total %d)",
			chunkNum, totalChunks, n, chunkEnd-chunkStart, inserted)
	}

	util.DebugLog("Index: inserted %d/%d tracks in %v", inserted, len(rows), time.Since(start).Round(time.Millisecond))
	return int(inserted)
}

// Clear removes every row from the index
func (ix *Indexer) Clear(ctx context.Context) (int64, error) {
	n, err := ix.store.ClearIndex(ctx)
	if err != nil {
		return 0, err
	}
	util.InfoLog("Index cleared (%d rows removed)", n)
	return n, nil
}

// Stats returns index statistics. Storage errors yield zero counts.
func (ix *Indexer) Stats(ctx context.Context) Stats {
	n, err := ix.store.CountIndexed(ctx)
	if err != nil {
		util.ErrorLog("Index: failed to read stats: %v", err)
		return Stats{}
	}
	return Stats{TotalIndexed: n}
}

// Rebuild clears the index and re-populates it from src in batches,
// checking ctx between batches. A cancelled rebuild keeps what it wrote.
func (ix *Indexer) Rebuild(ctx context.Context, src Source) (*RebuildResult, error) {
	if _, err := ix.Clear(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear index: %w", err)
	}

	util.InfoLog("Fetching tracks from source...")
	tracks, err := src.Tracks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tracks: %w", err)
	}
	util.InfoLog("Indexing %d tracks in batches of %d", len(tracks), RebuildBatchSize)

	result := &RebuildResult{}
	bar := util.NewProgressBar(int64(len(tracks)), "Indexing", "tracks")

	for start := 0; start < len(tracks); start += RebuildBatchSize {
		if err := ctx.Err(); err != nil {
			util.WarnLog("Rebuild stopped after %d/%d tracks", result.Processed, len(tracks))
			result.Cancelled = true
			break
		}

		end := min(start+RebuildBatchSize, len(tracks))
		batch := tracks[start:end]

		result.Indexed += ix.AddBulk(ctx, batch, ix.chunkSize)
		result.Processed += len(batch)
		result.Batches++

		if bar != nil {
			bar.Add(len(batch))
		} else {
			util.InfoLog("Progress: %d/%d tracks processed, %d indexed",
				result.Processed, len(tracks), result.Indexed)
		}
	}

	if bar != nil {
		bar.Finish()
	}

	if !result.Cancelled {
		util.SuccessLog("Rebuild complete: %d tracks processed, %d indexed in %d batches",
			result.Processed, result.Indexed, result.Batches)
	}
	return result, nil
}

// AddRecent indexes up to limit recently added tracks from src, keeping only
// those added within window of now (window <= 0 keeps all). Tracks with no
// AddedAt are kept. Returns the number of rows inserted.
func (ix *Indexer) AddRecent(ctx context.Context, src Source, window time.Duration, limit int) (int, error) {
	tracks, err := src.RecentlyAdded(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch recently added tracks: %w", err)
	}

	if window > 0 {
		cutoff := time.Now().Add(-window)
		recent := tracks[:0:0]
		for _, t := range tracks {
			if t.AddedAt.IsZero() || !t.AddedAt.Before(cutoff) {
				recent = append(recent, t)
			}
		}
		tracks = recent
	}

	if len(tracks) == 0 {
		util.DebugLog("Index: no recently added tracks")
		return 0, nil
	}

	n := ix.AddBulk(ctx, tracks, ix.chunkSize)
	util.InfoLog("Indexed %d of %d recently added tracks", n, len(tracks))
	return n, nil
}
