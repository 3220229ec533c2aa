package registry

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/franz/track-index/internal/store"
	"github.com/franz/track-index/internal/util"
)

// Status is the lifecycle state of a missing item
type Status string

const (
	StatusMissing        Status = "missing"
	StatusDownloaded     Status = "downloaded"
	StatusResolvedManual Status = "resolved_manual"
)

// validStatuses is the full status domain
var validStatuses = []string{string(StatusMissing), string(StatusDownloaded), string(StatusResolvedManual)}

// Valid reports whether s is in the status domain
func (s Status) Valid() bool {
	switch s {
	case StatusMissing, StatusDownloaded, StatusResolvedManual:
		return true
	}
	return false
}

// ParseStatus converts a raw value into a Status
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", util.ErrInvalidStatus, raw)
	}
	return s, nil
}

// DefaultInvalidKeywords mark registry entries that came from TV or film
// sources rather than music
var DefaultInvalidKeywords = []string{
	"simpsons", "simpson", "family guy", "american dad", "king of the hill",
	"episode", "tv show", "serie", "film", "movie",
}

// protectedContextMarker in a source context marks entries that must be purged
const protectedContextMarker = "no_delete"

// Item is one missing-item record
type Item struct {
	ID               int64
	Title            string
	Artist           string
	Album            string
	SourceContext    string // Playlist or job that reported the track
	SourceContextID  string
	SourceService    string
	Status           Status
	AddedAt          time.Time
	DirectDownloadID string
	OriginalURL      string
}

func fromRow(row *store.MissingItem) Item {
	return Item{
		ID:               row.ID,
		Title:            row.Title,
		Artist:           row.Artist,
		Album:            row.Album,
		SourceContext:    row.SourceContext,
		SourceContextID:  row.SourceContextID.String,
		SourceService:    row.SourceService.String,
		Status:           Status(row.Status.String),
		AddedAt:          row.AddedAt.Time,
		DirectDownloadID: row.DirectDownloadID.String,
		OriginalURL:      row.OriginalURL.String,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// LookupFunc reports whether a track is present in the library
type LookupFunc func(ctx context.Context, title, artist string) (bool, error)

// Registry tracks items known to be absent from the library
type Registry struct {
	store   *store.Store
	workers int
}

// Config holds registry configuration
type Config struct {
	Store   *store.Store
	Workers int // Concurrent lookups in VerifyDownloaded
}

// New creates a new Registry
func New(cfg *Config) *Registry {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Registry{
		store:   cfg.Store,
		workers: cfg.Workers,
	}
}

// RecordIfAbsent records item as missing unless an entry with the same
// title, artist and source context exists. Returns whether a row was added.
func (r *Registry) RecordIfAbsent(ctx context.Context, item Item) (bool, error) {
	if item.Title == "" && item.Artist == "" {
		return false, util.ErrEmptyTrack
	}

	row := &store.MissingItem{
		Title:           item.Title,
		Artist:          item.Artist,
		Album:           item.Album,
		SourceContext:   item.SourceContext,
		SourceContextID: nullString(item.SourceContextID),
		SourceService:   nullString(item.SourceService),
	}

	id, inserted, err := r.store.InsertMissingItemIfAbsent(ctx, row, string(StatusMissing))
	if err != nil {
		return false, err
	}
	if !inserted {
		util.DebugLog("Missing item already recorded (id %d): %q - %q from %q", id, item.Title, item.Artist, item.SourceContext)
		return false, nil
	}

	util.InfoLog("Recorded missing track: %q - %q from %q", item.Title, item.Artist, item.SourceContext)
	return true, nil
}

// SetStatus sets the status of one item. Transitions are not checked; only
// the status domain is.
func (r *Registry) SetStatus(ctx context.Context, id int64, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", util.ErrInvalidStatus, status)
	}

	n, err := r.store.UpdateMissingStatus(ctx, id, string(status))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("missing item %d: %w", id, util.ErrNotFound)
	}
	return nil
}

// HealCorruptedStatus resets every out-of-domain status (NULL, numbers,
// stray strings) to missing
func (r *Registry) HealCorruptedStatus(ctx context.Context) (int64, error) {
	n, err := r.store.HealMissingStatuses(ctx, validStatuses, string(StatusMissing))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		util.WarnLog("Healed %d missing items with corrupted status", n)
	}
	return n, nil
}

// List returns items whose status is one of statuses, newest first; no
// statuses returns every item. Corrupted statuses are healed before a
// filtered read, since the filter would hide them, and after an unfiltered
// read that finds any.
func (r *Registry) List(ctx context.Context, statuses ...Status) ([]Item, error) {
	filter := make([]string, len(statuses))
	for i, s := range statuses {
		filter[i] = string(s)
	}

	if len(filter) > 0 {
		corrupted, err := r.store.HasCorruptedMissingStatus(ctx, validStatuses)
		if err != nil {
			return nil, err
		}
		if corrupted {
			if _, err := r.HealCorruptedStatus(ctx); err != nil {
				return nil, err
			}
		}
	}

	rows, err := r.store.ListMissingItems(ctx, filter)
	if err != nil {
		return nil, err
	}

	if hasCorruptedStatus(rows) {
		if _, err := r.HealCorruptedStatus(ctx); err != nil {
			return nil, err
		}
		if rows, err = r.store.ListMissingItems(ctx, filter); err != nil {
			return nil, err
		}
	}

	items := make([]Item, len(rows))
	for i := range rows {
		items[i] = fromRow(&rows[i])
	}
	return items, nil
}

func hasCorruptedStatus(rows []store.MissingItem) bool {
	for i := range rows {
		if !rows[i].Status.Valid || !Status(rows[i].Status.String).Valid() {
			return true
		}
	}
	return false
}

// Get returns one item, healing its status first when it is corrupted
func (r *Registry) Get(ctx context.Context, id int64) (*Item, error) {
	row, err := r.store.GetMissingItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("missing item %d: %w", id, util.ErrNotFound)
	}

	if hasCorruptedStatus([]store.MissingItem{*row}) {
		if _, err := r.HealCorruptedStatus(ctx); err != nil {
			return nil, err
		}
		if row, err = r.store.GetMissingItem(ctx, id); err != nil {
			return nil, err
		}
		if row == nil {
			return nil, fmt.Errorf("missing item %d: %w", id, util.ErrNotFound)
		}
	}

	item := fromRow(row)
	return &item, nil
}

// FindByTitleArtist returns every item recorded for title and artist
func (r *Registry) FindByTitleArtist(ctx context.Context, title, artist string) ([]Item, error) {
	rows, err := r.store.FindMissingByTitleArtist(ctx, title, artist)
	if err != nil {
		return nil, err
	}
	items := make([]Item, len(rows))
	for i := range rows {
		items[i] = fromRow(&rows[i])
	}
	return items, nil
}

// ResetDownloadedToMissing moves every downloaded item back to missing so
// it is verified again
func (r *Registry) ResetDownloadedToMissing(ctx context.Context) (int64, error) {
	n, err := r.store.UpdateMissingStatusWhere(ctx, string(StatusDownloaded), string(StatusMissing))
	if err != nil {
		return 0, err
	}
	util.InfoLog("Reset %d downloaded items to missing", n)
	return n, nil
}

// VerifyDownloaded checks every downloaded item with lookup. Items the
// lookup does not confirm go back to missing; items whose lookup fails are
// left alone. Lookups run concurrently and stop early when ctx is done.
func (r *Registry) VerifyDownloaded(ctx context.Context, lookup LookupFunc) (confirmed, reset int, err error) {
	items, err := r.List(ctx, StatusDownloaded)
	if err != nil {
		return 0, 0, err
	}
	if len(items) == 0 {
		util.InfoLog("No downloaded items to verify")
		return 0, 0, nil
	}

	util.InfoLog("Verifying %d downloaded items", len(items))

	var confirmedCount, resetCount, failedCount atomic.Int64
	p := pool.New().WithMaxGoroutines(r.workers)
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}

			found, err := lookup(ctx, item.Title, item.Artist)
			if err != nil {
				failedCount.Add(1)
				util.WarnLog("Could not verify %q - %q: %v", item.Title, item.Artist, err)
				return
			}
			if found {
				confirmedCount.Add(1)
				return
			}

			if err := r.SetStatus(ctx, item.ID, StatusMissing); err != nil {
				failedCount.Add(1)
				util.ErrorLog("Failed to reset %q - %q: %v", item.Title, item.Artist, err)
				return
			}
			resetCount.Add(1)
			util.DebugLog("Not in library, reset to missing: %q - %q", item.Title, item.Artist)
		})
	}
	p.Wait()

	confirmed, reset = int(confirmedCount.Load()), int(resetCount.Load())
	util.InfoLog("Verification done: %d confirmed, %d reset, %d failed", confirmed, reset, failedCount.Load())
	return confirmed, reset, ctx.Err()
}

// Delete removes one item
func (r *Registry) Delete(ctx context.Context, id int64) error {
	n, err := r.store.DeleteMissingItem(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("missing item %d: %w", id, util.ErrNotFound)
	}
	return nil
}

// DeleteAll empties the registry
func (r *Registry) DeleteAll(ctx context.Context) (int64, error) {
	n, err := r.store.DeleteAllMissingItems(ctx)
	if err != nil {
		return 0, err
	}
	util.InfoLog("Deleted all %d missing items", n)
	return n, nil
}

// SetDirectDownload attaches a download to an item
func (r *Registry) SetDirectDownload(ctx context.Context, id int64, downloadID, originalURL string) error {
	n, err := r.store.SetDirectDownload(ctx, id, downloadID, originalURL)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("missing item %d: %w", id, util.ErrNotFound)
	}
	return nil
}

// ResetForRedownload puts an item back to missing with a fresh timestamp
// and no download attached
func (r *Registry) ResetForRedownload(ctx context.Context, id int64) error {
	n, err := r.store.ResetMissingForRedownload(ctx, id, string(StatusMissing))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("missing item %d: %w", id, util.ErrNotFound)
	}
	return nil
}

// CleanResolved deletes downloaded and manually resolved items. Returns the
// number removed and the number left.
func (r *Registry) CleanResolved(ctx context.Context) (removed, remaining int64, err error) {
	removed, err = r.store.DeleteMissingByStatus(ctx, []string{string(StatusDownloaded), string(StatusResolvedManual)})
	if err != nil {
		return 0, 0, err
	}
	remaining, err = r.store.CountMissingItems(ctx)
	if err != nil {
		return removed, 0, err
	}
	util.InfoLog("Removed %d resolved items, %d remaining", removed, remaining)
	return removed, remaining, nil
}

// CleanInvalid deletes items from protected source contexts and items whose
// title, artist or source context mentions one of keywords (nil uses
// DefaultInvalidKeywords). Matching ignores ASCII case.
func (r *Registry) CleanInvalid(ctx context.Context, keywords []string) (int64, error) {
	if keywords == nil {
		keywords = DefaultInvalidKeywords
	}
	n, err := r.store.DeleteMissingContaining(ctx, []string{protectedContextMarker}, keywords)
	if err != nil {
		return 0, err
	}
	util.InfoLog("Removed %d invalid missing items", n)
	return n, nil
}

// Counts returns item counts keyed by raw status
func (r *Registry) Counts(ctx context.Context) (map[string]int64, error) {
	return r.store.CountMissingByStatus(ctx)
}
