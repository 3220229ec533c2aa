package registry

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/franz/track-index/internal/store"
	"github.com/franz/track-index/internal/util"
)

func setupRegistry(t *testing.T) (*Registry, *store.Store) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(&Config{Store: db, Workers: 3}), db
}

func record(t *testing.T, r *Registry, title, artist, source string) int64 {
	t.Helper()
	ctx := t.Context()
	if _, err := r.RecordIfAbsent(ctx, Item{Title: title, Artist: artist, SourceContext: source}); err != nil {
		t.Fatalf("failed to record %q: %v", title, err)
	}
	items, err := r.FindByTitleArtist(ctx, title, artist)
	if err != nil || len(items) == 0 {
		t.Fatalf("failed to find %q: %v", title, err)
	}
	return items[len(items)-1].ID
}

func TestParseStatus(t *testing.T) {
	for _, raw := range []string{"missing", "downloaded", "resolved_manual"} {
		if s, err := ParseStatus(raw); err != nil || string(s) != raw {
			t.Errorf("ParseStatus(%q) = %q, %v", raw, s, err)
		}
	}
	for _, raw := range []string{"", "1", "Missing", "found"} {
		if _, err := ParseStatus(raw); !errors.Is(err, util.ErrInvalidStatus) {
			t.Errorf("ParseStatus(%q): expected ErrInvalidStatus, got %v", raw, err)
		}
	}
}

func TestRecordIfAbsent(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	item := Item{Title: "Hey Jude", Artist: "The Beatles", Album: "Single", SourceContext: "Weekly Mix", SourceService: "spotify"}

	added, err := r.RecordIfAbsent(ctx, item)
	if err != nil || !added {
		t.Fatalf("expected first record to be added, got %v, %v", added, err)
	}

	added, err = r.RecordIfAbsent(ctx, item)
	if err != nil || added {
		t.Errorf("expected duplicate to be a no-op, got %v, %v", added, err)
	}

	// Same track from another context is a separate entry
	item.SourceContext = "Road Trip"
	added, err = r.RecordIfAbsent(ctx, item)
	if err != nil || !added {
		t.Errorf("expected record from another context to be added, got %v, %v", added, err)
	}

	items, err := r.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for _, it := range items {
		if it.Status != StatusMissing {
			t.Errorf("expected status missing, got %q", it.Status)
		}
		if it.SourceService != "spotify" || it.AddedAt.IsZero() {
			t.Errorf("expected source service and added_at to be set, got %+v", it)
		}
	}

	if _, err := r.RecordIfAbsent(ctx, Item{Album: "x"}); !errors.Is(err, util.ErrEmptyTrack) {
		t.Errorf("expected ErrEmptyTrack, got %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()
	id := record(t, r, "Song", "Artist", "ctx")

	if err := r.SetStatus(ctx, id, StatusDownloaded); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	item, err := r.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.Status != StatusDownloaded {
		t.Errorf("expected downloaded, got %q", item.Status)
	}

	// Transitions are not checked
	if err := r.SetStatus(ctx, id, StatusResolvedManual); err != nil {
		t.Errorf("SetStatus failed: %v", err)
	}
	if err := r.SetStatus(ctx, id, StatusMissing); err != nil {
		t.Errorf("SetStatus failed: %v", err)
	}

	if err := r.SetStatus(ctx, id, Status("bogus")); !errors.Is(err, util.ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	if err := r.SetStatus(ctx, 9999, StatusMissing); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListHealsCorruptedStatus(t *testing.T) {
	r, db := setupRegistry(t)
	ctx := context.Background()

	ids := []int64{
		record(t, r, "A", "x", "ctx"),
		record(t, r, "B", "x", "ctx"),
		record(t, r, "C", "x", "ctx"),
	}
	if _, err := db.DB().Exec("UPDATE missing_items SET status = 1 WHERE id = ?", ids[0]); err != nil {
		t.Fatalf("failed to corrupt status: %v", err)
	}
	if _, err := db.DB().Exec("UPDATE missing_items SET status = NULL WHERE id = ?", ids[1]); err != nil {
		t.Fatalf("failed to corrupt status: %v", err)
	}

	items, err := r.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for _, it := range items {
		if it.Status != StatusMissing {
			t.Errorf("expected healed status missing for %q, got %q", it.Title, it.Status)
		}
	}

	// Nothing left to heal
	n, err := r.HealCorruptedStatus(ctx)
	if err != nil || n != 0 {
		t.Errorf("expected nothing to heal, got %d, %v", n, err)
	}
}

func TestFilteredListHealsCorruptedStatus(t *testing.T) {
	r, db := setupRegistry(t)
	ctx := context.Background()

	numeric := record(t, r, "Song X", "x", "ctx")
	stray := record(t, r, "Song Y", "y", "ctx")
	record(t, r, "Song Z", "z", "ctx")
	if _, err := db.DB().Exec("UPDATE missing_items SET status = 7 WHERE id = ?", numeric); err != nil {
		t.Fatalf("failed to corrupt status: %v", err)
	}
	if _, err := db.DB().Exec("UPDATE missing_items SET status = 'lost' WHERE id = ?", stray); err != nil {
		t.Fatalf("failed to corrupt status: %v", err)
	}

	items, err := r.List(ctx, StatusMissing)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected corrupted rows to be healed into the missing list, got %d items", len(items))
	}

	var stored string
	if err := db.DB().QueryRow("SELECT status FROM missing_items WHERE id = ?", numeric).Scan(&stored); err != nil {
		t.Fatalf("failed to read status: %v", err)
	}
	if stored != string(StatusMissing) {
		t.Errorf("expected stored status missing, got %q", stored)
	}

	downloaded, err := r.List(ctx, StatusDownloaded)
	if err != nil || len(downloaded) != 0 {
		t.Errorf("expected no downloaded items, got %d, %v", len(downloaded), err)
	}
}

func TestGetHealsCorruptedStatus(t *testing.T) {
	r, db := setupRegistry(t)
	ctx := context.Background()
	id := record(t, r, "A", "x", "ctx")

	if _, err := db.DB().Exec("UPDATE missing_items SET status = 'lost' WHERE id = ?", id); err != nil {
		t.Fatalf("failed to corrupt status: %v", err)
	}

	item, err := r.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.Status != StatusMissing {
		t.Errorf("expected healed status missing, got %q", item.Status)
	}

	if _, err := r.Get(ctx, 9999); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	a := record(t, r, "A", "x", "ctx")
	b := record(t, r, "B", "x", "ctx")
	record(t, r, "C", "x", "ctx")
	r.SetStatus(ctx, a, StatusDownloaded)
	r.SetStatus(ctx, b, StatusResolvedManual)

	tests := []struct {
		statuses []Status
		expected int
	}{
		{nil, 3},
		{[]Status{StatusMissing}, 1},
		{[]Status{StatusDownloaded}, 1},
		{[]Status{StatusDownloaded, StatusResolvedManual}, 2},
	}

	for _, tt := range tests {
		items, err := r.List(ctx, tt.statuses...)
		if err != nil {
			t.Fatalf("List(%v) failed: %v", tt.statuses, err)
		}
		if len(items) != tt.expected {
			t.Errorf("List(%v) returned %d items, expected %d", tt.statuses, len(items), tt.expected)
		}
	}
}

func TestResetDownloadedToMissing(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	for _, title := range []string{"A", "B"} {
		r.SetStatus(ctx, record(t, r, title, "x", "ctx"), StatusDownloaded)
	}
	r.SetStatus(ctx, record(t, r, "C", "x", "ctx"), StatusResolvedManual)

	n, err := r.ResetDownloadedToMissing(ctx)
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 reset, got %d", n)
	}

	missing, _ := r.List(ctx, StatusMissing)
	if len(missing) != 2 {
		t.Errorf("expected 2 missing items, got %d", len(missing))
	}
}

func TestVerifyDownloaded(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	for _, title := range []string{"present 1", "present 2", "absent 1", "absent 2", "absent 3", "broken"} {
		r.SetStatus(ctx, record(t, r, title, "x", "ctx"), StatusDownloaded)
	}
	r.SetStatus(ctx, record(t, r, "never checked", "x", "ctx"), StatusResolvedManual)

	var mu sync.Mutex
	var checked []string
	lookup := func(ctx context.Context, title, artist string) (bool, error) {
		mu.Lock()
		checked = append(checked, title)
		mu.Unlock()

		switch title {
		case "present 1", "present 2":
			return true, nil
		case "broken":
			return false, errors.New("source unavailable")
		}
		return false, nil
	}

	confirmed, reset, err := r.VerifyDownloaded(ctx, lookup)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if confirmed != 2 || reset != 3 {
		t.Errorf("expected 2 confirmed and 3 reset, got %d and %d", confirmed, reset)
	}
	if len(checked) != 6 {
		t.Errorf("expected 6 lookups, got %d", len(checked))
	}

	// Failed lookups leave the item as it was
	downloaded, _ := r.List(ctx, StatusDownloaded)
	if len(downloaded) != 3 {
		t.Errorf("expected 3 items still downloaded, got %d", len(downloaded))
	}
	missing, _ := r.List(ctx, StatusMissing)
	if len(missing) != 3 {
		t.Errorf("expected 3 missing items, got %d", len(missing))
	}
}

func TestVerifyDownloadedEmpty(t *testing.T) {
	r, _ := setupRegistry(t)

	called := false
	confirmed, reset, err := r.VerifyDownloaded(context.Background(), func(ctx context.Context, title, artist string) (bool, error) {
		called = true
		return true, nil
	})
	if err != nil || confirmed != 0 || reset != 0 || called {
		t.Errorf("expected no work, got %d, %d, %v (called %v)", confirmed, reset, err, called)
	}
}

func TestVerifyDownloadedCancelled(t *testing.T) {
	r, _ := setupRegistry(t)
	r.SetStatus(context.Background(), record(t, r, "A", "x", "ctx"), StatusDownloaded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, reset, err := r.VerifyDownloaded(ctx, func(ctx context.Context, title, artist string) (bool, error) {
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if reset != 0 {
		t.Errorf("expected nothing reset, got %d", reset)
	}
}

func TestDeleteAndDeleteAll(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	a := record(t, r, "A", "x", "ctx")
	record(t, r, "B", "x", "ctx")
	record(t, r, "C", "x", "ctx")

	if err := r.Delete(ctx, a); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := r.Delete(ctx, a); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	n, err := r.DeleteAll(ctx)
	if err != nil || n != 2 {
		t.Errorf("expected 2 deleted, got %d, %v", n, err)
	}
	items, _ := r.List(ctx)
	if len(items) != 0 {
		t.Errorf("expected empty registry, got %d", len(items))
	}
}

func TestDirectDownloadAndRedownload(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()
	id := record(t, r, "A", "x", "ctx")

	if err := r.SetDirectDownload(ctx, id, "dl-42", "https://example.com/track/42"); err != nil {
		t.Fatalf("SetDirectDownload failed: %v", err)
	}
	r.SetStatus(ctx, id, StatusDownloaded)

	item, _ := r.Get(ctx, id)
	if item.DirectDownloadID != "dl-42" || item.OriginalURL != "https://example.com/track/42" {
		t.Errorf("expected download fields to be set, got %+v", item)
	}

	if err := r.ResetForRedownload(ctx, id); err != nil {
		t.Fatalf("ResetForRedownload failed: %v", err)
	}
	item, _ = r.Get(ctx, id)
	if item.Status != StatusMissing || item.DirectDownloadID != "" {
		t.Errorf("expected missing with no download, got %+v", item)
	}
	if item.OriginalURL != "https://example.com/track/42" {
		t.Errorf("expected original URL to be kept, got %q", item.OriginalURL)
	}

	if err := r.ResetForRedownload(ctx, 9999); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := r.SetDirectDownload(ctx, 9999, "x", "y"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCleanResolved(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	r.SetStatus(ctx, record(t, r, "A", "x", "ctx"), StatusDownloaded)
	r.SetStatus(ctx, record(t, r, "B", "x", "ctx"), StatusResolvedManual)
	record(t, r, "C", "x", "ctx")
	record(t, r, "D", "x", "ctx")

	removed, remaining, err := r.CleanResolved(ctx)
	if err != nil {
		t.Fatalf("CleanResolved failed: %v", err)
	}
	if removed != 2 || remaining != 2 {
		t.Errorf("expected 2 removed and 2 remaining, got %d and %d", removed, remaining)
	}
}

func TestCleanInvalid(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	record(t, r, "Real Song", "Real Artist", "Weekly Mix")
	record(t, r, "Another Song", "Band", "Chill")
	record(t, r, "Theme", "The Simpsons", "Weekly Mix")
	record(t, r, "Pilot Episode", "Someone", "Weekly Mix")
	record(t, r, "Song", "Artist", "Movie Soundtracks")
	record(t, r, "Song", "Artist", "archive_no_delete")

	n, err := r.CleanInvalid(ctx, nil)
	if err != nil {
		t.Fatalf("CleanInvalid failed: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 removed, got %d", n)
	}

	items, _ := r.List(ctx)
	if len(items) != 2 {
		t.Errorf("expected 2 items left, got %d", len(items))
	}

	// Custom keyword list replaces the default
	n, err = r.CleanInvalid(ctx, []string{"chill"})
	if err != nil || n != 1 {
		t.Errorf("expected 1 removed by custom keyword, got %d, %v", n, err)
	}
}

func TestCounts(t *testing.T) {
	r, _ := setupRegistry(t)
	ctx := context.Background()

	r.SetStatus(ctx, record(t, r, "A", "x", "ctx"), StatusDownloaded)
	record(t, r, "B", "x", "ctx")
	record(t, r, "C", "x", "ctx")

	counts, err := r.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts["missing"] != 2 || counts["downloaded"] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
