package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/franz/track-index/internal/index"
	"github.com/franz/track-index/internal/scan"
	"github.com/franz/track-index/internal/store"
)

func setupIndexer(t *testing.T) (*index.Indexer, *store.Store) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "watch.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return index.New(&index.Config{Store: db}), db
}

// pathReader names each track after its file
type pathReader struct{}

func (pathReader) ReadTrack(ctx context.Context, path string) (index.Track, error) {
	if filepath.Ext(path) == ".bad" {
		return index.Track{}, errors.New("unreadable")
	}
	return index.Track{Title: filepath.Base(path), Artist: "watcher"}, nil
}

func TestTakeReady(t *testing.T) {
	w := New(&Config{Debounce: 10 * time.Second})
	now := time.Now()

	w.queue("/lib/b.mp3", now.Add(-20*time.Second))
	w.queue("/lib/a.mp3", now.Add(-11*time.Second))
	w.queue("/lib/c.mp3", now.Add(-5*time.Second))

	ready, next := w.takeReady(now)
	if len(ready) != 2 || ready[0] != "/lib/a.mp3" || ready[1] != "/lib/b.mp3" {
		t.Errorf("Expected a and b ready, got %v", ready)
	}
	if next != 5*time.Second {
		t.Errorf("Expected next wait of 5s, got %s", next)
	}

	ready, next = w.takeReady(now.Add(5 * time.Second))
	if len(ready) != 1 || next != 0 {
		t.Errorf("Expected c ready and nothing left, got %v (next %s)", ready, next)
	}
}

func TestBatchSizeCapped(t *testing.T) {
	tests := []struct {
		requested int
		expected  int
	}{
		{0, MaxBatchSize},
		{10, 10},
		{500, MaxBatchSize},
	}

	for _, tt := range tests {
		w := New(&Config{BatchSize: tt.requested})
		if w.batchSize != tt.expected {
			t.Errorf("BatchSize %d: expected %d, got %d", tt.requested, tt.expected, w.batchSize)
		}
	}
}

func TestFlushIndexesInBatches(t *testing.T) {
	ix, db := setupIndexer(t)
	w := New(&Config{Indexer: ix, Reader: pathReader{}, Debounce: time.Second})
	ctx := context.Background()

	old := time.Now().Add(-time.Minute)
	for i := 0; i < 120; i++ {
		w.queue(fmt.Sprintf("/lib/track-%03d.mp3", i), old)
	}
	w.queue("/lib/broken.bad", old)

	if next := w.flush(ctx, time.Now()); next != 0 {
		t.Errorf("Expected nothing left pending, got next wait %s", next)
	}
	if w.Indexed() != 120 {
		t.Errorf("Expected 120 indexed, got %d", w.Indexed())
	}
	if w.Failed() != 1 {
		t.Errorf("Expected 1 failure, got %d", w.Failed())
	}

	total, err := db.CountIndexed(ctx)
	if err != nil {
		t.Fatalf("CountIndexed failed: %v", err)
	}
	if total != 120 {
		t.Errorf("Expected 120 rows, got %d", total)
	}
}

func TestFlushStopsWhenCancelled(t *testing.T) {
	ix, _ := setupIndexer(t)
	w := New(&Config{Indexer: ix, Reader: pathReader{}, Debounce: time.Second})

	old := time.Now().Add(-time.Minute)
	for i := 0; i < 10; i++ {
		w.queue(fmt.Sprintf("/lib/track-%d.mp3", i), old)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.flush(ctx, time.Now())

	if w.Indexed() != 0 {
		t.Errorf("Expected nothing indexed after cancellation, got %d", w.Indexed())
	}
}

func TestRunRequiresRoot(t *testing.T) {
	w := New(&Config{})
	if err := w.Run(context.Background()); err == nil {
		t.Error("Expected an error without a library root")
	}
}

func TestRunIndexesNewFiles(t *testing.T) {
	root := t.TempDir()
	ix, db := setupIndexer(t)
	reader := scan.New(&scan.Config{Root: root})
	w := New(&Config{Indexer: ix, Reader: reader, Root: root, Debounce: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("Run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watcher never became ready")
	}

	if err := os.WriteFile(filepath.Join(root, "Artist - Song.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	album := filepath.Join(root, "Band", "Album")
	if err := os.MkdirAll(album, 0o755); err != nil {
		t.Fatalf("Failed to create album dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(album, "01 - Opener.flac"), []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644)

	deadline := time.Now().Add(5 * time.Second)
	for w.Indexed() < 2 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned error: %v", err)
	}

	if w.Indexed() < 2 {
		t.Fatalf("Expected 2 files indexed, got %d", w.Indexed())
	}

	found, err := db.HasExactTrack(context.Background(), "opener", "band")
	if err != nil {
		t.Fatalf("HasExactTrack failed: %v", err)
	}
	if !found {
		t.Error("Expected track from the new album directory to be indexed")
	}
}

func TestRunIndexesQuietFilesDuringSteadyArrivals(t *testing.T) {
	root := t.TempDir()
	ix, _ := setupIndexer(t)
	w := New(&Config{Indexer: ix, Reader: pathReader{}, Root: root, Debounce: 300 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("Run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watcher never became ready")
	}

	if err := os.WriteFile(filepath.Join(root, "first.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	// A new file every 100ms keeps the watcher busy for 1.5s
	for i := 0; i < 15; i++ {
		time.Sleep(100 * time.Millisecond)
		name := filepath.Join(root, fmt.Sprintf("import %02d.mp3", i))
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatalf("Failed to write file: %v", err)
		}
	}
	indexedDuringImport := w.Indexed()

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned error: %v", err)
	}

	if indexedDuringImport == 0 {
		t.Error("Expected quiet files to be indexed while new files kept arriving")
	}
}
