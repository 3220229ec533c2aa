package store

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

func TestInsertIndexedTrackIgnoresDuplicates(t *testing.T) {
	store := openTestStore(t, nil)
	ctx := context.Background()

	track := &IndexedTrack{
		TitleClean:  "stairway to heaven",
		ArtistClean: "led zeppelin",
		AlbumClean:  "led zeppelin iv",
		Year:        sql.NullInt64{Int64: 1971, Valid: true},
		AddedAt:     sql.NullTime{Time: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), Valid: true},
	}

	inserted, err := store.InsertIndexedTrack(ctx, track)
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if !inserted {
		t.Error("expected first insert to write a row")
	}

	inserted, err = store.InsertIndexedTrack(ctx, track)
	if err != nil {
		t.Fatalf("failed to insert duplicate: %v", err)
	}
	if inserted {
		t.Error("expected duplicate insert to be ignored")
	}

	count, err := store.CountIndexed(ctx)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	rows, err := store.ListIndexed(ctx, 0, 10)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(rows) != 1 || !rows[0].Year.Valid || rows[0].Year.Int64 != 1971 {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestInsertIndexedTracksCountsOnlyNewRows(t *testing.T) {
	store := openTestStore(t, nil)
	ctx := context.Background()

	rows := []IndexedTrack{
		{TitleClean: "one", ArtistClean: "a"},
		{TitleClean: "two", ArtistClean: "a"},
		{TitleClean: "one", ArtistClean: "a"},
		{TitleClean: "one", ArtistClean: "a", AlbumClean: "other"},
	}

	inserted, err := store.InsertIndexedTracks(ctx, rows)
	if err != nil {
		t.Fatalf("failed to bulk insert: %v", err)
	}
	if inserted != 3 {
		t.Errorf("expected 3 inserted rows, got %d", inserted)
	}

	cleared, err := store.ClearIndex(ctx)
	if err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
	if cleared != 3 {
		t.Errorf("expected 3 cleared rows, got %d", cleared)
	}
}

func TestIndexLookups(t *testing.T) {
	store := openTestStore(t, nil)
	ctx := context.Background()

	_, err := store.InsertIndexedTracks(ctx, []IndexedTrack{
		{TitleClean: "stairway to heaven", ArtistClean: "led zeppelin", AlbumClean: "led zeppelin iv"},
		{TitleClean: "untagged song", ArtistClean: ""},
		{TitleClean: "100_percent", ArtistClean: "under_score"},
	})
	if err != nil {
		t.Fatalf("failed to seed index: %v", err)
	}

	tests := []struct {
		name     string
		check    func() (bool, error)
		expected bool
	}{
		{"exact hit", func() (bool, error) { return store.HasExactTrack(ctx, "stairway to heaven", "led zeppelin") }, true},
		{"exact miss", func() (bool, error) { return store.HasExactTrack(ctx, "stairway to heaven", "zeppelin") }, false},
		{"blank artist row", func() (bool, error) { return store.HasTitleWithArtistOrBlank(ctx, "untagged song", "someone") }, true},
		{"artist fragment", func() (bool, error) { return store.HasTitleWithArtistContaining(ctx, "stairway to heaven", "led ") }, true},
		{"underscore is literal", func() (bool, error) { return store.HasTitleWithArtistContaining(ctx, "100_percent", "r_s") }, true},
		{"underscore is not a wildcard", func() (bool, error) { return store.HasTitleWithArtistContaining(ctx, "100_percent", "r-s") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.check()
			if err != nil {
				t.Fatalf("lookup failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %v, expected %v", got, tt.expected)
			}
		})
	}

	candidates, err := store.FindCandidates(ctx, []string{"stai", "unta"})
	if err != nil {
		t.Fatalf("failed to find candidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Errorf("expected 2 candidates, got %d: %+v", len(candidates), candidates)
	}

	titles, err := store.FindTitlesContaining(ctx, "way")
	if err != nil {
		t.Fatalf("failed to find titles: %v", err)
	}
	if len(titles) != 1 || titles[0] != "stairway to heaven" {
		t.Errorf("unexpected titles: %v", titles)
	}

	n, err := store.CountAlbumTracks(ctx, "zeppelin iv", "led zeppelin", true, false)
	if err != nil {
		t.Fatalf("failed to count album tracks: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 album track, got %d", n)
	}
}

func TestContainsPattern(t *testing.T) {
	tests := []struct {
		in, expected string
	}{
		{"abc", "%abc%"},
		{"50%", `%50\%%`},
		{"a_b", `%a\_b%`},
		{`c:\x`, `%c:\\x%`},
	}
	for _, tt := range tests {
		if got := ContainsPattern(tt.in); got != tt.expected {
			t.Errorf("ContainsPattern(%q) = %q, expected %q", tt.in, got, tt.expected)
		}
	}
}
