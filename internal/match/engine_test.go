package match

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/track-index/internal/index"
	"github.com/franz/track-index/internal/store"
)

func setupEngine(t *testing.T, fsys afero.Fs, tracks ...index.Track) *Engine {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "match.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ix := index.New(&index.Config{Store: db})
	if n := ix.AddBulk(context.Background(), tracks, 0); n != len(tracks) {
		t.Fatalf("expected %d tracks indexed, got %d", len(tracks), n)
	}

	if fsys == nil {
		fsys = afero.NewMemMapFs()
	}
	return New(&Config{Store: db, Fs: fsys, LibraryRoot: "/library"})
}

func TestTokenSetRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"stairway to heaven", "stairway to heaven", 100},
		{"heaven stairway to", "stairway to heaven", 100},
		{"stairway to heaven", "stairway to heaven - remastered 2012", 100},
		{"love me do", "love me two", 86},
		{"love me do", "love me tender", 82},
		{"hey jude live", "hey jude remastered", 76},
		{"the beatles", "beatles band", 78},
		{"zzzz", "the beatles", 0},
		{"", "anything", 0},
		{"anything", "", 0},
	}

	for _, tt := range tests {
		if got := TokenSetRatio(tt.a, tt.b); got != tt.want {
			t.Errorf("TokenSetRatio(%q, %q) = %.1f, expected %.1f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestBalancedAcceptsExtraWordsOnBothSides(t *testing.T) {
	e := setupEngine(t, nil, index.Track{Title: "Hey Jude Remastered", Artist: "Beatles Band"})

	res := e.Explain(context.Background(), BalancedStrategy, "Hey Jude Live", "The Beatles")
	if !res.Matched || res.Step != StepFuzzy || res.Threshold != 75 {
		t.Errorf("expected balanced fuzzy match at 75, got %+v", res)
	}
	if res.Score != 76.5 {
		t.Errorf("expected score 76.5, got %.2f", res.Score)
	}
}

func TestExact(t *testing.T) {
	e := setupEngine(t, nil, index.Track{Title: "Stairway to Heaven", Artist: "Led Zeppelin"})
	ctx := context.Background()

	tests := []struct {
		title, artist string
		expected      bool
	}{
		{"Stairway to Heaven", "Led Zeppelin", true},
		{"STAIRWAY TO HEAVEN", "led zeppelin", true},
		// Bracketed annotations are removed by normalization
		{"Stairway to Heaven (Remaster)", "Led Zeppelin", true},
		{"Stairway to Heaven - Remastered 2012", "Led Zeppelin", false},
		{"Stairway to Heaven", "Zeppelin", false},
	}

	for _, tt := range tests {
		if got := e.Exact(ctx, tt.title, tt.artist); got != tt.expected {
			t.Errorf("Exact(%q, %q) = %v, expected %v", tt.title, tt.artist, got, tt.expected)
		}
	}

	if !e.Balanced(ctx, "Stairway to Heaven (Remaster)", "Led Zeppelin") {
		t.Error("expected balanced match for the remaster annotation")
	}
	res := e.Explain(ctx, BalancedStrategy, "Stairway to Heaven (Remaster)", "Led Zeppelin")
	if res.Step != StepExact {
		t.Errorf("expected the annotation to match at the exact step, got %+v", res)
	}
}

func TestFuzzyRecoversAnnotatedTitle(t *testing.T) {
	e := setupEngine(t, nil, index.Track{Title: "Stairway to Heaven", Artist: "Led Zeppelin"})
	ctx := context.Background()

	title, artist := "Stairway to Heaven - Remastered 2012", "Led Zeppelin"
	if e.Exact(ctx, title, artist) {
		t.Fatal("expected exact match to fail")
	}

	res := e.Explain(ctx, BalancedStrategy, title, artist)
	if !res.Matched || res.Step != StepFuzzy || res.Threshold != 85 {
		t.Errorf("expected balanced fuzzy match at 85, got %+v", res)
	}
	if !e.Smart(ctx, title, artist) {
		t.Error("expected smart match")
	}
}

func TestArtistOrBlankStep(t *testing.T) {
	e := setupEngine(t, nil, index.Track{Title: "Untagged Song"})
	ctx := context.Background()

	for _, s := range []Strategy{BalancedStrategy, SmartStrategy} {
		res := e.Explain(ctx, s, "Untagged Song", "Somebody")
		if !res.Matched || res.Step != StepArtistOrBlank {
			t.Errorf("%s: expected match via %s, got %+v", s.Name, StepArtistOrBlank, res)
		}
	}
}

func TestArtistPrefixStep(t *testing.T) {
	e := setupEngine(t, nil, index.Track{Title: "Hey Jude", Artist: "The Beatles 1967"})
	ctx := context.Background()

	res := e.Explain(ctx, BalancedStrategy, "Hey Jude", "The Beatles")
	if !res.Matched || res.Step != StepArtistPrefix {
		t.Errorf("expected balanced match via %s, got %+v", StepArtistPrefix, res)
	}

	// Smart has no prefix step and falls through to fuzzy scoring
	res = e.Explain(ctx, SmartStrategy, "Hey Jude", "The Beatles")
	if !res.Matched || res.Step != StepFuzzy {
		t.Errorf("expected smart match via %s, got %+v", StepFuzzy, res)
	}
}

func TestTitleOnlyPass(t *testing.T) {
	e := setupEngine(t, nil, index.Track{Title: "Love Me Tender", Artist: "The Beatles"})
	ctx := context.Background()

	res := e.Explain(ctx, BalancedStrategy, "Love Me Do", "Zzzz")
	if !res.Matched || res.Step != StepTitleOnly {
		t.Errorf("expected balanced match via %s, got %+v", StepTitleOnly, res)
	}

	// Smart weights the artist more and has no title-only pass
	if e.Smart(ctx, "Love Me Do", "Zzzz") {
		t.Error("expected smart not to match")
	}
}

func TestNoMatch(t *testing.T) {
	e := setupEngine(t, nil, index.Track{Title: "Stairway to Heaven", Artist: "Led Zeppelin"})
	ctx := context.Background()

	for _, s := range []Strategy{BalancedStrategy, SmartStrategy} {
		res := e.Explain(ctx, s, "Completely Different", "Nobody Known")
		if res.Matched || res.Step != StepNone {
			t.Errorf("%s: expected no match, got %+v", s.Name, res)
		}
	}
}

func TestExactImpliesFuzzy(t *testing.T) {
	tracks := []index.Track{
		{Title: "Stairway to Heaven", Artist: "Led Zeppelin"},
		{Title: "Hey Jude", Artist: "The Beatles"},
		{Title: "Jóga", Artist: "Björk"},
		{Title: "Go", Artist: "M83"},
		{Title: "Intro"},
	}
	e := setupEngine(t, nil, tracks...)
	ctx := context.Background()

	for _, tr := range tracks {
		if !e.Exact(ctx, tr.Title, tr.Artist) {
			t.Fatalf("expected exact match for %q - %q", tr.Title, tr.Artist)
		}
		if !e.Balanced(ctx, tr.Title, tr.Artist) {
			t.Errorf("expected balanced match for %q - %q", tr.Title, tr.Artist)
		}
		if !e.Smart(ctx, tr.Title, tr.Artist) {
			t.Errorf("expected smart match for %q - %q", tr.Title, tr.Artist)
		}
	}
}

func TestStrategyByName(t *testing.T) {
	if s, ok := StrategyByName("balanced"); !ok || s.Name != "balanced" {
		t.Errorf("expected balanced strategy, got %+v", s)
	}
	if s, ok := StrategyByName("smart"); !ok || s.Name != "smart" {
		t.Errorf("expected smart strategy, got %+v", s)
	}
	if _, ok := StrategyByName("loose"); ok {
		t.Error("expected unknown strategy to be rejected")
	}
}

func TestVerify(t *testing.T) {
	fsys := afero.NewMemMapFs()
	afero.WriteFile(fsys, "/library/Pink Floyd/Animals/Dogs Of War.mp3", []byte("x"), 0o644)

	e := setupEngine(t, fsys, index.Track{Title: "Stairway to Heaven", Artist: "Led Zeppelin"})
	ctx := context.Background()

	tests := []struct {
		title, artist string
		expected      Verification
	}{
		{"Stairway to Heaven", "Led Zeppelin", Verification{Exists: true, Method: MethodExact}},
		{"Stairway to Heaven - Remastered 2012", "Led Zeppelin", Verification{Exists: true, Method: MethodSmart}},
		{"Dogs of War", "Pink Floyd", Verification{Exists: true, Method: MethodFilesystem}},
		{"Nothing Here", "No One", Verification{Exists: false, Method: MethodNone}},
	}

	for _, tt := range tests {
		if got := e.Verify(ctx, tt.title, tt.artist); got != tt.expected {
			t.Errorf("Verify(%q, %q) = %+v, expected %+v", tt.title, tt.artist, got, tt.expected)
		}
	}
}

func TestInFilesystem(t *testing.T) {
	fsys := afero.NewMemMapFs()
	files := []string{
		"/library/Led Zeppelin/IV/Stairway to Heaven.flac",
		"/library/misc/Bohemian Rhapsody - Queen.mp3",
		"/library/Radiohead/OK Computer/Airbag.ogg",
	}
	for _, f := range files {
		if err := afero.WriteFile(fsys, f, []byte("audio"), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", f, err)
		}
	}

	e := setupEngine(t, fsys)
	ctx := context.Background()

	tests := []struct {
		name          string
		title, artist string
		expected      bool
	}{
		{"artist dir with flac title", "Stairway to Heaven", "Led Zeppelin", true},
		{"case insensitive", "STAIRWAY TO HEAVEN", "led zeppelin", true},
		{"title then artist in filename", "Bohemian Rhapsody", "Queen", true},
		{"unsupported extension", "Airbag", "Radiohead", false},
		{"short artist", "Stairway to Heaven", "LZ", false},
		{"reserved characters removed", `Stairway to Heaven?`, `Led Zeppelin*`, true},
		{"not present", "Paranoid Android", "Radiohead", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.InFilesystem(ctx, tt.title, tt.artist); got != tt.expected {
				t.Errorf("InFilesystem(%q, %q) = %v, expected %v", tt.title, tt.artist, got, tt.expected)
			}
		})
	}
}

func TestInFilesystemRequiresRoot(t *testing.T) {
	fsys := afero.NewMemMapFs()
	afero.WriteFile(fsys, "/library/Led Zeppelin/Stairway to Heaven (Remaster).mp3", []byte("x"), 0o644)

	e := setupEngine(t, fsys)
	e.libraryRoot = ""
	if e.InFilesystem(context.Background(), "Stairway to Heaven", "Led Zeppelin") {
		t.Error("expected false without a library root")
	}

	e.libraryRoot = "/elsewhere"
	if e.InFilesystem(context.Background(), "Stairway to Heaven", "Led Zeppelin") {
		t.Error("expected false for a missing library root")
	}
}

func TestInFilesystemTimeout(t *testing.T) {
	fsys := afero.NewMemMapFs()
	afero.WriteFile(fsys, "/library/Led Zeppelin/Stairway to Heaven (Remaster).mp3", []byte("x"), 0o644)

	e := setupEngine(t, fsys)
	if !e.InFilesystem(context.Background(), "Stairway to Heaven", "Led Zeppelin") {
		t.Fatal("expected file to be found without a tight timeout")
	}

	e.fsCache.Purge()
	e.fsTimeout = time.Nanosecond
	if e.InFilesystem(context.Background(), "Stairway to Heaven", "Led Zeppelin") {
		t.Error("expected false once the search times out")
	}
}

func TestInFilesystemCachesCompletedSearches(t *testing.T) {
	fsys := afero.NewMemMapFs()
	path := "/library/Led Zeppelin/IV/Stairway to Heaven.flac"
	afero.WriteFile(fsys, path, []byte("x"), 0o644)

	e := setupEngine(t, fsys)
	ctx := context.Background()

	if !e.InFilesystem(ctx, "Stairway to Heaven", "Led Zeppelin") {
		t.Fatal("expected file to be found")
	}
	if e.InFilesystem(ctx, "Black Dog", "Led Zeppelin") {
		t.Fatal("expected Black Dog to be absent")
	}

	// Answers come from the cache, not the walk
	fsys.Remove(path)
	afero.WriteFile(fsys, "/library/Led Zeppelin/IV/Black Dog.mp3", []byte("x"), 0o644)
	if !e.InFilesystem(ctx, "stairway to heaven", "LED ZEPPELIN") {
		t.Error("expected cached hit regardless of case")
	}
	if e.InFilesystem(ctx, "Black Dog", "Led Zeppelin") {
		t.Error("expected cached miss")
	}

	e.fsCache.Purge()
	if e.InFilesystem(ctx, "Stairway to Heaven", "Led Zeppelin") {
		t.Error("expected a fresh walk after purge")
	}
	if !e.InFilesystem(ctx, "Black Dog", "Led Zeppelin") {
		t.Error("expected Black Dog after purge")
	}
}

func TestInFilesystemCacheDisabled(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "match.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	e := New(&Config{Store: db, Fs: afero.NewMemMapFs(), LibraryRoot: "/library", FSCacheSize: -1})
	if e.fsCache != nil {
		t.Error("expected no cache with a negative size")
	}
}

func TestAlbumExists(t *testing.T) {
	e := setupEngine(t, nil,
		index.Track{Title: "Tide", Artist: "Molly Grace", Album: "Harbor Songs"},
		index.Track{Title: "Anchor", Artist: "Molly Grace", Album: "Harbor Songs"},
	)
	ctx := context.Background()

	tests := []struct {
		artist, album string
		expected      bool
	}{
		{"Molly Grace", "Harbor Songs", true},
		{"Molly Grace", "Harbor", true},
		{"Grace", "Harbor Songs", true},
		{"Soprano Molly Grace", "Harbor Songs", true},
		{"Molly Grace", "Other Album", false},
		{"Someone Else", "Harbor Songs", false},
		{"Molly Grace", "", false},
	}

	for _, tt := range tests {
		if got := e.AlbumExists(ctx, tt.artist, tt.album); got != tt.expected {
			t.Errorf("AlbumExists(%q, %q) = %v, expected %v", tt.artist, tt.album, got, tt.expected)
		}
	}
}
