package meta

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/spf13/afero"

	"github.com/franz/track-index/internal/util"
)

// AudioExtensions are the supported audio file extensions
var AudioExtensions = []string{
	".mp3",
	".flac",
	".m4a",
	".aac",
	".ogg",
	".opus",
	".wav",
	".aiff",
	".aif",
	".wma",
	".ape",
	".wv",  // WavPack
	".mpc", // Musepack
}

var audioExtensionSet = func() map[string]bool {
	m := make(map[string]bool, len(AudioExtensions))
	for _, ext := range AudioExtensions {
		m[ext] = true
	}
	return m
}()

// IsAudioFile checks if a path has a supported audio extension
func IsAudioFile(path string) bool {
	return audioExtensionSet[strings.ToLower(filepath.Ext(path))]
}

// Tags holds the descriptive tags of one audio file
type Tags struct {
	Title       string
	Artist      string
	Album       string
	AlbumArtist string
	Year        int
	Format      string
}

// ReadTags reads embedded tags with dhowden/tag, retrying transient
// filesystem errors on open
func ReadTags(ctx context.Context, fsys afero.Fs, path string) (*Tags, error) {
	f, err := util.RetryableOpen(ctx, fsys, path, util.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	return &Tags{
		Title:       strings.TrimSpace(m.Title()),
		Artist:      strings.TrimSpace(m.Artist()),
		Album:       strings.TrimSpace(m.Album()),
		AlbumArtist: strings.TrimSpace(m.AlbumArtist()),
		Year:        m.Year(),
		Format:      string(m.Format()),
	}, nil
}

// FillFromFilename fills empty fields from the file's name and directory
// layout. Artist needs a confident parse; an empty title takes whatever
// the filename offers.
func (t *Tags) FillFromFilename(path string) {
	fileMeta := ParseFilename(path)

	if t.Artist == "" && t.AlbumArtist != "" {
		t.Artist = t.AlbumArtist
	}
	if t.Artist == "" && fileMeta.Confidence >= 0.5 && fileMeta.Artist != "" {
		t.Artist = fileMeta.Artist
	}

	if t.Title == "" {
		t.Title = fileMeta.Title
	}
	if t.Album == "" && fileMeta.Album != "" {
		t.Album = fileMeta.Album
	}
	if t.Year == 0 && fileMeta.Year > 0 {
		t.Year = fileMeta.Year
	}
}
