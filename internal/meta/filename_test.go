package meta

import (
	"path/filepath"
	"testing"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantTrack  int
		wantTitle  string
		wantArtist string
		wantAlbum  string
		minConf    float64
	}{
		{
			name:       "numbered with artist",
			path:       "Queen/A Night at the Opera/11 - Queen - Bohemian Rhapsody.mp3",
			wantTrack:  11,
			wantTitle:  "Bohemian Rhapsody",
			wantArtist: "Queen",
			wantAlbum:  "A Night at the Opera",
			minConf:    0.9,
		},
		{
			name:       "numbered title in album folder",
			path:       "Pink Floyd/Animals/02 - Dogs.flac",
			wantTrack:  2,
			wantTitle:  "Dogs",
			wantArtist: "Pink Floyd",
			wantAlbum:  "Animals",
			minConf:    0.8,
		},
		{
			name:       "artist dash title at top level",
			path:       "The Beatles - Hey Jude.m4a",
			wantTitle:  "Hey Jude",
			wantArtist: "The Beatles",
			minConf:    0.5,
		},
		{
			name:      "dotted track number",
			path:      "07.Paranoid Android.mp3",
			wantTrack: 7,
			wantTitle: "Paranoid Android",
			minConf:   0.8,
		},
		{
			name:      "bare title with underscores",
			path:      "Stairway_to_Heaven.ogg",
			wantTitle: "Stairway to Heaven",
		},
		{
			name:       "hyphenated title is not split",
			path:       "Jay-Z/The Blueprint/Izzo.mp3",
			wantTitle:  "Izzo",
			wantArtist: "Jay-Z",
			wantAlbum:  "The Blueprint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFilename(filepath.FromSlash(tt.path))

			if got.Track != tt.wantTrack {
				t.Errorf("Track = %d, want %d", got.Track, tt.wantTrack)
			}
			if got.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got.Title, tt.wantTitle)
			}
			if got.Artist != tt.wantArtist {
				t.Errorf("Artist = %q, want %q", got.Artist, tt.wantArtist)
			}
			if got.Album != tt.wantAlbum {
				t.Errorf("Album = %q, want %q", got.Album, tt.wantAlbum)
			}
			if got.Confidence < tt.minConf {
				t.Errorf("Confidence = %.2f, want >= %.2f", got.Confidence, tt.minConf)
			}
		})
	}
}

func TestParseFilenameAlbumFolders(t *testing.T) {
	tests := []struct {
		path       string
		wantArtist string
		wantAlbum  string
		wantYear   int
		wantDisc   int
	}{
		{"Radiohead/1997 - OK Computer/07 - Paranoid Android.flac", "Radiohead", "OK Computer", 1997, 0},
		{"Led Zeppelin/Led Zeppelin IV (1971)/04 - Stairway to Heaven.mp3", "Led Zeppelin", "Led Zeppelin IV", 1971, 0},
		{"Pink Floyd/The Wall/CD2/01 - Hey You.mp3", "Pink Floyd", "The Wall", 0, 2},
		{"Pink Floyd/1979 - The Wall/Disc 1/03 - Another Brick.mp3", "Pink Floyd", "The Wall", 1979, 1},
		{"Björk/Homogenic/Jóga.flac", "Björk", "Homogenic", 0, 0},
	}

	for _, tt := range tests {
		got := ParseFilename(filepath.FromSlash(tt.path))

		if got.Artist != tt.wantArtist {
			t.Errorf("%s: Artist = %q, want %q", tt.path, got.Artist, tt.wantArtist)
		}
		if got.Album != tt.wantAlbum {
			t.Errorf("%s: Album = %q, want %q", tt.path, got.Album, tt.wantAlbum)
		}
		if got.Year != tt.wantYear {
			t.Errorf("%s: Year = %d, want %d", tt.path, got.Year, tt.wantYear)
		}
		if got.Disc != tt.wantDisc {
			t.Errorf("%s: Disc = %d, want %d", tt.path, got.Disc, tt.wantDisc)
		}
	}
}
