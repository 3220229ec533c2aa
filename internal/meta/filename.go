package meta

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// FilenameMeta holds metadata parsed from filename and path
type FilenameMeta struct {
	Artist     string
	Album      string
	Title      string
	Track      int
	Disc       int
	Year       int
	Confidence float64 // 0.0-1.0 how confident we are in the parse
}

type filenamePattern struct {
	re         *regexp.Regexp
	parse      func(*FilenameMeta, []string)
	confidence float64
}

var filenamePatterns = []filenamePattern{
	{
		// Pattern: "01 - Artist - Title.mp3"
		re: regexp.MustCompile(`^(\d+)\s*[-_.]\s*(.+?)\s*[-_.]\s*(.+)$`),
		parse: func(m *FilenameMeta, matches []string) {
			m.Track, _ = strconv.Atoi(matches[1])
			m.Artist = strings.TrimSpace(matches[2])
			m.Title = strings.TrimSpace(matches[3])
		},
		confidence: 0.8,
	},
	{
		// Pattern: "01 - Title.mp3"
		re: regexp.MustCompile(`^(\d+)\s*[-_.]\s*(.+)$`),
		parse: func(m *FilenameMeta, matches []string) {
			m.Track, _ = strconv.Atoi(matches[1])
			m.Title = strings.TrimSpace(matches[2])
		},
		confidence: 0.7,
	},
	{
		// Pattern: "Artist - Title.mp3"
		re: regexp.MustCompile(`^(.+?)\s+-\s+(.+)$`),
		parse: func(m *FilenameMeta, matches []string) {
			m.Artist = strings.TrimSpace(matches[1])
			m.Title = strings.TrimSpace(matches[2])
		},
		confidence: 0.5,
	},
}

var (
	discDirRe    = regexp.MustCompile(`^(?i)(disc|cd|disk)\s*\d+$`)
	discNumberRe = regexp.MustCompile(`(?i)(disc|cd|disk)\s*(\d+)`)
	yearPrefixRe = regexp.MustCompile(`^(\d{4})\s*[-_.]\s*(.+)$`)
	yearSuffixRe = regexp.MustCompile(`^(.+?)\s*\((\d{4})\)$`)
)

// ParseFilename attempts to extract metadata from a filename and the
// Artist/Album/track directory layout around it
func ParseFilename(path string) *FilenameMeta {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	dir := filepath.Dir(path)

	meta := &FilenameMeta{
		Confidence: 0.3, // Default low confidence
	}

	for _, p := range filenamePatterns {
		if matches := p.re.FindStringSubmatch(name); matches != nil {
			p.parse(meta, matches)
			meta.Confidence = p.confidence
			break
		}
	}

	// If no pattern matched, use filename as title
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
		meta.Confidence = 0.2
	}

	// Track number presence indicates well-organized files
	if meta.Track > 0 {
		meta.Confidence = min(meta.Confidence+0.15, 1.0)
	}

	meta.inferFromPath(dir)

	return meta
}

// inferFromPath tries to extract album/artist from directory path
func (m *FilenameMeta) inferFromPath(dir string) {
	parts := strings.Split(filepath.Clean(dir), string(filepath.Separator))

	// Common pattern: /Artist/Album/tracks
	if len(parts) >= 2 {
		album := parts[len(parts)-1]
		artist := parts[len(parts)-2]

		// Disc folders sit one level below the album
		if discDirRe.MatchString(album) && len(parts) >= 3 {
			album = parts[len(parts)-2]
			artist = parts[len(parts)-3]
		}

		// "2023 - Album Name" or "Album Name (2023)"
		if match := yearPrefixRe.FindStringSubmatch(album); match != nil {
			m.Year, _ = strconv.Atoi(match[1])
			album = strings.TrimSpace(match[2])
		} else if match := yearSuffixRe.FindStringSubmatch(album); match != nil {
			album = strings.TrimSpace(match[1])
			m.Year, _ = strconv.Atoi(match[2])
		}

		if m.Album == "" {
			m.Album = album
		}
		if m.Artist == "" {
			m.Artist = artist
		}
	}

	if len(parts) >= 1 {
		if match := discNumberRe.FindStringSubmatch(parts[len(parts)-1]); match != nil {
			m.Disc, _ = strconv.Atoi(match[2])
		}
	}
}
