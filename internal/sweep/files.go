package sweep

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/track-index/internal/registry"
	"github.com/franz/track-index/internal/util"
)

// DownloadExtensions are the file types a finished download can have
var DownloadExtensions = []string{".mp3", ".flac", ".m4a", ".ogg", ".wav", ".aac"}

var fileNameJunkRe = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)

// normalizeFileName lowercases s and drops everything but word characters,
// whitespace and hyphens
func normalizeFileName(s string) string {
	return fileNameJunkRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "")
}

// downloadFile is a file found under the download directory
type downloadFile struct {
	path   string
	name   string // normalized file name
	parent string // normalized parent directory name
}

// contains reports whether the file name or its directory mentions s
func (f downloadFile) contains(s string) bool {
	return strings.Contains(f.name, s) || strings.Contains(f.parent, s)
}

// FileCheckResult summarizes a VerifyDownloadFiles run
type FileCheckResult struct {
	Checked   int
	Verified  int
	Reset     int
	Cancelled bool
}

// VerifyDownloadFiles checks that every downloaded item has a file under
// dir whose name or parent directory mentions both its title and artist.
// Items without a file are reset for re-download. An unavailable dir is an
// error rather than a reason to reset everything.
func (s *Sweeper) VerifyDownloadFiles(ctx context.Context, fsys afero.Fs, dir string) (*FileCheckResult, error) {
	const job = "verify-files"
	start := time.Now()
	s.events.LogRunStart(job)

	files, err := listDownloadFiles(ctx, fsys, dir)
	if err != nil {
		s.endRun(job, start, nil, err)
		return nil, err
	}

	items, err := s.registry.List(ctx, registry.StatusDownloaded)
	if err != nil {
		s.endRun(job, start, nil, err)
		return nil, fmt.Errorf("failed to list downloaded items: %w", err)
	}
	util.InfoLog("Checking %d downloaded items against %d files in %s", len(items), len(files), dir)

	result := &FileCheckResult{}
	for i, item := range items {
		if i%checkEvery == 0 && ctx.Err() != nil {
			result.Cancelled = true
			break
		}
		result.Checked++

		if path := findDownloadFile(files, item.Title, item.Artist); path != "" {
			result.Verified++
			s.events.LogFileCheck(item.ID, item.Title, item.Artist, path, true)
			util.DebugLog("Verified: %q - %q (%s)", item.Title, item.Artist, path)
			continue
		}

		s.events.LogFileCheck(item.ID, item.Title, item.Artist, "", false)
		if err := s.registry.ResetForRedownload(ctx, item.ID); err != nil {
			util.ErrorLog("Failed to reset %q - %q: %v", item.Title, item.Artist, err)
			s.events.LogError(job, item.ID, err)
			continue
		}
		result.Reset++
		s.events.LogReset(item.ID, item.Title, item.Artist, string(registry.StatusMissing), "download file not found")
		util.WarnLog("File missing, reset for re-download: %q - %q (ID: %d)", item.Title, item.Artist, item.ID)
	}

	s.endRun(job, start, map[string]int{
		"checked":  result.Checked,
		"verified": result.Verified,
		"reset":    result.Reset,
	}, nil)
	util.SuccessLog("Download check complete: %d verified, %d reset", result.Verified, result.Reset)
	return result, nil
}

// listDownloadFiles walks dir once and collects every audio file
func listDownloadFiles(ctx context.Context, fsys afero.Fs, dir string) ([]downloadFile, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: download directory is required", util.ErrInvalidConfig)
	}
	info, err := util.RetryableStat(ctx, fsys, dir, util.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("download directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", util.ErrInvalidConfig, dir)
	}

	exts := make(map[string]bool, len(DownloadExtensions))
	for _, ext := range DownloadExtensions {
		exts[ext] = true
	}

	var files []downloadFile
	err = afero.Walk(fsys, dir, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			util.WarnLog("Error accessing path %s: %v", path, err)
			return nil
		}
		if info.IsDir() || !exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		files = append(files, downloadFile{
			path:   path,
			name:   normalizeFileName(filepath.Base(path)),
			parent: normalizeFileName(filepath.Base(filepath.Dir(path))),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk download directory: %w", err)
	}
	return files, nil
}

// findDownloadFile returns the first file mentioning both title and artist
func findDownloadFile(files []downloadFile, title, artist string) string {
	normTitle := normalizeFileName(title)
	normArtist := normalizeFileName(artist)

	for _, f := range files {
		if f.contains(normTitle) && f.contains(normArtist) {
			return f.path
		}
	}
	return ""
}
