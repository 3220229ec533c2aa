package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/franz/track-index/internal/meta"
	"github.com/franz/track-index/internal/store"
	"github.com/franz/track-index/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure tix can operate correctly.

This command checks:
- SQLite version
- Database accessibility, integrity and schema version
- Library root (readable, contains audio)
- Download directory (readable)
- Events directory (writable)
- Disk space where the database lives

Use this command to troubleshoot a failing sweep or an empty index.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== tix doctor ===")
	util.InfoLog("")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	tuning := util.LoadTuning()
	fs := afero.NewOsFs()

	results := []checkResult{
		checkSQLite(),
		checkDatabase(ctx, tuning.DBPath),
	}

	if tuning.LibraryRoot != "" {
		results = append(results, checkLibraryRoot(fs, tuning.LibraryRoot))
	} else {
		results = append(results, checkResult{
			name:    "Library root",
			warning: true,
			message: "not set (scans and the filesystem fallback are disabled)",
		})
	}
	if tuning.DownloadDir != "" {
		results = append(results, checkDownloadDir(fs, tuning.DownloadDir))
	}
	results = append(results, checkEventsDir(fs, tuning.EventsDir))
	results = append(results, checkDiskSpace(filepath.Dir(tuning.DBPath), "database"))

	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false
	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		switch {
		case r.error:
			util.ErrorLog("%s", line)
		case r.warning:
			util.WarnLog("%s", line)
		default:
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("Some critical checks failed. Resolve them before running tix.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("All checks passed.")
	}
	return nil
}

// checkSQLite reports the embedded SQLite version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{name: "SQLite", error: true, message: "unable to determine version"}
	}
	return checkResult{name: "SQLite", message: fmt.Sprintf("version %s (built-in)", version)}
}

// checkDatabase opens the state database and runs an integrity check
func checkDatabase(ctx context.Context, dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db or TIX_DB)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{name: "Database", message: fmt.Sprintf("%s (will be created on first run)", dbPath)}
		}
		return checkResult{name: "Database", error: true, message: fmt.Sprintf("cannot access %s: %v", dbPath, err)}
	}
	if !info.Mode().IsRegular() {
		return checkResult{name: "Database", error: true, message: fmt.Sprintf("%s is not a regular file", dbPath)}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{name: "Database", error: true, message: fmt.Sprintf("cannot open %s: %v", dbPath, err)}
	}
	defer db.Close()

	if err := db.CheckIntegrity(ctx); err != nil {
		return checkResult{name: "Database", error: true, message: fmt.Sprintf("integrity check failed: %v", err)}
	}

	version, _ := db.SchemaVersion(ctx)
	indexed, _ := db.CountIndexed(ctx)
	items, _ := db.CountMissingItems(ctx)

	return checkResult{
		name: "Database",
		message: fmt.Sprintf("%s (%s, schema v%d, %s indexed, %s registry items)",
			dbPath, humanize.Bytes(uint64(info.Size())), version,
			humanize.Comma(indexed), humanize.Comma(items)),
	}
}

// checkLibraryRoot verifies the library root is a readable directory and
// samples it for audio files
func checkLibraryRoot(fs afero.Fs, path string) checkResult {
	entries, res := readableDir(fs, "Library root", path)
	if res != nil {
		return *res
	}

	audio := 0
	_ = afero.Walk(fs, path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && meta.IsAudioFile(p) {
			audio++
			if audio >= 100 {
				return filepath.SkipAll
			}
		}
		return nil
	})

	if audio == 0 {
		return checkResult{
			name:    "Library root",
			warning: true,
			message: fmt.Sprintf("%s (%d entries, no audio files found)", path, entries),
		}
	}
	count := fmt.Sprintf("%d", audio)
	if audio >= 100 {
		count = "100+"
	}
	return checkResult{name: "Library root", message: fmt.Sprintf("%s (%s audio files)", path, count)}
}

// checkDownloadDir verifies the download directory is readable
func checkDownloadDir(fs afero.Fs, path string) checkResult {
	entries, res := readableDir(fs, "Download directory", path)
	if res != nil {
		return *res
	}
	return checkResult{name: "Download directory", message: fmt.Sprintf("%s (%d entries)", path, entries)}
}

func readableDir(fs afero.Fs, name, path string) (int, *checkResult) {
	info, err := fs.Stat(path)
	if err != nil {
		return 0, &checkResult{name: name, error: true, message: fmt.Sprintf("cannot access %s: %v", path, err)}
	}
	if !info.IsDir() {
		return 0, &checkResult{name: name, error: true, message: fmt.Sprintf("%s is not a directory", path)}
	}
	entries, err := afero.ReadDir(fs, path)
	if err != nil {
		return 0, &checkResult{name: name, error: true, message: fmt.Sprintf("cannot read %s: %v", path, err)}
	}
	return len(entries), nil
}

// checkEventsDir verifies event logs can be written, creating the directory
// when needed
func checkEventsDir(fs afero.Fs, path string) checkResult {
	info, err := fs.Stat(path)
	created := false
	switch {
	case os.IsNotExist(err):
		if err := fs.MkdirAll(path, 0o755); err != nil {
			return checkResult{name: "Events directory", error: true, message: fmt.Sprintf("cannot create %s: %v", path, err)}
		}
		created = true
	case err != nil:
		return checkResult{name: "Events directory", error: true, message: fmt.Sprintf("cannot access %s: %v", path, err)}
	case !info.IsDir():
		return checkResult{name: "Events directory", error: true, message: fmt.Sprintf("%s is not a directory", path)}
	}

	testFile := filepath.Join(path, ".tix_write_test")
	if err := afero.WriteFile(fs, testFile, nil, 0o644); err != nil {
		return checkResult{name: "Events directory", error: true, message: fmt.Sprintf("cannot write to %s: %v", path, err)}
	}
	fs.Remove(testFile)

	if created {
		return checkResult{name: "Events directory", message: fmt.Sprintf("%s (created)", path)}
	}
	return checkResult{name: "Events directory", message: fmt.Sprintf("%s (writable)", path)}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))

	usedPercent := 0.0
	if totalBytes > 0 {
		usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	}

	// The database and its WAL need headroom; warn under 1GB or >95% used
	warning := false
	warningMsg := ""
	if availBytes < 1<<30 {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 95 {
		warning = true
		warningMsg = " (>95% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", humanize.IBytes(availBytes), warningMsg),
	}
}
