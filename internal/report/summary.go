package report

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/franz/track-index/internal/registry"
	"github.com/franz/track-index/internal/store"
)

// SummaryReport is a snapshot of the index and the missing-item registry
type SummaryReport struct {
	GeneratedAt time.Time

	// Database
	DatabasePath  string
	DatabaseSize  int64
	SchemaVersion int
	SQLiteVersion string

	// Index
	IndexedTracks int64

	// Registry
	RegistryTotal   int64
	StatusCounts    []StatusCount
	CorruptedStatus int64

	// Pool
	PoolConnections int
	PoolIdleConns   int

	// Last sweep, when one ran
	EventLogPath string
	AuditTallies map[string]int
}

// StatusCount is the number of registry items in one status
type StatusCount struct {
	Status string
	Count  int64
}

// GenerateSummaryReport gathers a report from the store. Counts that cannot
// be read are left at zero.
func GenerateSummaryReport(ctx context.Context, fsys afero.Fs, db *store.Store) (*SummaryReport, error) {
	report := &SummaryReport{
		GeneratedAt:   time.Now(),
		DatabasePath:  db.Path(),
		SQLiteVersion: store.SQLiteVersion(),
		StatusCounts:  make([]StatusCount, 0),
	}

	if info, err := fsys.Stat(db.Path()); err == nil {
		report.DatabaseSize = info.Size()
	}

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	report.SchemaVersion = version

	report.IndexedTracks, _ = db.CountIndexed(ctx)

	counts, _ := db.CountMissingByStatus(ctx)
	for status, n := range counts {
		report.RegistryTotal += n
		if !registry.Status(status).Valid() {
			report.CorruptedStatus += n
			continue
		}
		report.StatusCounts = append(report.StatusCounts, StatusCount{Status: status, Count: n})
	}

	sort.Slice(report.StatusCounts, func(i, j int) bool {
		return report.StatusCounts[i].Count > report.StatusCounts[j].Count
	})

	stats := db.Pool().Stats()
	report.PoolConnections = stats.Created
	report.PoolIdleConns = stats.Idle

	return report, nil
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(fsys afero.Fs, report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := afero.WriteFile(fsys, outputPath, []byte(RenderMarkdown(report)), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// RenderMarkdown renders the summary report as Markdown
func RenderMarkdown(report *SummaryReport) string {
	var md strings.Builder

	md.WriteString("# Track Index - Summary Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))

	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`", report.DatabasePath))
		if report.DatabaseSize > 0 {
			md.WriteString(fmt.Sprintf(" (%s)", humanize.Bytes(uint64(report.DatabaseSize))))
		}
		md.WriteString("\n\n")
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	md.WriteString("## Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Indexed Tracks | %s |\n", humanize.Comma(report.IndexedTracks)))
	md.WriteString(fmt.Sprintf("| Missing-Item Records | %s |\n", humanize.Comma(report.RegistryTotal)))
	md.WriteString(fmt.Sprintf("| Schema Version | %d |\n", report.SchemaVersion))
	if report.SQLiteVersion != "" {
		md.WriteString(fmt.Sprintf("| SQLite | %s |\n", report.SQLiteVersion))
	}
	md.WriteString(fmt.Sprintf("| Pool Connections | %d (%d idle) |\n", report.PoolConnections, report.PoolIdleConns))
	md.WriteString("\n")

	if len(report.StatusCounts) > 0 || report.CorruptedStatus > 0 {
		md.WriteString("## Registry\n\n")
		md.WriteString("| Status | Items |\n")
		md.WriteString("|--------|-------|\n")
		for _, sc := range report.StatusCounts {
			md.WriteString(fmt.Sprintf("| %s | %s |\n", sc.Status, humanize.Comma(sc.Count)))
		}
		if report.CorruptedStatus > 0 {
			md.WriteString(fmt.Sprintf("| (corrupted) | %s |\n", humanize.Comma(report.CorruptedStatus)))
		}
		md.WriteString("\n")
	}

	if len(report.AuditTallies) > 0 {
		md.WriteString("## Audit\n\n")
		md.WriteString("| Tier | Items |\n")
		md.WriteString("|------|-------|\n")

		tiers := make([]string, 0, len(report.AuditTallies))
		for tier := range report.AuditTallies {
			tiers = append(tiers, tier)
		}
		sort.Strings(tiers)
		for _, tier := range tiers {
			md.WriteString(fmt.Sprintf("| %s | %d |\n", tier, report.AuditTallies[tier]))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by tix*\n")

	return md.String()
}
