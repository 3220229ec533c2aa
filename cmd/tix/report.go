package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/track-index/internal/report"
	"github.com/franz/track-index/internal/util"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a summary report of the index and registry",
	Long: `Generate a summary report in Markdown format.

The report includes:
- Database and pool details
- Indexed track count
- Registry items per status
- Audit tallies (with --audit)

The report is saved to <events-dir>/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("out", "", "output directory for the report (default: <events-dir>/reports/<timestamp>)")
	reportCmd.Flags().Bool("audit", false, "run a read-only audit and include its tallies")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	util.InfoLog("=== Generating Summary Report ===")
	util.InfoLog("Database: %s", a.tuning.DBPath)

	summary, err := report.GenerateSummaryReport(ctx, a.fs, a.store)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if withAudit, _ := cmd.Flags().GetBool("audit"); withAudit {
		sw, events := a.sweeper()
		result, err := sw.Audit(ctx, false)
		events.Close()
		if err != nil {
			return fmt.Errorf("audit failed: %w", err)
		}
		summary.AuditTallies = result.Tallies
		summary.EventLogPath = events.Path()
	}

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join(a.tuning.EventsDir, "reports", timestamp)
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(a.fs, summary, outputPath); err != nil {
		return err
	}

	util.SuccessLog("Report generated successfully!")
	util.InfoLog("  Indexed tracks: %s", humanize.Comma(summary.IndexedTracks))
	util.InfoLog("  Registry items: %s", humanize.Comma(summary.RegistryTotal))
	if summary.CorruptedStatus > 0 {
		util.WarnLog("  Corrupted statuses: %d", summary.CorruptedStatus)
	}
	return nil
}
