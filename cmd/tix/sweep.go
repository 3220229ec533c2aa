package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/franz/track-index/internal/util"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run consistency sweeps over the registry",
	Long: `Batch jobs that reconcile the missing-item registry with the library.

Every run writes a JSONL event log under the events directory. Ctrl-C stops
a sweep between items.`,
}

var sweepRescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Index recent library additions, then mark missing items that are now present",
	RunE:  runSweepRescan,
}

var sweepFilesCmd = &cobra.Command{
	Use:   "verify-files",
	Short: "Reset downloaded items whose file is not in the download directory",
	RunE:  runSweepFiles,
}

var sweepAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check every missing item with all tiers and tally false positives",
	RunE:  runSweepAudit,
}

var sweepCompareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare exact and smart matching on a sample of missing items",
	RunE:  runSweepCompare,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.AddCommand(sweepRescanCmd, sweepFilesCmd, sweepAuditCmd, sweepCompareCmd)

	sweepRescanCmd.Flags().Bool("skip-index", false, "only re-match, do not scan the library")
	sweepAuditCmd.Flags().Bool("remove", false, "delete items found by any tier")
	sweepCompareCmd.Flags().Int("sample", 100, "items to sample (0 = all)")
}

func runSweepRescan(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	skipIndex, _ := cmd.Flags().GetBool("skip-index")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sw, events := a.sweeper()
	defer events.Close()
	defer a.flushMetrics()

	if skipIndex {
		_, err = sw.RescanMissing(ctx, nil)
		return err
	}

	scanner, err := a.scanner()
	if err != nil {
		return err
	}
	result, err := sw.RescanMissing(ctx, scanner)
	if err != nil {
		return err
	}
	if result.Cancelled {
		util.WarnLog("Rescan interrupted after %d items", result.Checked)
	}
	return nil
}

func runSweepFiles(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.tuning.DownloadDir == "" {
		return fmt.Errorf("download directory is required (use --download-dir or TIX_DOWNLOAD_DIR)")
	}

	sw, events := a.sweeper()
	defer events.Close()
	defer a.flushMetrics()

	result, err := sw.VerifyDownloadFiles(ctx, a.fs, a.tuning.DownloadDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d checked, %d verified, %d reset for re-download\n",
		result.Checked, result.Verified, result.Reset)
	return nil
}

func runSweepAudit(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	remove, _ := cmd.Flags().GetBool("remove")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.tuning.LibraryRoot == "" {
		util.WarnLog("No library root configured; the filesystem tier is skipped")
	}

	sw, events := a.sweeper()
	defer events.Close()
	defer a.flushMetrics()

	result, err := sw.Audit(ctx, remove)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	methods := make([]string, 0, len(result.Tallies))
	for m := range result.Tallies {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	for _, m := range methods {
		fmt.Fprintf(out, "%-12s %d\n", m, result.Tallies[m])
	}
	fmt.Fprintf(out, "%d checked, %d false positives", result.Checked, result.FalsePositives())
	if remove {
		fmt.Fprintf(out, ", %d removed", result.Removed)
	}
	fmt.Fprintln(out)
	return nil
}

func runSweepCompare(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	sample, _ := cmd.Flags().GetInt("sample")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sw, events := a.sweeper()
	defer events.Close()
	defer a.flushMetrics()

	cmp, err := sw.CompareTiers(ctx, sample)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "sampled %d: exact %d, smart %d (+%d)\n",
		cmp.Sampled, cmp.ExactMatches, cmp.SmartMatches, len(cmp.Improvements))
	for i, item := range cmp.Improvements {
		if i == 5 {
			break
		}
		fmt.Fprintf(out, "  %d. %q - %q\n", i+1, item.Title, item.Artist)
	}
	return nil
}
