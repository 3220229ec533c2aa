package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/track-index/internal/index"
	"github.com/franz/track-index/internal/util"
	"github.com/franz/track-index/internal/watch"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and inspect the library index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Clear the index and re-index the whole library",
	Long: `Clear the library index and rebuild it from the music library directory.

Tracks are read from audio tags, falling back to the file name and the
Artist/Album directory layout. Indexing runs in batches; Ctrl-C stops after
the current batch and keeps what was written.`,
	RunE: runIndexRebuild,
}

var indexRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Index tracks recently added to the library",
	RunE:  runIndexRecent,
}

var indexAddCmd = &cobra.Command{
	Use:   "add <title> <artist>",
	Short: "Add a single track to the index",
	Args:  cobra.ExactArgs(2),
	RunE:  runIndexAdd,
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	RunE:  runIndexStats,
}

var indexClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every row from the index",
	RunE:  runIndexClear,
}

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed tracks",
	RunE:  runIndexList,
}

var indexWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the library and index new files as they appear",
	RunE:  runIndexWatch,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexRebuildCmd, indexRecentCmd, indexAddCmd, indexStatsCmd,
		indexClearCmd, indexListCmd, indexWatchCmd)

	indexRecentCmd.Flags().Duration("window", 30*time.Minute, "only tracks added within this window (0 = no limit)")
	indexRecentCmd.Flags().Int("limit", 500, "maximum tracks to fetch")

	indexAddCmd.Flags().String("album", "", "album name")
	indexAddCmd.Flags().Int("year", 0, "release year")

	indexClearCmd.Flags().Bool("yes", false, "confirm clearing the index")

	indexListCmd.Flags().Int64("after", 0, "list rows after this id")
	indexListCmd.Flags().Int("limit", 50, "maximum rows to list")

	indexWatchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period before a new file is indexed")
	indexWatchCmd.Flags().Int("batch-size", watch.MaxBatchSize, "files indexed between cancellation checks")
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	scanner, err := a.scanner()
	if err != nil {
		return err
	}

	startTime := time.Now()
	result, err := a.indexer.Rebuild(ctx, scanner)
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}

	util.InfoLog("  Tracks processed: %s", humanize.Comma(int64(result.Processed)))
	util.InfoLog("  Tracks indexed: %s", humanize.Comma(int64(result.Indexed)))
	util.InfoLog("  Duration: %v", time.Since(startTime).Round(time.Millisecond))
	if result.Cancelled {
		util.WarnLog("Rebuild was interrupted; the index is partial")
	}
	return nil
}

func runIndexRecent(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	window, _ := cmd.Flags().GetDuration("window")
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	scanner, err := a.scanner()
	if err != nil {
		return err
	}

	n, err := a.indexer.AddRecent(ctx, scanner, window, limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d tracks added\n", n)
	return nil
}

func runIndexAdd(cmd *cobra.Command, args []string) error {
	album, _ := cmd.Flags().GetString("album")
	year, _ := cmd.Flags().GetInt("year")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	track := index.Track{Title: args[0], Artist: args[1], Album: album, Year: year, AddedAt: time.Now()}
	if !a.indexer.AddOne(cmd.Context(), track) {
		return fmt.Errorf("track was not indexed")
	}
	util.SuccessLog("Indexed %q - %q", track.Title, track.Artist)
	return nil
}

func runIndexStats(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats := a.indexer.Stats(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed tracks: %s\n", humanize.Comma(stats.TotalIndexed))
	return nil
}

func runIndexClear(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return fmt.Errorf("refusing to clear the index without --yes")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.indexer.Clear(cmd.Context())
	if err != nil {
		return err
	}
	util.SuccessLog("Removed %s rows from the index", humanize.Comma(n))
	return nil
}

func runIndexList(cmd *cobra.Command, args []string) error {
	after, _ := cmd.Flags().GetInt64("after")
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := a.store.ListIndexed(cmd.Context(), after, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, row := range rows {
		fmt.Fprintf(out, "%6d  %s - %s", row.ID, row.ArtistClean, row.TitleClean)
		if row.AlbumClean != "" {
			fmt.Fprintf(out, " [%s]", row.AlbumClean)
		}
		if row.Year.Valid {
			fmt.Fprintf(out, " (%d)", row.Year.Int64)
		}
		if row.AddedAt.Valid {
			fmt.Fprintf(out, " added %s", humanize.Time(row.AddedAt.Time))
		}
		fmt.Fprintln(out)
	}
	if limit > 0 && len(rows) == limit {
		fmt.Fprintf(out, "more: tix index list --after %d\n", rows[len(rows)-1].ID)
	}
	return nil
}

func runIndexWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	debounce, _ := cmd.Flags().GetDuration("debounce")
	batchSize, _ := cmd.Flags().GetInt("batch-size")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	scanner, err := a.scanner()
	if err != nil {
		return err
	}

	w := watch.New(&watch.Config{
		Indexer:   a.indexer,
		Reader:    scanner,
		Root:      scanner.Root(),
		Debounce:  debounce,
		BatchSize: batchSize,
	})
	return w.Run(ctx)
}
