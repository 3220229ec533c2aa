package main

import (
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/track-index/internal/registry"
	"github.com/franz/track-index/internal/util"
)

var missingCmd = &cobra.Command{
	Use:   "missing",
	Short: "Manage the missing-item registry",
	Long: `Manage items known to be absent from the library.

Items start as "missing", become "downloaded" once a download completes and
the track is found, or "resolved_manual" when linked by hand. Downloaded items
that cannot be confirmed go back to "missing".`,
}

var missingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registry items",
	RunE:  runMissingList,
}

var missingAddCmd = &cobra.Command{
	Use:   "add <title> <artist>",
	Short: "Record a track as missing unless it is already recorded",
	Args:  cobra.ExactArgs(2),
	RunE:  runMissingAdd,
}

var missingSetStatusCmd = &cobra.Command{
	Use:   "set-status <id> <status>",
	Short: "Set the status of an item (missing, downloaded, resolved_manual)",
	Args:  cobra.ExactArgs(2),
	RunE:  runMissingSetStatus,
}

var missingDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete one item, or every item with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMissingDelete,
}

var missingResetCmd = &cobra.Command{
	Use:   "reset-downloaded",
	Short: "Put every downloaded item back to missing",
	RunE:  runMissingReset,
}

var missingVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-check downloaded items against the index and reset unconfirmed ones",
	RunE:  runMissingVerify,
}

var missingCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove resolved items (--resolved) or TV/film and protected items (--invalid)",
	RunE:  runMissingClean,
}

var missingAttachCmd = &cobra.Command{
	Use:   "attach <id> <download-id> [url]",
	Short: "Attach a direct download to an item",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runMissingAttach,
}

var missingRedownloadCmd = &cobra.Command{
	Use:   "redownload <id>",
	Short: "Reset an item for re-download",
	Args:  cobra.ExactArgs(1),
	RunE:  runMissingRedownload,
}

var missingCountsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Show item counts per status",
	RunE:  runMissingCounts,
}

func init() {
	rootCmd.AddCommand(missingCmd)
	missingCmd.AddCommand(missingListCmd, missingAddCmd, missingSetStatusCmd, missingDeleteCmd,
		missingResetCmd, missingVerifyCmd, missingCleanCmd, missingAttachCmd, missingRedownloadCmd,
		missingCountsCmd)

	missingListCmd.Flags().StringSlice("status", nil, "only items with these statuses")

	missingAddCmd.Flags().String("album", "", "album name")
	missingAddCmd.Flags().String("source", "", "playlist or job that reported the track")
	missingAddCmd.Flags().String("source-id", "", "identifier of the source playlist")
	missingAddCmd.Flags().String("service", "", "service the source came from (spotify, deezer, ai)")

	missingDeleteCmd.Flags().Bool("all", false, "delete every item")

	missingCleanCmd.Flags().Bool("resolved", false, "remove downloaded and manually resolved items")
	missingCleanCmd.Flags().Bool("invalid", false, "remove TV/film items and items from protected playlists")
	missingCleanCmd.Flags().StringSlice("keywords", nil, "keywords for --invalid (default: built-in TV/film list)")
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func runMissingList(cmd *cobra.Command, args []string) error {
	rawStatuses, _ := cmd.Flags().GetStringSlice("status")
	statuses := make([]registry.Status, 0, len(rawStatuses))
	for _, raw := range rawStatuses {
		s, err := registry.ParseStatus(raw)
		if err != nil {
			return err
		}
		statuses = append(statuses, s)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.registry.List(cmd.Context(), statuses...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTITLE\tARTIST\tSOURCE\tADDED")
	for _, item := range items {
		added := "-"
		if !item.AddedAt.IsZero() {
			added = humanize.Time(item.AddedAt)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			item.ID, item.Status, item.Title, item.Artist, item.SourceContext, added)
	}
	w.Flush()

	fmt.Fprintf(cmd.OutOrStdout(), "%s items\n", humanize.Comma(int64(len(items))))
	return nil
}

func runMissingAdd(cmd *cobra.Command, args []string) error {
	album, _ := cmd.Flags().GetString("album")
	source, _ := cmd.Flags().GetString("source")
	sourceID, _ := cmd.Flags().GetString("source-id")
	service, _ := cmd.Flags().GetString("service")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	added, err := a.registry.RecordIfAbsent(cmd.Context(), registry.Item{
		Title:           args[0],
		Artist:          args[1],
		Album:           album,
		SourceContext:   source,
		SourceContextID: sourceID,
		SourceService:   service,
	})
	if err != nil {
		return err
	}
	if added {
		util.SuccessLog("Recorded %q - %q as missing", args[0], args[1])
	} else {
		util.InfoLog("Already recorded: %q - %q", args[0], args[1])
	}
	return nil
}

func runMissingSetStatus(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	status, err := registry.ParseStatus(args[1])
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.registry.SetStatus(cmd.Context(), id, status); err != nil {
		return err
	}
	util.SuccessLog("Item %d is now %s", id, status)
	return nil
}

func runMissingDelete(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	if all == (len(args) == 1) {
		return fmt.Errorf("give either an id or --all")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if all {
		_, err := a.registry.DeleteAll(cmd.Context())
		return err
	}

	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := a.registry.Delete(cmd.Context(), id); err != nil {
		return err
	}
	util.SuccessLog("Deleted item %d", id)
	return nil
}

func runMissingReset(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = a.registry.ResetDownloadedToMissing(cmd.Context())
	return err
}

func runMissingVerify(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sw, events := a.sweeper()
	defer events.Close()
	defer a.flushMetrics()

	confirmed, reset, err := sw.VerifyDownloaded(ctx, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d confirmed, %d reset to missing\n", confirmed, reset)
	return nil
}

func runMissingClean(cmd *cobra.Command, args []string) error {
	resolved, _ := cmd.Flags().GetBool("resolved")
	invalid, _ := cmd.Flags().GetBool("invalid")
	keywords, _ := cmd.Flags().GetStringSlice("keywords")
	if !resolved && !invalid {
		return fmt.Errorf("choose --resolved, --invalid or both")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sw, events := a.sweeper()
	defer events.Close()
	defer a.flushMetrics()

	out := cmd.OutOrStdout()
	if resolved {
		removed, remaining, err := sw.CleanResolved(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d resolved items removed, %d remaining\n", removed, remaining)
	}
	if invalid {
		if len(keywords) == 0 {
			keywords = nil
		}
		removed, err := sw.CleanInvalid(cmd.Context(), keywords)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d invalid items removed\n", removed)
	}
	return nil
}

func runMissingAttach(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	url := ""
	if len(args) == 3 {
		url = args[2]
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return a.registry.SetDirectDownload(cmd.Context(), id, args[1], url)
}

func runMissingRedownload(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.registry.ResetForRedownload(cmd.Context(), id); err != nil {
		return err
	}
	util.SuccessLog("Item %d reset for re-download", id)
	return nil
}

func runMissingCounts(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	counts, err := a.registry.Counts(cmd.Context())
	if err != nil {
		return err
	}

	statuses := make([]string, 0, len(counts))
	var total int64
	for s, n := range counts {
		statuses = append(statuses, s)
		total += n
	}
	sort.Strings(statuses)

	out := cmd.OutOrStdout()
	for _, s := range statuses {
		fmt.Fprintf(out, "%-16s %s\n", s, humanize.Comma(counts[s]))
	}
	fmt.Fprintf(out, "%-16s %s\n", "total", humanize.Comma(total))
	return nil
}
