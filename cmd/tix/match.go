package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/franz/track-index/internal/match"
)

var matchCmd = &cobra.Command{
	Use:   "match <title> <artist>",
	Short: "Check whether a track is in the library",
	Long: `Check whether a (title, artist) pair is in the library.

Strategies:
  exact     normalized title and artist must be indexed verbatim
  balanced  precision-oriented fuzzy matching (stricter thresholds)
  smart     recall-oriented fuzzy matching
  verify    exact, then smart, then a search of the library directory

Use --explain to see which step matched and the best similarity score.
The command exits non-zero when the track is not found.`,
	Args: cobra.ExactArgs(2),
	RunE: runMatch,
}

var albumCmd = &cobra.Command{
	Use:   "album <artist> <album>",
	Short: "Check whether any track of an album is indexed",
	Args:  cobra.ExactArgs(2),
	RunE:  runAlbum,
}

// errNotFound makes the command exit non-zero without an error banner
var errNotFound = errors.New("not found")

func init() {
	rootCmd.AddCommand(matchCmd, albumCmd)

	matchCmd.Flags().StringP("strategy", "s", "verify", "exact, balanced, smart or verify")
	matchCmd.Flags().Bool("explain", false, "show which step matched (balanced and smart only)")
	matchCmd.SilenceUsage = true
	albumCmd.SilenceUsage = true
}

func runMatch(cmd *cobra.Command, args []string) error {
	title, artist := args[0], args[1]
	strategyName, _ := cmd.Flags().GetString("strategy")
	explain, _ := cmd.Flags().GetBool("explain")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var found bool
	switch strategyName {
	case "exact":
		found = a.engine.Exact(ctx, title, artist)
		printFound(out, found, "exact")
	case "verify":
		v := a.engine.Verify(ctx, title, artist)
		found = v.Exists
		printFound(out, found, string(v.Method))
	default:
		strategy, ok := match.StrategyByName(strategyName)
		if !ok {
			return fmt.Errorf("unknown strategy %q", strategyName)
		}
		res := a.engine.Explain(ctx, strategy, title, artist)
		found = res.Matched
		printFound(out, found, strategy.Name)
		if explain {
			printExplain(out, res)
		}
	}

	if !found {
		return errNotFound
	}
	return nil
}

func printFound(out io.Writer, found bool, method string) {
	if found {
		fmt.Fprintf(out, "found (%s)\n", method)
	} else {
		fmt.Fprintln(out, "not found")
	}
}

func printExplain(out io.Writer, res match.Result) {
	step := string(res.Step)
	if step == "" {
		step = "-"
	}
	fmt.Fprintf(out, "  step:       %s\n", step)
	fmt.Fprintf(out, "  candidates: %d\n", res.Candidates)
	if res.Candidates > 0 {
		fmt.Fprintf(out, "  best:       %s - %s (%.1f)\n", res.Best.ArtistClean, res.Best.TitleClean, res.Score)
	}
	if res.Threshold > 0 {
		fmt.Fprintf(out, "  threshold:  %.0f\n", res.Threshold)
	}
	if res.Err != nil {
		fmt.Fprintf(out, "  error:      %v\n", res.Err)
	}
}

func runAlbum(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	found := a.engine.AlbumExists(cmd.Context(), args[0], args[1])
	printFound(cmd.OutOrStdout(), found, "album")
	if !found {
		return errNotFound
	}
	return nil
}
