package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/track-index/internal/util"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "tix",
		Short: "Track Index - local library index and track matcher",
		Long: `tix (Track Index) keeps a local index of a large music library and answers
whether a (title, artist) pair is already owned without asking the slow
library server. Tracks reported absent are kept in a missing-item registry
whose entries are re-verified by consistency sweeps.`,
		Version:       Version,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.SetVerbose(viper.GetBool("verbose"))
			util.SetQuiet(viper.GetBool("quiet"))
			util.SetColors(util.IsTerminal(os.Stderr.Fd()))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./configs/tix.yaml)")
	flags.String("db", "state_data/sync_database.db", "state database file")
	flags.String("library-root", "", "music library directory (required for scans and the filesystem fallback)")
	flags.String("download-dir", "", "directory finished downloads are written to")
	flags.String("events-dir", "artifacts", "directory for JSONL event logs")
	flags.String("metrics-file", "", "write sweep metrics to this Prometheus textfile")
	flags.Int("pool-size", 10, "idle database connections kept for reuse")
	flags.Duration("busy-timeout", 0, "SQLite busy timeout per connection (default 30s)")
	flags.Int("retry-attempts", 3, "attempts for lock-contended writes")
	flags.Duration("fs-timeout", 0, "time limit for one filesystem fallback search (default 5s)")
	flags.Int("fs-cache-size", 0, "filesystem fallback answers kept per run (default 4096, -1 disables)")
	flags.Int("chunk-size", 1000, "rows per bulk insert transaction")
	flags.Int("workers", 4, "concurrent workers for scans and sweeps")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	for _, key := range []string{
		"db", "library-root", "download-dir", "events-dir", "metrics-file", "pool-size",
		"busy-timeout", "retry-attempts", "fs-timeout", "fs-cache-size", "chunk-size", "workers",
		"verbose", "quiet",
	} {
		viper.BindPFlag(key, flags.Lookup(key))
	}
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("tix")
		viper.SetConfigType("yaml")
	}

	// TIX_LIBRARY_ROOT sets library-root
	viper.SetEnvPrefix("TIX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errNotFound) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
