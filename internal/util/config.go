package util

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Tuning holds the process-wide tuning parameters. It is read once at
// command start and treated as read-only afterwards.
type Tuning struct {
	DBPath        string
	LibraryRoot   string
	DownloadDir   string
	EventsDir     string
	MetricsFile   string // Prometheus textfile written after sweeps; empty disables
	FSCacheSize   int
	PoolSize      int
	BusyTimeout   time.Duration
	RetryAttempts int
	FSTimeout     time.Duration
	ChunkSize     int
	Workers       int
}

// LoadTuning reads tuning values from viper (flags > TIX_* env > config file),
// applying defaults for anything unset
func LoadTuning() *Tuning {
	t := &Tuning{
		DBPath:        viper.GetString("db"),
		LibraryRoot:   viper.GetString("library-root"),
		DownloadDir:   viper.GetString("download-dir"),
		EventsDir:     viper.GetString("events-dir"),
		MetricsFile:   viper.GetString("metrics-file"),
		FSCacheSize:   viper.GetInt("fs-cache-size"),
		PoolSize:      viper.GetInt("pool-size"),
		BusyTimeout:   viper.GetDuration("busy-timeout"),
		RetryAttempts: viper.GetInt("retry-attempts"),
		FSTimeout:     viper.GetDuration("fs-timeout"),
		ChunkSize:     viper.GetInt("chunk-size"),
		Workers:       viper.GetInt("workers"),
	}

	if t.DBPath == "" {
		t.DBPath = "state_data/sync_database.db"
	}
	if t.EventsDir == "" {
		t.EventsDir = "artifacts"
	}
	if t.PoolSize <= 0 {
		t.PoolSize = 10
	}
	if t.BusyTimeout <= 0 {
		t.BusyTimeout = 30 * time.Second
	}
	if t.RetryAttempts <= 0 {
		t.RetryAttempts = 3
	}
	if t.FSTimeout <= 0 {
		t.FSTimeout = 5 * time.Second
	}
	if t.ChunkSize <= 0 {
		t.ChunkSize = 1000
	}
	if t.Workers <= 0 {
		t.Workers = 4
	}

	return t
}

// RequireLibraryRoot returns the configured library root or an error when it
// is not set. The filesystem fallback has no built-in default path.
func (t *Tuning) RequireLibraryRoot() (string, error) {
	if t.LibraryRoot == "" {
		return "", fmt.Errorf("%w: library root is required (use --library-root or TIX_LIBRARY_ROOT)", ErrInvalidConfig)
	}
	return t.LibraryRoot, nil
}
