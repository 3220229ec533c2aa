package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/franz/track-index/internal/index"
	"github.com/franz/track-index/internal/match"
	"github.com/franz/track-index/internal/registry"
	"github.com/franz/track-index/internal/report"
	"github.com/franz/track-index/internal/scan"
	"github.com/franz/track-index/internal/store"
	"github.com/franz/track-index/internal/sweep"
	"github.com/franz/track-index/internal/util"
)

// app is the set of components one command works with. Everything shares the
// single Store opened for the process.
type app struct {
	tuning   *util.Tuning
	fs       afero.Fs
	store    *store.Store
	indexer  *index.Indexer
	engine   *match.Engine
	registry *registry.Registry
}

// openApp reads the tuning and opens the database
func openApp() (*app, error) {
	tuning := util.LoadTuning()

	util.DebugLog("Opening database: %s", tuning.DBPath)
	db, err := store.OpenWithOptions(tuning.DBPath, &store.Options{
		PoolSize:      tuning.PoolSize,
		BusyTimeout:   tuning.BusyTimeout,
		RetryAttempts: tuning.RetryAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	fs := afero.NewOsFs()
	return &app{
		tuning:   tuning,
		fs:       fs,
		store:    db,
		indexer:  index.New(&index.Config{Store: db, ChunkSize: tuning.ChunkSize}),
		engine:   match.New(&match.Config{
			Store:       db,
			Fs:          fs,
			LibraryRoot: tuning.LibraryRoot,
			FSTimeout:   tuning.FSTimeout,
			FSCacheSize: tuning.FSCacheSize,
		}),
		registry: registry.New(&registry.Config{Store: db, Workers: tuning.Workers}),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// scanner returns the library scanner; the library root is required
func (a *app) scanner() (*scan.Scanner, error) {
	root, err := a.tuning.RequireLibraryRoot()
	if err != nil {
		return nil, err
	}
	return scan.New(&scan.Config{Fs: a.fs, Root: root, Concurrency: a.tuning.Workers}), nil
}

// sweeper returns a sweeper writing to a fresh event log. The caller closes
// the returned logger.
func (a *app) sweeper() (*sweep.Sweeper, *report.EventLogger) {
	events, err := sweep.OpenEventLog(a.fs, a.tuning.EventsDir, eventLevel())
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		events = report.NullLogger()
	}
	if events.Path() != "" {
		util.InfoLog("Event log: %s", events.Path())
	}

	return sweep.New(&sweep.Config{
		Indexer:  a.indexer,
		Engine:   a.engine,
		Registry: a.registry,
		Events:   events,
		Workers:  a.tuning.Workers,
	}), events
}

// flushMetrics writes the sweep metrics when a metrics file is configured
func (a *app) flushMetrics() {
	if a.tuning.MetricsFile == "" {
		return
	}
	if err := sweep.WriteMetrics(a.tuning.MetricsFile); err != nil {
		util.WarnLog("%v", err)
		return
	}
	util.DebugLog("Metrics written to %s", a.tuning.MetricsFile)
}

// eventLevel maps --quiet/--verbose to the event log level
func eventLevel() report.EventLevel {
	switch {
	case viper.GetBool("quiet"):
		return report.LevelWarning
	case viper.GetBool("verbose"):
		return report.LevelDebug
	}
	return report.LevelInfo
}

// signalContext is cancelled on SIGINT or SIGTERM so long jobs stop between
// batches
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
