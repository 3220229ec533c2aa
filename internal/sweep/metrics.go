package sweep

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var SweepRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tix",
	Subsystem: "sweep",
	Name:      "runs_total",
	Help:      "Sweep runs by job and result (ok or error).",
}, []string{"job", "result"})

var SweepItems = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tix",
	Subsystem: "sweep",
	Name:      "items_total",
	Help:      "Per-run counters reported by sweep jobs, such as checked, found or reset.",
}, []string{"job", "counter"})

var SweepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "tix",
	Subsystem: "sweep",
	Name:      "run_duration_seconds",
	Help:      "Wall time of sweep runs.",
	Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
}, []string{"job"})

var SweepLastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "tix",
	Subsystem: "sweep",
	Name:      "last_success_timestamp_seconds",
	Help:      "Unix time of the last sweep run that finished without error.",
}, []string{"job"})

// Collectors returns the sweep metrics for registration
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{SweepRuns, SweepItems, SweepDuration, SweepLastSuccess}
}

// WriteMetrics writes the sweep metrics to path in the Prometheus text
// format, for the node exporter textfile collector
func WriteMetrics(path string) error {
	reg := prometheus.NewRegistry()
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

func observeRun(job string, duration time.Duration, counters map[string]int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		SweepLastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
	SweepRuns.WithLabelValues(job, result).Inc()
	SweepDuration.WithLabelValues(job).Observe(duration.Seconds())
	for name, n := range counters {
		SweepItems.WithLabelValues(job, name).Add(float64(n))
	}
}
