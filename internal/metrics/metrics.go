// Package metrics exports the counters of a finished run in the node
// exporter textfile format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tigerand/mchown/mchown"
)

// RunMetrics holds the collectors for one run on a private registry.
type RunMetrics struct {
	reg *prometheus.Registry

	entries     *prometheus.CounterVec
	failures    prometheus.Counter
	dirsQueued  prometheus.Counter
	fallbacks   prometheus.Counter
	duration    prometheus.Gauge
	workers     prometheus.Gauge
	lastSuccess prometheus.Gauge
	info        *prometheus.GaugeVec
}

func New() *RunMetrics {
	reg := prometheus.NewRegistry()

	return &RunMetrics{
		reg: reg,
		entries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mchown_entries_total",
				Help: "Entries visited by kind and whether their owner was changed",
			},
			[]string{"kind", "result"},
		),
		failures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "mchown_failures_total",
			Help: "Entries whose owner could not be read or changed",
		}),
		dirsQueued: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "mchown_directories_queued_total",
			Help: "Directories handed to another worker",
		}),
		fallbacks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "mchown_directories_inline_total",
			Help: "Directories walked in place because the queue refused them",
		}),
		duration: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "mchown_run_duration_seconds",
			Help: "Wall time of the run",
		}),
		workers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "mchown_workers",
			Help: "Worker goroutines in the pool",
		}),
		lastSuccess: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "mchown_run_success",
			Help: "1 if the traversal completed, 0 if it was aborted",
		}),
		info: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mchown_run_info",
				Help: "Identifies the run; always 1",
			},
			[]string{"run_id", "path"},
		),
	}
}

// Record copies a run summary into the collectors.
func (m *RunMetrics) Record(runID, path string, workers int, sum mchown.Summary, completed bool) {
	s := sum.Stats
	m.entries.WithLabelValues("file", "changed").Add(float64(s.FilesChanged))
	m.entries.WithLabelValues("file", "unchanged").Add(float64(s.FilesUnchanged))
	m.entries.WithLabelValues("dir", "changed").Add(float64(s.DirsChanged))
	m.entries.WithLabelValues("dir", "unchanged").Add(float64(s.DirsUnchanged))
	m.failures.Add(float64(s.Failures))
	m.dirsQueued.Add(float64(s.DirsQueued))
	m.fallbacks.Add(float64(s.Fallbacks))
	m.duration.Set(sum.Elapsed.Seconds())
	m.workers.Set(float64(workers))
	if completed {
		m.lastSuccess.Set(1)
	} else {
		m.lastSuccess.Set(0)
	}
	m.info.WithLabelValues(runID, path).Set(1)
}

// WriteTextfile writes every collector to filename. The file is written to a
// temporary name and renamed, so a scraping node exporter never sees a
// partial file.
func (m *RunMetrics) WriteTextfile(filename string) error {
	if err := prometheus.WriteToTextfile(filename, m.reg); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", filename, err)
	}
	return nil
}
