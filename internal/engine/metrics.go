package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/persist/internal/command"
	"github.com/roach88/persist/internal/ir"
)

const (
	MetricRunsTotal   = "runs_total"
	MetricWritesTotal = "writes_total"
	MetricRunPasses   = "run_passes"
	MetricRunSeconds  = "run_duration_seconds"
)

// Metrics are the unit of work's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	writes   *prometheus.CounterVec
	passes   prometheus.Histogram
	duration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "persist",
				Name:      MetricRunsTotal,
				Help:      "Unit of work runs by result.",
			},
			[]string{"result"},
		),
		writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "persist",
				Name:      MetricWritesTotal,
				Help:      "Statements issued by runs, by operation. Includes rolled back writes.",
			},
			[]string{"op"},
		),
		passes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "persist",
			Name:      MetricRunPasses,
			Help:      "Scheduler passes per run.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "persist",
			Name:      MetricRunSeconds,
			Help:      "Run duration including commit and heap sync.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{m.runs, m.writes, m.passes, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeRun(result string, passes int, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	m.passes.Observe(float64(passes))
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) observeWrite(op command.Op) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(string(op)).Inc()
}

// resultOf labels a failed run by its error code.
func resultOf(err error) string {
	if code := ir.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}
