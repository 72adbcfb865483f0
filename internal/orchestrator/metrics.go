package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments orchestration runs. A nil *Metrics is valid and
// records nothing, so instrumentation stays optional.
type Metrics struct {
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
}

// NewMetrics registers run metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stagecraft",
			Subsystem: "orchestrator",
			Name:      "runs_total",
			Help:      "Orchestration runs by stage category and status.",
		}, []string{"stage_category", "status"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stagecraft",
			Subsystem: "orchestrator",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of orchestration runs.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// observeRun records one run's status and duration.
func (m *Metrics) observeRun(category string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.runsTotal.WithLabelValues(category, status).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}
