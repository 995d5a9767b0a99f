//go:build linux

package sandbox

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the engine exposes. Register
// it against a prometheus.Registerer once per process.
type Metrics struct {
	verdicts       *prometheus.CounterVec
	caseCPUTime    prometheus.Histogram
	workerRestarts prometheus.Counter
}

// NewMetrics constructs and registers the engine's collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_verdicts_total",
			Help: "Judgements completed, labeled by final verdict.",
		}, []string{"verdict"}),
		caseCPUTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "judge_case_cpu_time_seconds",
			Help:    "CPU time measured for a single test-case run.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		workerRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "judge_worker_restarts_total",
			Help: "Worker processes killed and respawned after a protocol desync.",
		}),
	}
	reg.MustRegister(m.verdicts, m.caseCPUTime, m.workerRestarts)
	return m
}

// ObserveJudgement records one completed Judgement's aggregate verdict
// and per-case CPU time.
func (m *Metrics) ObserveJudgement(result JudgementResult) {
	m.verdicts.WithLabelValues(string(result.Verdict)).Inc()
	for _, c := range result.Cases {
		if c.CPUTime > 0 {
			m.caseCPUTime.Observe(c.CPUTime.Seconds())
		}
	}
}

// ObserveWorkerRestart records a worker killed and respawned after a
// protocol desync.
func (m *Metrics) ObserveWorkerRestart() {
	m.workerRestarts.Inc()
}
