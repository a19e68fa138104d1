package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sqleval/sqleval/pkg/types"
)

// Metrics collects per-run Prometheus metrics on a private registry so they
// can be written to a node-exporter textfile when the run ends.
type Metrics struct {
	registry *prometheus.Registry

	CasesTotal     *prometheus.CounterVec
	AgentDuration  *prometheus.HistogramVec
	MetricScore    *prometheus.HistogramVec
	MetricErrors   *prometheus.CounterVec
	JudgeCost      prometheus.Counter
	OverallScore   prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
}

// NewMetrics creates and registers the run metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqleval_cases_total",
			Help: "Evaluated cases by difficulty and result",
		}, []string{"difficulty", "result"}),
		AgentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sqleval_agent_duration_seconds",
			Help:    "Agent execution time per case",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"difficulty"}),
		MetricScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sqleval_metric_score",
			Help:    "Metric scores per case",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"metric"}),
		MetricErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqleval_metric_errors_total",
			Help: "Metric evaluations that failed",
		}, []string{"metric"}),
		JudgeCost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqleval_judge_cost_usd_total",
			Help: "Estimated judge spend in USD",
		}),
		OverallScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sqleval_overall_score",
			Help: "Mean overall score of the last run",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sqleval_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}
	m.registry.MustRegister(m.CasesTotal, m.AgentDuration, m.MetricScore, m.MetricErrors,
		m.JudgeCost, m.OverallScore, m.LastRunTimestamp)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveCase records one evaluated case. Safe on a nil receiver.
func (m *Metrics) ObserveCase(c *types.CaseResult) {
	if m == nil {
		return
	}
	result := "passed"
	switch {
	case c.Error != "":
		result = "agent_error"
	case !c.Passed:
		result = "failed"
	}
	d := string(c.Difficulty)
	m.CasesTotal.WithLabelValues(d, result).Inc()
	if c.Agent != nil {
		m.AgentDuration.WithLabelValues(d).Observe(c.Agent.ExecutionTimeMS / 1000)
	}
	for _, s := range c.Scores {
		if s.Error != "" {
			m.MetricErrors.WithLabelValues(s.Metric).Inc()
			continue
		}
		m.MetricScore.WithLabelValues(s.Metric).Observe(s.Score)
		if s.Cost > 0 {
			m.JudgeCost.Add(s.Cost)
		}
	}
}

// ObserveRun records the run summary. Safe on a nil receiver.
func (m *Metrics) ObserveRun(r *types.Report, finished time.Time) {
	if m == nil {
		return
	}
	m.OverallScore.Set(r.Summary.OverallScore)
	m.LastRunTimestamp.Set(float64(finished.Unix()))
}

// WriteTextfile writes all metrics in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
