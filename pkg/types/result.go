package types

import "time"

// Metric names, in dispatch order.
const (
	MetricSQLCorrectness   = "sql_correctness"
	MetricContextRetrieval = "context_retrieval"
	MetricAnswerQuality    = "answer_quality"
	MetricQueryEfficiency  = "query_efficiency"
)

// MetricNames lists every metric a full evaluation produces.
var MetricNames = []string{
	MetricSQLCorrectness,
	MetricContextRetrieval,
	MetricAnswerQuality,
	MetricQueryEfficiency,
}

// Status values used for score classification.
const (
	StatusPass     = "pass"
	StatusSoftFail = "soft_fail"
	StatusHardFail = "hard_fail"
)

// AgentResult is the captured output of one agent run.
type AgentResult struct {
	Question         string            `json:"question"`
	RetrievedContext []string          `json:"retrieved_context"`
	GeneratedSQL     string            `json:"generated_sql"`
	Answer           string            `json:"answer"`
	ExecutionTimeMS  float64           `json:"execution_time_ms"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// Failed reports whether the agent run produced an error.
func (r *AgentResult) Failed() bool { return r.Error != "" }

// ComponentScore is one sub-metric contributing to a MetricScore.
type ComponentScore struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Finding is one static-analysis observation about a query.
type Finding struct {
	Type           string `json:"type"`
	Severity       string `json:"severity"`
	Message        string `json:"message"`
	Recommendation string `json:"recommendation,omitempty"`
}

// Finding severities.
const (
	SeverityIssue   = "issue"
	SeverityWarning = "warning"
)

// MetricScore is the outcome of one evaluator on one agent result.
type MetricScore struct {
	Metric     string           `json:"metric"`
	Score      float64          `json:"score"`
	Reason     string           `json:"reason"`
	Threshold  float64          `json:"threshold"`
	Passed     bool             `json:"passed"`
	Status     string           `json:"status"`
	Error      string           `json:"error,omitempty"`
	Components []ComponentScore `json:"components,omitempty"`
	Findings   []Finding        `json:"findings,omitempty"`
	Cost       float64          `json:"cost,omitempty"`
	DurationMS int64            `json:"duration_ms"`
}

// CaseResult aggregates the agent output and every metric for one test case.
type CaseResult struct {
	CaseID       string         `json:"case_id"`
	Difficulty   Difficulty     `json:"difficulty"`
	Question     string         `json:"question"`
	Agent        *AgentResult   `json:"agent"`
	Scores       []*MetricScore `json:"scores"`
	OverallScore float64        `json:"overall_score"`
	Passed       bool           `json:"passed"`
	Regression   bool           `json:"regression,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Score returns the MetricScore for the named metric, or nil.
func (c *CaseResult) Score(metric string) *MetricScore {
	for _, s := range c.Scores {
		if s.Metric == metric {
			return s
		}
	}
	return nil
}

// TierSummary holds per-difficulty totals.
type TierSummary struct {
	Total        int     `json:"total"`
	Passed       int     `json:"passed"`
	SuccessRate  float64 `json:"success_rate"`
	AverageScore float64 `json:"average_score"`
}

// Summary holds run-wide totals.
type Summary struct {
	Total         int                         `json:"total"`
	Passed        int                         `json:"passed"`
	Failed        int                         `json:"failed"`
	AgentErrors   int                         `json:"agent_errors"`
	OverallScore  float64                     `json:"overall_score"`
	MetricAverage map[string]float64          `json:"metric_average"`
	ByDifficulty  map[Difficulty]*TierSummary `json:"by_difficulty"`
	TotalCost     float64                     `json:"total_cost"`
}

// BenchmarkStats holds timing statistics of a benchmark run.
type BenchmarkStats struct {
	TotalQueries   int     `json:"total_queries"`
	Successful     int     `json:"successful"`
	Failed         int     `json:"failed"`
	SuccessRate    float64 `json:"success_rate"`
	AvgTimeMS      float64 `json:"avg_time_ms"`
	MinTimeMS      float64 `json:"min_time_ms"`
	MaxTimeMS      float64 `json:"max_time_ms"`
	TotalTimeMS    float64 `json:"total_time_ms"`
	MinSuccessRate float64 `json:"min_success_rate"`
}

// Run modes.
const (
	ModeEvaluate  = "evaluate"
	ModeBenchmark = "benchmark"
)

// Report is the complete output of one harness run.
type Report struct {
	RunID     string          `json:"run_id"`
	Timestamp time.Time       `json:"timestamp"`
	Mode      string          `json:"mode"`
	Model     string          `json:"model"`
	Provider  string          `json:"provider"`
	Threshold float64         `json:"threshold"`
	Cases     []*CaseResult   `json:"cases"`
	Summary   Summary         `json:"summary"`
	Benchmark *BenchmarkStats `json:"benchmark,omitempty"`
}

// Case returns the result for the given case id, or nil.
func (r *Report) Case(id string) *CaseResult {
	for _, c := range r.Cases {
		if c.CaseID == id {
			return c
		}
	}
	return nil
}
