package driver

import (
	"github.com/sqleval/sqleval/internal/evaluator"
	"github.com/sqleval/sqleval/pkg/types"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailed      = 1
	ExitConfigError = 2
)

// Summarize aggregates case results into run totals and a per-difficulty
// breakdown.
func Summarize(cases []*types.CaseResult) types.Summary {
	s := types.Summary{
		Total:         len(cases),
		MetricAverage: make(map[string]float64),
		ByDifficulty:  make(map[types.Difficulty]*types.TierSummary),
	}

	overall := make([]float64, 0, len(cases))
	perMetric := make(map[string][]float64)
	perTier := make(map[types.Difficulty][]float64)
	for _, c := range cases {
		if c.Passed {
			s.Passed++
		}
		if c.Error != "" {
			s.AgentErrors++
		}
		overall = append(overall, c.OverallScore)
		for _, m := range c.Scores {
			perMetric[m.Metric] = append(perMetric[m.Metric], m.Score)
			s.TotalCost += m.Cost
		}

		t, ok := s.ByDifficulty[c.Difficulty]
		if !ok {
			t = &types.TierSummary{}
			s.ByDifficulty[c.Difficulty] = t
		}
		t.Total++
		if c.Passed {
			t.Passed++
		}
		perTier[c.Difficulty] = append(perTier[c.Difficulty], c.OverallScore)
	}

	s.Failed = s.Total - s.Passed
	s.OverallScore = evaluator.Mean(overall)
	for m, vals := range perMetric {
		s.MetricAverage[m] = evaluator.Mean(vals)
	}
	for d, t := range s.ByDifficulty {
		t.SuccessRate = float64(t.Passed) / float64(t.Total)
		t.AverageScore = evaluator.Mean(perTier[d])
	}
	return s
}

// ExitCode maps a finished report to the process exit code. Evaluation runs
// succeed when every case passed; benchmark runs when every difficulty tier
// reached the minimum success rate.
func ExitCode(r *types.Report) int {
	if r == nil || r.Summary.Total == 0 {
		return ExitFailed
	}
	if r.Mode == types.ModeBenchmark {
		minRate := DefaultMinSuccessRate
		if r.Benchmark != nil {
			minRate = r.Benchmark.MinSuccessRate
		}
		for _, t := range r.Summary.ByDifficulty {
			if t.SuccessRate < minRate {
				return ExitFailed
			}
		}
		return ExitOK
	}
	for _, c := range r.Cases {
		if !c.Passed {
			return ExitFailed
		}
	}
	return ExitOK
}
