package evaluator

import (
	"math"

	"github.com/sqleval/sqleval/pkg/types"
)

// softMargin is how far below the pass threshold a score may fall and still
// count as a soft failure.
const softMargin = 0.2

// SoftThreshold returns the soft-fail boundary for a pass threshold.
func SoftThreshold(pass float64) float64 {
	return math.Max(0, pass-softMargin)
}

// ClassifyScore maps a score to a status using the default threshold.
func ClassifyScore(score float64) string {
	return ClassifyScoreWithThreshold(score, DefaultThreshold, SoftThreshold(DefaultThreshold))
}

// ClassifyScoreWithThreshold maps a score to a status string.
// score < soft → hard_fail
// score < pass → soft_fail
// otherwise   → pass
func ClassifyScoreWithThreshold(score, pass, soft float64) string {
	switch {
	case score >= pass:
		return types.StatusPass
	case score >= soft:
		return types.StatusSoftFail
	default:
		return types.StatusHardFail
	}
}

// DynamicConfig holds parameters for history-based classification.
type DynamicConfig struct {
	WindowSize int
	SigmaScale float64
	MinRuns    int
}

// DefaultDynamicConfig is used for regression detection.
var DefaultDynamicConfig = DynamicConfig{WindowSize: 50, SigmaScale: 2.0, MinRuns: 10}

// ClassifyDynamic classifies a score against its own history. With fewer than
// cfg.MinRuns prior scores it falls back to ClassifyScore; otherwise the score
// passes when it is no lower than mean - SigmaScale*stddev.
func ClassifyDynamic(score float64, history []float64, cfg DynamicConfig) string {
	if len(history) < cfg.MinRuns {
		return ClassifyScore(score)
	}
	mean, stddev := computeStats(history)
	if score >= mean-cfg.SigmaScale*stddev {
		return types.StatusPass
	}
	return types.StatusHardFail
}

// Mean returns the arithmetic mean of values, or 0 for none.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// OverallScore averages the metric scores of a case. Errored metrics
// contribute their zero score.
func OverallScore(scores []*types.MetricScore) float64 {
	vals := make([]float64, 0, len(scores))
	for _, s := range scores {
		vals = append(vals, s.Score)
	}
	return Mean(vals)
}

// computeStats returns the mean and population standard deviation of data.
func computeStats(data []float64) (mean, stddev float64) {
	if len(data) == 0 {
		return 0, 0
	}
	mean = Mean(data)
	sumSqDiff := 0.0
	for _, v := range data {
		d := v - mean
		sumSqDiff += d * d
	}
	return mean, math.Sqrt(sumSqDiff / float64(len(data)))
}
