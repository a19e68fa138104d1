package evaluator

import (
	"context"
	"strings"
	"time"

	"github.com/sqleval/sqleval/internal/evaluator/judge"
	"github.com/sqleval/sqleval/pkg/types"
)

// AnswerQuality grades the natural-language answer: relevancy to the question,
// faithfulness to the retrieved context and SQL, and absence of hallucination.
// The hallucination component reports the raw hallucination score and enters
// the aggregate inverted.
type AnswerQuality struct {
	judge     *JudgeRunner
	threshold float64
}

// NewAnswerQuality creates the evaluator. runner may be nil.
func NewAnswerQuality(runner *JudgeRunner, threshold float64) *AnswerQuality {
	return &AnswerQuality{judge: runner, threshold: threshold}
}

func (e *AnswerQuality) Name() string { return types.MetricAnswerQuality }

func (e *AnswerQuality) Evaluate(ctx context.Context, in *Input) *types.MetricScore {
	start := time.Now()
	answer := strings.TrimSpace(in.Result.Answer)
	if answer == "" {
		return newScore(e.Name(), 0, e.threshold, "No answer was produced", start)
	}
	if e.judge == nil {
		return errorScore(e.Name(), e.threshold, start, "no judge configured")
	}

	support := numbered(nonEmpty(in.Result.RetrievedContext))
	if sql := strings.TrimSpace(in.Result.GeneratedSQL); sql != "" {
		support += "\n\nGenerated SQL:\n" + sql
	}

	calls := []struct {
		rubric   string
		sections []string
	}{
		{judge.RubricAnswerRelevancy, []string{
			"Question: " + in.Case.Question,
			judge.Section("Answer", answer),
		}},
		{judge.RubricFaithfulness, []string{
			judge.Section("Retrieved context", support),
			judge.Section("Answer", answer),
		}},
		{judge.RubricHallucination, []string{
			judge.Section("Context", support),
			judge.Section("Answer", answer),
		}},
	}

	var (
		components []types.ComponentScore
		cost       float64
	)
	for _, c := range calls {
		v, err := e.judge.Judge(ctx, c.rubric, strings.Join(c.sections, "\n\n"))
		if err != nil {
			components = append(components, types.ComponentScore{Name: c.rubric, Error: err.Error()})
			continue
		}
		cost += v.Cost
		components = append(components, types.ComponentScore{Name: c.rubric, Score: v.Score, Reason: v.Explanation})
	}

	s := aggregate(e.Name(), components, e.threshold, start, func(c types.ComponentScore) float64 {
		if c.Name == judge.RubricHallucination {
			return 1 - c.Score
		}
		return c.Score
	})
	s.Cost = cost
	return s
}
