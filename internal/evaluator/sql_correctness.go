package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sqleval/sqleval/internal/evaluator/judge"
	"github.com/sqleval/sqleval/pkg/types"
)

// Weights of the SQL correctness composite when structural criteria exist.
const (
	judgeWeight      = 0.6
	structuralWeight = 0.4
)

// SQLCorrectness grades generated SQL against the reference query with an LLM
// judge, blended with a structural check of the case's sql_criteria.
type SQLCorrectness struct {
	judge     *JudgeRunner
	threshold float64
}

// NewSQLCorrectness creates the evaluator. runner may be nil, in which case
// only cases with structural criteria can be scored.
func NewSQLCorrectness(runner *JudgeRunner, threshold float64) *SQLCorrectness {
	return &SQLCorrectness{judge: runner, threshold: threshold}
}

func (e *SQLCorrectness) Name() string { return types.MetricSQLCorrectness }

func (e *SQLCorrectness) Evaluate(ctx context.Context, in *Input) *types.MetricScore {
	start := time.Now()
	generated := strings.TrimSpace(in.Result.GeneratedSQL)
	if generated == "" {
		return newScore(e.Name(), 0, e.threshold, "No SQL was generated", start)
	}

	criteria := in.Case.SQLCriteria
	var structural *CriteriaResult
	if !criteria.IsZero() {
		r := ValidateCriteria(generated, criteria)
		structural = &r
	}

	if e.judge == nil {
		if structural == nil {
			return errorScore(e.Name(), e.threshold, start, "no judge configured and case has no sql_criteria")
		}
		s := newScore(e.Name(), structural.Fraction(), e.threshold, criteriaReason(structural), start)
		s.Components = []types.ComponentScore{{Name: "structural", Score: structural.Fraction(), Reason: criteriaReason(structural)}}
		return s
	}

	v, err := e.judge.Judge(ctx, judge.RubricSQLCorrectness, strings.Join([]string{
		"Question: " + in.Case.Question,
		"Reference SQL:\n" + in.Case.ExpectedSQL,
		judge.Section("Generated SQL", generated),
	}, "\n\n"))
	if err != nil {
		return errorScore(e.Name(), e.threshold, start, "%v", err)
	}

	components := []types.ComponentScore{{Name: "judge", Score: v.Score, Reason: v.Explanation}}
	score := v.Score
	reason := v.Explanation
	if structural != nil {
		score = judgeWeight*v.Score + structuralWeight*structural.Fraction()
		components = append(components, types.ComponentScore{
			Name:   "structural",
			Score:  structural.Fraction(),
			Reason: criteriaReason(structural),
		})
		reason = fmt.Sprintf("%s Criteria: %s", reason, criteriaReason(structural))
	}

	s := newScore(e.Name(), score, e.threshold, strings.TrimSpace(reason), start)
	s.Components = components
	s.Cost = v.Cost
	return s
}

func criteriaReason(r *CriteriaResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d/%d checks passed", r.Passed, r.Checks)
	if len(r.Failures) > 0 {
		b.WriteString("; " + strings.Join(r.Failures, "; "))
	}
	if len(r.Warnings) > 0 {
		b.WriteString("; warning: " + strings.Join(r.Warnings, "; "))
	}
	return b.String()
}
