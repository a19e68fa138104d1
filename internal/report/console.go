package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/sqleval/sqleval/pkg/types"
)

var rule = strings.Repeat("=", 80)

var metricLabels = map[string]string{
	types.MetricSQLCorrectness:   "SQL Correctness",
	types.MetricContextRetrieval: "Context Quality",
	types.MetricAnswerQuality:    "Answer Quality",
	types.MetricQueryEfficiency:  "Query Efficiency",
}

// printer accumulates the first write error so the render functions stay
// readable.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

// PrintCase writes the detailed console block for one evaluated case.
func PrintCase(w io.Writer, c *types.CaseResult) error {
	p := &printer{w: w}
	p.printf("\n%s\nTest Case: %s\nQuestion: %s\nDifficulty: %s\n%s\n\n", rule, c.CaseID, c.Question, c.Difficulty, rule)
	if a := c.Agent; a != nil {
		p.printf("Generated SQL:\n%s\n\n", a.GeneratedSQL)
		p.printf("Final Answer:\n%s\n\n", a.Answer)
		p.printf("Execution Time: %.2fms\n\n", a.ExecutionTimeMS)
	}
	if c.Error != "" {
		p.printf("Agent error: %s\n", c.Error)
		p.printf("%s\n\n", rule)
		return p.err
	}

	for _, s := range c.Scores {
		label := metricLabels[s.Metric]
		if label == "" {
			label = s.Metric
		}
		if s.Error != "" {
			p.printf("x %s failed: %s\n", label, s.Error)
		} else {
			p.printf("%s %s: %.2f\n", checkMark(s.Passed), label, s.Score)
		}
		for _, comp := range s.Components {
			if comp.Error != "" {
				p.printf("  %s: error: %s\n", comp.Name, comp.Error)
				continue
			}
			p.printf("  %s: %.2f\n", comp.Name, comp.Score)
		}
		for _, f := range s.Findings {
			p.printf("  - [%s] %s\n", f.Severity, f.Message)
		}
	}

	p.printf("\n%s\nOverall Assessment:\n", rule)
	for _, m := range types.MetricNames {
		if s := c.Score(m); s != nil {
			p.printf("  %s: %.2f\n", metricLabels[m], s.Score)
		}
	}
	p.printf("  Overall Score: %.2f", c.OverallScore)
	if c.Regression {
		p.printf(" (regression)")
	}
	p.printf("\n%s\n\n", rule)
	return p.err
}

// PrintSummary writes the end-of-run summary.
func PrintSummary(w io.Writer, r *types.Report) error {
	p := &printer{w: w}
	if r.Mode == types.ModeBenchmark {
		printBenchmark(p, r)
		return p.err
	}

	s := r.Summary
	p.printf("\n%s\nEvaluation Summary (%s, threshold %.2f)\n%s\n", rule, r.Model, r.Threshold, rule)
	p.printf("  Total Cases: %d\n  Passed: %d\n  Failed: %d\n  Agent Errors: %d\n", s.Total, s.Passed, s.Failed, s.AgentErrors)
	p.printf("  Overall Score: %.2f\n", s.OverallScore)
	for _, m := range types.MetricNames {
		if avg, ok := s.MetricAverage[m]; ok {
			p.printf("  %s: %.2f\n", metricLabels[m], avg)
		}
	}
	if s.TotalCost > 0 {
		p.printf("  Judge Cost: $%.4f\n", s.TotalCost)
	}
	printTiers(p, s.ByDifficulty, true)

	var failed []string
	for _, c := range r.Cases {
		if !c.Passed {
			failed = append(failed, fmt.Sprintf("%s (%.2f)", c.CaseID, c.OverallScore))
		}
	}
	if len(failed) > 0 {
		p.printf("\nBelow threshold:\n")
		for _, f := range failed {
			p.printf("  - %s\n", f)
		}
	}
	p.printf("%s\n", rule)
	return p.err
}

func printBenchmark(p *printer, r *types.Report) {
	b := r.Benchmark
	if b == nil {
		return
	}
	p.printf("\n%s\nPerformance Benchmark - %d test cases\n%s\n\n", rule, b.TotalQueries, rule)
	p.printf("Results:\n")
	p.printf("  Total Cases: %d\n  Successful: %d\n  Failed: %d\n", b.TotalQueries, b.Successful, b.Failed)
	p.printf("  Success Rate: %.1f%%\n", b.SuccessRate*100)
	p.printf("  Average Time: %.2fms\n  Min Time: %.2fms\n  Max Time: %.2fms\n", b.AvgTimeMS, b.MinTimeMS, b.MaxTimeMS)
	p.printf("  Total Time: %.2fs\n", b.TotalTimeMS/1000)
	printTiers(p, r.Summary.ByDifficulty, false)
	p.printf("%s\n", rule)
}

func printTiers(p *printer, tiers map[types.Difficulty]*types.TierSummary, scored bool) {
	if len(tiers) == 0 {
		return
	}
	p.printf("\nBy difficulty:\n")
	for _, d := range types.Difficulties {
		t, ok := tiers[d]
		if !ok {
			continue
		}
		if scored {
			p.printf("  %-8s %d/%d passed, success rate %.1f%%, average %.2f\n",
				d, t.Passed, t.Total, t.SuccessRate*100, t.AverageScore)
		} else {
			p.printf("  %-8s %d/%d successful, success rate %.1f%%\n", d, t.Passed, t.Total, t.SuccessRate*100)
		}
	}
}

func checkMark(ok bool) string {
	if ok {
		return "+"
	}
	return "x"
}
