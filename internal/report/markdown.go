package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sqleval/sqleval/pkg/types"
)

// WriteMarkdown writes a Markdown summary of r to w, suitable for a pull
// request comment.
func WriteMarkdown(w io.Writer, r *types.Report) error {
	if _, err := fmt.Fprintf(w, "## SQL Agent Evaluation Report\n\n"); err != nil {
		return err
	}
	if !r.Timestamp.IsZero() {
		if _, err := fmt.Fprintf(w, "**Run:** `%s` at %s\n\n", r.RunID, r.Timestamp.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "**Model:** %s (%s), threshold %.2f\n\n", r.Model, r.Provider, r.Threshold); err != nil {
		return err
	}

	if r.Mode == types.ModeBenchmark {
		return writeBenchmarkMarkdown(w, r)
	}

	s := r.Summary
	if _, err := fmt.Fprintf(w, "**Results:** %d total, %d passed, %d failed (%d agent errors). Overall score %.2f\n\n",
		s.Total, s.Passed, s.Failed, s.AgentErrors, s.OverallScore); err != nil {
		return err
	}
	if s.TotalCost > 0 {
		if _, err := fmt.Fprintf(w, "**Cost:** $%.6f\n\n", s.TotalCost); err != nil {
			return err
		}
	}
	if err := writeTierTable(w, s.ByDifficulty, true); err != nil {
		return err
	}

	if len(r.Cases) == 0 {
		_, err := fmt.Fprintln(w, "_No cases evaluated._")
		return err
	}

	if _, err := fmt.Fprintln(w, "| Case | Status | Overall | SQL | Context | Answer | Efficiency | Notes |"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "|------|--------|---------|-----|---------|--------|------------|-------|"); err != nil {
		return err
	}
	for _, c := range r.Cases {
		status := types.StatusPass
		if !c.Passed {
			status = types.StatusHardFail
		}
		cols := make([]string, 0, len(types.MetricNames))
		for _, m := range types.MetricNames {
			cols = append(cols, metricCell(c.Score(m)))
		}
		if _, err := fmt.Fprintf(w, "| `%s` | %s | %.3f | %s | %s |\n",
			c.CaseID, statusIcon(status), c.OverallScore, strings.Join(cols, " | "), cell(caseNote(c))); err != nil {
			return err
		}
	}
	return nil
}

func writeTierTable(w io.Writer, tiers map[types.Difficulty]*types.TierSummary, scored bool) error {
	if len(tiers) == 0 {
		return nil
	}
	header, sep := "| Difficulty | Cases | Passed | Success rate |", "|------------|-------|--------|--------------|"
	if scored {
		header, sep = header+" Average |", sep+"---------|"
	}
	if _, err := fmt.Fprintf(w, "%s\n%s\n", header, sep); err != nil {
		return err
	}
	for _, d := range types.Difficulties {
		t, ok := tiers[d]
		if !ok {
			continue
		}
		row := fmt.Sprintf("| %s | %d | %d | %.1f%% |", d, t.Total, t.Passed, t.SuccessRate*100)
		if scored {
			row += fmt.Sprintf(" %.3f |", t.AverageScore)
		}
		if _, err := fmt.Fprintln(w, row); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

func writeBenchmarkMarkdown(w io.Writer, r *types.Report) error {
	if b := r.Benchmark; b != nil {
		if _, err := fmt.Fprintf(w, "**Benchmark:** %d queries, %d successful, %d failed, success rate %.1f%%. "+
			"Time avg %.2fms, min %.2fms, max %.2fms, total %.2fs\n\n",
			b.TotalQueries, b.Successful, b.Failed, b.SuccessRate*100,
			b.AvgTimeMS, b.MinTimeMS, b.MaxTimeMS, b.TotalTimeMS/1000); err != nil {
			return err
		}
	}
	return writeTierTable(w, r.Summary.ByDifficulty, false)
}

func metricCell(s *types.MetricScore) string {
	if s == nil {
		return "-"
	}
	if s.Error != "" {
		return statusIcon("") + " error"
	}
	return fmt.Sprintf("%s %.2f", statusIcon(s.Status), s.Score)
}

func caseNote(c *types.CaseResult) string {
	switch {
	case c.Error != "":
		return c.Error
	case c.Regression:
		return "regression against score history"
	}
	for _, m := range types.MetricNames {
		if s := c.Score(m); s != nil && s.Error != "" {
			return s.Metric + ": " + s.Error
		}
	}
	return ""
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 100 {
		s = s[:97] + "..."
	}
	return s
}

func statusIcon(status string) string {
	switch status {
	case types.StatusPass:
		return ":white_check_mark:"
	case types.StatusSoftFail:
		return ":warning:"
	case types.StatusHardFail:
		return ":x:"
	default:
		return ":grey_question:"
	}
}
