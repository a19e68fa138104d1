package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sqleval/sqleval/internal/cache"
	"github.com/sqleval/sqleval/internal/evaluator/embedding"
	"github.com/sqleval/sqleval/internal/evaluator/judge"
	"github.com/sqleval/sqleval/pkg/types"
)

// ContextRetrieval grades the schema context the agent retrieved: relevancy to
// the question, recall of the expected context, and precision of its ranking.
type ContextRetrieval struct {
	judge     *JudgeRunner
	threshold float64

	embedder embedding.Embedder
	vectors  *cache.EmbeddingCache
	logger   *zap.Logger
}

// NewContextRetrieval creates the evaluator. runner may be nil.
func NewContextRetrieval(runner *JudgeRunner, threshold float64) *ContextRetrieval {
	return &ContextRetrieval{judge: runner, threshold: threshold, logger: zap.NewNop()}
}

// WithSemanticRecall adds an embedding-based semantic_recall component. c may
// be nil to disable vector caching.
func (e *ContextRetrieval) WithSemanticRecall(embedder embedding.Embedder, c *cache.EmbeddingCache) *ContextRetrieval {
	e.embedder = embedder
	e.vectors = c
	return e
}

func (e *ContextRetrieval) Name() string { return types.MetricContextRetrieval }

func (e *ContextRetrieval) Evaluate(ctx context.Context, in *Input) *types.MetricScore {
	start := time.Now()
	retrieved := nonEmpty(in.Result.RetrievedContext)
	if len(retrieved) == 0 {
		return newScore(e.Name(), 0, e.threshold, "No context was retrieved", start)
	}
	expected := nonEmpty(in.Case.ExpectedContext)

	var components []types.ComponentScore
	var cost float64

	judged := []struct {
		rubric   string
		needs    bool
		sections []string
	}{
		{judge.RubricContextualRelevancy, false, []string{
			"Question: " + in.Case.Question,
			judge.Section("Retrieved context", numbered(retrieved)),
		}},
		{judge.RubricContextualRecall, true, []string{
			"Expected context:\n" + numbered(expected),
			judge.Section("Retrieved context", numbered(retrieved)),
		}},
		{judge.RubricContextualPrecision, true, []string{
			"Question: " + in.Case.Question,
			"Expected context:\n" + numbered(expected),
			judge.Section("Retrieved context", numbered(retrieved)),
		}},
	}
	for _, j := range judged {
		switch {
		case j.needs && len(expected) == 0:
			components = append(components, types.ComponentScore{Name: j.rubric, Error: "case has no expected context"})
		case e.judge == nil:
			components = append(components, types.ComponentScore{Name: j.rubric, Error: "no judge configured"})
		default:
			v, err := e.judge.Judge(ctx, j.rubric, strings.Join(j.sections, "\n\n"))
			if err != nil {
				components = append(components, types.ComponentScore{Name: j.rubric, Error: err.Error()})
				continue
			}
			cost += v.Cost
			components = append(components, types.ComponentScore{Name: j.rubric, Score: v.Score, Reason: v.Explanation})
		}
	}

	if e.embedder != nil && len(expected) > 0 {
		components = append(components, e.semanticRecall(ctx, expected, retrieved))
	}

	s := aggregate(e.Name(), components, e.threshold, start, func(c types.ComponentScore) float64 { return c.Score })
	s.Cost = cost
	return s
}

func (e *ContextRetrieval) semanticRecall(ctx context.Context, expected, retrieved []string) types.ComponentScore {
	const name = "semantic_recall"
	got := make([][]float32, 0, len(retrieved))
	for _, r := range retrieved {
		v, err := e.vector(ctx, r)
		if err != nil {
			return types.ComponentScore{Name: name, Error: fmt.Sprintf("embed retrieved context: %v", err)}
		}
		got = append(got, v)
	}
	best := make([]float64, 0, len(expected))
	for _, x := range expected {
		v, err := e.vector(ctx, x)
		if err != nil {
			return types.ComponentScore{Name: name, Error: fmt.Sprintf("embed expected context: %v", err)}
		}
		best = append(best, clamp(embedding.BestMatch(v, got)))
	}
	score := Mean(best)
	return types.ComponentScore{
		Name:   name,
		Score:  score,
		Reason: fmt.Sprintf("mean best cosine similarity %.3f over %d expected snippets", score, len(expected)),
	}
}

func (e *ContextRetrieval) vector(ctx context.Context, text string) ([]float32, error) {
	if e.vectors == nil {
		return e.embedder.Embed(ctx, text)
	}
	model := e.embedder.Model()
	if v, ok, err := e.vectors.Lookup(ctx, model, text); err != nil {
		e.logger.Warn("embedding cache read error", zap.Error(err))
	} else if ok {
		return v, nil
	}
	v, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.vectors.Store(ctx, model, text, v); err != nil {
		e.logger.Error("embedding cache write error", zap.Error(err))
	}
	return v, nil
}

// aggregate averages the successful components. value maps a component to
// its contribution, which lets inverted sub-metrics count as 1 - score. With
// no successful component the metric is an error.
func aggregate(metric string, components []types.ComponentScore, threshold float64, start time.Time, value func(types.ComponentScore) float64) *types.MetricScore {
	var (
		vals    []float64
		reasons []string
		errs    []string
	)
	for _, c := range components {
		if c.Error != "" {
			errs = append(errs, fmt.Sprintf("%s: %s", c.Name, c.Error))
			continue
		}
		vals = append(vals, value(c))
		reasons = append(reasons, fmt.Sprintf("%s=%.2f", c.Name, c.Score))
	}
	if len(vals) == 0 {
		s := errorScore(metric, threshold, start, "all sub-metrics failed: %s", strings.Join(errs, "; "))
		s.Components = components
		return s
	}
	reason := strings.Join(reasons, ", ")
	if len(errs) > 0 {
		reason += " (skipped " + strings.Join(errs, "; ") + ")"
	}
	s := newScore(metric, Mean(vals), threshold, reason, start)
	s.Components = components
	return s
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func numbered(items []string) string {
	var b strings.Builder
	for i, s := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	return strings.TrimRight(b.String(), "\n")
}
