// Package evaluator scores agent results against test cases. Every evaluator
// returns a MetricScore; failures are reported in the score, never as errors,
// so one broken metric cannot abort a case.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sqleval/sqleval/internal/cache"
	"github.com/sqleval/sqleval/internal/evaluator/embedding"
	"github.com/sqleval/sqleval/internal/evaluator/judge"
	"github.com/sqleval/sqleval/internal/llm"
	"github.com/sqleval/sqleval/pkg/types"
)

// DefaultThreshold is the pass threshold used when none is configured.
const DefaultThreshold = 0.7

// Input is what an evaluator scores: one test case and the agent's output for it.
type Input struct {
	Case   *types.TestCase
	Result *types.AgentResult
	Schema *types.Schema
}

// Evaluator is implemented by every metric.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, in *Input) *types.MetricScore
}

// Registry holds evaluators in dispatch order.
type Registry struct {
	evaluators []Evaluator
	index      map[string]int
}

type registryConfig struct {
	threshold      float64
	provider       llm.Provider
	rubrics        *judge.RubricRegistry
	judgeCache     *cache.JudgeCache
	timeout        time.Duration
	metaEval       bool
	embedder       embedding.Embedder
	embeddingCache *cache.EmbeddingCache
	logger         *zap.Logger
}

// RegistryOption configures the evaluators built by NewRegistry.
type RegistryOption func(*registryConfig)

// WithThreshold sets the pass threshold shared by all metrics.
func WithThreshold(t float64) RegistryOption {
	return func(cfg *registryConfig) { cfg.threshold = t }
}

// WithJudge enables the LLM-judged metrics. c may be nil to disable caching.
func WithJudge(provider llm.Provider, rubrics *judge.RubricRegistry, c *cache.JudgeCache) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.provider = provider
		cfg.rubrics = rubrics
		cfg.judgeCache = c
	}
}

// WithJudgeTimeout bounds each judge call.
func WithJudgeTimeout(d time.Duration) RegistryOption {
	return func(cfg *registryConfig) { cfg.timeout = d }
}

// WithMetaEval runs every judge call three times and keeps the median.
func WithMetaEval(enabled bool) RegistryOption {
	return func(cfg *registryConfig) { cfg.metaEval = enabled }
}

// WithEmbedding adds the semantic_recall component to context retrieval.
func WithEmbedding(embedder embedding.Embedder, c *cache.EmbeddingCache) RegistryOption {
	return func(cfg *registryConfig) {
		cfg.embedder = embedder
		cfg.embeddingCache = c
	}
}

// WithLogger sets the logger used by the evaluators.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(cfg *registryConfig) { cfg.logger = l }
}

// NewRegistry builds the four metrics in their fixed order: SQL correctness,
// context retrieval, answer quality, query efficiency. Without a judge
// provider the judged metrics still run and report an error score.
func NewRegistry(opts ...RegistryOption) *Registry {
	cfg := registryConfig{threshold: DefaultThreshold}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.rubrics == nil {
		cfg.rubrics = judge.NewRubricRegistry()
	}

	var runner *JudgeRunner
	if cfg.provider != nil {
		runner = NewJudgeRunner(cfg.provider, cfg.rubrics,
			WithCache(cfg.judgeCache),
			WithTimeout(cfg.timeout),
			WithMedianOfThree(cfg.metaEval),
			WithRunnerLogger(cfg.logger),
		)
	}

	r := &Registry{index: make(map[string]int)}
	r.Register(NewSQLCorrectness(runner, cfg.threshold))
	ctxEval := NewContextRetrieval(runner, cfg.threshold)
	ctxEval.logger = cfg.logger.Named("context")
	if cfg.embedder != nil {
		ctxEval.WithSemanticRecall(cfg.embedder, cfg.embeddingCache)
	}
	r.Register(ctxEval)
	r.Register(NewAnswerQuality(runner, cfg.threshold))
	r.Register(NewQueryEfficiency(cfg.threshold))
	return r
}

// Register appends an evaluator, replacing any existing one with the same name
// in place.
func (r *Registry) Register(e Evaluator) {
	if i, ok := r.index[e.Name()]; ok {
		r.evaluators[i] = e
		return
	}
	r.index[e.Name()] = len(r.evaluators)
	r.evaluators = append(r.evaluators, e)
}

// Get returns the evaluator for a metric name.
func (r *Registry) Get(name string) (Evaluator, error) {
	i, ok := r.index[name]
	if !ok {
		return nil, fmt.Errorf("unknown metric: %s", name)
	}
	return r.evaluators[i], nil
}

// All returns the evaluators in dispatch order.
func (r *Registry) All() []Evaluator {
	out := make([]Evaluator, len(r.evaluators))
	copy(out, r.evaluators)
	return out
}

// Names returns the metric names in dispatch order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.evaluators))
	for i, e := range r.evaluators {
		names[i] = e.Name()
	}
	return names
}

// newScore builds a classified MetricScore.
func newScore(metric string, score, threshold float64, reason string, start time.Time) *types.MetricScore {
	score = clamp(score)
	return &types.MetricScore{
		Metric:     metric,
		Score:      score,
		Reason:     reason,
		Threshold:  threshold,
		Passed:     score >= threshold,
		Status:     ClassifyScoreWithThreshold(score, threshold, SoftThreshold(threshold)),
		DurationMS: time.Since(start).Milliseconds(),
	}
}

// errorScore builds a zero score carrying an error message.
func errorScore(metric string, threshold float64, start time.Time, format string, args ...any) *types.MetricScore {
	msg := fmt.Sprintf(format, args...)
	return &types.MetricScore{
		Metric:     metric,
		Score:      0,
		Reason:     "Evaluation failed: " + msg,
		Threshold:  threshold,
		Status:     types.StatusHardFail,
		Error:      msg,
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
