package evaluator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sqleval/sqleval/internal/cache"
	"github.com/sqleval/sqleval/internal/evaluator/judge"
	"github.com/sqleval/sqleval/internal/llm"
)

const (
	defaultJudgeTimeout       = 30 * time.Second
	judgeMaxTokens            = 256
	metaEvalRuns              = 3
	metaEvalTemperature       = 0.3
	metaEvalVarianceThreshold = 0.2
)

// Verdict is one judged score.
type Verdict struct {
	Score       float64
	Explanation string
	Cost        float64
	Cached      bool
}

// JudgeRunner issues rubric calls against an LLM provider.
type JudgeRunner struct {
	provider llm.Provider
	rubrics  *judge.RubricRegistry
	cache    *cache.JudgeCache
	timeout  time.Duration
	metaEval bool
	logger   *zap.Logger
}

// JudgeOption configures a JudgeRunner.
type JudgeOption func(*JudgeRunner)

// WithCache stores verdicts in c. A nil cache disables caching.
func WithCache(c *cache.JudgeCache) JudgeOption {
	return func(j *JudgeRunner) { j.cache = c }
}

// WithTimeout bounds each judge call. Zero keeps the default of 30s.
func WithTimeout(d time.Duration) JudgeOption {
	return func(j *JudgeRunner) {
		if d > 0 {
			j.timeout = d
		}
	}
}

// WithMedianOfThree enables meta-evaluation: three concurrent runs at a small
// temperature, median score kept, spread flagged.
func WithMedianOfThree(enabled bool) JudgeOption {
	return func(j *JudgeRunner) { j.metaEval = enabled }
}

// WithRunnerLogger sets the runner's logger.
func WithRunnerLogger(l *zap.Logger) JudgeOption {
	return func(j *JudgeRunner) {
		if l != nil {
			j.logger = l
		}
	}
}

// NewJudgeRunner creates a runner for provider using the given rubrics.
func NewJudgeRunner(provider llm.Provider, rubrics *judge.RubricRegistry, opts ...JudgeOption) *JudgeRunner {
	j := &JudgeRunner{
		provider: provider,
		rubrics:  rubrics,
		timeout:  defaultJudgeTimeout,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(j)
	}
	j.logger = j.logger.Named("judge")
	return j
}

// Judge grades content with the named rubric. content is the full user
// message; callers wrap untrusted parts with judge.Section.
func (j *JudgeRunner) Judge(ctx context.Context, rubricName, content string) (*Verdict, error) {
	rubric, err := j.rubrics.Get(rubricName)
	if err != nil {
		return nil, err
	}
	model := j.provider.DefaultModel()

	hash := cache.JudgeContentHash(content)
	if j.cache != nil {
		if cached, cErr := j.cache.Get(hash, rubricName, model); cErr == nil && cached != nil {
			return &Verdict{Score: cached.Score, Explanation: cached.Explanation, Cached: true}, nil
		} else if cErr != nil {
			j.logger.Warn("judge cache read error", zap.Error(cErr))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	var v *Verdict
	if j.metaEval {
		v, err = j.medianOfThree(ctx, rubric, model, content)
	} else {
		v, err = j.once(ctx, rubric, model, content, 0)
	}
	if err != nil {
		return nil, err
	}

	if j.cache != nil {
		if putErr := j.cache.Put(hash, rubricName, model, &cache.JudgeCacheEntry{
			Score:       v.Score,
			Explanation: v.Explanation,
		}); putErr != nil {
			j.logger.Error("judge cache write error", zap.Error(putErr))
		}
	}
	return v, nil
}

func (j *JudgeRunner) once(ctx context.Context, rubric *judge.Rubric, model, content string, temperature float64) (*Verdict, error) {
	resp, err := j.provider.Complete(ctx, &llm.CompletionRequest{
		Model:        model,
		SystemPrompt: rubric.SystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: content}},
		Temperature:  temperature,
		MaxTokens:    judgeMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM call failed: %w", err)
	}
	sr, err := judge.ParseScoreResult(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse judge response: %w", err)
	}
	j.logger.Debug("verdict",
		zap.String("rubric", rubric.Name),
		zap.Float64("score", sr.Score),
		zap.Int64("duration_ms", resp.DurationMS),
	)
	return &Verdict{Score: sr.Score, Explanation: sr.Explanation, Cost: resp.Cost}, nil
}

func (j *JudgeRunner) medianOfThree(ctx context.Context, rubric *judge.Rubric, model, content string) (*Verdict, error) {
	verdicts := make([]*Verdict, metaEvalRuns)
	errs := make([]error, metaEvalRuns)

	var g errgroup.Group
	for i := range metaEvalRuns {
		g.Go(func() error {
			verdicts[i], errs[i] = j.once(ctx, rubric, model, content, metaEvalTemperature)
			return nil
		})
	}
	_ = g.Wait()

	var (
		scores       []float64
		explanations []string
		totalCost    float64
		firstErr     error
	)
	for i, v := range verdicts {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		scores = append(scores, v.Score)
		explanations = append(explanations, fmt.Sprintf("Run %d: %s", i+1, v.Explanation))
		totalCost += v.Cost
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("all %d meta-eval runs failed: %w", metaEvalRuns, firstErr)
	}

	sort.Float64s(scores)
	median := scores[len(scores)/2]

	var note string
	if spread := scores[len(scores)-1] - scores[0]; spread > metaEvalVarianceThreshold {
		note = fmt.Sprintf(" [HIGH VARIANCE: spread=%.2f across %d runs]", spread, len(scores))
	}
	return &Verdict{
		Score:       median,
		Explanation: strings.Join(explanations, " | ") + " | Median selected." + note,
		Cost:        totalCost,
	}, nil
}
