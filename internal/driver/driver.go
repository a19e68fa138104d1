// Package driver runs test cases through the agent and the evaluators and
// aggregates the results into a report.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sqleval/sqleval/internal/agent"
	"github.com/sqleval/sqleval/internal/cache"
	"github.com/sqleval/sqleval/internal/evaluator"
	"github.com/sqleval/sqleval/internal/telemetry"
	"github.com/sqleval/sqleval/pkg/types"
)

// DefaultMinSuccessRate is the per-difficulty success rate a benchmark run
// must reach.
const DefaultMinSuccessRate = 0.8

// metricOverall is the history key for a case's overall score.
const metricOverall = "overall"

// Driver evaluates cases sequentially.
type Driver struct {
	runner         agent.Runner
	registry       *evaluator.Registry
	schema         *types.Schema
	threshold      float64
	minSuccessRate float64
	model          string
	provider       string
	runID          string
	history        *cache.HistoryStore
	dynamic        evaluator.DynamicConfig
	tracer         *telemetry.Tracer
	metrics        *telemetry.Metrics
	onCase         func(*types.CaseResult)
	logger         *zap.Logger
	now            func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithThreshold sets the overall pass threshold.
func WithThreshold(t float64) Option { return func(d *Driver) { d.threshold = t } }

// WithMinSuccessRate sets the benchmark success rate per difficulty.
func WithMinSuccessRate(r float64) Option { return func(d *Driver) { d.minSuccessRate = r } }

// WithSchema passes the corpus schema to the evaluators.
func WithSchema(s *types.Schema) Option { return func(d *Driver) { d.schema = s } }

// WithModel records the judge model and provider in reports.
func WithModel(model, provider string) Option {
	return func(d *Driver) {
		d.model = model
		d.provider = provider
	}
}

// WithHistory records scores and flags regressions against past runs.
func WithHistory(h *cache.HistoryStore, cfg evaluator.DynamicConfig) Option {
	return func(d *Driver) {
		d.history = h
		d.dynamic = cfg
	}
}

// WithTelemetry attaches a tracer and metrics; either may be nil.
func WithTelemetry(t *telemetry.Tracer, m *telemetry.Metrics) Option {
	return func(d *Driver) {
		d.tracer = t
		d.metrics = m
	}
}

// WithProgress calls fn after every case.
func WithProgress(fn func(*types.CaseResult)) Option { return func(d *Driver) { d.onCase = fn } }

// WithLogger sets the driver logger.
func WithLogger(l *zap.Logger) Option { return func(d *Driver) { d.logger = l } }

// WithRunID overrides the generated run id.
func WithRunID(id string) Option { return func(d *Driver) { d.runID = id } }

// New creates a Driver. registry may be nil for benchmark-only use.
func New(runner agent.Runner, registry *evaluator.Registry, opts ...Option) *Driver {
	d := &Driver{
		runner:         runner,
		registry:       registry,
		threshold:      evaluator.DefaultThreshold,
		minSuccessRate: DefaultMinSuccessRate,
		runID:          uuid.NewString(),
		dynamic:        evaluator.DefaultDynamicConfig,
		logger:         zap.NewNop(),
		now:            time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// RunID returns the id stamped on reports and history rows.
func (d *Driver) RunID() string { return d.runID }

// Threshold returns the overall pass threshold.
func (d *Driver) Threshold() float64 { return d.threshold }

// Run evaluates every case in order. When ctx is cancelled the cases finished
// so far are returned in a partial report together with ctx.Err().
func (d *Driver) Run(ctx context.Context, cases []types.TestCase) (*types.Report, error) {
	if d.registry == nil {
		return nil, errors.New("driver: no evaluators configured")
	}
	rep := d.newReport(types.ModeEvaluate)
	ctx, span := d.tracer.Start(ctx, "sqleval.run",
		attribute.String("run.id", d.runID),
		attribute.Int("run.cases", len(cases)))
	defer span.End()

	var err error
	for i := range cases {
		if err = ctx.Err(); err != nil {
			d.logger.Warn("run interrupted", zap.Int("completed", len(rep.Cases)), zap.Int("total", len(cases)))
			break
		}
		tc := &cases[i]
		res := d.runAgent(ctx, tc)
		cr := d.EvaluateCase(ctx, tc, res)
		rep.Cases = append(rep.Cases, cr)
		if d.onCase != nil {
			d.onCase(cr)
		}
	}

	rep.Summary = Summarize(rep.Cases)
	d.metrics.ObserveRun(rep, d.now())
	span.SetAttributes(attribute.Float64("run.overall_score", rep.Summary.OverallScore))
	telemetry.RecordError(span, err)
	return rep, err
}

// EvaluateCase scores an agent result for tc. A failed agent run yields a
// failed case with no metric scores.
func (d *Driver) EvaluateCase(ctx context.Context, tc *types.TestCase, res *types.AgentResult) *types.CaseResult {
	ctx, span := d.tracer.Start(ctx, "sqleval.case",
		attribute.String("case.id", tc.ID),
		attribute.String("case.difficulty", string(tc.Difficulty)))
	defer span.End()

	cr := &types.CaseResult{
		CaseID:     tc.ID,
		Difficulty: tc.Difficulty,
		Question:   tc.Question,
		Agent:      res,
	}
	log := d.logger.With(zap.String("case", tc.ID))

	if res.Failed() {
		cr.Error = res.Error
		log.Warn("agent failed", zap.String("error", res.Error))
		telemetry.RecordError(span, errors.New(res.Error))
		d.finishCase(cr, log)
		return cr
	}

	in := &evaluator.Input{Case: tc, Result: res, Schema: d.schema}
	for _, e := range d.registry.All() {
		mctx, mspan := d.tracer.Start(ctx, "sqleval.metric", attribute.String("metric", e.Name()))
		s := e.Evaluate(mctx, in)
		mspan.SetAttributes(attribute.Float64("metric.score", s.Score), attribute.String("metric.status", s.Status))
		if s.Error != "" {
			telemetry.RecordError(mspan, errors.New(s.Error))
			log.Warn("metric failed", zap.String("metric", s.Metric), zap.String("error", s.Error))
		}
		mspan.End()
		cr.Scores = append(cr.Scores, s)
	}
	cr.OverallScore = evaluator.OverallScore(cr.Scores)
	cr.Passed = cr.OverallScore >= d.threshold
	span.SetAttributes(attribute.Float64("case.overall_score", cr.OverallScore), attribute.Bool("case.passed", cr.Passed))

	d.finishCase(cr, log)
	return cr
}

// finishCase records history and metrics for a completed case.
func (d *Driver) finishCase(cr *types.CaseResult, log *zap.Logger) {
	if d.history != nil {
		d.recordHistory(cr, log)
	}
	d.metrics.ObserveCase(cr)
	log.Info("case evaluated",
		zap.Float64("overall", cr.OverallScore),
		zap.Bool("passed", cr.Passed),
		zap.Bool("regression", cr.Regression))
}

func (d *Driver) recordHistory(cr *types.CaseResult, log *zap.Logger) {
	prior, err := d.history.QueryWindow(cr.CaseID, metricOverall, d.dynamic.WindowSize)
	if err != nil {
		log.Warn("read score history", zap.Error(err))
	} else if len(prior) >= d.dynamic.MinRuns &&
		evaluator.ClassifyDynamic(cr.OverallScore, prior, d.dynamic) == types.StatusHardFail {
		cr.Regression = true
	}

	status := types.StatusPass
	if !cr.Passed {
		status = types.StatusHardFail
	}
	if err := d.history.Record(d.runID, cr.CaseID, metricOverall, cr.OverallScore, status); err != nil {
		log.Warn("record score history", zap.Error(err))
	}
	for _, s := range cr.Scores {
		if s.Error != "" {
			continue
		}
		if err := d.history.Record(d.runID, cr.CaseID, s.Metric, s.Score, s.Status); err != nil {
			log.Warn("record score history", zap.String("metric", s.Metric), zap.Error(err))
		}
	}
}

func (d *Driver) runAgent(ctx context.Context, tc *types.TestCase) *types.AgentResult {
	ctx, span := d.tracer.Start(ctx, "sqleval.agent", attribute.String("case.id", tc.ID))
	defer span.End()
	res := agent.Run(ctx, d.runner, tc.Question)
	span.SetAttributes(attribute.Float64("agent.execution_time_ms", res.ExecutionTimeMS))
	if res.Failed() {
		telemetry.RecordError(span, fmt.Errorf("%s", res.Error))
	}
	return res
}

func (d *Driver) newReport(mode string) *types.Report {
	return &types.Report{
		RunID:     d.runID,
		Timestamp: d.now().UTC(),
		Mode:      mode,
		Model:     d.model,
		Provider:  d.provider,
		Threshold: d.threshold,
		Cases:     []*types.CaseResult{},
	}
}
