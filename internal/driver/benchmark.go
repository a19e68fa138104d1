package driver

import (
	"context"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sqleval/sqleval/internal/telemetry"
	"github.com/sqleval/sqleval/pkg/types"
)

// Benchmark runs the agent on every case without scoring and reports success
// counts and timing. A case succeeds when the agent returns without error.
func (d *Driver) Benchmark(ctx context.Context, cases []types.TestCase) (*types.Report, error) {
	rep := d.newReport(types.ModeBenchmark)
	ctx, span := d.tracer.Start(ctx, "sqleval.benchmark",
		attribute.String("run.id", d.runID),
		attribute.Int("run.cases", len(cases)))
	defer span.End()

	var err error
	for i := range cases {
		if err = ctx.Err(); err != nil {
			d.logger.Warn("benchmark interrupted", zap.Int("completed", len(rep.Cases)), zap.Int("total", len(cases)))
			break
		}
		tc := &cases[i]
		res := d.runAgent(ctx, tc)
		cr := &types.CaseResult{
			CaseID:     tc.ID,
			Difficulty: tc.Difficulty,
			Question:   tc.Question,
			Agent:      res,
			Passed:     !res.Failed(),
			Error:      res.Error,
		}
		d.metrics.ObserveCase(cr)
		d.logger.Debug("benchmark case",
			zap.String("case", tc.ID),
			zap.Bool("success", cr.Passed),
			zap.Float64("time_ms", res.ExecutionTimeMS))
		rep.Cases = append(rep.Cases, cr)
		if d.onCase != nil {
			d.onCase(cr)
		}
	}

	rep.Summary = Summarize(rep.Cases)
	rep.Benchmark = benchmarkStats(rep.Cases, d.minSuccessRate)
	d.metrics.ObserveRun(rep, d.now())
	telemetry.RecordError(span, err)
	return rep, err
}

func benchmarkStats(cases []*types.CaseResult, minRate float64) *types.BenchmarkStats {
	b := &types.BenchmarkStats{TotalQueries: len(cases), MinSuccessRate: minRate}
	if len(cases) == 0 {
		return b
	}
	b.MinTimeMS = math.Inf(1)
	for _, c := range cases {
		if c.Passed {
			b.Successful++
		}
		t := c.Agent.ExecutionTimeMS
		b.TotalTimeMS += t
		b.MinTimeMS = math.Min(b.MinTimeMS, t)
		b.MaxTimeMS = math.Max(b.MaxTimeMS, t)
	}
	b.Failed = b.TotalQueries - b.Successful
	b.SuccessRate = float64(b.Successful) / float64(b.TotalQueries)
	b.AvgTimeMS = b.TotalTimeMS / float64(b.TotalQueries)
	return b
}
