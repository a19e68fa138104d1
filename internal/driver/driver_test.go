package driver_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/sqleval/sqleval/internal/cache"
	"github.com/sqleval/sqleval/internal/corpus"
	"github.com/sqleval/sqleval/internal/driver"
	"github.com/sqleval/sqleval/internal/evaluator"
	"github.com/sqleval/sqleval/internal/evaluator/judge"
	"github.com/sqleval/sqleval/internal/llm"
	"github.com/sqleval/sqleval/internal/report"
	"github.com/sqleval/sqleval/internal/telemetry"
	"github.com/sqleval/sqleval/pkg/types"
)

// fixedEvaluator returns a constant score.
type fixedEvaluator struct {
	name  string
	score float64
	err   string
}

func (f *fixedEvaluator) Name() string { return f.name }

func (f *fixedEvaluator) Evaluate(context.Context, *evaluator.Input) *types.MetricScore {
	s := &types.MetricScore{Metric: f.name, Score: f.score, Threshold: 0.7, Passed: f.score >= 0.7, Error: f.err, Cost: 0.001}
	if f.err != "" {
		s.Score = 0
		s.Passed = false
	}
	return s
}

func fixedRegistry(scores ...float64) *evaluator.Registry {
	r := evaluator.NewRegistry()
	for i, name := range types.MetricNames {
		r.Register(&fixedEvaluator{name: name, score: scores[i]})
	}
	return r
}

// scriptedRunner answers from a map keyed by question; unknown questions fail.
type scriptedRunner struct {
	sql map[string]string
}

func (s *scriptedRunner) Retrieve(_ context.Context, q string) ([]string, string, error) {
	sql, ok := s.sql[q]
	if !ok {
		return nil, "", errors.New("agent unavailable")
	}
	return []string{"Table: events"}, sql, nil
}

func (s *scriptedRunner) Answer(_ context.Context, q, sql string, _ []string) (string, error) {
	return "Runs " + sql, nil
}

func testCases() []types.TestCase {
	return []types.TestCase{
		{ID: "simple_a", Difficulty: types.DifficultySimple, Question: "qa"},
		{ID: "simple_b", Difficulty: types.DifficultySimple, Question: "qb"},
		{ID: "complex_c", Difficulty: types.DifficultyComplex, Question: "qc"},
	}
}

func okRunner() *scriptedRunner {
	return &scriptedRunner{sql: map[string]string{"qa": "SELECT 1", "qb": "SELECT 2", "qc": "SELECT 3"}}
}

func TestRun_AggregatesScores(t *testing.T) {
	d := driver.New(okRunner(), fixedRegistry(1, 0.8, 0.6, 0.8), driver.WithModel("mock-model", "mock"))
	rep, err := d.Run(context.Background(), testCases())
	require.NoError(t, err)

	require.Len(t, rep.Cases, 3)
	assert.Equal(t, types.ModeEvaluate, rep.Mode)
	assert.Equal(t, d.RunID(), rep.RunID)
	assert.Equal(t, "mock-model", rep.Model)
	for _, c := range rep.Cases {
		assert.InDelta(t, 0.8, c.OverallScore, 1e-9)
		assert.True(t, c.Passed)
		assert.Len(t, c.Scores, 4)
	}
	assert.Equal(t, 3, rep.Summary.Passed)
	assert.InDelta(t, 0.6, rep.Summary.MetricAverage[types.MetricAnswerQuality], 1e-9)
	assert.InDelta(t, 0.012, rep.Summary.TotalCost, 1e-9)
	assert.Equal(t, 2, rep.Summary.ByDifficulty[types.DifficultySimple].Total)
	assert.Equal(t, driver.ExitOK, driver.ExitCode(rep))
}

func TestRun_BelowThresholdFails(t *testing.T) {
	d := driver.New(okRunner(), fixedRegistry(0.2, 0.8, 0.6, 0.8))
	rep, err := d.Run(context.Background(), testCases())
	require.NoError(t, err)
	assert.InDelta(t, 0.6, rep.Cases[0].OverallScore, 1e-9)
	assert.False(t, rep.Cases[0].Passed)
	assert.Equal(t, 3, rep.Summary.Failed)
	assert.Equal(t, driver.ExitFailed, driver.ExitCode(rep))
}

func TestRun_ErroredMetricCountsZero(t *testing.T) {
	r := fixedRegistry(1, 1, 1, 1)
	r.Register(&fixedEvaluator{name: types.MetricAnswerQuality, err: "no judge configured"})
	d := driver.New(okRunner(), r)

	rep, err := d.Run(context.Background(), testCases()[:1])
	require.NoError(t, err)
	c := rep.Cases[0]
	assert.InDelta(t, 0.75, c.OverallScore, 1e-9)
	assert.True(t, c.Passed)
	assert.Equal(t, "no judge configured", c.Score(types.MetricAnswerQuality).Error)
}

func TestRun_AgentErrorContinues(t *testing.T) {
	runner := okRunner()
	delete(runner.sql, "qb")
	d := driver.New(runner, fixedRegistry(1, 1, 1, 1))

	rep, err := d.Run(context.Background(), testCases())
	require.NoError(t, err)
	require.Len(t, rep.Cases, 3)

	failed := rep.Case("simple_b")
	require.NotNil(t, failed)
	assert.Equal(t, "retrieve: agent unavailable", failed.Error)
	assert.Empty(t, failed.Scores)
	assert.Zero(t, failed.OverallScore)
	assert.False(t, failed.Passed)
	assert.True(t, rep.Case("complex_c").Passed)
	assert.Equal(t, 1, rep.Summary.AgentErrors)
	assert.InDelta(t, 0.5, rep.Summary.ByDifficulty[types.DifficultySimple].SuccessRate, 1e-9)
}

func TestRun_CancelReturnsPartialReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var seen int
	d := driver.New(okRunner(), fixedRegistry(1, 1, 1, 1), driver.WithProgress(func(*types.CaseResult) {
		seen++
		cancel()
	}))

	rep, err := d.Run(ctx, testCases())
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Len(t, rep.Cases, 1)
	assert.Equal(t, 1, seen)
	assert.Equal(t, 1, rep.Summary.Total)
}

func TestRun_NoRegistry(t *testing.T) {
	_, err := driver.New(okRunner(), nil).Run(context.Background(), testCases())
	assert.Error(t, err)
}

func TestRun_Spans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tr := telemetry.NewTracerWithExporter(telemetry.TraceConfig{}, exp)
	m := telemetry.NewMetrics()
	d := driver.New(okRunner(), fixedRegistry(1, 1, 1, 1), driver.WithTelemetry(tr, m))

	_, err := d.Run(context.Background(), testCases()[:1])
	require.NoError(t, err)

	counts := map[string]int{}
	for _, s := range exp.GetSpans() {
		counts[s.Name]++
	}
	assert.Equal(t, map[string]int{"sqleval.run": 1, "sqleval.agent": 1, "sqleval.case": 1, "sqleval.metric": 4}, counts)
}

func TestRun_HistoryFlagsRegression(t *testing.T) {
	store, err := cache.Open(filepath.Join(t.TempDir(), "sqleval.db"), cache.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	for i := range 12 {
		require.NoError(t, store.History.Record("prior", "simple_a", "overall", 0.9+float64(i%2)*0.02, types.StatusPass))
	}

	d := driver.New(okRunner(), fixedRegistry(0.3, 0.3, 0.3, 0.3),
		driver.WithHistory(store.History, evaluator.DefaultDynamicConfig))
	rep, err := d.Run(context.Background(), testCases())
	require.NoError(t, err)

	assert.True(t, rep.Case("simple_a").Regression)
	assert.False(t, rep.Case("simple_b").Regression, "too few prior runs")

	_, _, count, err := store.History.Stats("simple_b", types.MetricSQLCorrectness)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	_, _, count, err = store.History.Stats("simple_a", "overall")
	require.NoError(t, err)
	assert.Equal(t, 13, count)
}

func TestBenchmark(t *testing.T) {
	runner := okRunner()
	delete(runner.sql, "qc")
	d := driver.New(runner, nil)

	rep, err := d.Benchmark(context.Background(), testCases())
	require.NoError(t, err)
	require.NotNil(t, rep.Benchmark)

	b := rep.Benchmark
	assert.Equal(t, 3, b.TotalQueries)
	assert.Equal(t, 2, b.Successful)
	assert.Equal(t, 1, b.Failed)
	assert.InDelta(t, 2.0/3, b.SuccessRate, 1e-9)
	assert.LessOrEqual(t, b.MinTimeMS, b.AvgTimeMS)
	assert.LessOrEqual(t, b.AvgTimeMS, b.MaxTimeMS)
	assert.Equal(t, driver.DefaultMinSuccessRate, b.MinSuccessRate)
	assert.Empty(t, rep.Cases[0].Scores)

	assert.Equal(t, 1.0, rep.Summary.ByDifficulty[types.DifficultySimple].SuccessRate)
	assert.Equal(t, 0.0, rep.Summary.ByDifficulty[types.DifficultyComplex].SuccessRate)
	assert.Equal(t, driver.ExitFailed, driver.ExitCode(rep))

	rep, err = driver.New(okRunner(), nil).Benchmark(context.Background(), testCases())
	require.NoError(t, err)
	assert.Equal(t, driver.ExitOK, driver.ExitCode(rep))
}

func TestExitCode_Empty(t *testing.T) {
	assert.Equal(t, driver.ExitFailed, driver.ExitCode(nil))
	assert.Equal(t, driver.ExitFailed, driver.ExitCode(&types.Report{Mode: types.ModeEvaluate}))
}

func TestFilter(t *testing.T) {
	c, err := corpus.LoadDefault()
	require.NoError(t, err)

	complexCases, err := driver.Filter{Difficulty: types.DifficultyComplex}.Apply(c.All())
	require.NoError(t, err)
	ids := make([]string, len(complexCases))
	for i, tc := range complexCases {
		ids[i] = tc.ID
	}
	assert.Equal(t, []string{
		"complex_retention_001", "complex_funnel_002", "complex_churn_cohort_003",
		"complex_ltv_by_country_004", "complex_basket_affinity_005", "complex_power_users_006",
	}, ids)

	one, err := driver.Filter{TestID: "simple_dau_001"}.Apply(c.All())
	require.NoError(t, err)
	require.Len(t, one, 1)

	sub, err := driver.Filter{Substring: "RETENTION"}.Apply(c.All())
	require.NoError(t, err)
	assert.Equal(t, "complex_retention_001", sub[0].ID)

	_, err = driver.Filter{TestID: "nope"}.Apply(c.All())
	assert.ErrorIs(t, err, driver.ErrNoCases)
	_, err = driver.Filter{Difficulty: types.DifficultySimple, Substring: "retention"}.Apply(c.All())
	assert.ErrorIs(t, err, driver.ErrNoCases)
}

func TestFilter_DifficultyPreservesOrder(t *testing.T) {
	c, err := corpus.LoadDefault()
	require.NoError(t, err)
	all := c.All()

	for _, d := range types.Difficulties {
		got, err := driver.Filter{Difficulty: d}.Apply(all)
		require.NoError(t, err)

		var want, gotIDs []string
		for _, tc := range all {
			if tc.Difficulty == d {
				want = append(want, tc.ID)
			}
		}
		for _, tc := range got {
			assert.Equal(t, d, tc.Difficulty)
			gotIDs = append(gotIDs, tc.ID)
		}
		assert.Equal(t, want, gotIDs, "difficulty %s", d)
	}

	sub, err := driver.Filter{Substring: "simple"}.Apply(all)
	require.NoError(t, err)
	assert.Len(t, sub, 7)
	_, err = driver.Filter{Substring: "benchmark"}.Apply(all)
	assert.ErrorIs(t, err, driver.ErrNoCases)
}

func TestRun_SelectStarOnDAU(t *testing.T) {
	c, err := corpus.LoadDefault()
	require.NoError(t, err)
	tc, ok := c.ByID("simple_dau_001")
	require.True(t, ok)

	mock := llm.NewMockProvider(nil, nil)
	mock.MatchFunc = llm.MatchSystemPrompt([]string{"grading sql_correctness"}, map[string]*llm.CompletionResponse{
		"grading sql_correctness": llm.ScoreResponse(0.1, "Counts rows instead of distinct users and ignores the date."),
	})
	reg := evaluator.NewRegistry(evaluator.WithJudge(mock, judge.NewRubricRegistry(), nil),
		evaluator.WithJudgeTimeout(5*time.Second))
	runner := &scriptedRunner{sql: map[string]string{tc.Question: "SELECT * FROM events"}}

	rep, err := driver.New(runner, reg, driver.WithSchema(c.Schema())).Run(context.Background(), []types.TestCase{tc})
	require.NoError(t, err)
	cr := rep.Cases[0]

	eff := cr.Score(types.MetricQueryEfficiency)
	require.NotNil(t, eff)
	var findings []string
	for _, f := range eff.Findings {
		findings = append(findings, f.Type)
	}
	assert.Contains(t, findings, evaluator.FindingSelectStar)
	assert.Less(t, eff.Score, 1.0)

	correctness := cr.Score(types.MetricSQLCorrectness)
	require.NotNil(t, correctness)
	assert.Less(t, correctness.Score, 0.5)
	assert.False(t, correctness.Passed)
	assert.False(t, cr.Passed)
}

func TestRun_ReportReloadsWithSameScores(t *testing.T) {
	reg := evaluator.NewRegistry()
	for i, name := range types.MetricNames[:3] {
		reg.Register(&fixedEvaluator{name: name, score: []float64{0.9, 0.55, 0.7}[i]})
	}
	reg.Register(evaluator.NewQueryEfficiency(0.7))

	runner := &scriptedRunner{sql: map[string]string{
		"qa": "SELECT * FROM events",
		"qb": "SELECT COUNT(DISTINCT user_id) FROM events WHERE event_date = CURRENT_DATE - 1",
	}}
	d := driver.New(runner, reg, driver.WithModel("mock-model", "mock"))
	rep, err := d.Run(context.Background(), testCases())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, report.WriteJSON(path, rep))
	loaded, err := report.LoadJSON(path)
	require.NoError(t, err)

	assert.Equal(t, rep.RunID, loaded.RunID)
	assert.Equal(t, rep.Summary.Passed, loaded.Summary.Passed)
	require.Len(t, loaded.Cases, len(rep.Cases))
	for _, c := range rep.Cases {
		got := loaded.Case(c.CaseID)
		require.NotNil(t, got, c.CaseID)
		assert.Equal(t, c.OverallScore, got.OverallScore, c.CaseID)
		assert.Equal(t, c.Passed, got.Passed, c.CaseID)
		assert.Equal(t, c.Error, got.Error, c.CaseID)
		for _, m := range types.MetricNames {
			want, have := c.Score(m), got.Score(m)
			if want == nil {
				assert.Nil(t, have, "%s/%s", c.CaseID, m)
				continue
			}
			require.NotNil(t, have, "%s/%s", c.CaseID, m)
			assert.Equal(t, want.Score, have.Score, "%s/%s", c.CaseID, m)
			assert.Equal(t, want.Reason, have.Reason, "%s/%s", c.CaseID, m)
			assert.Equal(t, want.Findings, have.Findings, "%s/%s", c.CaseID, m)
		}
	}
	assert.NotEmpty(t, loaded.Case("simple_a").Score(types.MetricQueryEfficiency).Findings)
	assert.NotEmpty(t, loaded.Case("complex_c").Error)
}
