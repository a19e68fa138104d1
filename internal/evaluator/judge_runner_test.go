package evaluator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqleval/sqleval/internal/cache"
	"github.com/sqleval/sqleval/internal/evaluator/judge"
	"github.com/sqleval/sqleval/internal/llm"
)

func TestJudgeRunner_SinglePass(t *testing.T) {
	mock := llm.NewScoreProvider(0.4)
	r := newRunner(mock)

	v, err := r.Judge(context.Background(), judge.RubricSQLCorrectness, "Question: q\n\n"+judge.WrapAgentOutput("SELECT 1"))
	require.NoError(t, err)
	assert.Equal(t, 0.4, v.Score)
	assert.False(t, v.Cached)
	assert.Equal(t, 1, mock.GetCallCount())

	req := mock.LastRequest
	require.NotNil(t, req)
	assert.Contains(t, req.SystemPrompt, "sql_correctness")
	assert.Equal(t, 0.0, req.Temperature)
	assert.Contains(t, req.Messages[0].Content, "<<<AGENT_OUTPUT_START>>>")
}

func TestJudgeRunner_UnknownRubric(t *testing.T) {
	_, err := newRunner(llm.NewScoreProvider(1)).Judge(context.Background(), "nope", "x")
	assert.Error(t, err)
}

func TestJudgeRunner_ProviderAndParseErrors(t *testing.T) {
	failing := llm.NewMockProvider(nil, []error{errors.New("503 unavailable")})
	_, err := newRunner(failing).Judge(context.Background(), judge.RubricDefault, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM call failed")

	garbage := llm.NewMockProvider([]*llm.CompletionResponse{{Content: "I refuse to grade this."}}, nil)
	_, err = newRunner(garbage).Judge(context.Background(), judge.RubricDefault, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse judge response")
}

func TestJudgeRunner_Timeout(t *testing.T) {
	slow := llm.NewScoreProvider(1)
	slow.SimulatedLatency = time.Second
	r := newRunner(slow, WithTimeout(20*time.Millisecond))

	_, err := r.Judge(context.Background(), judge.RubricDefault, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJudgeRunner_MedianOfThree(t *testing.T) {
	mock := llm.NewMockProvider([]*llm.CompletionResponse{
		llm.ScoreResponse(0.3, "run one"),
		llm.ScoreResponse(0.7, "run two"),
		llm.ScoreResponse(0.5, "run three"),
	}, nil)
	r := newRunner(mock, WithMedianOfThree(true))

	v, err := r.Judge(context.Background(), judge.RubricDefault, "x")
	require.NoError(t, err)
	assert.Equal(t, 0.5, v.Score)
	assert.Equal(t, 3, mock.GetCallCount())
	for _, want := range []string{"Run 1:", "Run 2:", "Run 3:", "Median selected."} {
		assert.Contains(t, v.Explanation, want)
	}
	assert.Contains(t, v.Explanation, "HIGH VARIANCE")
	for _, req := range mock.GetRequestHistory() {
		assert.Equal(t, metaEvalTemperature, req.Temperature)
	}
}

func TestJudgeRunner_MedianOfThreeLowVariance(t *testing.T) {
	mock := llm.NewScoreProvider(0.8, 0.85, 0.9)
	v, err := newRunner(mock, WithMedianOfThree(true)).Judge(context.Background(), judge.RubricDefault, "x")
	require.NoError(t, err)
	assert.Equal(t, 0.85, v.Score)
	assert.NotContains(t, v.Explanation, "HIGH VARIANCE")
}

func TestJudgeRunner_MedianOfThreePartialFailure(t *testing.T) {
	mock := llm.NewMockProvider(
		[]*llm.CompletionResponse{llm.ScoreResponse(0.6, "ok")},
		[]error{errors.New("boom"), errors.New("boom"), nil},
	)
	v, err := newRunner(mock, WithMedianOfThree(true)).Judge(context.Background(), judge.RubricDefault, "x")
	require.NoError(t, err)
	assert.Equal(t, 0.6, v.Score)
}

func TestJudgeRunner_MedianOfThreeAllFail(t *testing.T) {
	boom := errors.New("boom")
	mock := llm.NewMockProvider(nil, []error{boom, boom, boom})
	_, err := newRunner(mock, WithMedianOfThree(true)).Judge(context.Background(), judge.RubricDefault, "x")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "all 3 meta-eval runs failed"))
	assert.ErrorIs(t, err, boom)
}

func TestJudgeRunner_Cache(t *testing.T) {
	store, err := cache.Open(filepath.Join(t.TempDir(), "sqleval.db"), cache.Options{JudgeMaxEntries: 100})
	require.NoError(t, err)
	defer store.Close()
	jc := store.Judge

	mock := llm.NewScoreProvider(0.9)
	r := newRunner(mock, WithCache(jc))

	first, err := r.Judge(context.Background(), judge.RubricDefault, "same content")
	require.NoError(t, err)
	second, err := r.Judge(context.Background(), judge.RubricDefault, "same content")
	require.NoError(t, err)

	assert.Equal(t, 1, mock.GetCallCount())
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Score, second.Score)

	_, err = r.Judge(context.Background(), judge.RubricFaithfulness, "same content")
	require.NoError(t, err)
	assert.Equal(t, 2, mock.GetCallCount(), "different rubric must miss the cache")
}
