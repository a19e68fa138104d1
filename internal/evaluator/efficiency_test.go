package evaluator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqleval/sqleval/pkg/types"
)

func findingTypes(fs []types.Finding) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Type)
	}
	return out
}

func TestAnalyzeQuery(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{
			name: "clean aggregate",
			sql:  "SELECT COUNT(DISTINCT user_id) AS dau FROM events WHERE event_date = CURRENT_DATE - INTERVAL '1 day';",
			want: []string{},
		},
		{
			name: "select star without filter",
			sql:  "SELECT * FROM events",
			want: []string{FindingSelectStar, FindingMissingWhere, FindingMissingLimit},
		},
		{
			name: "select star lower case with limit",
			sql:  "select *\nfrom events limit 10",
			want: []string{FindingSelectStar},
		},
		{
			name: "count star is not select star",
			sql:  "SELECT COUNT(*) FROM users WHERE country = 'US'",
			want: []string{},
		},
		{
			name: "comma join without predicate",
			sql:  "SELECT u.email, o.total FROM users u, orders o LIMIT 5",
			want: []string{FindingCartesianProduct},
		},
		{
			name: "comma join with predicate",
			sql:  "SELECT u.email, o.total FROM users u, orders o WHERE u.user_id = o.user_id LIMIT 5",
			want: []string{},
		},
		{
			name: "cross join",
			sql:  "SELECT u.email FROM users u CROSS JOIN products p LIMIT 5",
			want: []string{FindingCartesianProduct},
		},
		{
			name: "join without on",
			sql:  "SELECT u.email FROM users u JOIN orders o WHERE o.total > 10 LIMIT 5",
			want: []string{FindingCartesianProduct},
		},
		{
			name: "join using",
			sql:  "SELECT email FROM users JOIN orders USING (user_id) WHERE total > 10 LIMIT 5",
			want: []string{},
		},
		{
			name: "subquery in where",
			sql:  "SELECT email FROM users WHERE user_id IN (SELECT user_id FROM orders) LIMIT 5",
			want: []string{FindingSubqueryInWhere},
		},
		{
			name: "or in where",
			sql:  "SELECT email FROM users WHERE country = 'US' OR country = 'CA' LIMIT 5",
			want: []string{FindingOrInWhere},
		},
		{
			name: "or only inside literal",
			sql:  "SELECT email FROM users WHERE plan = 'this or that' LIMIT 5",
			want: []string{},
		},
		{
			name: "function wrapping column",
			sql:  "SELECT email FROM users WHERE YEAR(signup_date) = 2024 LIMIT 5",
			want: []string{FindingFunctionInWhere},
		},
		{
			name: "function on constant is fine",
			sql:  "SELECT email FROM users WHERE signup_date >= DATE('now', '-7 day') LIMIT 5",
			want: []string{},
		},
		{
			name: "distinct star",
			sql:  "SELECT DISTINCT * FROM events LIMIT 5",
			want: []string{FindingDistinctStar},
		},
		{
			name: "distinct with group by",
			sql:  "SELECT DISTINCT country, COUNT(*) FROM users GROUP BY country",
			want: []string{FindingDistinctWithGroupBy},
		},
		{
			name: "tautology",
			sql:  "SELECT email FROM users WHERE user_id = 5 OR 1=1 LIMIT 5",
			want: []string{FindingOrInWhere, FindingInjectionPattern},
		},
		{
			name: "false constant comparison is not a tautology",
			sql:  "SELECT email FROM users WHERE user_id = 5 OR 1 = 2 LIMIT 5",
			want: []string{FindingOrInWhere},
		},
		{
			name: "equal string literals",
			sql:  "SELECT email FROM users WHERE user_id = 5 OR 'a' = 'a' LIMIT 5",
			want: []string{FindingOrInWhere, FindingInjectionPattern},
		},
		{
			name: "different string literals",
			sql:  "SELECT email FROM users WHERE country = 'US' OR 'a' = 'b' LIMIT 5",
			want: []string{FindingOrInWhere},
		},
		{
			name: "or true",
			sql:  "SELECT email FROM users WHERE user_id = 5 OR TRUE LIMIT 5",
			want: []string{FindingOrInWhere, FindingInjectionPattern},
		},
		{
			name: "stacked statement",
			sql:  "SELECT email FROM users WHERE user_id = 5 LIMIT 5; DROP TABLE users",
			want: []string{FindingInjectionPattern},
		},
		{
			name: "keywords inside comments ignored",
			sql:  "-- SELECT * FROM users\nSELECT email FROM users /* OR 1=1 */ WHERE user_id = 5 LIMIT 1",
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findingTypes(AnalyzeQuery(tt.sql))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnalyzeQuery_InjectedLiteral(t *testing.T) {
	got := findingTypes(AnalyzeQuery("SELECT email FROM users WHERE name = 'admin'' OR ''1''=''1' LIMIT 1"))
	assert.Contains(t, got, FindingInjectionPattern)
}

func TestQueryEfficiency_SelectStarPenalty(t *testing.T) {
	e := NewQueryEfficiency(0.7)
	s := e.Evaluate(context.Background(), dauInput("SELECT * FROM events"))

	require.Empty(t, s.Error)
	assert.Equal(t, types.MetricQueryEfficiency, s.Metric)
	assert.InDelta(t, 0.75, s.Score, 1e-9)
	assert.True(t, s.Passed)
	require.NotEmpty(t, s.Findings)
	assert.Equal(t, FindingSelectStar, s.Findings[0].Type)
	assert.Equal(t, types.SeverityIssue, s.Findings[0].Severity)
	assert.Contains(t, s.Reason, "SELECT_STAR")
	assert.Contains(t, s.Reason, "instead of using SELECT *")
}

func TestQueryEfficiency_Deterministic(t *testing.T) {
	e := NewQueryEfficiency(0.7)
	sql := "SELECT DISTINCT * FROM users u, orders o WHERE YEAR(u.signup_date) = 2024 OR u.country = 'US'"
	first := e.Evaluate(context.Background(), dauInput(sql))
	for range 5 {
		again := e.Evaluate(context.Background(), dauInput(sql))
		assert.Equal(t, first.Score, again.Score)
		assert.Equal(t, first.Reason, again.Reason)
		assert.Equal(t, first.Findings, again.Findings)
	}
}

func TestQueryEfficiency_ClampsAtZero(t *testing.T) {
	e := NewQueryEfficiency(0.7)
	sql := "SELECT * FROM users, orders, events CROSS JOIN products WHERE YEAR(signup_date) = 2024 OR user_id IN (SELECT user_id FROM sessions) OR 1=1"
	s := e.Evaluate(context.Background(), dauInput(sql))
	assert.GreaterOrEqual(t, s.Score, 0.0)
	assert.False(t, s.Passed)
}

func TestQueryEfficiency_EmptySQL(t *testing.T) {
	e := NewQueryEfficiency(0.7)
	s := e.Evaluate(context.Background(), dauInput("   "))
	assert.Equal(t, 0.0, s.Score)
	assert.False(t, s.Passed)
	assert.Equal(t, types.StatusHardFail, s.Status)
}
