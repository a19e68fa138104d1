package evaluator

import (
	"github.com/sqleval/sqleval/internal/evaluator/judge"
	"github.com/sqleval/sqleval/internal/llm"
	"github.com/sqleval/sqleval/pkg/types"
)

func dauCase() *types.TestCase {
	return &types.TestCase{
		ID:              "simple_dau_001",
		Difficulty:      types.DifficultySimple,
		Question:        "What was the number of daily active users yesterday?",
		ExpectedSQL:     "SELECT COUNT(DISTINCT user_id) AS dau FROM events WHERE event_date = CURRENT_DATE - INTERVAL '1 day';",
		ExpectedContext: []string{"events table records user actions with user_id and event_date", "Table: events"},
		SQLCriteria: types.SQLCriteria{
			RequiredTables:  []string{"events"},
			RequiredColumns: []string{"user_id", "event_date"},
		},
	}
}

func dauInput(sql string) *Input {
	c := dauCase()
	return &Input{
		Case: c,
		Result: &types.AgentResult{
			Question:         c.Question,
			RetrievedContext: []string{"Table: events\nDescription: User activity events\nColumns:\n  - user_id (INTEGER): user"},
			GeneratedSQL:     sql,
			Answer:           "Run the query to count distinct users with events yesterday.",
		},
	}
}

// rubricScores returns a mock provider answering each rubric with a fixed score.
func rubricScores(scores map[string]float64) *llm.MockProvider {
	keys := make([]string, 0, len(scores))
	responses := make(map[string]*llm.CompletionResponse, len(scores))
	for _, name := range []string{
		judge.RubricSQLCorrectness,
		judge.RubricContextualRelevancy,
		judge.RubricContextualRecall,
		judge.RubricContextualPrecision,
		judge.RubricAnswerRelevancy,
		judge.RubricFaithfulness,
		judge.RubricHallucination,
	} {
		s, ok := scores[name]
		if !ok {
			continue
		}
		key := "grade " + name
		if name == judge.RubricSQLCorrectness {
			key = name
		}
		keys = append(keys, key)
		responses[key] = llm.ScoreResponse(s, name+" verdict")
	}
	m := llm.NewMockProvider(nil, nil)
	m.MatchFunc = llm.MatchSystemPrompt(keys, responses)
	return m
}

func newRunner(p llm.Provider, opts ...JudgeOption) *JudgeRunner {
	return NewJudgeRunner(p, judge.NewRubricRegistry(), opts...)
}
