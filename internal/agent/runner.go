// Package agent defines the boundary between the harness and the SQL agent
// under test, plus the built-in agents.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/sqleval/sqleval/pkg/types"
)

// Runner is the SQL agent under test. Retrieve gathers schema context and
// writes SQL for a question; Answer explains the result in natural language.
type Runner interface {
	Retrieve(ctx context.Context, question string) (contexts []string, sql string, err error)
	Answer(ctx context.Context, question, sql string, contexts []string) (string, error)
}

// MetadataProvider is implemented by runners that describe themselves in
// AgentResult.Metadata.
type MetadataProvider interface {
	Metadata() map[string]string
}

// Run executes both runner steps for question and records the outcome. Runner
// errors and panics are captured in AgentResult.Error; Run itself never fails.
func Run(ctx context.Context, r Runner, question string) (res *types.AgentResult) {
	start := time.Now()
	res = &types.AgentResult{Question: question}
	defer func() {
		if p := recover(); p != nil {
			res.Error = fmt.Sprintf("agent panic: %v", p)
		}
		res.ExecutionTimeMS = float64(time.Since(start).Microseconds()) / 1000
	}()

	contexts, sql, err := r.Retrieve(ctx, question)
	if err != nil {
		res.Error = fmt.Sprintf("retrieve: %v", err)
		return res
	}
	res.RetrievedContext = contexts
	res.GeneratedSQL = sql

	answer, err := r.Answer(ctx, question, sql, contexts)
	if err != nil {
		res.Error = fmt.Sprintf("answer: %v", err)
		return res
	}
	res.Answer = answer

	if mp, ok := r.(MetadataProvider); ok {
		res.Metadata = mp.Metadata()
	}
	return res
}
