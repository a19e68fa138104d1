package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sqleval/sqleval/internal/llm"
	"github.com/sqleval/sqleval/pkg/types"
)

// ErrNoSQL is returned when the model reply contains no query.
var ErrNoSQL = errors.New("model returned no SQL")

const sqlSystemPrompt = `You are an analytics engineer writing SQL for the schema described by the user.
Use only the tables and columns that appear in the schema context. Prefer explicit column lists, explicit JOIN ... ON conditions and a LIMIT when returning rows.
Reply with a single SQL query inside a fenced code block tagged sql and nothing else.`

const answerSystemPrompt = `You explain SQL queries to business users. Given a question, the schema context and the query that answers it, describe in two or three sentences what the query returns and how it answers the question.
Do not invent tables, columns or numbers.`

var fencedSQL = regexp.MustCompile("(?s)```(?:sql|SQL)?[ \t]*\n(.*?)```")

// LLMAgent retrieves schema context by keyword and asks a model to write the
// SQL and the answer.
type LLMAgent struct {
	provider  llm.Provider
	schema    *types.Schema
	maxTokens int
	logger    *zap.Logger
}

// LLMOption configures an LLMAgent.
type LLMOption func(*LLMAgent)

// WithAgentLogger sets the agent logger.
func WithAgentLogger(l *zap.Logger) LLMOption {
	return func(a *LLMAgent) { a.logger = l }
}

// WithMaxTokens limits each completion.
func WithMaxTokens(n int) LLMOption {
	return func(a *LLMAgent) { a.maxTokens = n }
}

// NewLLMAgent creates an agent backed by provider.
func NewLLMAgent(provider llm.Provider, schema *types.Schema, opts ...LLMOption) *LLMAgent {
	a := &LLMAgent{provider: provider, schema: schema, maxTokens: 1024, logger: zap.NewNop()}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *LLMAgent) Retrieve(ctx context.Context, question string) ([]string, string, error) {
	contexts := RetrieveSchema(a.schema, question)
	prompt := fmt.Sprintf("Schema context:\n\n%s\nQuestion: %s", strings.Join(contexts, "\n"), question)

	resp, err := a.provider.Complete(ctx, &llm.CompletionRequest{
		SystemPrompt: sqlSystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:    a.maxTokens,
	})
	if err != nil {
		return contexts, "", fmt.Errorf("generate sql: %w", err)
	}
	sql := ExtractSQL(resp.Content)
	if sql == "" {
		return contexts, "", ErrNoSQL
	}
	a.logger.Debug("generated sql",
		zap.String("question", question),
		zap.Int("contexts", len(contexts)),
		zap.Int("output_tokens", resp.OutputTokens))
	return contexts, sql, nil
}

func (a *LLMAgent) Answer(ctx context.Context, question, sql string, contexts []string) (string, error) {
	prompt := fmt.Sprintf("Question: %s\n\nSchema context:\n%s\nSQL:\n%s", question, strings.Join(contexts, "\n"), sql)
	resp, err := a.provider.Complete(ctx, &llm.CompletionRequest{
		SystemPrompt: answerSystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:    a.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

func (a *LLMAgent) Metadata() map[string]string {
	return map[string]string{
		"model":               a.provider.DefaultModel(),
		"provider":            a.provider.Name(),
		"schema_tables_count": strconv.Itoa(len(a.schema.Tables)),
	}
}

// ExtractSQL returns the first fenced code block of reply, or the trimmed
// reply when it has no fence.
func ExtractSQL(reply string) string {
	if m := fencedSQL.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(reply)
}
