package agent

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sqleval/sqleval/pkg/types"
)

// PlaceholderSQL is the query returned by the placeholder agent.
const PlaceholderSQL = "-- SQL generation not implemented\nSELECT 'Implement SQL generation' AS todo;"

// Placeholder is a stand-in agent: keyword schema retrieval, a fixed query
// and a templated answer. It exercises the harness end to end without an LLM.
type Placeholder struct {
	schema *types.Schema
	model  string
}

// NewPlaceholder creates a placeholder agent over schema. model is only
// reported in metadata.
func NewPlaceholder(schema *types.Schema, model string) *Placeholder {
	if model == "" {
		model = "unknown"
	}
	return &Placeholder{schema: schema, model: model}
}

func (p *Placeholder) Retrieve(_ context.Context, question string) ([]string, string, error) {
	return RetrieveSchema(p.schema, question), PlaceholderSQL, nil
}

func (p *Placeholder) Answer(_ context.Context, question, sql string, _ []string) (string, error) {
	return fmt.Sprintf("To answer your question '%s', you would execute the following query:\n\n%s", question, sql), nil
}

func (p *Placeholder) Metadata() map[string]string {
	return map[string]string{
		"model":               p.model,
		"schema_tables_count": strconv.Itoa(len(p.schema.Tables)),
	}
}
