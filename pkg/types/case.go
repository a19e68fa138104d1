package types

import "fmt"

// Difficulty is the labeled hardness tier of a test case.
type Difficulty string

const (
	DifficultySimple  Difficulty = "simple"
	DifficultyMedium  Difficulty = "medium"
	DifficultyComplex Difficulty = "complex"
)

// Difficulties lists the tiers in reporting order.
var Difficulties = []Difficulty{DifficultySimple, DifficultyMedium, DifficultyComplex}

// ParseDifficulty converts a string to a Difficulty, rejecting unknown tiers.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(s); d {
	case DifficultySimple, DifficultyMedium, DifficultyComplex:
		return d, nil
	default:
		return "", fmt.Errorf("unknown difficulty %q (want simple, medium or complex)", s)
	}
}

// SQLCriteria holds the structural expectations for generated SQL.
type SQLCriteria struct {
	RequiredTables  []string `json:"required_tables,omitempty" yaml:"required_tables" toml:"required_tables"`
	RequiredColumns []string `json:"required_columns,omitempty" yaml:"required_columns" toml:"required_columns"`
	RequiresJoin    bool     `json:"requires_join,omitempty" yaml:"requires_join" toml:"requires_join"`
}

// IsZero reports whether no structural expectation is set.
func (c SQLCriteria) IsZero() bool {
	return len(c.RequiredTables) == 0 && len(c.RequiredColumns) == 0 && !c.RequiresJoin
}

// TestCase is one labeled question of the evaluation corpus.
type TestCase struct {
	ID              string      `json:"id" yaml:"id" toml:"id"`
	Difficulty      Difficulty  `json:"difficulty" yaml:"difficulty" toml:"difficulty"`
	Question        string      `json:"question" yaml:"question" toml:"question"`
	ExpectedSQL     string      `json:"expected_sql" yaml:"expected_sql" toml:"expected_sql"`
	ExpectedContext []string    `json:"expected_context,omitempty" yaml:"expected_context" toml:"expected_context"`
	SQLCriteria     SQLCriteria `json:"sql_criteria,omitempty" yaml:"sql_criteria" toml:"sql_criteria"`
}

// Column describes one column of a schema table.
type Column struct {
	Name        string `json:"name" yaml:"name" toml:"name"`
	Type        string `json:"type" yaml:"type" toml:"type"`
	Description string `json:"description,omitempty" yaml:"description" toml:"description"`
}

// Table describes one table of the analytics schema.
type Table struct {
	Name        string   `json:"name" yaml:"name" toml:"name"`
	Description string   `json:"description,omitempty" yaml:"description" toml:"description"`
	Columns     []Column `json:"columns" yaml:"columns" toml:"columns"`
}

// Schema is the database description the agent retrieves context from.
type Schema struct {
	Tables []Table `json:"tables" yaml:"tables" toml:"tables"`
}

// Table returns the table with the given name, or nil.
func (s *Schema) Table(name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}
