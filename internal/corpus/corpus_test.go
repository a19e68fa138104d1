package corpus

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqleval/sqleval/pkg/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefault(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)

	assert.Equal(t, 20, c.Len())
	counts := c.Counts()
	assert.Equal(t, 7, counts[types.DifficultySimple])
	assert.Equal(t, 7, counts[types.DifficultyMedium])
	assert.Equal(t, 6, counts[types.DifficultyComplex])
	assert.NotEmpty(t, c.Schema().Tables)
	assert.NotNil(t, c.Schema().Table("events"))
}

func TestByID_SimpleDAU(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)

	tc, ok := c.ByID("simple_dau_001")
	require.True(t, ok)
	assert.Equal(t, "What was the number of daily active users yesterday?", tc.Question)
	assert.Contains(t, tc.ExpectedSQL, "event_date")
	assert.Contains(t, tc.ExpectedContext, "Table: events", "golden context merged")
	assert.Equal(t, []string{"events"}, tc.SQLCriteria.RequiredTables)

	_, ok = c.ByID("nope")
	assert.False(t, ok)
}

func TestAll_ReturnsCopy(t *testing.T) {
	c, err := LoadDefault()
	require.NoError(t, err)
	all := c.All()
	all[0].Question = "mutated"
	again := c.All()
	assert.NotEqual(t, "mutated", again[0].Question)
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := writeFile(t, "cases.json", `{"test_cases": [`)
	_, err := Load(Options{CasesPath: path})

	var le *LoadError
	require.True(t, errors.As(err, &le), "got %v", err)
	assert.Equal(t, path, le.File)
}

func TestLoad_SchemaViolation(t *testing.T) {
	path := writeFile(t, "cases.json", `{"test_cases": [{"id": "x", "difficulty": "extreme", "question": "q", "expected_sql": ""}]}`)
	_, err := Load(Options{CasesPath: path})
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Error(), "invalid cases file")
}

func TestLoad_DuplicateID(t *testing.T) {
	path := writeFile(t, "cases.json", `{"test_cases": [
		{"id": "a", "difficulty": "simple", "question": "q1", "expected_sql": "SELECT 1"},
		{"id": "a", "difficulty": "simple", "question": "q2", "expected_sql": "SELECT 2"}
	]}`)
	_, err := Load(Options{CasesPath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoad_YAMLCases(t *testing.T) {
	path := writeFile(t, "cases.yaml", `
test_cases:
  - id: y1
    difficulty: medium
    question: How many orders per status?
    expected_sql: SELECT status, COUNT(*) FROM orders GROUP BY status
    sql_criteria:
      required_tables: [orders]
      requires_join: false
  - id: y2
    difficulty: simple
    question: How many users?
    expected_sql: SELECT COUNT(*) FROM users
`)
	c, err := Load(Options{CasesPath: path})
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
	tc, ok := c.ByID("y1")
	require.True(t, ok)
	assert.Equal(t, types.DifficultyMedium, tc.Difficulty)
	assert.Equal(t, []string{"orders"}, tc.SQLCriteria.RequiredTables)
	assert.Empty(t, tc.ExpectedContext, "embedded golden contexts only apply to embedded cases")
}

func TestLoad_TOMLSchemaAndGolden(t *testing.T) {
	schemaPath := writeFile(t, "schema.toml", `
[[tables]]
name = "users"
description = "Registered users"
  [[tables.columns]]
  name = "user_id"
  type = "BIGINT"
`)
	casesPath := writeFile(t, "cases.json", `{"test_cases": [
		{"id": "t1", "difficulty": "simple", "question": "How many users?", "expected_sql": "SELECT COUNT(*) FROM users",
		 "expected_context": ["users table"]}
	]}`)
	goldenPath := writeFile(t, "golden.toml", `
[contexts.t1]
required_context = ["users table", "Table: users"]
`)

	c, err := Load(Options{SchemaPath: schemaPath, CasesPath: casesPath, GoldenPath: goldenPath})
	require.NoError(t, err)
	require.Len(t, c.Schema().Tables, 1)
	assert.Equal(t, "BIGINT", c.Schema().Tables[0].Columns[0].Type)

	tc, _ := c.ByID("t1")
	assert.Equal(t, []string{"users table", "Table: users"}, tc.ExpectedContext)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, "cases.csv", "id,question")
	_, err := Load(Options{CasesPath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file extension")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(Options{SchemaPath: filepath.Join(t.TempDir(), "absent.json")})
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
