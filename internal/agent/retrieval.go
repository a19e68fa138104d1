package agent

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/sqleval/sqleval/pkg/types"
)

const (
	// maxColumns limits how many columns of a table are described.
	maxColumns = 5
	// NoContext is returned when no table matches the question.
	NoContext = "No relevant schema information found"
)

// RetrieveSchema returns a description of every table whose name parts occur
// in the question. Name parts are the underscore-separated words of the table
// name; singular and plural forms both match.
func RetrieveSchema(schema *types.Schema, question string) []string {
	q := strings.ToLower(question)
	var out []string
	for i := range schema.Tables {
		t := &schema.Tables[i]
		if mentions(q, t.Name) {
			out = append(out, DescribeTable(t))
		}
	}
	if len(out) == 0 {
		return []string{NoContext}
	}
	return out
}

func mentions(question, table string) bool {
	for _, part := range strings.Split(strings.ToLower(table), "_") {
		if part == "" {
			continue
		}
		for _, form := range []string{part, inflection.Singular(part), inflection.Plural(part)} {
			if strings.Contains(question, form) {
				return true
			}
		}
	}
	return false
}

// DescribeTable renders a table and its first columns as a context snippet.
func DescribeTable(t *types.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n", t.Name)
	fmt.Fprintf(&b, "Description: %s\n", t.Description)
	b.WriteString("Columns:\n")
	for i, c := range t.Columns {
		if i == maxColumns {
			break
		}
		fmt.Fprintf(&b, "  - %s (%s): %s\n", c.Name, c.Type, c.Description)
	}
	return b.String()
}
