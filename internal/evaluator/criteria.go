package evaluator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sqleval/sqleval/pkg/types"
)

// CriteriaResult is the structural check of a query against a case's
// sql_criteria.
type CriteriaResult struct {
	Checks   int
	Passed   int
	Failures []string
	Warnings []string
}

// Fraction returns the share of checks that passed, or 1 when there were none.
func (r CriteriaResult) Fraction() float64 {
	if r.Checks == 0 {
		return 1
	}
	return float64(r.Passed) / float64(r.Checks)
}

// ValidateCriteria checks that sql references every required table and column
// and joins when the case needs a join. Comments and string literals are
// ignored. A join in a query whose case does not require one is only a
// warning.
func ValidateCriteria(sql string, c types.SQLCriteria) CriteriaResult {
	masked, _ := maskSQL(sql)
	tokens := tokenize(masked)
	var res CriteriaResult

	present := make(map[string]bool)
	for _, t := range tableNames(tokens) {
		present[t] = true
	}
	for _, t := range c.RequiredTables {
		res.Checks++
		if present[relationName(t)] {
			res.Passed++
		} else {
			res.Failures = append(res.Failures, fmt.Sprintf("missing required table %q", t))
		}
	}

	for _, col := range c.RequiredColumns {
		res.Checks++
		if containsWord(masked, columnName(col)) {
			res.Passed++
		} else {
			res.Failures = append(res.Failures, fmt.Sprintf("missing required column %q", col))
		}
	}

	joined := hasJoin(tokens)
	if c.RequiresJoin {
		res.Checks++
		if joined {
			res.Passed++
		} else {
			res.Failures = append(res.Failures, "query does not join tables but the question requires a join")
		}
	} else if joined {
		res.Warnings = append(res.Warnings, "query joins tables although the question does not require a join")
	}
	return res
}

func hasJoin(tokens []string) bool {
	for _, r := range tableRefs(tokens) {
		if r.joined || r.listIndex > 0 {
			return true
		}
	}
	return false
}

func columnName(col string) string {
	if i := strings.LastIndexByte(col, '.'); i >= 0 {
		return col[i+1:]
	}
	return col
}

// containsWord reports whether word occurs in text delimited by non-identifier
// characters, ignoring case.
func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	re := regexp.MustCompile(`(?i)(^|[^A-Za-z0-9_])` + regexp.QuoteMeta(word) + `($|[^A-Za-z0-9_])`)
	return re.MatchString(text)
}
