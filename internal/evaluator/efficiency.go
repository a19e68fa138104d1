package evaluator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/corazawaf/libinjection-go"

	"github.com/sqleval/sqleval/pkg/types"
)

// Penalties subtracted from a perfect efficiency score per finding.
const (
	issuePenalty   = 0.15
	warningPenalty = 0.05
)

// Finding types reported by QueryEfficiency.
const (
	FindingSelectStar          = "SELECT_STAR"
	FindingCartesianProduct    = "CARTESIAN_PRODUCT"
	FindingMissingWhere        = "MISSING_WHERE"
	FindingSubqueryInWhere     = "SUBQUERY_IN_WHERE"
	FindingMissingLimit        = "MISSING_LIMIT"
	FindingOrInWhere           = "OR_IN_WHERE"
	FindingFunctionInWhere     = "FUNCTION_IN_WHERE"
	FindingDistinctStar        = "DISTINCT_STAR"
	FindingDistinctWithGroupBy = "DISTINCT_WITH_GROUP_BY"
	FindingInjectionPattern    = "INJECTION_PATTERN"
)

var recommendations = map[string]string{
	FindingSelectStar:          "Specify only the columns you need instead of using SELECT *",
	FindingCartesianProduct:    "Add proper JOIN conditions to avoid cartesian products",
	FindingMissingWhere:        "Consider adding WHERE clause to filter rows or LIMIT to restrict result size",
	FindingSubqueryInWhere:     "Consider rewriting subqueries as JOINs for better performance",
	FindingMissingLimit:        "Add LIMIT while exploring queries that may return many rows",
	FindingOrInWhere:           "Consider using IN clause or UNION instead of multiple OR conditions",
	FindingFunctionInWhere:     "Avoid applying functions to columns in WHERE clause; consider computed columns or index expressions",
	FindingDistinctStar:        "Remove DISTINCT or select only the columns that define uniqueness",
	FindingDistinctWithGroupBy: "Drop DISTINCT when GROUP BY already produces unique rows",
	FindingInjectionPattern:    "Remove always-true predicates and stacked statements; pass values as bound parameters",
}

var (
	reSelectStar    = regexp.MustCompile(`\bSELECT\s*\*|,\s*\*\s*(,|\bFROM\b)`)
	reDistinctStar  = regexp.MustCompile(`\bSELECT\s+DISTINCT\s*\*`)
	reDistinct      = regexp.MustCompile(`\bSELECT\s+DISTINCT\b`)
	reWhere         = regexp.MustCompile(`\bWHERE\b`)
	reLimit         = regexp.MustCompile(`\b(LIMIT|TOP|FETCH\s+FIRST)\b`)
	reGroupBy       = regexp.MustCompile(`\bGROUP\s+BY\b`)
	reAggregate     = regexp.MustCompile(`\b(COUNT|SUM|AVG|MIN|MAX)\s*\(`)
	reInSubquery    = regexp.MustCompile(`\bIN\s*\(\s*SELECT\b`)
	reCrossJoin     = regexp.MustCompile(`\bCROSS\s+JOIN\b`)
	reJoinPredicate = regexp.MustCompile(`\b[A-Z_][A-Z0-9_]*\.[A-Z_][A-Z0-9_]*\s*=\s*[A-Z_][A-Z0-9_]*\.[A-Z_][A-Z0-9_]*\b`)
	reTautology     = regexp.MustCompile(`\bOR\s+(?:('\?'|\d+(?:\.\d+)?)\s*=\s*('\?'|\d+(?:\.\d+)?)|TRUE\b)`)
	reStacked       = regexp.MustCompile(`;\s*(DROP|DELETE|UPDATE|INSERT|ALTER|TRUNCATE|CREATE|EXEC)\b`)
)

// indexDefeatingFuncs wrap a column and prevent index use when they appear at
// the start of a WHERE predicate.
var indexDefeatingFuncs = map[string]bool{
	"YEAR": true, "MONTH": true, "DAY": true, "DATE": true, "UPPER": true,
	"LOWER": true, "SUBSTRING": true, "SUBSTR": true, "TRIM": true,
	"DATE_TRUNC": true, "STRFTIME": true, "CAST": true, "COALESCE": true,
	"EXTRACT": true, "DATE_FORMAT": true,
}

// sqlConstants are identifier-like tokens that are not columns.
var sqlConstants = map[string]bool{
	"CURRENT_DATE": true, "CURRENT_TIMESTAMP": true, "CURRENT_TIME": true,
	"NOW": true, "INTERVAL": true, "NULL": true, "TRUE": true, "FALSE": true,
	"AS": true, "DAY": true, "MONTH": true, "YEAR": true, "WEEK": true,
	"DATE": true, "TEXT": true, "INTEGER": true, "TIMESTAMP": true,
}

// QueryEfficiency is a static, deterministic review of generated SQL. It does
// not call an LLM.
type QueryEfficiency struct {
	threshold float64
}

// NewQueryEfficiency creates the evaluator.
func NewQueryEfficiency(threshold float64) *QueryEfficiency {
	return &QueryEfficiency{threshold: threshold}
}

func (e *QueryEfficiency) Name() string { return types.MetricQueryEfficiency }

func (e *QueryEfficiency) Evaluate(_ context.Context, in *Input) *types.MetricScore {
	start := time.Now()
	if strings.TrimSpace(in.Result.GeneratedSQL) == "" {
		return newScore(e.Name(), 0, e.threshold, "No SQL was generated", start)
	}

	findings := AnalyzeQuery(in.Result.GeneratedSQL)
	score := 1.0
	for _, f := range findings {
		if f.Severity == types.SeverityIssue {
			score -= issuePenalty
		} else {
			score -= warningPenalty
		}
	}

	s := newScore(e.Name(), score, e.threshold, efficiencyReason(clamp(score), findings), start)
	s.Findings = findings
	return s
}

// AnalyzeQuery runs every efficiency rule over sql and returns the findings in
// a fixed rule order.
func AnalyzeQuery(sql string) []types.Finding {
	masked, literals := maskSQL(sql)
	upper := strings.ToUpper(masked)
	tokens := tokenize(upper)

	var out []types.Finding
	add := func(kind, severity, msg string) {
		out = append(out, types.Finding{Type: kind, Severity: severity, Message: msg, Recommendation: recommendations[kind]})
	}

	hasWhere := reWhere.MatchString(upper)
	hasLimit := reLimit.MatchString(upper)
	hasGroupBy := reGroupBy.MatchString(upper)
	wheres := whereSections(tokens)

	if reSelectStar.MatchString(upper) && !reDistinctStar.MatchString(upper) {
		add(FindingSelectStar, types.SeverityIssue,
			"Using SELECT * retrieves all columns, which may be inefficient. Specify only needed columns.")
	}
	if !hasWhere && !hasLimit && !hasGroupBy {
		add(FindingMissingWhere, types.SeverityWarning,
			"Query has no WHERE clause or LIMIT. This might scan entire tables.")
	}
	if msg := cartesianProduct(upper, tokens); msg != "" {
		add(FindingCartesianProduct, types.SeverityIssue, msg)
	}
	if reInSubquery.MatchString(upper) {
		add(FindingSubqueryInWhere, types.SeverityWarning,
			"Subquery in WHERE clause could potentially be rewritten as JOIN for better performance.")
	}
	if !hasLimit && !hasGroupBy && !reAggregate.MatchString(upper) {
		add(FindingMissingLimit, types.SeverityWarning,
			"Query might return large result set. Consider adding LIMIT for testing.")
	}
	if containsToken(wheres, "OR") {
		add(FindingOrInWhere, types.SeverityWarning,
			"OR conditions in WHERE clause may prevent index usage. Consider UNION or IN clause.")
	}
	if fn := wrappedColumnFunc(wheres); fn != "" {
		add(FindingFunctionInWhere, types.SeverityWarning,
			fmt.Sprintf("Function applied to column in WHERE clause may prevent index usage: %s(", fn))
	}
	if reDistinct.MatchString(upper) {
		switch {
		case reDistinctStar.MatchString(upper):
			add(FindingDistinctStar, types.SeverityWarning,
				"DISTINCT with * or many columns can be expensive. Consider if it's necessary.")
		case hasGroupBy:
			add(FindingDistinctWithGroupBy, types.SeverityWarning,
				"DISTINCT with GROUP BY might be redundant. Review if both are needed.")
		}
	}
	if msg := injectionPattern(upper, literals); msg != "" {
		add(FindingInjectionPattern, types.SeverityWarning, msg)
	}
	return out
}

// cartesianProduct reports comma joins without a column equality predicate,
// CROSS JOIN, and JOIN clauses lacking ON or USING.
func cartesianProduct(upper string, tokens []string) string {
	if reCrossJoin.MatchString(upper) {
		return "CROSS JOIN produces a cartesian product of both tables."
	}
	for _, r := range tableRefs(tokens) {
		if !r.joined && r.listIndex > 0 && !reJoinPredicate.MatchString(upper) {
			return "Potential cartesian product detected. Multiple tables without JOIN conditions."
		}
	}
	for i, tok := range tokens {
		if tok != "JOIN" || (i > 0 && tokens[i-1] == "NATURAL") {
			continue
		}
		j := i + 1
		if j < len(tokens) && tokens[j] == "LATERAL" {
			continue
		}
		if j < len(tokens) && tokens[j] == "(" {
			j = skipParens(tokens, j)
		} else {
			j++
		}
		j = skipAlias(tokens, j)
		if j >= len(tokens) || (tokens[j] != "ON" && tokens[j] != "USING") {
			return "JOIN without ON or USING condition produces a cartesian product."
		}
	}
	return ""
}

// skipParens returns the index after the parenthesis group opening at i.
func skipParens(tokens []string, i int) int {
	depth := 0
	for ; i < len(tokens); i++ {
		switch tokens[i] {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return i
}

var whereTerminators = map[string]bool{
	"GROUP": true, "ORDER": true, "HAVING": true, "LIMIT": true, "UNION": true,
	"EXCEPT": true, "INTERSECT": true, "WINDOW": true, "QUALIFY": true, ";": true,
}

// whereSections returns the tokens of every WHERE clause, each ending at the
// first clause keyword at its own nesting level or at the closing parenthesis
// of the enclosing subquery.
func whereSections(tokens []string) [][]string {
	var out [][]string
	for i, tok := range tokens {
		if tok != "WHERE" {
			continue
		}
		depth := 0
		j := i + 1
	scan:
		for ; j < len(tokens); j++ {
			switch t := tokens[j]; {
			case t == "(":
				depth++
			case t == ")":
				if depth == 0 {
					break scan
				}
				depth--
			case depth == 0 && whereTerminators[t]:
				break scan
			}
		}
		out = append(out, tokens[i+1:j])
	}
	return out
}

func containsToken(sections [][]string, want string) bool {
	for _, sec := range sections {
		for _, t := range sec {
			if t == want {
				return true
			}
		}
	}
	return false
}

// wrappedColumnFunc returns the first index-defeating function that opens a
// WHERE predicate and takes a column argument.
func wrappedColumnFunc(sections [][]string) string {
	for _, sec := range sections {
		for i := 0; i+1 < len(sec); i++ {
			if !indexDefeatingFuncs[sec[i]] || sec[i+1] != "(" {
				continue
			}
			if i > 0 && !predicateStart(sec[i-1]) {
				continue
			}
			end := skipParens(sec, i+1)
			for _, arg := range sec[i+2 : max(i+2, end-1)] {
				if isColumnToken(arg) {
					return sec[i]
				}
			}
		}
	}
	return ""
}

func predicateStart(tok string) bool {
	switch tok {
	case "AND", "OR", "NOT", "(":
		return true
	}
	return false
}

func isColumnToken(tok string) bool {
	r := []rune(tok)
	if len(r) == 0 || !(r[0] == '_' || r[0] == '"' || (r[0] >= 'A' && r[0] <= 'Z')) {
		return false
	}
	return !sqlConstants[tok] && !indexDefeatingFuncs[tok]
}

// injectionPattern flags tautologies, stacked statements and string literals
// that libinjection fingerprints as SQL injection. Only literals carrying
// quote, comment or comparison characters are fingerprinted.
func injectionPattern(upper string, literals []string) string {
	if alwaysTrueOr(upper, literals) {
		return "Always-true OR predicate found; this is a common SQL injection pattern."
	}
	if reStacked.MatchString(upper) {
		return "Stacked statement found after a semicolon."
	}
	for _, lit := range literals {
		if !strings.ContainsAny(lit, `'";=`) && !strings.Contains(lit, "--") && !strings.Contains(lit, "/*") {
			continue
		}
		if ok, fp := libinjection.IsSQLi(lit); ok {
			return fmt.Sprintf("String literal looks like SQL injection (fingerprint %s).", fp)
		}
	}
	return ""
}

// alwaysTrueOr reports an OR branch comparing two equal constants, or OR TRUE.
// Masked string literals are resolved by position against literals.
func alwaysTrueOr(upper string, literals []string) bool {
	for _, m := range reTautology.FindAllStringSubmatchIndex(upper, -1) {
		if m[2] < 0 {
			return true
		}
		if constant(upper, m[2], m[3], literals) == constant(upper, m[4], m[5], literals) {
			return true
		}
	}
	return false
}

func constant(upper string, start, end int, literals []string) string {
	tok := upper[start:end]
	if tok == "'?'" {
		if i := strings.Count(upper[:start], "'?'"); i < len(literals) {
			return "s:" + literals[i]
		}
		return "s:?"
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return "t:" + tok
	}
	return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
}

func efficiencyReason(score float64, findings []types.Finding) string {
	if len(findings) == 0 {
		return fmt.Sprintf("Efficiency score %.2f: no issues found", score)
	}
	var issues, warnings, recs []string
	for _, f := range findings {
		if f.Severity == types.SeverityIssue {
			issues = append(issues, f.Type)
		} else {
			warnings = append(warnings, f.Type)
		}
		if f.Recommendation != "" {
			recs = append(recs, f.Recommendation)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Efficiency score %.2f", score)
	if len(issues) > 0 {
		fmt.Fprintf(&b, "; issues: %s", strings.Join(issues, ", "))
	}
	if len(warnings) > 0 {
		fmt.Fprintf(&b, "; warnings: %s", strings.Join(warnings, ", "))
	}
	fmt.Fprintf(&b, ". Recommendations: %s", strings.Join(recs, "; "))
	return b.String()
}
