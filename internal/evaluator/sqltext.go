package evaluator

import (
	"strings"
	"unicode"
)

// maskSQL blanks out comments and replaces every single-quoted literal with
// '?'. The literals are returned in order of appearance. Keyword rules run on
// the masked text so that words inside strings or comments never match.
func maskSQL(sql string) (string, []string) {
	var (
		b        strings.Builder
		literals []string
	)
	b.Grow(len(sql))
	for i := 0; i < len(sql); {
		switch {
		case strings.HasPrefix(sql[i:], "--"):
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				i = len(sql)
				continue
			}
			b.WriteByte(' ')
			i += end
		case strings.HasPrefix(sql[i:], "/*"):
			end := strings.Index(sql[i+2:], "*/")
			b.WriteByte(' ')
			if end < 0 {
				i = len(sql)
				continue
			}
			i += end + 4
		case sql[i] == '\'':
			j := i + 1
			var lit strings.Builder
			for j < len(sql) {
				if sql[j] == '\'' {
					if j+1 < len(sql) && sql[j+1] == '\'' {
						lit.WriteByte('\'')
						j += 2
						continue
					}
					break
				}
				lit.WriteByte(sql[j])
				j++
			}
			literals = append(literals, lit.String())
			b.WriteString("'?'")
			i = j + 1
		default:
			b.WriteByte(sql[i])
			i++
		}
	}
	return b.String(), literals
}

// tokenize splits masked SQL into identifiers (dots and double quotes kept),
// numbers, quoted placeholders and single punctuation characters.
func tokenize(sql string) []string {
	var tokens []string
	rs := []rune(sql)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'':
			j := i + 1
			for j < len(rs) && rs[j] != '\'' {
				j++
			}
			if j < len(rs) {
				j++
			}
			tokens = append(tokens, string(rs[i:j]))
			i = j
		case isIdentRune(r) || r == '"' || r == '`':
			j := i
			for j < len(rs) && (isIdentRune(rs[j]) || rs[j] == '.' || rs[j] == '"' || rs[j] == '`') {
				j++
			}
			tokens = append(tokens, string(rs[i:j]))
			i = j
		default:
			tokens = append(tokens, string(r))
			i++
		}
	}
	return tokens
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// clauseKeywords end a FROM list or an alias position.
var clauseKeywords = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true, "LIMIT": true,
	"JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "FULL": true,
	"OUTER": true, "CROSS": true, "NATURAL": true, "ON": true, "USING": true,
	"UNION": true, "EXCEPT": true, "INTERSECT": true, "WINDOW": true,
	"QUALIFY": true, "OFFSET": true, "FETCH": true, "AS": true, "SELECT": true,
	"LATERAL": true,
}

// tableRef is one relation named in a FROM or JOIN position.
type tableRef struct {
	name string
	// joined is true for relations introduced by JOIN, false for FROM and
	// comma-list entries.
	joined bool
	// listIndex is the position inside a comma-separated FROM list.
	listIndex int
}

// tableRefs extracts the relations named in FROM and JOIN positions. Schema
// prefixes and identifier quotes are stripped and names are lower-cased.
// Derived tables (subqueries) yield an unnamed ref; their own FROM clauses
// are found on the way.
func tableRefs(tokens []string) []tableRef {
	var refs []tableRef
	for i := 0; i < len(tokens); i++ {
		kw := strings.ToUpper(tokens[i])
		if kw != "FROM" && kw != "JOIN" {
			continue
		}
		// EXTRACT(part FROM col) and SUBSTRING(x FROM n) are not relations.
		if kw == "FROM" && i >= 3 && tokens[i-2] == "(" {
			fn := strings.ToUpper(tokens[i-3])
			if fn == "EXTRACT" || fn == "SUBSTRING" || fn == "TRIM" {
				continue
			}
		}
		j := i + 1
		for idx := 0; j < len(tokens); idx++ {
			if strings.EqualFold(tokens[j], "LATERAL") {
				j++
			}
			if j >= len(tokens) {
				break
			}
			if tokens[j] == "(" {
				// Derived table; its own FROM is picked up by the outer scan.
				refs = append(refs, tableRef{joined: kw == "JOIN", listIndex: idx})
				j = skipAlias(tokens, skipParens(tokens, j))
			} else {
				if !isIdentRune([]rune(tokens[j])[0]) && tokens[j][0] != '"' && tokens[j][0] != '`' {
					break
				}
				refs = append(refs, tableRef{name: relationName(tokens[j]), joined: kw == "JOIN", listIndex: idx})
				j = skipAlias(tokens, j+1)
			}
			if kw == "JOIN" || j >= len(tokens) || tokens[j] != "," {
				break
			}
			j++
		}
	}
	return refs
}

// skipAlias advances past an optional [AS] alias.
func skipAlias(tokens []string, j int) int {
	if j < len(tokens) && strings.EqualFold(tokens[j], "AS") {
		return j + 2
	}
	if j < len(tokens) && isAlias(tokens[j]) {
		return j + 1
	}
	return j
}

func isAlias(tok string) bool {
	if tok == "" || !isIdentRune([]rune(tok)[0]) {
		return false
	}
	return !clauseKeywords[strings.ToUpper(tok)]
}

func relationName(tok string) string {
	tok = strings.NewReplacer(`"`, "", "`", "").Replace(tok)
	if i := strings.LastIndexByte(tok, '.'); i >= 0 {
		tok = tok[i+1:]
	}
	return strings.ToLower(tok)
}

// tableNames returns the distinct relation names, in order of appearance.
func tableNames(tokens []string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range tableRefs(tokens) {
		if r.name != "" && !seen[r.name] {
			seen[r.name] = true
			names = append(names, r.name)
		}
	}
	return names
}
