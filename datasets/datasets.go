// Package datasets embeds the default analytics schema and evaluation corpus.
package datasets

import "embed"

// Default file names inside FS.
const (
	SchemaFile = "analytics_schema.json"
	CasesFile  = "test_cases.json"
	GoldenFile = "golden_contexts.json"
)

// FS holds the default corpus files.
//
//go:embed analytics_schema.json test_cases.json golden_contexts.json
var FS embed.FS
