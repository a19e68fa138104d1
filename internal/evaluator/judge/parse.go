package judge

import (
	"fmt"
	"strings"

	"github.com/segmentio/encoding/json"
)

const (
	outputStart = "<<<AGENT_OUTPUT_START>>>"
	outputEnd   = "<<<AGENT_OUTPUT_END>>>"
)

// WrapAgentOutput delimits untrusted agent content for a judge prompt.
// Delimiter sequences inside the content are defanged.
func WrapAgentOutput(content string) string {
	content = strings.ReplaceAll(content, outputStart, "<<AGENT_OUTPUT_START>>")
	content = strings.ReplaceAll(content, outputEnd, "<<AGENT_OUTPUT_END>>")
	return outputStart + "\n" + content + "\n" + outputEnd
}

// Section formats one labeled block of a judge prompt.
func Section(label, content string) string {
	return fmt.Sprintf("%s:\n%s", label, WrapAgentOutput(content))
}

// ScoreResult is a parsed judge verdict.
type ScoreResult struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// ParseScoreResult extracts the verdict from a judge reply. The JSON object is
// taken from the first '{' to the last '}' so surrounding prose and code
// fences are tolerated.
func ParseScoreResult(content string) (*ScoreResult, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in judge response: %q", truncate(content, 120))
	}

	var raw struct {
		Score       *float64 `json:"score"`
		Explanation string   `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode judge response: %w", err)
	}
	if raw.Score == nil {
		return nil, fmt.Errorf("judge response missing score")
	}
	if *raw.Score < 0 || *raw.Score > 1 {
		return nil, fmt.Errorf("judge score %v outside [0, 1]", *raw.Score)
	}
	return &ScoreResult{Score: *raw.Score, Explanation: strings.TrimSpace(raw.Explanation)}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
