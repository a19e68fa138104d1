// Package llm abstracts the hosted and local language models used as judges
// and by the LLM-backed agent.
package llm

import "context"

// Provider is implemented by every LLM backend.
type Provider interface {
	Name() string
	DefaultModel() string
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles used in Message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest is a provider-neutral chat completion request.
type CompletionRequest struct {
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
	Temperature  float64   `json:"temperature"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
}

// CompletionResponse is a provider-neutral completion result.
type CompletionResponse struct {
	Content      string  `json:"content"`
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	DurationMS   int64   `json:"duration_ms"`
}

// defaultMaxTokens is used when a request leaves MaxTokens unset.
const defaultMaxTokens = 1024

func maxTokens(req *CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}

func modelOr(req *CompletionRequest, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	return fallback
}

// pricing holds USD per million input and output tokens.
type pricing struct{ in, out float64 }

// modelPricing lists known list prices used for cost estimates.
// Unknown models are reported at zero cost.
var modelPricing = map[string]pricing{
	"gemini-1.5-flash":           {0.075, 0.30},
	"gemini-1.5-pro":             {1.25, 5.00},
	"gemini-2.0-flash":           {0.10, 0.40},
	"claude-3-5-sonnet-20241022": {3.00, 15.00},
	"claude-3-5-haiku-20241022":  {0.80, 4.00},
	"gpt-4o":                     {2.50, 10.00},
	"gpt-4o-mini":                {0.15, 0.60},
}

// EstimateCost returns the USD cost of a call with the given token counts.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := modelPricing[model]
	if !ok {
		return 0
	}
	return (float64(inputTokens)*p.in + float64(outputTokens)*p.out) / 1_000_000
}
