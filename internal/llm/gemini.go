package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"
)

const geminiDefaultModel = "gemini-1.5-flash"

// GeminiProvider calls the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini provider using the Gemini API backend.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini provider: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini provider: create client: %w", err)
	}
	if model == "" {
		model = geminiDefaultModel
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string         { return "gemini" }
func (p *GeminiProvider) DefaultModel() string { return p.model }

func (p *GeminiProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	model := modelOr(req, p.model)

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	temperature := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(maxTokens(req)),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, newProviderError(p.Name(), statusFromMessage(err), err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, newProviderError(p.Name(), 0, errors.New("response contained no candidates"))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}

	var in, out int
	if resp.UsageMetadata != nil {
		in = int(resp.UsageMetadata.PromptTokenCount)
		out = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return &CompletionResponse{
		Content:      sb.String(),
		Model:        model,
		InputTokens:  in,
		OutputTokens: out,
		Cost:         EstimateCost(model, in, out),
		DurationMS:   time.Since(start).Milliseconds(),
	}, nil
}

var statusPattern = regexp.MustCompile(`\b(?:Error|status|code)[ :=]+([45]\d\d)\b`)

// statusFromMessage recovers an HTTP status code embedded in an error string.
func statusFromMessage(err error) int {
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}
