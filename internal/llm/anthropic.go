package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultModel = "claude-3-5-sonnet-20241022"

// AnthropicProvider calls the Claude Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates a Claude provider. baseURL may be empty.
func NewAnthropicProvider(apiKey, model, baseURL string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic provider: API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = anthropicDefaultModel
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...), model: model}, nil
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) DefaultModel() string { return p.model }

func (p *AnthropicProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	model := modelOr(req, p.model)

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		Messages:    messages,
		MaxTokens:   int64(maxTokens(req)),
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, newProviderError(p.Name(), apiErr.StatusCode, err)
		}
		return nil, newProviderError(p.Name(), 0, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &CompletionResponse{
		Content:      sb.String(),
		Model:        model,
		InputTokens:  in,
		OutputTokens: out,
		Cost:         EstimateCost(model, in, out),
		DurationMS:   time.Since(start).Milliseconds(),
	}, nil
}
