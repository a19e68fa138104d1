package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const openAIDefaultModel = "gpt-4o-mini"

// OpenAIProvider calls the OpenAI chat completions API, or any
// OpenAI-compatible endpoint such as Ollama's /v1.
type OpenAIProvider struct {
	client *openai.Client
	name   string
	model  string
}

// NewOpenAIProvider creates a provider for api.openai.com, or for baseURL when set.
func NewOpenAIProvider(apiKey, model, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai provider: API key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openAIDefaultModel
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), name: "openai", model: model}, nil
}

// NewOllamaProvider talks to a local Ollama server through its
// OpenAI-compatible endpoint. No API key is needed.
func NewOllamaProvider(baseURL, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		return nil, fmt.Errorf("ollama provider: model is required")
	}
	cfg := openai.DefaultConfig("ollama")
	cfg.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), name: "ollama", model: model}, nil
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) DefaultModel() string { return p.model }

func (p *OpenAIProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	model := modelOr(req, p.model)

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   maxTokens(req),
	})
	if err != nil {
		return nil, p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, newProviderError(p.name, 0, errors.New("response contained no choices"))
	}

	return &CompletionResponse{
		Content:      resp.Choices[0].Message.Content,
		Model:        model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Cost:         EstimateCost(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		DurationMS:   time.Since(start).Milliseconds(),
	}, nil
}

func (p *OpenAIProvider) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return newProviderError(p.name, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return newProviderError(p.name, reqErr.HTTPStatusCode, err)
	}
	return newProviderError(p.name, 0, err)
}
