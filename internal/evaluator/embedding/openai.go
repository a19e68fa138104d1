package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const openAIDefaultModel = "text-embedding-3-small"

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates an Embedder backed by the OpenAI embeddings API.
// cfg.Model defaults to text-embedding-3-small; cfg.BaseURL defaults to the
// OpenAI endpoint.
func NewOpenAIEmbedder(cfg EmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: APIKey is required")
	}
	model := cfg.Model
	if model == "" {
		model = openAIDefaultModel
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(oc), model: model}, nil
}

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Embed returns the embedding vector for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embed: empty embedding in response")
	}
	return resp.Data[0].Embedding, nil
}
