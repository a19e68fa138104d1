// Package embedding computes text embeddings for semantic context recall.
package embedding

import (
	"context"
	"fmt"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// EmbedderConfig holds configuration for creating an Embedder.
type EmbedderConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// New returns the embedder for cfg.Provider: "openai" (default) or "ollama".
func New(cfg EmbedderConfig) (Embedder, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIEmbedder(cfg)
	case "ollama":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("ollama embedder: BaseURL is required")
		}
		cfg.APIKey = "ollama"
		cfg.BaseURL += "/v1"
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("embedding provider %q not supported", cfg.Provider)
	}
}
