package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1},
		{"45 degrees", []float32{1, 1, 0}, []float32{1, 0, 0}, 1 / math.Sqrt2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarity_Errors(t *testing.T) {
	if _, err := CosineSimilarity([]float32{1, 2}, []float32{1}); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("length mismatch: got %v, want ErrLengthMismatch", err)
	}
	if _, err := CosineSimilarity([]float32{0, 0}, []float32{1, 0}); !errors.Is(err, ErrZeroMagnitude) {
		t.Errorf("zero magnitude: got %v, want ErrZeroMagnitude", err)
	}
}

func TestBestMatch(t *testing.T) {
	q := []float32{1, 0}
	got := BestMatch(q, [][]float32{{0, 1}, {1, 1}, {1, 0, 0}, {0, 0}})
	if math.Abs(got-1/math.Sqrt2) > 1e-6 {
		t.Errorf("best match: got %f, want %f", got, 1/math.Sqrt2)
	}
	if got := BestMatch(q, nil); got != 0 {
		t.Errorf("no candidates: got %f, want 0", got)
	}
}

func newEmbeddingServer(t *testing.T, status int, body any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path: got %s, want /embeddings", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func TestOpenAIEmbedder_Success(t *testing.T) {
	srv := newEmbeddingServer(t, http.StatusOK, map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2, 0.3}},
		},
		"model": "text-embedding-3-small",
	})
	defer srv.Close()

	e, err := NewOpenAIEmbedder(EmbedderConfig{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder: %v", err)
	}
	vec, err := e.Embed(context.Background(), "Table: events")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 || vec[2] != 0.3 {
		t.Errorf("unexpected vector: %v", vec)
	}
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	srv := newEmbeddingServer(t, http.StatusUnauthorized, map[string]any{
		"error": map[string]any{"message": "bad key", "type": "invalid_request_error"},
	})
	defer srv.Close()

	e, err := NewOpenAIEmbedder(EmbedderConfig{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder: %v", err)
	}
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestOpenAIEmbedder_EmptyData(t *testing.T) {
	srv := newEmbeddingServer(t, http.StatusOK, map[string]any{"data": []any{}})
	defer srv.Close()

	e, _ := NewOpenAIEmbedder(EmbedderConfig{APIKey: "k", BaseURL: srv.URL})
	if _, err := e.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error for empty data")
	}
}

func TestNew(t *testing.T) {
	e, err := New(EmbedderConfig{APIKey: "key"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.Model() != "text-embedding-3-small" {
		t.Errorf("default model: got %q, want text-embedding-3-small", e.Model())
	}
	if _, err := New(EmbedderConfig{}); err == nil {
		t.Error("expected error for missing API key")
	}
	if _, err := New(EmbedderConfig{Provider: "ollama"}); err == nil {
		t.Error("expected error for ollama without base URL")
	}
	e, err = New(EmbedderConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "nomic-embed-text"})
	if err != nil {
		t.Fatalf("New ollama: %v", err)
	}
	if e.Model() != "nomic-embed-text" {
		t.Errorf("ollama model: got %q", e.Model())
	}
	if _, err := New(EmbedderConfig{Provider: "onnx"}); err == nil {
		t.Error("expected error for unsupported provider")
	}
}
