package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/wellbridge/careguard/internal/config"
)

// EmbeddingDimensions matches the vector column width in the records table.
const EmbeddingDimensions = 1536

// Embedder turns text into a vector for semantic record search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client   *openai.Client
	model    openai.EmbeddingModel
	maxChars int
}

func NewOpenAIEmbedder(cfg config.EmbeddingConfig) *OpenAIEmbedder {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{
		client:   openai.NewClientWithConfig(oc),
		model:    openai.EmbeddingModel(model),
		maxChars: cfg.MaxChars,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = truncateRunes(text, e.maxChars)
	if text == "" {
		return nil, fmt.Errorf("embed: empty input")
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("create embedding: empty response")
	}
	vec := resp.Data[0].Embedding
	if len(vec) != EmbeddingDimensions {
		return nil, fmt.Errorf("create embedding: got %d dimensions, want %d", len(vec), EmbeddingDimensions)
	}
	return vec, nil
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
