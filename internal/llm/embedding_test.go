package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wellbridge/careguard/internal/config"
)

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var gotInput []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		gotInput = body.Input

		vec := make([]float32, EmbeddingDimensions)
		vec[0] = 0.5
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  body.Model,
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": vec}},
		})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(config.EmbeddingConfig{
		BaseURL:  srv.URL,
		APIKey:   "sk-test",
		MaxChars: 5,
		Timeout:  time.Second,
	})
	vec, err := e.Embed(context.Background(), "abcdefghij")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != EmbeddingDimensions || vec[0] != 0.5 {
		t.Errorf("unexpected vector head %v (len %d)", vec[:1], len(vec))
	}
	if len(gotInput) != 1 || gotInput[0] != "abcde" {
		t.Errorf("expected input truncated to 5 chars, got %v", gotInput)
	}
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	e := NewOpenAIEmbedder(config.EmbeddingConfig{BaseURL: "http://unused.invalid"})
	if _, err := e.Embed(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo", 2); got != "hé" {
		t.Errorf("truncateRunes = %q", got)
	}
	if got := truncateRunes("abc", 0); got != "abc" {
		t.Errorf("zero max should not truncate, got %q", got)
	}
}
