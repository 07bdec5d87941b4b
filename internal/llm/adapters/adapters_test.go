package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wellbridge/careguard/internal/config"
	"github.com/wellbridge/careguard/internal/types"
)

func TestOpenAIAdapter_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["temperature"] != 0.5 {
			t.Errorf("expected temperature 0.5, got %v", body["temperature"])
		}
		if body["max_tokens"] != 120.0 {
			t.Errorf("expected max_tokens 120, got %v", body["max_tokens"])
		}
		rf, _ := body["response_format"].(map[string]any)
		if rf["type"] != "json_object" {
			t.Errorf("expected json_object response format, got %v", body["response_format"])
		}
		io.WriteString(w, `{"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}`)
	}))
	defer srv.Close()

	a := NewOpenAIAdapter(config.ProviderConfig{BaseURL: srv.URL, APIKey: "sk-test"}, srv.Client())
	req, err := a.BuildRequest(context.Background(), &types.CompletionRequest{
		Model:       "gpt-4o-mini",
		Messages:    []types.ChatMessage{{Role: "user", Content: "hello"}},
		Temperature: types.Float64(0.5),
		MaxTokens:   types.Int(120),
		JSONMode:    true,
	})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	resp, err := a.SendRequest(req)
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	c, err := a.ParseResponse(resp)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if c.Content != "hi" || c.Provider != "openai" || c.Usage.TotalTokens != 6 {
		t.Errorf("unexpected completion %+v", c)
	}
}

func TestOpenAIAdapter_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error":"overloaded"}`)
	}))
	defer srv.Close()

	a := NewOpenAIAdapter(config.ProviderConfig{BaseURL: srv.URL}, srv.Client())
	req, _ := a.BuildRequest(context.Background(), &types.CompletionRequest{Model: "m"})
	resp, err := a.SendRequest(req)
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	_, err = a.ParseResponse(resp)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if !se.Retryable() {
		t.Error("503 should be retryable")
	}
	if se.Body != `{"error":"overloaded"}` {
		t.Errorf("expected raw body for unstructured errors, got %q", se.Body)
	}
}

func TestOpenAIAdapter_StructuredErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"model not found","type":"invalid_request_error","code":"model_not_found"}}`)
	}))
	defer srv.Close()

	a := NewOpenAIAdapter(config.ProviderConfig{BaseURL: srv.URL + "/"}, srv.Client())
	req, _ := a.BuildRequest(context.Background(), &types.CompletionRequest{Model: "nope"})
	if req.Header.Get("Authorization") != "" {
		t.Error("no Authorization header expected without an api key")
	}
	resp, err := a.SendRequest(req)
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	_, err = a.ParseResponse(resp)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Body != "model not found" {
		t.Errorf("expected structured message, got %q", se.Body)
	}
	if se.Retryable() {
		t.Error("400 should not be retryable")
	}
}

func TestAnthropicAdapter_SystemAndContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}
		var body anthropicRequestBody
		json.NewDecoder(r.Body).Decode(&body)
		if body.System != "be brief" {
			t.Errorf("expected system prompt lifted out, got %q", body.System)
		}
		if len(body.Messages) != 1 || body.Messages[0].Role != "user" {
			t.Errorf("unexpected messages %+v", body.Messages)
		}
		io.WriteString(w, `{"id":"m1","model":"claude","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`)
	}))
	defer srv.Close()

	a := NewAnthropicAdapter(config.ProviderConfig{BaseURL: srv.URL, APIKey: "k"}, srv.Client())
	req, err := a.BuildRequest(context.Background(), &types.CompletionRequest{
		Model: "claude",
		Messages: []types.ChatMessage{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	resp, err := a.SendRequest(req)
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	c, err := a.ParseResponse(resp)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if c.Content != "ab" {
		t.Errorf("expected concatenated text blocks, got %q", c.Content)
	}
	if c.FinishReason != "stop" {
		t.Errorf("expected finish reason stop, got %q", c.FinishReason)
	}
	if c.Usage.TotalTokens != 5 {
		t.Errorf("expected 5 total tokens, got %d", c.Usage.TotalTokens)
	}
}
