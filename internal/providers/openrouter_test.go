package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackzampolin/pagemerge/internal/backoff"
)

func openRouterReply(content string) map[string]any {
	return map[string]any{
		"id":    "test-id",
		"model": "google/gemini-2.0-flash-001",
		"choices": []map[string]any{
			{
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 8,
			"total_tokens":      18,
		},
	}
}

func TestOpenRouterClient_Extract(t *testing.T) {
	var got openRouterRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected authorization: %s", auth)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("expected request id header")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openRouterReply("```markdown\n# Title\n\nBody\n```"))
	}))
	defer server.Close()

	client := NewOpenRouterClient(OpenRouterConfig{APIKey: "test-key", BaseURL: server.URL})
	result, err := client.Extract(context.Background(), &VisionRequest{Image: []byte("png"), PageNum: 3})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Markdown != "# Title\n\nBody" {
		t.Errorf("Markdown = %q", result.Markdown)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got.Messages))
	}
	parts, ok := got.Messages[0].Content.([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("expected text and image parts, got %#v", got.Messages[0].Content)
	}
}

func TestOpenRouterClient_Select(t *testing.T) {
	t.Run("deterministic json schema request", func(t *testing.T) {
		var got map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&got)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(openRouterReply(`{"pick":"B","text":"beta"}`))
		}))
		defer server.Close()

		client := NewOpenRouterClient(OpenRouterConfig{APIKey: "k", BaseURL: server.URL, DefaultModel: "openai/gpt-4o"})
		resp, err := client.Select(context.Background(), &AdjudicationRequest{
			CandidateA: "alpha", CandidateB: "beta", Deterministic: true,
		})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if resp.Pick != PickB || resp.Text != "beta" {
			t.Errorf("unexpected response: %+v", resp)
		}
		if got["temperature"] != float64(0) {
			t.Errorf("temperature = %v, want 0", got["temperature"])
		}
		if got["seed"] != float64(deterministicSeed) {
			t.Errorf("seed = %v, want %d", got["seed"], deterministicSeed)
		}
		rf, _ := got["response_format"].(map[string]any)
		if rf["type"] != "json_schema" {
			t.Errorf("response_format = %v", got["response_format"])
		}
	})

	t.Run("anthropic models skip response_format", func(t *testing.T) {
		var got map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&got)
			json.NewEncoder(w).Encode(openRouterReply("Sure! {\"pick\":\"A\",\"text\":\"alpha\"}"))
		}))
		defer server.Close()

		client := NewOpenRouterClient(OpenRouterConfig{APIKey: "k", BaseURL: server.URL, DefaultModel: "anthropic/claude-sonnet-4"})
		resp, err := client.Select(context.Background(), &AdjudicationRequest{CandidateA: "alpha", CandidateB: "beta"})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if resp.Pick != PickA {
			t.Errorf("Pick = %s", resp.Pick)
		}
		if _, ok := got["response_format"]; ok {
			t.Error("response_format should be omitted for anthropic models")
		}
	})

	t.Run("malformed reply", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(openRouterReply(`{"pick":"C"}`))
		}))
		defer server.Close()

		client := NewOpenRouterClient(OpenRouterConfig{APIKey: "k", BaseURL: server.URL})
		_, err := client.Select(context.Background(), &AdjudicationRequest{CandidateA: "a", CandidateB: "b"})
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})
}

func TestOpenRouterClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      any
		permanent bool
	}{
		{"rate limited", http.StatusTooManyRequests, "slow down", false},
		{"server error", http.StatusBadGateway, "bad gateway", false},
		{"unprocessable", http.StatusUnprocessableEntity, "cache miss", false},
		{"unauthorized", http.StatusUnauthorized, "bad key", true},
		{"bad request", http.StatusBadRequest, "nope", true},
		{"api error overloaded", http.StatusOK, map[string]any{"error": map[string]any{"message": "busy", "code": "overloaded"}}, false},
		{"api error content filter", http.StatusOK, map[string]any{"error": map[string]any{"message": "blocked", "code": "content_filter"}}, true},
		{"empty choices", http.StatusOK, map[string]any{"id": "x", "choices": []any{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				if s, ok := tt.body.(string); ok {
					w.Write([]byte(s))
					return
				}
				json.NewEncoder(w).Encode(tt.body)
			}))
			defer server.Close()

			client := NewOpenRouterClient(OpenRouterConfig{APIKey: "k", BaseURL: server.URL})
			_, err := client.Extract(context.Background(), &VisionRequest{Image: []byte("x")})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := backoff.IsPermanent(err); got != tt.permanent {
				t.Errorf("IsPermanent = %v, want %v (err=%v)", got, tt.permanent, err)
			}
		})
	}
}
