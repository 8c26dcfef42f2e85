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

func TestOllamaClient_Extract(t *testing.T) {
	var got ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Model: "llava", Response: "Page text", Done: true})
	}))
	defer server.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL, Model: "llava"})
	result, err := client.Extract(context.Background(), &VisionRequest{Image: []byte("img"), PageNum: 2})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Markdown != "Page text" {
		t.Errorf("Markdown = %q", result.Markdown)
	}
	if got.Stream {
		t.Error("stream must be false")
	}
	if len(got.Images) != 1 || got.Images[0] != "aW1n" {
		t.Errorf("Images = %v", got.Images)
	}
	if got.Prompt != VisionPrompt {
		t.Errorf("expected default vision prompt")
	}
}

func TestOllamaClient_Select(t *testing.T) {
	var got ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Model: "llama3", Response: `{"pick":"B","text":"two"}`, Done: true})
	}))
	defer server.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: server.URL, Model: "llama3"})
	resp, err := client.Select(context.Background(), &AdjudicationRequest{CandidateA: "one", CandidateB: "two", Deterministic: true})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if resp.Pick != PickB || resp.Text != "two" {
		t.Errorf("unexpected response %+v", resp)
	}
	if got.Format != "json" || got.System != AdjudicatorSystemPrompt {
		t.Errorf("unexpected request %+v", got)
	}
	if got.Options.Seed == nil || *got.Options.Seed != deterministicSeed {
		t.Errorf("expected deterministic seed, got %+v", got.Options)
	}
}

func TestOllamaClient_Errors(t *testing.T) {
	t.Run("model not found is permanent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"model 'x' not found"}`))
		}))
		defer server.Close()

		client := NewOllamaClient(OllamaConfig{BaseURL: server.URL})
		_, err := client.Extract(context.Background(), &VisionRequest{Image: []byte("x")})
		if !backoff.IsPermanent(err) {
			t.Errorf("expected permanent error, got %v", err)
		}
		var te *TransportError
		if !errors.As(err, &te) || te.Message != "model 'x' not found" {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("unfinished generation is malformed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "partial", Done: false})
		}))
		defer server.Close()

		client := NewOllamaClient(OllamaConfig{BaseURL: server.URL})
		_, err := client.Extract(context.Background(), &VisionRequest{Image: []byte("x")})
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})
}
