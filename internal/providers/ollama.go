package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackzampolin/pagemerge/internal/backoff"
)

const (
	OllamaName         = "ollama"
	OllamaBaseURL      = "http://localhost:11434"
	ollamaDefaultModel = "llama3.2-vision"
)

// OllamaConfig holds configuration for a local Ollama server.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaClient implements VisionBackend and Adjudicator against the
// Ollama generate API with streaming disabled.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = ollamaDefaultModel
	}
	if cfg.Timeout == 0 {
		// Local vision models are slow on CPU.
		cfg.Timeout = 300 * time.Second
	}
	return &OllamaClient{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the client identifier.
func (c *OllamaClient) Name() string {
	return OllamaName
}

// Model returns the configured model.
func (c *OllamaClient) Model() string {
	return c.model
}

// Extract transcribes a page image to Markdown.
func (c *OllamaClient) Extract(ctx context.Context, req *VisionRequest) (*VisionResult, error) {
	start := time.Now()

	prompt := req.Prompt
	if prompt == "" {
		prompt = VisionPrompt
	}
	resp, err := c.generate(ctx, &ollamaGenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Images:  []string{base64.StdEncoding.EncodeToString(req.Image)},
		Options: ollamaOptions{Temperature: 0},
	})
	if err != nil {
		return nil, err
	}

	return &VisionResult{
		Markdown: stripMarkdownFence(resp.Response),
		Model:    resp.Model,
		Metadata: map[string]any{
			"prompt_eval_count": resp.PromptEvalCount,
			"eval_count":        resp.EvalCount,
		},
		ExecutionTime: time.Since(start),
	}, nil
}

// Select asks the model to choose between two candidates.
func (c *OllamaClient) Select(ctx context.Context, req *AdjudicationRequest) (*AdjudicationResponse, error) {
	genReq := &ollamaGenerateRequest{
		Model:  c.model,
		System: AdjudicatorSystemPrompt,
		Prompt: AdjudicatorUserPrompt(req),
		Format: "json",
	}
	if req.Deterministic {
		seed := deterministicSeed
		genReq.Options = ollamaOptions{Temperature: 0, Seed: &seed}
	}

	resp, err := c.generate(ctx, genReq)
	if err != nil {
		return nil, err
	}
	out, err := ParseAdjudication(resp.Response)
	if err != nil {
		return nil, err
	}
	out.Model = resp.Model
	return out, nil
}

func (c *OllamaClient) generate(ctx context.Context, genReq *ollamaGenerateRequest) (*ollamaGenerateResponse, error) {
	genReq.Stream = false
	bodyBytes, err := json.Marshal(genReq)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return nil, newTransportError("Ollama", resp, msg)
	}

	var out ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !out.Done {
		return nil, fmt.Errorf("%w: generation not finished", ErrMalformedResponse)
	}
	return &out, nil
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	System  string        `json:"system,omitempty"`
	Prompt  string        `json:"prompt"`
	Images  []string      `json:"images,omitempty"`
	Format  string        `json:"format,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	Seed        *int    `json:"seed,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

var (
	_ VisionBackend = (*OllamaClient)(nil)
	_ Adjudicator   = (*OllamaClient)(nil)
)
