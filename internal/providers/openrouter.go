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

	"github.com/google/uuid"

	"github.com/jackzampolin/pagemerge/internal/backoff"
)

const (
	OpenRouterName    = "openrouter"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// OpenRouterConfig holds configuration for the OpenRouter client.
type OpenRouterConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// OpenRouterClient implements VisionBackend and Adjudicator using the
// OpenRouter chat completions API. Each call makes one HTTP attempt; the
// caller's backoff policy owns retries.
type OpenRouterClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	client       *http.Client
}

// NewOpenRouterClient creates a new OpenRouter client.
func NewOpenRouterClient(cfg OpenRouterConfig) *OpenRouterClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenRouterBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "google/gemini-2.0-flash-001"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &OpenRouterClient{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.DefaultModel,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the client identifier.
func (c *OpenRouterClient) Name() string {
	return OpenRouterName
}

// Model returns the configured model.
func (c *OpenRouterClient) Model() string {
	return c.defaultModel
}

// Extract transcribes a page image to Markdown.
func (c *OpenRouterClient) Extract(ctx context.Context, req *VisionRequest) (*VisionResult, error) {
	start := time.Now()

	prompt := req.Prompt
	if prompt == "" {
		prompt = VisionPrompt
	}
	orReq := &openRouterRequest{
		Model: c.defaultModel,
		Messages: []openRouterMessage{{
			Role: "user",
			Content: []openRouterContent{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &openRouterImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.Image),
				}},
			},
		}},
		Temperature: 0,
	}

	orResp, err := c.doRequest(ctx, "/chat/completions", orReq)
	if err != nil {
		return nil, err
	}
	content, err := orResp.text()
	if err != nil {
		return nil, err
	}

	return &VisionResult{
		Markdown: stripMarkdownFence(content),
		Model:    orResp.Model,
		Metadata: map[string]any{
			"prompt_tokens":     orResp.Usage.PromptTokens,
			"completion_tokens": orResp.Usage.CompletionTokens,
			"cost_usd":          orResp.Usage.Cost,
		},
		ExecutionTime: time.Since(start),
	}, nil
}

// Select asks the model to choose between two candidates.
func (c *OpenRouterClient) Select(ctx context.Context, req *AdjudicationRequest) (*AdjudicationResponse, error) {
	orReq := &openRouterRequest{
		Model: c.defaultModel,
		Messages: []openRouterMessage{
			{Role: "system", Content: AdjudicatorSystemPrompt},
			{Role: "user", Content: AdjudicatorUserPrompt(req)},
		},
	}
	if req.Deterministic {
		seed := deterministicSeed
		orReq.Temperature = 0
		orReq.Seed = &seed
	}
	if supportsJSONSchemaFormat(c.defaultModel) {
		orReq.ResponseFormat = &openRouterResponseFormat{
			Type:       "json_schema",
			JSONSchema: adjudicationResponseFormat,
		}
	}

	orResp, err := c.doRequest(ctx, "/chat/completions", orReq)
	if err != nil {
		return nil, err
	}
	content, err := orResp.text()
	if err != nil {
		return nil, err
	}
	resp, err := ParseAdjudication(content)
	if err != nil {
		return nil, err
	}
	resp.Model = orResp.Model
	return resp, nil
}

// doRequest makes one HTTP request to OpenRouter.
func (c *OpenRouterClient) doRequest(ctx context.Context, path string, orReq *openRouterRequest) (*openRouterResponse, error) {
	bodyBytes, err := json.Marshal(orReq)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/jackzampolin/pagemerge")
	req.Header.Set("X-Title", "Pagemerge")
	req.Header.Set("X-Request-ID", uuid.NewString())

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
		return nil, newTransportError(OpenRouterName, resp, string(respBody))
	}

	var orResp openRouterResponse
	if err := json.Unmarshal(respBody, &orResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := orResp.checkError(); err != nil {
		return nil, err
	}
	return &orResp, nil
}

// checkError classifies a 200 OK response that still carries an error or
// no choices.
func (r *openRouterResponse) checkError() error {
	if r.Error != nil {
		code := fmt.Sprintf("%v", r.Error.Code)
		err := fmt.Errorf("OpenRouter API error (%s): %s", code, r.Error.Message)
		switch code {
		case "overloaded", "rate_limit_exceeded", "503", "502", "500":
			return err
		}
		return backoff.Permanent(err)
	}
	if len(r.Choices) == 0 {
		return fmt.Errorf("empty choices in response (model=%s, id=%s)", r.Model, r.ID)
	}
	return nil
}

// text returns the first choice's content as a string.
func (r *openRouterResponse) text() (string, error) {
	switch c := r.Choices[0].Message.Content.(type) {
	case nil:
		return "", nil
	case string:
		return c, nil
	default:
		b, err := json.Marshal(c)
		if err != nil {
			return "", fmt.Errorf("failed to marshal content: %w", err)
		}
		return string(b), nil
	}
}

var (
	_ VisionBackend = (*OpenRouterClient)(nil)
	_ Adjudicator   = (*OpenRouterClient)(nil)
)
