package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jackzampolin/pagemerge/internal/backoff"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-4o-mini"

	// deterministicSeed is sent with every deterministic request.
	deterministicSeed = 7
)

// OpenAIConfig holds configuration for the OpenAI client. BaseURL points
// it at any OpenAI-compatible server (vLLM, LM Studio, DeepInfra).
type OpenAIConfig struct {
	Name       string // Registry name override (default "openai")
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client // Optional (tests)
}

// OpenAIClient implements VisionBackend and Adjudicator with the official
// OpenAI SDK.
type OpenAIClient struct {
	name   string
	apiKey string
	model  string
	client openai.Client
}

// NewOpenAIClient creates a new OpenAI client. SDK retries are disabled;
// callers retry through a backoff.Policy.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Name == "" {
		cfg.Name = OpenAIName
	}
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		name:   cfg.Name,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		client: openai.NewClient(opts...),
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return c.name
}

// Model returns the configured model.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Extract transcribes a page image to Markdown.
func (c *OpenAIClient) Extract(ctx context.Context, req *VisionRequest) (*VisionResult, error) {
	start := time.Now()

	prompt := req.Prompt
	if prompt == "" {
		prompt = VisionPrompt
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.Image)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		Temperature: openai.Float(0),
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.mapError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%s: no choices in response", c.name)
	}

	return &VisionResult{
		Markdown: stripMarkdownFence(completion.Choices[0].Message.Content),
		Model:    completion.Model,
		Metadata: map[string]any{
			"prompt_tokens":     completion.Usage.PromptTokens,
			"completion_tokens": completion.Usage.CompletionTokens,
		},
		ExecutionTime: time.Since(start),
	}, nil
}

// Select asks the model to choose between two candidates.
func (c *OpenAIClient) Select(ctx context.Context, req *AdjudicationRequest) (*AdjudicationResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(AdjudicatorSystemPrompt),
			openai.UserMessage(AdjudicatorUserPrompt(req)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	if req.Deterministic {
		params.Temperature = openai.Float(0)
		params.Seed = openai.Int(deterministicSeed)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.mapError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%s: no choices in response", c.name)
	}

	resp, err := ParseAdjudication(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	resp.Model = completion.Model
	return resp, nil
}

// mapError converts SDK errors into TransportErrors so that retry
// classification matches the other HTTP backends.
func (c *OpenAIClient) mapError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	te := &TransportError{
		Backend:    c.name,
		StatusCode: apiErr.StatusCode,
		Message:    apiErr.Message,
	}
	if apiErr.Response != nil {
		te.retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
	}
	if te.Message == "" {
		te.Message = http.StatusText(apiErr.StatusCode)
	}
	if !te.Retryable() {
		return backoff.Permanent(te)
	}
	return te
}

// stripMarkdownFence removes a ```markdown wrapper some models add around
// the whole page.
func stripMarkdownFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return s
	}
	t = strings.TrimSuffix(t, "```")
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		return strings.TrimSpace(t[i+1:])
	}
	return s
}

var (
	_ VisionBackend = (*OpenAIClient)(nil)
	_ Adjudicator   = (*OpenAIClient)(nil)
)
