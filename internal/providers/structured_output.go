package providers

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// AdjudicationSchema is the JSON schema every adjudicator reply must match.
var AdjudicationSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"pick": {"type": "string", "enum": ["A", "B"]},
		"text": {"type": "string"}
	},
	"required": ["pick", "text"]
}`)

// adjudicationResponseFormat wraps AdjudicationSchema the way OpenAI
// compatible APIs expect it in response_format.json_schema.
var adjudicationResponseFormat = json.RawMessage(`{
	"name": "adjudication",
	"strict": true,
	"schema": {
		"type": "object",
		"properties": {
			"pick": {"type": "string", "enum": ["A", "B"]},
			"text": {"type": "string"}
		},
		"required": ["pick", "text"],
		"additionalProperties": false
	}
}`)

var (
	adjudicationSchemaOnce sync.Once
	adjudicationSchema     *jsonschema.Schema
	adjudicationSchemaErr  error
)

func compiledAdjudicationSchema() (*jsonschema.Schema, error) {
	adjudicationSchemaOnce.Do(func() {
		adjudicationSchema, adjudicationSchemaErr = jsonschema.CompileString("adjudication.json", string(AdjudicationSchema))
	})
	return adjudicationSchema, adjudicationSchemaErr
}

// ParseAdjudication decodes and schema-checks a model reply. Code fences
// and surrounding prose are tolerated.
func ParseAdjudication(content string) (*AdjudicationResponse, error) {
	parsed, err := parseStructuredJSON(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	schema, err := compiledAdjudicationSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile adjudication schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(parsed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: reply does not match schema: %v", ErrMalformedResponse, err)
	}

	var resp AdjudicationResponse
	if err := json.Unmarshal(parsed, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	resp.Raw = content
	return &resp, nil
}

// supportsJSONSchemaFormat reports whether the model accepts a
// response_format of type json_schema. OpenRouter may route anthropic/*
// models to backends that reject it; those rely on the prompt plus local
// validation instead.
func supportsJSONSchemaFormat(model string) bool {
	return !strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "anthropic/")
}

// parseStructuredJSON parses JSON from model output, with lightweight recovery
// for markdown code fences and surrounding text.
func parseStructuredJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty structured output")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if extracted := extractJSONCandidate(content); extracted != "" && extracted != content {
		candidates = append(candidates, extracted)
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}

		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			normalized, mErr := json.Marshal(parsed)
			if mErr != nil {
				return nil, fmt.Errorf("failed to normalize structured output: %w", mErr)
			}
			return normalized, nil
		}
	}

	return nil, fmt.Errorf("failed to parse structured JSON")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractJSONCandidate returns the outermost {...} span of content.
func extractJSONCandidate(content string) string {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(trimmed, "}")
	if end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}
