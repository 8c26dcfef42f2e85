package providers

import (
	"context"
	"time"
)

// VisionBackend converts a rendered page image into Markdown.
type VisionBackend interface {
	// Name returns the backend identifier (e.g., "openai", "mistral-ocr").
	Name() string

	// Model returns the model the backend sends requests to. It is part of
	// the vision cache key.
	Model() string

	// Extract returns Markdown for a single page image.
	Extract(ctx context.Context, req *VisionRequest) (*VisionResult, error)
}

// Adjudicator picks one of two candidate texts for an ambiguous segment.
// It must not author new text: implementations return the chosen
// candidate, and callers verify it.
type Adjudicator interface {
	// Name returns the backend identifier recorded in provenance.
	Name() string

	// Select asks the backend to choose between CandidateA and CandidateB.
	Select(ctx context.Context, req *AdjudicationRequest) (*AdjudicationResponse, error)
}

// VisionRequest is one page image to transcribe.
type VisionRequest struct {
	Image   []byte `json:"-"`
	PageNum int    `json:"page_num"`

	// Prompt overrides the backend default when non-empty. Backends that
	// are not prompt driven (OCR engines) ignore it.
	Prompt string `json:"prompt,omitempty"`
}

// VisionResult is a backend transcription of one page.
type VisionResult struct {
	Markdown string `json:"markdown"`
	Model    string `json:"model,omitempty"`

	// Metadata from provider (dimensions, token usage, etc.)
	Metadata map[string]any `json:"metadata,omitempty"`

	ExecutionTime time.Duration `json:"execution_time"`
}

// Candidate labels. The text-layer candidate is always A and the vision
// candidate is always B.
const (
	PickA = "A"
	PickB = "B"
)

// AdjudicationRequest carries an ambiguous pair and its surrounding text.
type AdjudicationRequest struct {
	ContextBefore string `json:"context_before"`
	CandidateA    string `json:"candidate_a"`
	CandidateB    string `json:"candidate_b"`
	ContextAfter  string `json:"context_after"`

	// Deterministic asks for temperature 0 and a fixed seed where the
	// backend supports them.
	Deterministic bool `json:"deterministic"`
}

// AdjudicationResponse is the backend's choice.
type AdjudicationResponse struct {
	Pick string `json:"pick"`
	Text string `json:"text"`

	// Model and Raw are diagnostics and not part of the wire format.
	Model string `json:"-"`
	Raw   string `json:"-"`
}
