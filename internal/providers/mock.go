package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockVision is a VisionBackend for testing. Pages maps page numbers to
// the Markdown returned for them; other pages get DefaultMarkdown.
type MockVision struct {
	ProviderName    string
	ModelName       string
	Latency         time.Duration
	ShouldFail      bool
	FailAfter       int // Fail after N requests (0 = never)
	FailTimes       int // Fail the first N requests, then succeed
	Pages           map[int]string
	DefaultMarkdown string

	requestCount atomic.Int64
}

// NewMockVision creates a mock vision backend with no latency.
func NewMockVision() *MockVision {
	return &MockVision{
		ProviderName: MockName,
		ModelName:    "mock-vision",
		Pages:        map[int]string{},
	}
}

// Name returns the provider identifier.
func (m *MockVision) Name() string {
	return m.ProviderName
}

// Model returns the mock model name.
func (m *MockVision) Model() string {
	return m.ModelName
}

// Extract returns the configured Markdown for the page.
func (m *MockVision) Extract(ctx context.Context, req *VisionRequest) (*VisionResult, error) {
	start := time.Now()
	count := m.requestCount.Add(1)

	if m.ShouldFail {
		return nil, fmt.Errorf("mock vision configured to fail")
	}
	if m.FailAfter > 0 && int(count) > m.FailAfter {
		return nil, fmt.Errorf("mock vision failed after %d requests", m.FailAfter)
	}
	if m.FailTimes > 0 && int(count) <= m.FailTimes {
		return nil, fmt.Errorf("mock vision transient failure %d", count)
	}

	if err := sleepCtx(ctx, m.Latency); err != nil {
		return nil, err
	}

	md, ok := m.Pages[req.PageNum]
	if !ok {
		md = m.DefaultMarkdown
	}
	return &VisionResult{
		Markdown:      md,
		Model:         m.ModelName,
		Metadata:      map[string]any{"image_bytes": len(req.Image)},
		ExecutionTime: time.Since(start),
	}, nil
}

// RequestCount returns the number of requests made.
func (m *MockVision) RequestCount() int64 {
	return m.requestCount.Load()
}

// MockAdjudicator is an Adjudicator for testing. By default it picks
// Pick and echoes that candidate back verbatim.
type MockAdjudicator struct {
	ProviderName string
	Latency      time.Duration
	Pick         string
	ShouldFail   bool

	// Respond, when set, replaces the default behaviour.
	Respond func(req *AdjudicationRequest) (*AdjudicationResponse, error)

	requestCount atomic.Int64

	mu       sync.Mutex
	requests []AdjudicationRequest
}

// NewMockAdjudicator creates a mock adjudicator that always picks pick.
func NewMockAdjudicator(pick string) *MockAdjudicator {
	return &MockAdjudicator{ProviderName: MockName, Pick: pick}
}

// Name returns the provider identifier.
func (m *MockAdjudicator) Name() string {
	return m.ProviderName
}

// Select returns the configured pick.
func (m *MockAdjudicator) Select(ctx context.Context, req *AdjudicationRequest) (*AdjudicationResponse, error) {
	m.requestCount.Add(1)
	m.mu.Lock()
	m.requests = append(m.requests, *req)
	m.mu.Unlock()

	if err := sleepCtx(ctx, m.Latency); err != nil {
		return nil, err
	}
	if m.ShouldFail {
		return nil, fmt.Errorf("mock adjudicator configured to fail")
	}
	if m.Respond != nil {
		return m.Respond(req)
	}

	text := req.CandidateA
	if m.Pick == PickB {
		text = req.CandidateB
	}
	return &AdjudicationResponse{Pick: m.Pick, Text: text, Model: "mock-adjudicator"}, nil
}

// RequestCount returns the number of requests made.
func (m *MockAdjudicator) RequestCount() int64 {
	return m.requestCount.Load()
}

// Requests returns a copy of every request received.
func (m *MockAdjudicator) Requests() []AdjudicationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AdjudicationRequest(nil), m.requests...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ VisionBackend = (*MockVision)(nil)
	_ Adjudicator   = (*MockAdjudicator)(nil)
)
