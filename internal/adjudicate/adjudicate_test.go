package adjudicate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackzampolin/pagemerge/internal/backoff"
	"github.com/jackzampolin/pagemerge/internal/providers"
)

func testPolicy(attempts int) backoff.Policy {
	return backoff.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, Multiplier: 1}
}

func TestValidate(t *testing.T) {
	req := &providers.AdjudicationRequest{CandidateA: "The  quick\nfox", CandidateB: "The quick box"}

	tests := []struct {
		name     string
		resp     *providers.AdjudicationResponse
		wantPick string
		wantText string
		wantErr  bool
	}{
		{name: "exact A", resp: &providers.AdjudicationResponse{Pick: "A", Text: "The  quick\nfox"}, wantPick: "A", wantText: "The  quick\nfox"},
		{name: "A modulo whitespace", resp: &providers.AdjudicationResponse{Pick: "A", Text: " The quick fox "}, wantPick: "A", wantText: "The  quick\nfox"},
		{name: "lowercase pick", resp: &providers.AdjudicationResponse{Pick: "b", Text: "The quick box"}, wantPick: "B", wantText: "The quick box"},
		{name: "text of the other option", resp: &providers.AdjudicationResponse{Pick: "A", Text: "The quick box"}, wantErr: true},
		{name: "rewritten text", resp: &providers.AdjudicationResponse{Pick: "B", Text: "The quick fox"}, wantErr: true},
		{name: "unknown pick", resp: &providers.AdjudicationResponse{Pick: "C", Text: "The quick box"}, wantErr: true},
		{name: "nil reply", resp: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Validate(req, tt.resp)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if v.Pick != tt.wantPick || v.Text != tt.wantText {
				t.Errorf("got %+v", v)
			}
		})
	}
}

func TestClient_Adjudicate(t *testing.T) {
	req := providers.AdjudicationRequest{CandidateA: "alpha", CandidateB: "beta", Deterministic: true}

	t.Run("success", func(t *testing.T) {
		mock := providers.NewMockAdjudicator(providers.PickB)
		c := New(mock, testPolicy(3), nil)

		v, err := c.Adjudicate(context.Background(), req)
		if err != nil {
			t.Fatalf("Adjudicate() error = %v", err)
		}
		if v.Pick != "B" || v.Text != "beta" || v.Backend != providers.MockName || v.Attempts != 1 {
			t.Errorf("unexpected verdict %+v", v)
		}
		if got := mock.Requests(); len(got) != 1 || !got[0].Deterministic {
			t.Errorf("unexpected requests %+v", got)
		}
	})

	t.Run("mismatch retried then exhausted", func(t *testing.T) {
		mock := providers.NewMockAdjudicator(providers.PickA)
		mock.Respond = func(*providers.AdjudicationRequest) (*providers.AdjudicationResponse, error) {
			return &providers.AdjudicationResponse{Pick: "A", Text: "alpha, but improved"}, nil
		}
		c := New(mock, testPolicy(3), nil)

		_, err := c.Adjudicate(context.Background(), req)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
		if !errors.Is(err, backoff.ErrExhausted) {
			t.Errorf("expected ErrExhausted, got %v", err)
		}
		if mock.RequestCount() != 3 {
			t.Errorf("RequestCount = %d, want 3", mock.RequestCount())
		}
	})

	t.Run("recovers after a bad reply", func(t *testing.T) {
		mock := providers.NewMockAdjudicator(providers.PickA)
		calls := 0
		mock.Respond = func(r *providers.AdjudicationRequest) (*providers.AdjudicationResponse, error) {
			calls++
			if calls == 1 {
				return &providers.AdjudicationResponse{Pick: "A", Text: "wrong"}, nil
			}
			return &providers.AdjudicationResponse{Pick: "A", Text: r.CandidateA}, nil
		}
		c := New(mock, testPolicy(3), nil)

		v, err := c.Adjudicate(context.Background(), req)
		if err != nil {
			t.Fatalf("Adjudicate() error = %v", err)
		}
		if v.Attempts != 2 {
			t.Errorf("Attempts = %d, want 2", v.Attempts)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		mock := providers.NewMockAdjudicator(providers.PickA)
		mock.ShouldFail = true
		c := New(mock, testPolicy(2), nil)

		if _, err := c.Adjudicate(context.Background(), req); !errors.Is(err, backoff.ErrExhausted) {
			t.Errorf("expected ErrExhausted, got %v", err)
		}
	})
}

func TestTailHead(t *testing.T) {
	if got := Tail("héllo world", 5); got != "world" {
		t.Errorf("Tail = %q", got)
	}
	if got := Tail("héllo", 10); got != "héllo" {
		t.Errorf("Tail short = %q", got)
	}
	if got := Head("héllo world", 2); got != "hé" {
		t.Errorf("Head = %q", got)
	}
	if got := Head("abc", 0); got != "" {
		t.Errorf("Head zero = %q", got)
	}
}
