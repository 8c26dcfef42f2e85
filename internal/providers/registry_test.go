package providers

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRegistry(t *testing.T) {
	t.Run("register and get vision", func(t *testing.T) {
		r := NewRegistry()
		mock := NewMockVision()

		r.RegisterVision("test-vision", mock)

		b, err := r.GetVision("test-vision")
		if err != nil {
			t.Fatalf("GetVision() error = %v", err)
		}
		if b != mock {
			t.Error("got different backend than registered")
		}
	})

	t.Run("register and get adjudicator", func(t *testing.T) {
		r := NewRegistry()
		mock := NewMockAdjudicator(PickA)

		r.RegisterAdjudicator("judge", mock)

		a, err := r.GetAdjudicator("judge")
		if err != nil {
			t.Fatalf("GetAdjudicator() error = %v", err)
		}
		if a != mock {
			t.Error("got different adjudicator than registered")
		}
	})

	t.Run("get nonexistent", func(t *testing.T) {
		r := NewRegistry()
		if _, err := r.GetVision("nope"); err == nil {
			t.Error("expected error for nonexistent vision backend")
		}
		if _, err := r.GetAdjudicator("nope"); err == nil {
			t.Error("expected error for nonexistent adjudicator")
		}
	})

	t.Run("list is sorted", func(t *testing.T) {
		r := NewRegistry()
		r.RegisterVision("b", NewMockVision())
		r.RegisterVision("a", NewMockVision())
		got := r.ListVision()
		if len(got) != 2 || got[0] != "a" || got[1] != "b" {
			t.Errorf("ListVision() = %v", got)
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		r := NewRegistry()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				r.RegisterVision("v", NewMockVision())
			}()
			go func() {
				defer wg.Done()
				_ = r.ListVision()
				_, _ = r.GetVision("v")
			}()
		}
		wg.Wait()
	})
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := RegistryConfig{Providers: map[string]ProviderConfig{
		"openai":   {Type: TypeOpenAI, APIKey: "sk-test", Model: "gpt-4o", Enabled: true},
		"local":    {Type: TypeOllama, Enabled: true},
		"ocr":      {Type: TypeMistralOCR, APIKey: "mk", Enabled: true},
		"nokey":    {Type: TypeOpenRouter, Enabled: true},
		"disabled": {Type: TypeOpenAI, APIKey: "sk", Enabled: false},
		"bogus":    {Type: "carrier-pigeon", Enabled: true},
		"compat":   {Type: TypeOpenAI, BaseURL: "http://localhost:8000/v1", Enabled: true},
	}}

	r := NewRegistryFromConfig(cfg)

	gotVision := r.ListVision()
	wantVision := []string{"compat", "local", "ocr", "openai"}
	if len(gotVision) != len(wantVision) {
		t.Fatalf("ListVision() = %v, want %v", gotVision, wantVision)
	}
	for i := range wantVision {
		if gotVision[i] != wantVision[i] {
			t.Errorf("ListVision()[%d] = %s, want %s", i, gotVision[i], wantVision[i])
		}
	}

	gotAdj := r.ListAdjudicators()
	wantAdj := []string{"compat", "local", "openai"}
	if len(gotAdj) != len(wantAdj) {
		t.Fatalf("ListAdjudicators() = %v, want %v", gotAdj, wantAdj)
	}

	a, err := r.GetAdjudicator("openai")
	if err != nil {
		t.Fatal(err)
	}
	if a.Name() != "openai" {
		t.Errorf("Name() = %s", a.Name())
	}
}

func TestRegistry_Reload(t *testing.T) {
	r := NewRegistryFromConfig(RegistryConfig{Providers: map[string]ProviderConfig{
		"a": {Type: TypeOllama, Model: "m1", Enabled: true},
		"b": {Type: TypeOllama, Model: "m1", Enabled: true},
	}})
	before, _ := r.GetVision("a")

	r.Reload(RegistryConfig{Providers: map[string]ProviderConfig{
		"a": {Type: TypeOllama, Model: "m1", Enabled: true},
		"c": {Type: TypeOllama, Model: "m2", Enabled: true},
	}})

	after, err := r.GetVision("a")
	if err != nil {
		t.Fatal(err)
	}
	if before != after {
		t.Error("unchanged provider should not be recreated")
	}
	if _, err := r.GetVision("b"); err == nil {
		t.Error("removed provider should be unregistered")
	}
	c, err := r.GetVision("c")
	if err != nil {
		t.Fatal(err)
	}
	if c.Model() != "m2" {
		t.Errorf("Model() = %s, want m2", c.Model())
	}

	r.Reload(RegistryConfig{Providers: map[string]ProviderConfig{
		"a": {Type: TypeOllama, Model: "m3", Enabled: true},
	}})
	updated, _ := r.GetVision("a")
	if updated.Model() != "m3" {
		t.Errorf("updated Model() = %s, want m3", updated.Model())
	}
}

func TestProviderConfig(t *testing.T) {
	tests := []struct {
		cfg        ProviderConfig
		requires   bool
		adjudicate bool
	}{
		{ProviderConfig{Type: TypeOpenAI}, true, true},
		{ProviderConfig{Type: TypeOpenAI, BaseURL: "http://x"}, false, true},
		{ProviderConfig{Type: TypeOpenRouter}, true, true},
		{ProviderConfig{Type: TypeDeepInfra}, true, true},
		{ProviderConfig{Type: TypeMistralOCR}, true, false},
		{ProviderConfig{Type: TypeOllama}, false, true},
		{ProviderConfig{Type: TypeTesseract}, false, false},
	}
	for _, tt := range tests {
		if got := tt.cfg.RequiresAPIKey(); got != tt.requires {
			t.Errorf("%s RequiresAPIKey() = %v, want %v", tt.cfg.Type, got, tt.requires)
		}
		if got := tt.cfg.SupportsAdjudication(); got != tt.adjudicate {
			t.Errorf("%s SupportsAdjudication() = %v, want %v", tt.cfg.Type, got, tt.adjudicate)
		}
	}
}

// TestAdjudicationIntegration asks every live adjudicator to choose between
// a clean and an obviously corrupted candidate.
// Requires OPENAI_API_KEY, OPENROUTER_API_KEY or OLLAMA_HOST.
func TestAdjudicationIntegration(t *testing.T) {
	cfg := LoadTestConfig()
	if !cfg.HasAdjudicator() {
		t.Skip("no adjudicating provider configured - skipping integration test")
	}

	r := NewRegistryFromConfig(cfg.ToRegistryConfig())
	req := &AdjudicationRequest{
		ContextBefore: "The annual report covers the following period.",
		CandidateA:    "Revenue grew by 12 percent in the fiscal year.",
		CandidateB:    "Re\uFFFDvenue gr\uFFFDew by 1 2 per cent in the fis cal year.",
		ContextAfter:  "Operating costs remained flat.",
		Deterministic: true,
	}

	for _, name := range r.ListAdjudicators() {
		t.Run(name, func(t *testing.T) {
			a, err := r.GetAdjudicator(name)
			if err != nil {
				t.Fatalf("GetAdjudicator() error = %v", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			resp, err := a.Select(ctx, req)
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			t.Logf("pick=%s model=%s", resp.Pick, resp.Model)
			if resp.Pick != PickA {
				t.Errorf("Pick = %q, want A", resp.Pick)
			}
			if strings.Join(strings.Fields(resp.Text), " ") != req.CandidateA {
				t.Errorf("reply text is not verbatim: %q", resp.Text)
			}
		})
	}
}
