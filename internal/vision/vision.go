// Package vision produces the vision candidate for a page: render, ask the
// configured backend for Markdown under the retry policy, cache both steps,
// and normalize stray HTML in the reply.
package vision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/pagemerge/internal/backoff"
	"github.com/jackzampolin/pagemerge/internal/cache"
	"github.com/jackzampolin/pagemerge/internal/providers"
	"github.com/jackzampolin/pagemerge/internal/render"
)

// Config controls vision extraction.
type Config struct {
	// Backend is the provider name in the registry.
	Backend string `mapstructure:"backend" yaml:"backend"`

	// Prompt overrides providers.VisionPrompt.
	Prompt string `mapstructure:"prompt" yaml:"prompt"`

	// HTMLNormalize converts HTML tables in replies to pipe tables.
	HTMLNormalize bool `mapstructure:"html_normalize" yaml:"html_normalize"`

	// InflationThreshold enables the hallucination guard when > 0: a reply
	// longer than this multiple of the text layer is discarded.
	InflationThreshold float64 `mapstructure:"inflation_threshold" yaml:"inflation_threshold" validate:"gte=0"`
}

// DefaultConfig returns the vision defaults.
func DefaultConfig() Config {
	return Config{Backend: "openrouter", HTMLNormalize: true}
}

// FetcherConfig wires a Fetcher.
type FetcherConfig struct {
	Backend  providers.VisionBackend
	Renderer render.Renderer
	Render   render.Config
	Cache    *cache.Cache // nil disables caching
	Policy   backoff.Policy
	Vision   Config
	Logger   *slog.Logger
}

// Fetcher obtains vision candidates. It is safe for concurrent use.
type Fetcher struct {
	backend    providers.VisionBackend
	renderer   render.Renderer
	renderCfg  render.Config
	cache      *cache.Cache
	policy     backoff.Policy
	prompt     string
	promptHash string
	normalizer *Normalizer
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prompt := cfg.Vision.Prompt
	if prompt == "" {
		prompt = providers.VisionPrompt
	}
	f := &Fetcher{
		backend:    cfg.Backend,
		renderer:   cfg.Renderer,
		renderCfg:  cfg.Render,
		cache:      cfg.Cache,
		policy:     cfg.Policy,
		prompt:     prompt,
		promptHash: cache.Hash([]byte(prompt))[:16],
		logger:     logger.With("backend", cfg.Backend.Name()),
	}
	if cfg.Vision.HTMLNormalize {
		f.normalizer = NewNormalizer()
	}
	return f
}

// Backend returns the backend identifier.
func (f *Fetcher) Backend() string {
	return f.backend.Name()
}

// Fetch returns the Markdown for page (1-based) of doc. Transport failures
// are retried under the policy; the returned error means the caller should
// treat the vision candidate as empty.
func (f *Fetcher) Fetch(ctx context.Context, doc *render.Info, page int) (string, error) {
	dpi := render.EffectiveDPI(f.renderCfg.DPI, f.renderCfg.MaxLongEdge, doc.Size(page).LongEdge())

	image, err := f.cache.GetOrCompute(ctx, cache.ImageKey(doc.Hash, page, dpi), func(ctx context.Context) ([]byte, error) {
		return f.renderer.Render(ctx, doc.Path, page, dpi)
	})
	if err != nil {
		return "", fmt.Errorf("render page %d: %w", page, err)
	}

	key := cache.VisionKey(cache.Hash(image), f.backend.Name(), f.backend.Model(), f.promptHash)
	data, err := f.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		return f.extract(ctx, image, page)
	})
	if err != nil {
		return "", fmt.Errorf("vision page %d: %w", page, err)
	}

	md := string(data)
	if f.normalizer != nil {
		md = f.normalizer.Normalize(md)
	}
	return md, nil
}

func (f *Fetcher) extract(ctx context.Context, image []byte, page int) ([]byte, error) {
	var (
		result   *providers.VisionResult
		attempts int
	)
	start := time.Now()
	err := f.policy.Do(ctx, fmt.Sprintf("vision page %d", page), func(ctx context.Context) error {
		attempts++
		r, err := f.backend.Extract(ctx, &providers.VisionRequest{
			Image:   image,
			PageNum: page,
			Prompt:  f.prompt,
		})
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		f.logger.Warn("vision extraction failed", "page", page, "attempts", attempts, "error", err)
		return nil, err
	}
	f.logger.Debug("vision extraction complete",
		"page", page,
		"model", result.Model,
		"attempts", attempts,
		"chars", len(result.Markdown),
		"duration", time.Since(start),
	)
	return []byte(result.Markdown), nil
}
