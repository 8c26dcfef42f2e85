package config

import (
	"time"

	"github.com/jackzampolin/pagemerge/internal/align"
	"github.com/jackzampolin/pagemerge/internal/cache"
	"github.com/jackzampolin/pagemerge/internal/logging"
	"github.com/jackzampolin/pagemerge/internal/provenance"
	"github.com/jackzampolin/pagemerge/internal/providers"
	"github.com/jackzampolin/pagemerge/internal/render"
	"github.com/jackzampolin/pagemerge/internal/score"
	"github.com/jackzampolin/pagemerge/internal/selector"
	"github.com/jackzampolin/pagemerge/internal/vision"
)

// Config holds pagemerge configuration.
// Stored at: {home}/config.yaml
type Config struct {
	// Mode is hybrid, text_only or vision_only.
	Mode string `mapstructure:"mode" yaml:"mode" validate:"oneof=hybrid text_only vision_only"`

	Render      render.Config          `mapstructure:"render" yaml:"render"`
	Text        TextCfg                `mapstructure:"text" yaml:"text"`
	Scoring     score.Weights          `mapstructure:"scoring" yaml:"scoring"`
	Alignment   align.Options          `mapstructure:"alignment" yaml:"alignment"`
	Selection   SelectionCfg           `mapstructure:"selection" yaml:"selection"`
	Retry       RetryCfg               `mapstructure:"retry" yaml:"retry"`
	Vision      vision.Config          `mapstructure:"vision" yaml:"vision"`
	Adjudicator AdjudicatorCfg         `mapstructure:"adjudicator" yaml:"adjudicator"`
	Providers   map[string]ProviderCfg `mapstructure:"providers" yaml:"providers" validate:"dive"`
	Concurrency ConcurrencyCfg         `mapstructure:"concurrency" yaml:"concurrency"`
	Cache       cache.Config           `mapstructure:"cache" yaml:"cache"`
	Output      OutputCfg              `mapstructure:"output" yaml:"output"`
	Log         logging.Options        `mapstructure:"log" yaml:"log"`
}

// TextCfg configures text-layer extraction.
type TextCfg struct {
	// Raw skips hyphenation repair and whitespace normalization.
	Raw bool `mapstructure:"raw" yaml:"raw"`
}

// SelectionCfg holds the selector thresholds and the adjudication context size.
type SelectionCfg struct {
	selector.Config `mapstructure:",squash" yaml:",inline"`

	ContextChars int `mapstructure:"context_chars" yaml:"context_chars" validate:"gte=0"`
}

// RetryCfg bounds retries of vision and adjudicator calls.
type RetryCfg struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"gte=1,lte=20"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay" validate:"gte=0"`
	Multiplier  float64       `mapstructure:"multiplier" yaml:"multiplier" validate:"gte=1"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay" validate:"gte=0"`
	Jitter      time.Duration `mapstructure:"jitter" yaml:"jitter" validate:"gte=0"`
}

// AdjudicatorCfg selects the provider that resolves ambiguous pairs.
type AdjudicatorCfg struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
}

// ProviderCfg configures one backend. Languages and DPI apply to tesseract
// only.
type ProviderCfg struct {
	Type      string        `mapstructure:"type" yaml:"type" validate:"oneof=openai openrouter deepinfra mistral-ocr ollama tesseract"`
	Model     string        `mapstructure:"model" yaml:"model"`
	APIKey    string        `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit" validate:"gte=0"` // requests per second
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
	Languages []string      `mapstructure:"languages" yaml:"languages,omitempty"`
	DPI       int           `mapstructure:"dpi" yaml:"dpi,omitempty" validate:"gte=0"`
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
}

// ConcurrencyCfg bounds parallel work.
type ConcurrencyCfg struct {
	// Workers is the number of pages in flight; 0 means one per CPU.
	Workers int `mapstructure:"workers" yaml:"workers" validate:"gte=0"`

	// Adjudication caps concurrent adjudicator calls across all pages.
	Adjudication int `mapstructure:"adjudication" yaml:"adjudication" validate:"gte=1"`
}

// OutputCfg controls what an extraction writes.
type OutputCfg struct {
	provenance.Options `mapstructure:",squash" yaml:",inline"`

	// HTML also writes a preview next to the Markdown.
	HTML bool `mapstructure:"html" yaml:"html"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:      "hybrid",
		Render:    render.DefaultConfig(),
		Scoring:   score.DefaultWeights(),
		Alignment: align.DefaultOptions(),
		Selection: SelectionCfg{
			Config:       selector.DefaultConfig(),
			ContextChars: 200,
		},
		Retry: RetryCfg{
			MaxAttempts: 4,
			BaseDelay:   500 * time.Millisecond,
			Multiplier:  2,
			MaxDelay:    10 * time.Second,
			Jitter:      250 * time.Millisecond,
		},
		Vision:      vision.DefaultConfig(),
		Adjudicator: AdjudicatorCfg{Provider: "openrouter"},
		Providers: map[string]ProviderCfg{
			"openrouter": {
				Type:      providers.TypeOpenRouter,
				Model:     "google/gemini-2.5-flash",
				APIKey:    "${OPENROUTER_API_KEY}",
				RateLimit: 10,
				Timeout:   2 * time.Minute,
				Enabled:   true,
			},
			"openai": {
				Type:    providers.TypeOpenAI,
				Model:   "gpt-4o-mini",
				APIKey:  "${OPENAI_API_KEY}",
				Timeout: 2 * time.Minute,
				Enabled: false,
			},
			"mistral": {
				Type:      providers.TypeMistralOCR,
				APIKey:    "${MISTRAL_API_KEY}",
				RateLimit: 6,
				Timeout:   5 * time.Minute,
				Enabled:   false,
			},
			"ollama": {
				Type:    providers.TypeOllama,
				Model:   "llama3.2-vision",
				BaseURL: "http://localhost:11434",
				Timeout: 5 * time.Minute,
				Enabled: false,
			},
			"tesseract": {
				Type:      providers.TypeTesseract,
				Languages: []string{"eng"},
				DPI:       300,
				Enabled:   false,
			},
		},
		Concurrency: ConcurrencyCfg{Workers: 0, Adjudication: 4},
		Cache:       cache.DefaultConfig(),
		Output: OutputCfg{
			Options: provenance.Options{Markers: true},
		},
		Log: logging.DefaultOptions(),
	}
}
