package providers

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"
)

// Provider types accepted in configuration.
const (
	TypeOpenAI     = "openai"
	TypeOpenRouter = "openrouter"
	TypeDeepInfra  = "deepinfra"
	TypeMistralOCR = "mistral-ocr"
	TypeOllama     = "ollama"
	TypeTesseract  = "tesseract"
)

// DeepInfraBaseURL is DeepInfra's OpenAI-compatible endpoint.
const DeepInfraBaseURL = "https://api.deepinfra.com/v1/openai"

// Registry holds the vision backends and adjudicators built from config.
// It supports config-driven instantiation, hot-reload, and provides
// thread-safe access.
type Registry struct {
	mu           sync.RWMutex
	vision       map[string]VisionBackend
	adjudicators map[string]Adjudicator
	configs      map[string]ProviderConfig
	logger       *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		vision:       make(map[string]VisionBackend),
		adjudicators: make(map[string]Adjudicator),
		configs:      make(map[string]ProviderConfig),
		logger:       slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterVision registers a vision backend by name.
func (r *Registry) RegisterVision(name string, b VisionBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vision[name] = b
	if r.logger != nil {
		r.logger.Info("registered vision backend", "name", name)
	}
}

// RegisterAdjudicator registers an adjudicator by name.
func (r *Registry) RegisterAdjudicator(name string, a Adjudicator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adjudicators[name] = a
	if r.logger != nil {
		r.logger.Info("registered adjudicator", "name", name)
	}
}

// GetVision returns a vision backend by name.
func (r *Registry) GetVision(name string) (VisionBackend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.vision[name]
	if !ok {
		return nil, fmt.Errorf("vision backend not found: %s", name)
	}
	return b, nil
}

// GetAdjudicator returns an adjudicator by name.
func (r *Registry) GetAdjudicator(name string) (Adjudicator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adjudicators[name]
	if !ok {
		return nil, fmt.Errorf("adjudicator not found: %s", name)
	}
	return a, nil
}

// ListVision returns all registered vision backend names, sorted.
func (r *Registry) ListVision() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.vision)
}

// ListAdjudicators returns all registered adjudicator names, sorted.
func (r *Registry) ListAdjudicators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.adjudicators)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryConfig defines the providers to instantiate from config.
type RegistryConfig struct {
	Providers map[string]ProviderConfig
}

// ProviderConfig matches config.ProviderCfg with resolved API key.
type ProviderConfig struct {
	Type      string
	Model     string
	APIKey    string // Resolved API key
	BaseURL   string
	RateLimit float64 // Requests per second (0 = unlimited)
	Timeout   time.Duration
	Languages []string // tesseract only
	DPI       int      // tesseract only
	Enabled   bool
}

// RequiresAPIKey reports whether the provider type cannot work without a
// key. An OpenAI provider pointed at a custom BaseURL may run keyless.
func (c ProviderConfig) RequiresAPIKey() bool {
	switch c.Type {
	case TypeOpenRouter, TypeDeepInfra, TypeMistralOCR:
		return true
	case TypeOpenAI:
		return c.BaseURL == ""
	default:
		return false
	}
}

// SupportsAdjudication reports whether the provider type can serve as an
// adjudicator.
func (c ProviderConfig) SupportsAdjudication() bool {
	switch c.Type {
	case TypeOpenAI, TypeOpenRouter, TypeDeepInfra, TypeOllama:
		return true
	default:
		return false
	}
}

// usable reports whether a provider entry should be instantiated.
func (c ProviderConfig) usable() bool {
	return c.Enabled && (!c.RequiresAPIKey() || c.APIKey != "")
}

// NewRegistryFromConfig creates a registry with providers based on configuration.
// Only enabled providers with required API keys will be registered.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

// Reload updates the registry based on new configuration.
// Providers that are no longer configured will be unregistered.
// Providers with changed settings will be re-registered.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)
	for name, provCfg := range cfg.Providers {
		if !provCfg.usable() {
			continue
		}
		want[name] = true

		prev, hasExisting := r.configs[name]
		if hasExisting && reflect.DeepEqual(prev, provCfg) {
			continue
		}

		vision, adjudicator := createProvider(name, provCfg)
		if vision == nil {
			if r.logger != nil {
				r.logger.Warn("unknown provider type", "name", name, "type", provCfg.Type)
			}
			delete(want, name)
			continue
		}
		r.configs[name] = provCfg
		r.vision[name] = WithVisionRateLimit(vision, provCfg.RateLimit)
		if adjudicator != nil {
			r.adjudicators[name] = WithAdjudicatorRateLimit(adjudicator, provCfg.RateLimit)
		} else {
			delete(r.adjudicators, name)
		}

		if r.logger != nil {
			verb := "registered provider"
			if hasExisting {
				verb = "updated provider"
			}
			r.logger.Info(verb, "name", name, "type", provCfg.Type, "adjudicator", adjudicator != nil)
		}
	}

	// Remove providers that are no longer configured
	for name := range r.configs {
		if !want[name] {
			delete(r.configs, name)
			delete(r.vision, name)
			delete(r.adjudicators, name)
			if r.logger != nil {
				r.logger.Info("unregistered provider", "name", name)
			}
		}
	}
}

// createProvider builds the client for a provider type. The adjudicator
// return is nil for vision-only types; both are nil for unknown types.
func createProvider(name string, cfg ProviderConfig) (VisionBackend, Adjudicator) {
	switch cfg.Type {
	case TypeOpenAI, TypeDeepInfra:
		baseURL := cfg.BaseURL
		if baseURL == "" && cfg.Type == TypeDeepInfra {
			baseURL = DeepInfraBaseURL
		}
		c := NewOpenAIClient(OpenAIConfig{
			Name:    name,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: baseURL,
			Timeout: cfg.Timeout,
		})
		return c, c
	case TypeOpenRouter:
		c := NewOpenRouterClient(OpenRouterConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
		})
		return c, c
	case TypeOllama:
		c := NewOllamaClient(OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
		return c, c
	case TypeMistralOCR:
		return NewMistralOCRClient(MistralOCRConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	case TypeTesseract:
		return NewTesseractClient(TesseractConfig{Languages: cfg.Languages, DPI: cfg.DPI}), nil
	default:
		return nil, nil
	}
}
