package providers

import (
	"os"
)

// TestConfig holds live provider credentials read from the environment, so
// integration tests build backends the same way the registry does.
type TestConfig struct {
	OpenAIAPIKey     string
	OpenRouterAPIKey string
	MistralAPIKey    string
	OllamaURL        string
}

// LoadTestConfig reads whatever credentials are set.
func LoadTestConfig() TestConfig {
	return TestConfig{
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		MistralAPIKey:    os.Getenv("MISTRAL_API_KEY"),
		OllamaURL:        os.Getenv("OLLAMA_HOST"),
	}
}

func (c TestConfig) HasOpenAI() bool     { return c.OpenAIAPIKey != "" }
func (c TestConfig) HasOpenRouter() bool { return c.OpenRouterAPIKey != "" }
func (c TestConfig) HasMistral() bool    { return c.MistralAPIKey != "" }

// HasAdjudicator reports whether any configured backend can adjudicate.
func (c TestConfig) HasAdjudicator() bool {
	return c.HasOpenAI() || c.HasOpenRouter() || c.OllamaURL != ""
}

// NewMistralOCRClient returns nil when no key is set.
func (c TestConfig) NewMistralOCRClient() *MistralOCRClient {
	if !c.HasMistral() {
		return nil
	}
	return NewMistralOCRClient(MistralOCRConfig{APIKey: c.MistralAPIKey})
}

// ToRegistryConfig enables one provider per available credential, with
// conservative rate limits for the paid APIs.
func (c TestConfig) ToRegistryConfig() RegistryConfig {
	cfg := RegistryConfig{Providers: make(map[string]ProviderConfig)}

	if c.HasOpenAI() {
		cfg.Providers["openai"] = ProviderConfig{Type: TypeOpenAI, APIKey: c.OpenAIAPIKey, RateLimit: 2, Enabled: true}
	}
	if c.HasOpenRouter() {
		cfg.Providers["openrouter"] = ProviderConfig{Type: TypeOpenRouter, APIKey: c.OpenRouterAPIKey, RateLimit: 1, Enabled: true}
	}
	if c.HasMistral() {
		cfg.Providers["mistral"] = ProviderConfig{Type: TypeMistralOCR, APIKey: c.MistralAPIKey, RateLimit: 6, Enabled: true}
	}
	if c.OllamaURL != "" {
		cfg.Providers["ollama"] = ProviderConfig{Type: TypeOllama, BaseURL: c.OllamaURL, Enabled: true}
	}
	return cfg
}
