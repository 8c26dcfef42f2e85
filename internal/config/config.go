// Package config loads pagemerge configuration from defaults, a YAML file,
// a .env file and PAGEMERGE_* environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g.
// PAGEMERGE_SELECTION_AMBIGUITY_BAND.
const EnvPrefix = "PAGEMERGE"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// Options for NewManager.
type Options struct {
	// ConfigFile is read if set; otherwise config.yaml is searched for in
	// the working directory and SearchDir.
	ConfigFile string
	SearchDir  string

	// EnvFile is loaded into the process environment if it exists.
	// Variables already set are not overridden.
	EnvFile string

	Logger *slog.Logger
}

// NewManager creates a new config manager and loads initial config. The
// loaded config is validated; an invalid config is an ErrConfiguration.
func NewManager(opts Options) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    logger,
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: load %s: %v", ErrConfiguration, opts.EnvFile, err)
		}
	}

	if err := cm.initViper(opts); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(opts Options) error {
	defaults, err := flatten(DefaultConfig())
	if err != nil {
		return err
	}
	for key, value := range defaults {
		cm.v.SetDefault(key, value)
	}

	cm.v.SetEnvPrefix(EnvPrefix)
	cm.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cm.v.AutomaticEnv()

	if opts.ConfigFile != "" {
		cm.v.SetConfigFile(opts.ConfigFile)
	} else {
		cm.v.SetConfigName("config")
		cm.v.SetConfigType("yaml")
		cm.v.AddConfigPath(".")
		if opts.SearchDir != "" {
			cm.v.AddConfigPath(opts.SearchDir)
		}
	}

	// The config file is optional unless named explicitly.
	if err := cm.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("%w: error reading config file: %v", ErrConfiguration, err)
		}
	}

	return nil
}

// load parses and validates the current viper state.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetLogger replaces the logger used for reload messages.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// File returns the config file in use, or "" when running on defaults.
func (cm *Manager) File() string {
	return cm.v.ConfigFileUsed()
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// Value returns the effective value of one dotted key, for example
// "selection.ambiguity_band".
func (cm *Manager) Value(key string) (any, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if !cm.v.IsSet(key) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return cm.v.Get(key), nil
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. A reload that fails
// validation is logged and the previous config stays in effect.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()

		cm.mu.Lock()
		logger := cm.logger
		if err != nil {
			cm.mu.Unlock()
			logger.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		logger.Info("config reloaded", "file", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// flatten turns cfg into dotted viper keys so that defaults merge with the
// file key by key and every key can be overridden from the environment.
func flatten(cfg *Config) (map[string]any, error) {
	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yamlv3.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal defaults: %w", err)
	}
	out := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := v.(map[string]any); ok && len(sub) > 0 {
				walk(key, sub)
				continue
			}
			out[key] = v
		}
	}
	walk("", tree)
	return out, nil
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# pagemerge configuration
# API keys use ${ENV_VAR} syntax to reference environment variables.
# Set them in your shell or in ~/.pagemerge/.env:
#   OPENROUTER_API_KEY=xxx OPENAI_API_KEY=xxx MISTRAL_API_KEY=xxx
# Any key can be overridden with PAGEMERGE_<SECTION>_<KEY>.

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
