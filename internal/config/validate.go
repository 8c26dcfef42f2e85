package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ErrConfiguration marks an unusable configuration. It is fatal at startup.
var ErrConfiguration = errors.New("configuration error")

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// ErrUnknownKey is returned for a well-formed key that is not set.
var ErrUnknownKey = errors.New("unknown config key")

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	// Don't allow keys starting or ending with dots
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}

// Validate checks field constraints. Every violation is reported, wrapped
// in ErrConfiguration.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q (got %v)", fe.Namespace(), fe.ActualTag()+paramSuffix(fe.Param()), fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(msgs, "; "))
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

// RequireProviders checks that the providers a run needs are configured,
// enabled and have credentials. Adjudication is only required when enabled
// in the selection config.
func (c *Config) RequireProviders(mode string) error {
	if mode != "text_only" {
		if err := c.requireProvider("vision.backend", c.Vision.Backend, false); err != nil {
			return err
		}
	}
	if mode == "hybrid" && c.Selection.Adjudicate {
		if err := c.requireProvider("adjudicator.provider", c.Adjudicator.Provider, true); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) requireProvider(field, name string, adjudicator bool) error {
	if name == "" {
		return fmt.Errorf("%w: %s is not set", ErrConfiguration, field)
	}
	p, ok := c.Providers[name]
	if !ok {
		return fmt.Errorf("%w: %s names unknown provider %q", ErrConfiguration, field, name)
	}
	if !p.Enabled {
		return fmt.Errorf("%w: provider %q is disabled", ErrConfiguration, name)
	}
	resolved := p.resolve()
	if resolved.RequiresAPIKey() && resolved.APIKey == "" {
		return fmt.Errorf("%w: provider %q has no API key (set %s)", ErrConfiguration, name, strings.Trim(p.APIKey, "${}"))
	}
	if adjudicator && !resolved.SupportsAdjudication() {
		return fmt.Errorf("%w: provider %q (%s) cannot adjudicate", ErrConfiguration, name, p.Type)
	}
	return nil
}
