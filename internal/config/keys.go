package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// APIKey resolves the Anthropic API key: ANTHROPIC_API_KEY first, then the
// config value with ${VAR} references expanded.
func APIKey(cfg *Config) (string, error) {
	key, _ := resolveAPIKey(cfg)
	if key == "" {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// APIKeySource reports where APIKey would find the key.
func APIKeySource(cfg *Config) KeySource {
	_, src := resolveAPIKey(cfg)
	return src
}

func resolveAPIKey(cfg *Config) (string, KeySource) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, KeySourceEnv
	}
	if cfg != nil && cfg.Anthropic.APIKey != "" {
		key := os.ExpandEnv(cfg.Anthropic.APIKey)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, KeySourceConfig
		}
	}
	return "", KeySourceNone
}

// ValidateAPIKey checks the key's shape without contacting Anthropic.
func ValidateAPIKey(key string) error {
	switch {
	case key == "":
		return ErrNoAPIKey
	case !strings.HasPrefix(key, "sk-ant-"):
		return errors.New("invalid API key format: expected 'sk-ant-' prefix")
	case len(key) < 20:
		return errors.New("invalid API key format: key too short")
	}
	return nil
}

// MaskAPIKey shows the first 7 and last 4 characters of a key.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 15 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
