package storage

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix is the environment variable prefix used by the CLI.
const DefaultEnvPrefix = "FTPSTORE"

// Settings locate and authenticate against a store.
type Settings struct {
	// BaseURL is the root location, e.g. "ftp://host:21/data",
	// "file:///srv/files" or "s3://bucket/prefix".
	BaseURL string `yaml:"base_url" json:"base_url"`

	User     string `yaml:"user,omitempty" json:"user,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// Options carries backend specific values such as the S3 region.
	Options map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

// HasCredentials reports whether both user and password are set.
// Backends fall back to anonymous access otherwise.
func (s Settings) HasCredentials() bool {
	return strings.TrimSpace(s.User) != "" && strings.TrimSpace(s.Password) != ""
}

// Option returns the backend option key, or fallback when unset.
func (s Settings) Option(key, fallback string) string {
	if v, ok := s.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Validate checks that BaseURL is present and parses as an absolute URL.
func (s Settings) Validate() (*url.URL, error) {
	raw := strings.TrimSpace(s.BaseURL)
	if raw == "" {
		return nil, NewError(ErrMissingField, "load_settings", "", fmt.Errorf("base_url is required"))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, NewError(ErrInvalidConfig, "load_settings", "", fmt.Errorf("parse base_url: %w", err))
	}
	if u.Scheme == "" {
		return nil, NewError(ErrInvalidConfig, "load_settings", "", fmt.Errorf("base_url %q has no scheme", raw))
	}
	return u, nil
}

// Overlay returns s with every non-blank field of o applied on top.
func (s Settings) Overlay(o Settings) Settings {
	if o.BaseURL != "" {
		s.BaseURL = o.BaseURL
	}
	if o.User != "" {
		s.User = o.User
	}
	if o.Password != "" {
		s.Password = o.Password
	}
	if len(o.Options) > 0 {
		merged := make(map[string]string, len(s.Options)+len(o.Options))
		for k, v := range s.Options {
			merged[k] = v
		}
		for k, v := range o.Options {
			merged[k] = v
		}
		s.Options = merged
	}
	return s
}

// LoadSettingsFile reads settings from a YAML file.
func LoadSettingsFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, NewError(ErrInvalidConfig, "load_settings", path, fmt.Errorf("parse yaml: %w", err))
	}
	return s, nil
}

// SettingsFromEnv reads <prefix>_BASE_URL, <prefix>_USER and
// <prefix>_PASSWORD. Unset variables leave fields blank.
func SettingsFromEnv(prefix string) Settings {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return Settings{
		BaseURL:  envOr(prefix+"_BASE_URL", ""),
		User:     envOr(prefix+"_USER", ""),
		Password: envOr(prefix+"_PASSWORD", ""),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
