// Package config loads the proxy's environment-variable-driven
// configuration (spec §6), following the teacher's
// Config.ApplyEnvironment(prefix string) convention, generalized here to a
// single top-level config since the proxy has exactly one configuration
// surface (the metadata API) rather than one per storage backend.
package config

import (
	"os"

	"github.com/source-cooperative/data.source.coop/internal/errors"
	"github.com/source-cooperative/data.source.coop/internal/options"
)

// Config holds every environment variable spec §6 names.
type Config struct {
	// SourceAPIURL is the base URL of the identity/repository metadata
	// service (SOURCE_API_URL).
	SourceAPIURL string

	// SourceAPIKey is the bearer credential for the metadata service
	// (SOURCE_KEY or SOURCE_API_KEY).
	SourceAPIKey options.SecretString

	// SourceAPIProxyURL is an optional forward HTTP proxy used to reach
	// SourceAPIURL (SOURCE_API_PROXY_URL).
	SourceAPIProxyURL string

	// ListenAddr is the address the HTTP server binds (spec §6: 0.0.0.0:8080).
	ListenAddr string
}

// ApplyEnvironment fills in cfg from the process environment, matching the
// teacher's Config.ApplyEnvironment(prefix string) shape (here prefix is
// always "", since there is one configuration surface, not one per
// backend).
func (cfg *Config) ApplyEnvironment(prefix string) {
	if cfg.SourceAPIURL == "" {
		cfg.SourceAPIURL = os.Getenv(prefix + "SOURCE_API_URL")
	}
	if cfg.SourceAPIKey.Unwrap() == "" {
		key := os.Getenv(prefix + "SOURCE_KEY")
		if key == "" {
			key = os.Getenv(prefix + "SOURCE_API_KEY")
		}
		cfg.SourceAPIKey = options.NewSecretString(key)
	}
	if cfg.SourceAPIProxyURL == "" {
		cfg.SourceAPIProxyURL = os.Getenv(prefix + "SOURCE_API_PROXY_URL")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "0.0.0.0:8080"
	}
}

// Load builds a Config from the environment and validates that every
// required field is set, returning an internal/errors.Fatal error if not
// (spec §6: "non-zero on fatal init failure (missing env var, bind
// failure)").
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.ApplyEnvironment("")

	if cfg.SourceAPIURL == "" {
		return nil, errors.Fatal("config: SOURCE_API_URL is required")
	}
	if cfg.SourceAPIKey.Unwrap() == "" {
		return nil, errors.Fatal("config: SOURCE_KEY or SOURCE_API_KEY is required")
	}

	return cfg, nil
}
