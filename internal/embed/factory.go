package embed

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Env variable names for the embedding service: base URL, API key, model,
// and expected dimensions.
const (
	EnvBaseURL    = "CONTEXTWEAVER_EMBEDDING_BASE_URL"
	EnvAPIKey     = "CONTEXTWEAVER_EMBEDDING_API_KEY"
	EnvModel      = "CONTEXTWEAVER_EMBEDDING_MODEL"
	EnvDimensions = "CONTEXTWEAVER_EMBEDDING_DIMENSIONS"
)

// ConfigFromEnv builds an HTTPConfig from the embedding environment
// variables, applying the given defaults for anything unset.
func ConfigFromEnv(defaults HTTPConfig) (HTTPConfig, error) {
	cfg := defaults
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		cfg.Model = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDimensions)); v != "" {
		dims, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", EnvDimensions, err)
		}
		cfg.Dimensions = dims
	}
	if cfg.BaseURL == "" {
		return cfg, fmt.Errorf("%s is required", EnvBaseURL)
	}
	if cfg.Dimensions <= 0 {
		return cfg, fmt.Errorf("%s is required", EnvDimensions)
	}
	return cfg, nil
}

// NewFromEnv constructs a cached HTTPEmbedder from the environment,
// applying defaults for model/batch size when unset.
func NewFromEnv(defaults HTTPConfig) (Embedder, error) {
	cfg, err := ConfigFromEnv(defaults)
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedderWithDefaults(NewHTTPEmbedder(cfg)), nil
}
