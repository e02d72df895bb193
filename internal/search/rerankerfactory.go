package search

import (
	"os"
)

// Env variable names for the optional external reranker. Reranking is
// disabled (NoOpReranker) unless EnvBaseURL is set.
const (
	EnvBaseURL = "CONTEXTWEAVER_RERANKER_BASE_URL"
	EnvAPIKey  = "CONTEXTWEAVER_RERANKER_API_KEY"
	EnvModel   = "CONTEXTWEAVER_RERANKER_MODEL"
)

// RerankerFromEnv builds a Reranker from the reranker environment variables.
// When CONTEXTWEAVER_RERANKER_BASE_URL is unset, reranking is treated as an
// optional enhancement and NoOpReranker is returned instead of an error.
func RerankerFromEnv(defaults HTTPRerankerConfig) Reranker {
	baseURL := os.Getenv(EnvBaseURL)
	if baseURL == "" {
		return &NoOpReranker{}
	}
	cfg := defaults
	cfg.BaseURL = baseURL
	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		cfg.Model = v
	}
	return NewHTTPReranker(cfg)
}
