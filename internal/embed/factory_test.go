package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv_AppliesOverridesAndValidates(t *testing.T) {
	t.Setenv(EnvBaseURL, "http://localhost:9000")
	t.Setenv(EnvAPIKey, "secret")
	t.Setenv(EnvModel, "embed-v2")
	t.Setenv(EnvDimensions, "768")

	cfg, err := ConfigFromEnv(HTTPConfig{Model: "default-model"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", cfg.BaseURL)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, "embed-v2", cfg.Model)
	assert.Equal(t, 768, cfg.Dimensions)
}

func TestConfigFromEnv_MissingBaseURLErrors(t *testing.T) {
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvDimensions, "")
	_, err := ConfigFromEnv(HTTPConfig{})
	assert.Error(t, err)
}

func TestConfigFromEnv_InvalidDimensionsErrors(t *testing.T) {
	t.Setenv(EnvBaseURL, "http://localhost:9000")
	t.Setenv(EnvDimensions, "not-a-number")
	_, err := ConfigFromEnv(HTTPConfig{})
	assert.Error(t, err)
}
