package preflight

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeEmbedder struct {
	available bool
	dims      int
	model     string
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error)             { return nil, nil }
func (f *fakeEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error)     { return nil, nil }
func (f *fakeEmbedder) Dimensions() int                                               { return f.dims }
func (f *fakeEmbedder) ModelName() string                                             { return f.model }
func (f *fakeEmbedder) Available(context.Context) bool                               { return f.available }
func (f *fakeEmbedder) Close() error                                                  { return nil }

func TestChecker_CheckEmbedderReachable_Reachable(t *testing.T) {
	checker := New()
	result := checker.CheckEmbedderReachable(context.Background(), &fakeEmbedder{available: true, dims: 768, model: "test-model"})

	assert.Equal(t, StatusPass, result.Status)
	assert.Equal(t, "embedder_reachable", result.Name)
	assert.Contains(t, result.Message, "test-model")
}

func TestChecker_CheckEmbedderReachable_Unreachable(t *testing.T) {
	checker := New()
	result := checker.CheckEmbedderReachable(context.Background(), &fakeEmbedder{available: false, model: "test-model"})

	assert.Equal(t, StatusWarn, result.Status)
	assert.False(t, result.Required, "embedder reachability should not be required")
	assert.Contains(t, result.Message, "unreachable")
}

func TestChecker_CheckEmbedderReachable_NilEmbedder(t *testing.T) {
	checker := New()
	result := checker.CheckEmbedderReachable(context.Background(), nil)

	assert.Equal(t, StatusWarn, result.Status)
	assert.Contains(t, result.Message, "no embedder configured")
}
