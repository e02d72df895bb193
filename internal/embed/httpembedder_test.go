package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEmbedder_EmbedSingle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"hello"}, req.Input)
		json.NewEncoder(w).Encode(embedResponse{
			Data: []struct {
				Embedding []float32 `json:"embedding"`
			}{{Embedding: []float32{1, 0, 0}}},
		})
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "m", Dimensions: 3})
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
}

func TestHTTPEmbedder_EmbedBatchSplitsByBatchSize(t *testing.T) {
	var seenBatches [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seenBatches = append(seenBatches, req.Input)
		data := make([]struct {
			Embedding []float32 `json:"embedding"`
		}, len(req.Input))
		for i := range data {
			data[i].Embedding = []float32{1, 2}
		}
		json.NewEncoder(w).Encode(embedResponse{Data: data})
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "m", Dimensions: 2, BatchSize: 2})
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Len(t, seenBatches, 2)
	assert.Len(t, seenBatches[0], 2)
	assert.Len(t, seenBatches[1], 1)
}

func TestHTTPEmbedder_DimensionMismatchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{
			Data: []struct {
				Embedding []float32 `json:"embedding"`
			}{{Embedding: []float32{1, 2, 3}}},
		})
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "m", Dimensions: 4, MaxRetries: 1})
	_, err := e.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestHTTPEmbedder_ServiceErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Error: &struct {
			Message string `json:"message"`
		}{Message: "rate limited"}})
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "m", MaxRetries: 1})
	_, err := e.Embed(context.Background(), "hello")
	assert.ErrorContains(t, err, "rate limited")
}
