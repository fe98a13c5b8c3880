package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryLazyDefault(t *testing.T) {
	r := NewRegistry()
	p := r.Current()
	require.NotNil(t, p)
	require.Equal(t, defaultOllamaModel, p.ModelName())
	require.Equal(t, ollamaDimensions, p.Dimensions())
	require.Same(t, p, r.Current(), "default provider built once")
}

func TestRegistryConfigureReplacesCurrent(t *testing.T) {
	r := NewRegistry()
	p, err := r.Configure(Config{Provider: "ollama", Model: "nomic-embed-text"})
	require.NoError(t, err)
	require.Equal(t, "nomic-embed-text", p.ModelName())
	require.Same(t, p, r.Current())
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "cohere"})
	require.ErrorContains(t, err, "unknown embedding provider")
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := New(Config{Provider: "openai"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestOllamaBatchGenerate(t *testing.T) {
	var gotReq ollamaEmbedRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	t.Cleanup(ts.Close)

	p := NewOllamaProvider("all-minilm", ts.URL)
	vecs, err := p.BatchGenerate(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
	require.Equal(t, "all-minilm", gotReq.Model)
	require.Equal(t, []string{"alpha", "beta"}, gotReq.Input)

	// Dimensions learned from the response.
	require.Equal(t, 2, p.Dimensions())
}

func TestOllamaServerErrorIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `model "all-minilm" not found`, http.StatusNotFound)
	}))
	t.Cleanup(ts.Close)

	p := NewOllamaProvider("", ts.URL)
	_, err := p.Generate(context.Background(), "x")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestOllamaConnectionRefusedIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	p := NewOllamaProvider("", ts.URL)
	_, err := p.Generate(context.Background(), "x")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestOllamaCountMismatchIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{0.1}}})
	}))
	t.Cleanup(ts.Close)

	p := NewOllamaProvider("", ts.URL)
	_, err := p.BatchGenerate(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestOllamaEmptyBatch(t *testing.T) {
	p := NewOllamaProvider("", "http://never-dialed.invalid")
	vecs, err := p.BatchGenerate(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, vecs)
}

func TestOpenAIBatchGenerate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, defaultOpenAIModel, req.Model)

		// Out-of-order data entries must land by index.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0.3, 0.4}},
				{"index": 0, "embedding": []float32{0.1, 0.2}},
			},
		})
	}))
	t.Cleanup(ts.Close)

	p := NewOpenAIProvider("", "sk-test", ts.URL)
	vecs, err := p.BatchGenerate(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
}

func TestOpenAIAuthFailureIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	}))
	t.Cleanup(ts.Close)

	p := NewOpenAIProvider("", "sk-bad", ts.URL)
	_, err := p.Generate(context.Background(), "x")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAIOutOfRangeIndexIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 5, "embedding": []float32{0.1}}},
		})
	}))
	t.Cleanup(ts.Close)

	p := NewOpenAIProvider("", "sk-test", ts.URL)
	_, err := p.BatchGenerate(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrUnavailable)
}
