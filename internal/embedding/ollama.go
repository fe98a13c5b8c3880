package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Default local model: a 384-dimension general-purpose English sentence
// embedder served by an Ollama sidecar.
const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "all-minilm"
	ollamaDimensions   = 384
)

// OllamaProvider embeds text through a local Ollama instance. The model is
// pulled lazily by the sidecar on first use; this process only issues HTTP
// calls and reuses one client for all of them.
type OllamaProvider struct {
	model   string
	baseURL string
	client  *http.Client

	dims atomic.Int32
}

// NewOllamaProvider returns a provider for the given model (default
// all-minilm) at baseURL (default localhost:11434).
func NewOllamaProvider(model, baseURL string) *OllamaProvider {
	if model == "" {
		model = defaultOllamaModel
	}
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	p := &OllamaProvider{
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
	p.dims.Store(ollamaDimensions)
	return p
}

func (p *OllamaProvider) ModelName() string { return p.model }

// Dimensions returns the declared vector length. For non-default models the
// true length is learned from the first generated vector.
func (p *OllamaProvider) Dimensions() int { return int(p.dims.Load()) }

func (p *OllamaProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.BatchGenerate(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *OllamaProvider) BatchGenerate(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama at %s: %v", ErrUnavailable, p.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: ollama returned %d: %s", ErrUnavailable, resp.StatusCode, msg)
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode ollama response: %v", ErrUnavailable, err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: ollama returned %d embeddings for %d inputs",
			ErrUnavailable, len(parsed.Embeddings), len(texts))
	}
	if len(parsed.Embeddings) > 0 && len(parsed.Embeddings[0]) > 0 {
		p.dims.Store(int32(len(parsed.Embeddings[0])))
	}
	return parsed.Embeddings, nil
}
