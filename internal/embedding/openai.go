package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultOpenAIURL   = "https://api.openai.com/v1"
	defaultOpenAIModel = "text-embedding-3-small"
	openAIDimensions   = 1536
)

// OpenAIProvider embeds text through the OpenAI embeddings API (or any
// API-compatible endpoint via baseURL). Each call is one network request;
// retry policy is the caller's concern beyond surfacing the remote error.
type OpenAIProvider struct {
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewOpenAIProvider returns a provider for the given model (default
// text-embedding-3-small).
func NewOpenAIProvider(model, apiKey, baseURL string) *OpenAIProvider {
	if model == "" {
		model = defaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	return &OpenAIProvider{
		model:   model,
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: time.Minute},
	}
}

func (p *OpenAIProvider) ModelName() string { return p.model }

func (p *OpenAIProvider) Dimensions() int { return openAIDimensions }

func (p *OpenAIProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.BatchGenerate(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *OpenAIProvider) BatchGenerate(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(openAIEmbedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: openai returned %d: %s", ErrUnavailable, resp.StatusCode, msg)
	}

	var parsed openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode openai response: %v", ErrUnavailable, err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: openai returned %d embeddings for %d inputs",
			ErrUnavailable, len(parsed.Data), len(texts))
	}
	vecs := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("%w: openai returned out-of-range index %d", ErrUnavailable, d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}
