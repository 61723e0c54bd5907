package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// EmbeddingProvider computes a vector embedding for a piece of content. Two
// implementations exist: a local Ollama-style endpoint and a remote
// OpenAI-compatible one. A nil EmbeddingProvider means embeddings are
// disabled entirely.
type EmbeddingProvider interface {
	Name() string
	Model() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// stableHash returns a deterministic hex digest of content, used as the
// embeddings table's dedup key so re-remembering identical content never
// requests a second embedding.
func stableHash(content string) string {
	sum := sha256.Sum256([]byte(content))

	return hex.EncodeToString(sum[:])
}

const embeddingTimeout = 30 * time.Second

// OllamaEmbeddingProvider talks to a local Ollama-style /api/embeddings
// endpoint, mirroring internal/refiner.LLMClient's HTTP conventions.
type OllamaEmbeddingProvider struct {
	BaseURL string
	model   string
	client  *http.Client
}

// NewOllamaEmbeddingProvider builds a local embedding provider against
// baseURL (e.g. http://localhost:11434) using model.
func NewOllamaEmbeddingProvider(baseURL, model string) *OllamaEmbeddingProvider {
	return &OllamaEmbeddingProvider{
		BaseURL: trimTrailingSlash(baseURL),
		model:   model,
		client:  &http.Client{Timeout: embeddingTimeout},
	}
}

func (p *OllamaEmbeddingProvider) Name() string  { return "ollama" }
func (p *OllamaEmbeddingProvider) Model() string { return p.model }

func (p *OllamaEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]string{"model": p.model, "prompt": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embeddings: status %d", resp.StatusCode)
	}

	var out struct {
		Embedding []float32 `json:"embedding"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama embeddings: decode: %w", err)
	}

	return out.Embedding, nil
}

// OpenAIEmbeddingProvider talks to an OpenAI-compatible /v1/embeddings
// endpoint with bearer auth.
type OpenAIEmbeddingProvider struct {
	BaseURL string
	APIKey  string
	model   string
	client  *http.Client
}

// NewOpenAIEmbeddingProvider builds a remote embedding provider.
func NewOpenAIEmbeddingProvider(baseURL, apiKey, model string) *OpenAIEmbeddingProvider {
	return &OpenAIEmbeddingProvider{
		BaseURL: trimTrailingSlash(baseURL),
		APIKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: embeddingTimeout},
	}
}

func (p *OpenAIEmbeddingProvider) Name() string  { return "openai" }
func (p *OpenAIEmbeddingProvider) Model() string { return p.model }

func (p *OpenAIEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]string{"model": p.model, "input": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai embeddings: status %d", resp.StatusCode)
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("openai embeddings: decode: %w", err)
	}

	if len(out.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}

	return out.Data[0].Embedding, nil
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}

	return s
}
