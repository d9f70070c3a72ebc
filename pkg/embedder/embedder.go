// Package embedder provides text embedding for the retrieval index.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultOllamaHost is where a local Ollama server listens.
const DefaultOllamaHost = "http://localhost:11434"

// DefaultModel is the default embedding model.
const DefaultModel = "nomic-embed-text"

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// OllamaEmbedder calls an Ollama-compatible /api/embeddings endpoint.
type OllamaEmbedder struct {
	host   string
	model  string
	client *http.Client
}

// Option configures an OllamaEmbedder.
type Option func(*OllamaEmbedder)

// WithHost overrides the server address.
func WithHost(host string) Option {
	return func(e *OllamaEmbedder) {
		if host != "" {
			e.host = host
		}
	}
}

// WithModel overrides the embedding model.
func WithModel(model string) Option {
	return func(e *OllamaEmbedder) {
		if model != "" {
			e.model = model
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *OllamaEmbedder) {
		if client != nil {
			e.client = client
		}
	}
}

// NewOllamaEmbedder creates an embedder with defaults suitable for a
// local Ollama install.
func NewOllamaEmbedder(opts ...Option) *OllamaEmbedder {
	e := &OllamaEmbedder{
		host:   DefaultOllamaHost,
		model:  DefaultModel,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ Embedder = (*OllamaEmbedder)(nil)

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// ModelName implements Embedder.
func (e *OllamaEmbedder) ModelName() string { return e.model }

// Embed implements Embedder.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding server returned HTTP %d: %s", resp.StatusCode, payload)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("invalid embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedding server returned an empty vector")
	}
	return parsed.Embedding, nil
}
