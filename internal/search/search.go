// Package search generates the vectors internal/catalog stores and queries.
// It owns embedding generation only; the k-NN query itself lives in
// internal/catalog (Store.Search) so it can push tenant/namespace/tag
// predicates below the vector index.
package search

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
	"github.com/ashita-ai/scratchnotebook/internal/config"
)

// New selects an Embedder implementation from cfg.EmbeddingModel: any name
// starting with "debug" or "noop" gets the deterministic hashing backend
// (matches original_source/scratch_notebook/search.py's HashingEmbedder,
// used throughout its test suite as "debug-hash"); anything else is served
// by the OpenAI embeddings API, since Go has no equivalent to
// sentence-transformers to load an arbitrary local model.
func New(cfg config.Config) (catalog.Embedder, error) {
	model := strings.ToLower(strings.TrimSpace(cfg.EmbeddingModel))
	if strings.HasPrefix(model, "debug") || strings.HasPrefix(model, "noop") || model == "" {
		return NewHashEmbedder(cfg.EmbeddingDimensions), nil
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("search: embedding model %q requires OPENAI_API_KEY", cfg.EmbeddingModel)
	}
	return NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions), nil
}

// HashEmbedder is a deterministic, dependency-free embedder for tests and
// offline development: sha256(text) tiled across the configured dimension
// count, each byte mapped from [0,255] to [-1,1].
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder builds a HashEmbedder. dims <= 0 falls back to 64, the
// dimension the source hashing backend uses.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 64
	}
	return &HashEmbedder{dimensions: dims}
}

func (h *HashEmbedder) Dimensions() int { return h.dimensions }
func (h *HashEmbedder) Version() string { return "debug-hash" }

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	digest := sha256.Sum256([]byte(text))
	vector := make([]float32, h.dimensions)
	for i := range vector {
		b := digest[i%len(digest)]
		vector[i] = (float32(b) / 127.5) - 1.0
	}
	return vector, nil
}

// OpenAIEmbedder generates embeddings via the OpenAI embeddings API.
type OpenAIEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
}

// NewOpenAIEmbedder builds an OpenAIEmbedder.
func NewOpenAIEmbedder(apiKey, model string, dims int) *OpenAIEmbedder {
	if dims <= 0 {
		dims = 1536
	}
	return &OpenAIEmbedder{apiKey: apiKey, model: model, dimensions: dims, httpClient: &http.Client{}}
}

func (p *OpenAIEmbedder) Dimensions() int { return p.dimensions }
func (p *OpenAIEmbedder) Version() string { return p.model }

type openAIEmbedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(openAIEmbedRequest{Input: []string{text}, Model: p.model})
	if err != nil {
		return nil, fmt.Errorf("search: marshal embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search: build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: send embedding request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: read embedding response: %w", err)
	}
	var parsed openAIEmbedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("search: unmarshal embedding response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("search: openai error: %s: %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("search: openai returned no embeddings")
	}
	return parsed.Data[0].Embedding, nil
}

var (
	_ catalog.Embedder = (*HashEmbedder)(nil)
	_ catalog.Embedder = (*OpenAIEmbedder)(nil)
)
