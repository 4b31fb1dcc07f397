package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"docqa/internal/domain"
	"docqa/internal/embedding"
)

// Embedder is an OpenAI-compatible embeddings client implementing domain.Embedder.
// Any server that speaks the /embeddings API (OpenAI, Ollama, vLLM) works.
type Embedder struct {
	client     sdk.Client
	model      string
	dimensions int
	batchSize  int
	workers    int

	mu        sync.Mutex
	dimension int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Timeout    time.Duration
	BatchSize  int
	Workers    int
	Dimensions int
	MaxRetries int
}

// NewEmbedder creates a new embeddings client using the provided configuration.
func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	baseURL := cfg.BaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	client := sdk.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(baseURL),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	)
	return &Embedder{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		workers:    cfg.Workers,
		dimension:  cfg.Dimensions,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string {
	if e.dimensions > 0 {
		return fmt.Sprintf("openai:%s:%d", e.model, e.dimensions)
	}
	return "openai:" + e.model
}

// Dimension returns the dimensionality of the produced vectors. It is 0 until
// the first successful request unless dimensions were configured.
func (e *Embedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

// Embed returns an embedding vector for the given text.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.Vector, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", domain.ErrInvalidInput)
	}
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in batches, running up to the configured number of
// requests concurrently.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([]domain.Vector, error) {
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: empty text at %d", domain.ErrInvalidInput, i)
		}
	}
	return embedding.EmbedInBatches(ctx, texts, e.batchSize, e.workers, e.embed)
}

func (e *Embedder) embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	params := sdk.EmbeddingNewParams{
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: sdk.EmbeddingModel(e.model),
	}
	if e.dimensions > 0 {
		params.Dimensions = sdk.Int(int64(e.dimensions))
	}
	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", domain.ErrEmbedding, len(resp.Data), len(texts))
	}
	out := make([]domain.Vector, len(texts))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", domain.ErrEmbedding, idx)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, errors.New("empty embedding"))
		}
		out[idx] = domain.Vector(d.Embedding)
	}
	e.mu.Lock()
	if e.dimension == 0 {
		e.dimension = len(out[0])
	}
	e.mu.Unlock()
	return out, nil
}
