package openai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"reviewrag/internal/domain"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
// It also works against Ollama's /v1 endpoint.
type Client struct {
	client            openai.Client
	model             string
	dimension         int
	requestDimensions bool
	batchSize         int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Dimension int
	// RequestDimensions asks the server to shorten vectors to Dimension.
	RequestDimensions bool
	Timeout           time.Duration
	MaxRetries        int
	BatchSize         int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
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
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	client := openai.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(cfg.Timeout),
	)
	return &Client{
		client:            client,
		model:             cfg.Model,
		dimension:         cfg.Dimension,
		requestDimensions: cfg.RequestDimensions,
		batchSize:         cfg.BatchSize,
	}, nil
}

// Name identifies the embedder and its model, since vectors from different
// models are not comparable.
func (c *Client) Name() string { return "openai/" + c.model }

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in request batches. Blank texts are not sent and
// get the zero vector, since the API rejects empty input.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var pending []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = make([]float64, c.dimension)
			continue
		}
		pending = append(pending, i)
	}
	for start := 0; start < len(pending); start += c.batchSize {
		end := min(start+c.batchSize, len(pending))
		idx := pending[start:end]
		inputs := make([]string, len(idx))
		for j, i := range idx {
			inputs[j] = texts[i]
		}
		vecs, err := c.request(ctx, inputs)
		if err != nil {
			return nil, err
		}
		for j, i := range idx {
			out[i] = vecs[j]
		}
	}
	return out, nil
}

func (c *Client) request(ctx context.Context, inputs []string) ([][]float64, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
		Model: openai.EmbeddingModel(c.model),
	}
	if c.requestDimensions {
		params.Dimensions = openai.Int(int64(c.dimension))
	}
	resp, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: openai embeddings: %v", domain.ErrEmbedding, err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", domain.ErrEmbedding, len(inputs), len(resp.Data))
	}
	vecs := make([][]float64, len(inputs))
	for _, d := range resp.Data {
		i := int(d.Index)
		if i < 0 || i >= len(vecs) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", domain.ErrEmbedding, i)
		}
		if len(d.Embedding) != c.dimension {
			return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(d.Embedding), c.dimension)
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
