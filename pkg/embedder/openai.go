package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Constants for retry configuration
const (
	DefaultMaxRetries = 3
	DefaultModel      = "text-embedding-3-small"
	DefaultBatchSize  = 100
)

// OpenAIEmbedder implements the Client interface for OpenAI's embedding models.
type OpenAIEmbedder struct {
	client  *openai.Client
	config  Config
	logger  *slog.Logger
	backoff func(attempt int) time.Duration
}

// NewOpenAIEmbedder creates a new OpenAI embedder client.
// Supports OpenAI-compatible services through custom BaseURL configuration.
func NewOpenAIEmbedder(apiKey string, config Config, logger *slog.Logger) *OpenAIEmbedder {
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}

	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Dimensions == 0 {
		switch config.Model {
		case "text-embedding-ada-002", "text-embedding-3-small":
			config.Dimensions = 1536
		case "text-embedding-3-large":
			config.Dimensions = 3072
		}
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = DefaultMaxRetries
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
	}
}

// Embed generates embeddings for multiple texts.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.config.BatchSize {
		end := min(i+e.config.BatchSize, len(texts))

		batch, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", i, end, err)
		}
		all = append(all, batch...)
	}
	return all, nil
}

// EmbedSingle generates an embedding for a single text.
func (e *OpenAIEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return embeddings[0], nil
}

// Dimensions returns the number of dimensions in the embeddings.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// Close cleans up resources (no-op for OpenAI embedder).
func (e *OpenAIEmbedder) Close() error {
	return nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := e.backoff(attempt)
			e.logger.WarnContext(ctx, "retrying embedding request",
				"model", e.config.Model,
				"attempt", attempt+1,
				"max_attempts", e.config.MaxRetries+1,
				"backoff", wait,
				"error", lastErr)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		req := openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(e.config.Model),
		}
		if e.config.Dimensions > 0 && strings.HasPrefix(e.config.Model, "text-embedding-3") {
			req.Dimensions = e.config.Dimensions
		}

		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isRetriableEmbeddingError(err) {
				continue
			}
			return nil, fmt.Errorf("openai embedding request failed: %w", err)
		}
		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(resp.Data), len(texts))
		}

		embeddings := make([][]float32, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(texts) {
				return nil, fmt.Errorf("embedding index %d out of range", d.Index)
			}
			embeddings[d.Index] = d.Embedding
		}
		return embeddings, nil
	}

	return nil, fmt.Errorf("all retries exhausted, last error: %w", lastErr)
}

// isRetriableEmbeddingError reports rate limits, server errors and
// transport failures.
func isRetriableEmbeddingError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}

	errStr := strings.ToLower(err.Error())
	for _, retriable := range []string{
		"rate limit",
		"timeout",
		"connection",
		"service unavailable",
		"temporary failure",
	} {
		if strings.Contains(errStr, retriable) {
			return true
		}
	}
	return false
}
