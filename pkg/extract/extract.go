// Package extract runs the entity and relationship extraction prompt over
// pre-chunked text.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/go-graphrag/pkg/llm"
	"github.com/soundprediction/go-graphrag/pkg/prompts"
	"github.com/soundprediction/go-graphrag/pkg/types"
	"github.com/soundprediction/go-graphrag/pkg/utils"
)

const (
	DefaultTimeout     = 2 * time.Minute
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 4096
)

// Config controls extraction.
type Config struct {
	// MaxPathsPerChunk keeps at most this many relationships per chunk.
	// Zero uses prompts.DefaultMaxPathsPerChunk; negative keeps all.
	MaxPathsPerChunk int
	// Concurrency bounds the number of chunks in flight. Zero uses
	// utils.GetSemaphoreLimit.
	Concurrency int
	// Timeout applies to every generation call.
	Timeout time.Duration
}

// Result merges the extraction output of every chunk in chunk order.
type Result struct {
	Mentions      []types.Mention
	Relationships []types.RawRelationship
	// Chunks is the number of chunks submitted.
	Chunks int
	// Failures maps the index of every failed chunk to its error.
	Failures map[int]error
}

// Extractor prompts the text-generation service once per chunk.
type Extractor struct {
	generator llm.Generator
	config    Config
	logger    *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// New creates an extractor.
func New(generator llm.Generator, config Config, opts ...Option) *Extractor {
	if config.MaxPathsPerChunk == 0 {
		config.MaxPathsPerChunk = prompts.DefaultMaxPathsPerChunk
	}
	if config.Concurrency <= 0 {
		config.Concurrency = utils.GetSemaphoreLimit()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	e := &Extractor{generator: generator, config: config, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type chunkResult struct {
	mentions []types.Mention
	rels     []types.RawRelationship
}

// Extract processes every chunk. A chunk whose generation fails contributes
// nothing and is recorded in Result.Failures; only cancellation of ctx
// returns an error.
func (e *Extractor) Extract(ctx context.Context, chunks []string) (*Result, error) {
	results := make([]chunkResult, len(chunks))
	failures := make(map[int]error)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.extractChunk(gctx, chunk)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				e.logger.WarnContext(gctx, "chunk extraction failed", "chunk", i, "error", err)
				mu.Lock()
				failures[i] = fmt.Errorf("chunk %d: %w", i, err)
				mu.Unlock()
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Result{Chunks: len(chunks), Failures: failures}
	for _, r := range results {
		out.Mentions = append(out.Mentions, r.mentions...)
		out.Relationships = append(out.Relationships, r.rels...)
	}

	e.logger.InfoContext(ctx, "extraction finished",
		"chunks", len(chunks),
		"failed", len(failures),
		"mentions", len(out.Mentions),
		"relationships", len(out.Relationships))
	return out, nil
}

func (e *Extractor) extractChunk(ctx context.Context, chunk string) (chunkResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	out, err := e.generator.Generate(ctx, prompts.ExtractionPrompt(chunk),
		llm.WithTemperature(DefaultTemperature),
		llm.WithMaxTokens(DefaultMaxTokens))
	if err != nil {
		return chunkResult{}, err
	}

	mentions, rels := prompts.ParseExtraction(out)
	if e.config.MaxPathsPerChunk > 0 && len(rels) > e.config.MaxPathsPerChunk {
		rels = rels[:e.config.MaxPathsPerChunk]
	}
	return chunkResult{mentions: mentions, rels: rels}, nil
}
