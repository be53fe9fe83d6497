package graphrag

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"

	graphrag "github.com/soundprediction/go-graphrag"
	"github.com/soundprediction/go-graphrag/pkg/cache"
	"github.com/soundprediction/go-graphrag/pkg/community"
	"github.com/soundprediction/go-graphrag/pkg/config"
	"github.com/soundprediction/go-graphrag/pkg/cost"
	"github.com/soundprediction/go-graphrag/pkg/embedder"
	"github.com/soundprediction/go-graphrag/pkg/extractlog"
	"github.com/soundprediction/go-graphrag/pkg/graph"
	"github.com/soundprediction/go-graphrag/pkg/llm"
	"github.com/soundprediction/go-graphrag/pkg/resolver"
	"github.com/soundprediction/go-graphrag/pkg/similarity"
)

var errNoLLM = errors.New("no LLM configured: set llm.api_key (or OPENAI_API_KEY) or llm.base_url")

// services holds the external collaborators a command needs. Every field
// may be nil when the configuration does not enable it.
type services struct {
	generator llm.Generator
	oracle    similarity.Oracle
	tracker   *llm.UsageTracker
	cache     *cache.BadgerCache
	closers   []func() error
}

func llmConfigured(cfg *config.Config) bool {
	return cfg.LLM.APIKey != "" || cfg.LLM.BaseURL != ""
}

func embeddingConfigured(cfg *config.Config) bool {
	return cfg.Embedding.APIKey != "" || cfg.Embedding.BaseURL != ""
}

// newServices wires the generation and similarity stacks:
//
//	cache -> breaker -> token tracking -> OpenAI client
//	breaker -> embedding oracle -> cache -> OpenAI embedder
func newServices(cfg *config.Config, logger *slog.Logger, withGenerator, withOracle bool) (*services, error) {
	s := &services{tracker: llm.NewUsageTracker(cost.NewCalculator())}

	if cfg.Cache.Enabled && ((withGenerator && llmConfigured(cfg)) || (withOracle && embeddingConfigured(cfg))) {
		store, err := cache.NewBadgerCache(cfg.Cache.Dir)
		if err != nil {
			return nil, err
		}
		s.cache = store
		s.closers = append(s.closers, store.Close)
	}

	if withGenerator && llmConfigured(cfg) {
		client, err := llm.NewOpenAIClient(&llm.LLMConfig{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			BaseURL:     cfg.LLM.BaseURL,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}

		var gen llm.Generator = llm.NewTokenTrackingClient(client, s.tracker, logger)
		if cfg.LLM.BreakerFailures > 0 {
			gen = llm.NewBreakerGenerator(gen, llm.BreakerConfig{
				Name:                "llm",
				ConsecutiveFailures: uint32(cfg.LLM.BreakerFailures),
				OpenTimeout:         cfg.LLM.BreakerTimeout,
			}, logger)
		}
		if s.cache != nil {
			gen = llm.NewCachedGenerator(gen, s.cache, cfg.LLM.Model, cfg.Cache.TTL, logger)
		}
		s.generator = gen
	}

	if withOracle && embeddingConfigured(cfg) {
		var emb embedder.Client = embedder.NewOpenAIEmbedder(cfg.Embedding.APIKey, embedder.Config{
			Model:      cfg.Embedding.Model,
			BatchSize:  cfg.Embedding.BatchSize,
			Dimensions: cfg.Embedding.Dimensions,
			BaseURL:    cfg.Embedding.BaseURL,
		}, logger)
		if s.cache != nil {
			emb = embedder.NewCachedEmbedder(emb, s.cache, cfg.Embedding.Model, cfg.Cache.TTL, logger)
		}
		s.closers = append(s.closers, emb.Close)

		var oracle similarity.Oracle = similarity.NewEmbeddingOracle(emb, logger)
		if cfg.LLM.BreakerFailures > 0 {
			oracle = similarity.NewBreakerOracle(oracle, uint32(cfg.LLM.BreakerFailures), cfg.LLM.BreakerTimeout, logger)
		}
		s.oracle = oracle
	} else if withOracle {
		logger.Warn("no embedding service configured; unknown endpoints become placeholders")
	}

	return s, nil
}

// Close releases the collaborators in reverse order of creation.
func (s *services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// logUsage reports token usage and its estimated cost.
func (s *services) logUsage(logger *slog.Logger) {
	total := s.tracker.Total()
	if total.Calls == 0 {
		return
	}
	logger.Info("LLM usage",
		"calls", total.Calls,
		"prompt_tokens", total.PromptTokens,
		"completion_tokens", total.CompletionTokens,
		"cost_usd", fmt.Sprintf("%.4f", total.CostUSD))
}

// pipelineConfig maps the application configuration onto the pipeline's.
func pipelineConfig(cfg *config.Config) (*graphrag.Config, error) {
	policy, err := graph.ParseMergePolicy(cfg.Resolver.MergePolicy)
	if err != nil {
		return nil, err
	}
	metric, err := similarity.ParseMetric(cfg.Resolver.Metric)
	if err != nil {
		return nil, err
	}
	algo, err := community.ParseAlgorithm(cfg.Partition.Algorithm)
	if err != nil {
		return nil, err
	}

	return &graphrag.Config{
		MergePolicy: policy,
		Resolver: resolver.Config{
			TopK:        cfg.Resolver.TopK,
			Metric:      metric,
			MaxDistance: cfg.Resolver.MaxDistance,
			Timeout:     cfg.Resolver.Timeout,
		},
		Partition: community.Config{
			MaxClusterSize: cfg.Partition.MaxClusterSize,
			Resolution:     cfg.Partition.Resolution,
			Seed:           cfg.Partition.Seed,
			MaxLevels:      cfg.Partition.MaxLevels,
			Algorithm:      algo,
		},
		Summarizer: community.SummarizerConfig{
			Concurrency: cfg.Summarizer.Concurrency,
			Timeout:     cfg.Summarizer.Timeout,
		},
	}, nil
}

// loadInput parses an extraction log. Malformed lines are skipped and
// logged.
func loadInput(path string, logger *slog.Logger) (graphrag.Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return graphrag.Input{}, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	log, err := extractlog.Parse(f)
	if err != nil {
		return graphrag.Input{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	for _, lineErr := range log.LineErrors {
		logger.Warn("skipping line", "input", filepath.Base(path), "error", lineErr)
	}
	logger.Info("extraction log loaded",
		"lines", log.Lines,
		"skipped", log.SkippedLines,
		"entities", len(log.Entities),
		"relationships", len(log.Relationships))

	return graphrag.Input{
		Entities:      log.Entities,
		Relationships: log.Relationships,
		SkippedLines:  log.SkippedLines,
	}, nil
}

// runPipeline loads the input and runs the pipeline over it.
func runPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger, svc *services, input string) (*graphrag.Pipeline, *graphrag.Report, error) {
	in, err := loadInput(input, logger)
	if err != nil {
		return nil, nil, err
	}
	pcfg, err := pipelineConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	p := graphrag.NewPipeline(pcfg, svc.oracle, svc.generator, graphrag.WithLogger(logger))
	report, err := p.Run(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	if report.OracleErr != nil {
		logger.Warn("similarity service failed; unresolved endpoints became placeholders", "error", report.OracleErr)
	}
	return p, report, nil
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	return slices.Sorted(maps.Keys(m))
}
