package graphrag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/go-graphrag/pkg/community"
	"github.com/soundprediction/go-graphrag/pkg/graph"
	"github.com/soundprediction/go-graphrag/pkg/llm"
	"github.com/soundprediction/go-graphrag/pkg/resolver"
	"github.com/soundprediction/go-graphrag/pkg/similarity"
	"github.com/soundprediction/go-graphrag/pkg/types"
	"github.com/soundprediction/go-graphrag/pkg/utils"
)

// ErrNotRun is returned by accessors called before the first Run.
var ErrNotRun = errors.New("pipeline has not run")

// ErrGraphConsistency aliases the store's sentinel so callers can test Run
// errors without importing pkg/graph.
var ErrGraphConsistency = graph.ErrGraphConsistency

// Stage names used in Report.Durations and log records.
const (
	StageNormalize   = "normalize"
	StageResolve     = "resolve"
	StageBuild       = "build"
	StageCommunities = "communities"
)

// GraphRAG turns extracted mentions into a community-summarized knowledge
// graph.
type GraphRAG interface {
	// Run executes every stage on input and replaces the state of any
	// previous run.
	Run(ctx context.Context, input Input) (*Report, error)

	// GetCommunitySummaries returns the summaries of the last run, building
	// them if the run did not.
	GetCommunitySummaries(ctx context.Context) (map[int]string, error)
}

// Config holds the settings of every stage.
type Config struct {
	MergePolicy graph.MergePolicy
	Resolver    resolver.Config
	Partition   community.Config
	Summarizer  community.SummarizerConfig
}

// NewDefaultConfig returns the default pipeline settings.
func NewDefaultConfig() *Config {
	return &Config{
		MergePolicy: graph.KeepFirst,
		Partition:   community.DefaultConfig(),
	}
}

// Input is the raw output of extraction.
type Input struct {
	Entities      []types.Mention
	Relationships []types.RawRelationship
	// SkippedLines is carried into the report when the input came from an
	// extraction log.
	SkippedLines int
}

// Report describes one run.
type Report struct {
	RunID         uuid.UUID
	Mapping       map[string]string
	Placeholders  []string
	OracleErr     error
	Entities      int
	Relationships int
	Hierarchy     *types.Hierarchy
	Summaries     map[int]string
	Failures      map[int]error
	SkippedLines  int
	Durations     map[string]time.Duration
}

// Pipeline is the default GraphRAG implementation. Stages run sequentially
// and the context is checked between them.
type Pipeline struct {
	config    *Config
	oracle    similarity.Oracle
	generator llm.Generator
	logger    *slog.Logger

	mu         sync.RWMutex
	store      *graph.Store
	hierarchy  *types.Hierarchy
	summarizer *community.Summarizer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger handed to every stage.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a pipeline. A nil oracle turns every unknown endpoint
// into a placeholder; a nil generator partitions without summarizing.
func NewPipeline(config *Config, oracle similarity.Oracle, generator llm.Generator, opts ...Option) *Pipeline {
	if config == nil {
		config = NewDefaultConfig()
	}
	p := &Pipeline{
		config:    config,
		oracle:    oracle,
		generator: generator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run normalizes the input, resolves unknown endpoints, builds and freezes
// the graph, partitions it and summarizes its communities.
func (p *Pipeline) Run(ctx context.Context, input Input) (*Report, error) {
	report := &Report{
		RunID:        uuid.New(),
		SkippedLines: input.SkippedLines,
		Durations:    make(map[string]time.Duration),
	}
	ctx = types.WithRunID(ctx, report.RunID.String())
	logger := p.logger.With("run_id", report.RunID.String())

	stage := func(name string, fn func(ctx context.Context) error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		err := fn(types.WithStage(ctx, name))
		report.Durations[name] = time.Since(start)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		logger.DebugContext(ctx, "stage finished", "stage", name, "duration", report.Durations[name])
		return nil
	}

	var entities []types.Entity
	var rels []types.Relationship
	if err := stage(StageNormalize, func(context.Context) error {
		entities, rels = normalize(input)
		return nil
	}); err != nil {
		return nil, err
	}

	var resolved *resolver.Result
	if err := stage(StageResolve, func(ctx context.Context) error {
		var err error
		resolved, err = resolver.New(p.oracle, p.config.Resolver, resolver.WithLogger(logger)).Resolve(ctx, entities, rels)
		return err
	}); err != nil {
		return nil, err
	}
	report.Mapping = resolved.Mapping
	report.Placeholders = resolved.Placeholders
	report.OracleErr = resolved.OracleErr

	var store *graph.Store
	if err := stage(StageBuild, func(context.Context) error {
		var err error
		store, err = p.buildStore(resolved, logger)
		return err
	}); err != nil {
		return nil, err
	}
	report.Entities = store.NumEntities()
	report.Relationships = store.NumRelationships()

	partitioner, err := community.NewPartitioner(p.config.Partition, logger)
	if err != nil {
		return nil, err
	}

	var summarizer *community.Summarizer
	if err := stage(StageCommunities, func(ctx context.Context) error {
		if p.generator == nil {
			h, err := partitioner.Partition(ctx, store.ToSimpleGraph())
			report.Hierarchy = h
			return err
		}
		summarizer = community.NewSummarizer(store, partitioner, p.generator, p.config.Summarizer,
			community.WithSummarizerLogger(logger))
		if err := summarizer.BuildCommunities(ctx); err != nil {
			return err
		}
		summaries, err := summarizer.GetCommunitySummaries(ctx)
		if err != nil {
			return err
		}
		report.Hierarchy, _ = summarizer.Hierarchy()
		report.Summaries = summaries
		report.Failures = summarizer.Failures()
		return nil
	}); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.store = store
	p.hierarchy = report.Hierarchy
	p.summarizer = summarizer
	p.mu.Unlock()

	logger.InfoContext(ctx, "pipeline finished",
		"entities", report.Entities,
		"relationships", report.Relationships,
		"merged", len(report.Mapping),
		"placeholders", len(report.Placeholders),
		"communities", len(report.Hierarchy.Finest()),
		"summaries", len(report.Summaries),
		"failures", len(report.Failures))
	return report, nil
}

func (p *Pipeline) buildStore(res *resolver.Result, logger *slog.Logger) (*graph.Store, error) {
	store := graph.NewStore(graph.WithMergePolicy(p.config.MergePolicy), graph.WithLogger(logger))
	for _, e := range res.Entities {
		store.AddEntity(e)
	}
	for _, r := range res.Relationships {
		if err := store.AddRelationship(r); err != nil {
			return nil, err
		}
	}
	if err := store.Validate(); err != nil {
		return nil, err
	}
	store.Freeze()
	return store, nil
}

// normalize canonicalizes every field and drops records that lose their
// identity in the process.
func normalize(input Input) ([]types.Entity, []types.Relationship) {
	entities := make([]types.Entity, 0, len(input.Entities))
	for _, m := range input.Entities {
		m = types.Mention{
			Name:        utils.NormalizeMention(m.Name),
			Type:        utils.NormalizeMention(m.Type),
			Description: utils.NormalizeMention(m.Description),
		}
		if utils.ValidateMention(m) != nil {
			continue
		}
		entities = append(entities, types.EntityFromMention(m))
	}

	rels := make([]types.Relationship, 0, len(input.Relationships))
	for _, r := range input.Relationships {
		r = types.RawRelationship{
			Source:      utils.NormalizeMention(r.Source),
			Target:      utils.NormalizeMention(r.Target),
			Label:       utils.NormalizeMention(r.Label),
			Description: utils.NormalizeMention(r.Description),
		}
		if utils.ValidateRawRelationship(r) != nil {
			continue
		}
		rels = append(rels, types.RelationshipFromRaw(r))
	}
	return entities, rels
}

// Store returns the frozen graph of the last run.
func (p *Pipeline) Store() (*graph.Store, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.store == nil {
		return nil, ErrNotRun
	}
	return p.store, nil
}

// Hierarchy returns the community hierarchy of the last run.
func (p *Pipeline) Hierarchy() (*types.Hierarchy, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.store == nil {
		return nil, ErrNotRun
	}
	return p.hierarchy, nil
}

// Summarizer returns the summarizer of the last run. It is nil when the
// pipeline has no generator.
func (p *Pipeline) Summarizer() (*community.Summarizer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.store == nil {
		return nil, ErrNotRun
	}
	return p.summarizer, nil
}

// GetCommunitySummaries returns the summaries of the last run.
func (p *Pipeline) GetCommunitySummaries(ctx context.Context) (map[int]string, error) {
	s, err := p.Summarizer()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return map[int]string{}, nil
	}
	return s.GetCommunitySummaries(ctx)
}

var _ GraphRAG = (*Pipeline)(nil)
