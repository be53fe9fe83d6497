package community

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/soundprediction/go-graphrag/pkg/graph"
	"github.com/soundprediction/go-graphrag/pkg/llm"
	"github.com/soundprediction/go-graphrag/pkg/prompts"
	"github.com/soundprediction/go-graphrag/pkg/types"
	"github.com/soundprediction/go-graphrag/pkg/utils"
)

// ErrNotBuilt is returned by accessors called before BuildCommunities.
var ErrNotBuilt = errors.New("communities not built")

const DefaultSummaryTimeout = 60 * time.Second

// SummarizerConfig controls community summarization.
type SummarizerConfig struct {
	// Concurrency bounds the number of generation calls in flight. Zero
	// uses utils.GetSemaphoreLimit.
	Concurrency int
	// Timeout applies to every generation call.
	Timeout time.Duration
}

// Summarizer partitions the graph and produces one natural-language summary
// per finest-level community. Summaries are cached until Reset.
type Summarizer struct {
	store       *graph.Store
	partitioner *Partitioner
	generator   llm.Generator
	config      SummarizerConfig
	logger      *slog.Logger

	build singleflight.Group

	mu        sync.RWMutex
	hierarchy *types.Hierarchy
	summaries map[int]string
	failures  map[int]error
}

// SummarizerOption configures a Summarizer.
type SummarizerOption func(*Summarizer)

// WithSummarizerLogger sets the logger.
func WithSummarizerLogger(l *slog.Logger) SummarizerOption {
	return func(s *Summarizer) { s.logger = l }
}

// NewSummarizer creates a summarizer over store.
func NewSummarizer(store *graph.Store, partitioner *Partitioner, generator llm.Generator, config SummarizerConfig, opts ...SummarizerOption) *Summarizer {
	if config.Concurrency <= 0 {
		config.Concurrency = utils.GetSemaphoreLimit()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultSummaryTimeout
	}
	s := &Summarizer{
		store:       store,
		partitioner: partitioner,
		generator:   generator,
		config:      config,
		logger:      slog.Default(),
		summaries:   make(map[int]string),
		failures:    make(map[int]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CommunityFacts lists the relationships internal to a community as facts.
// Members are visited in sorted order; every relationship whose other
// endpoint is also a member is emitted from the visited member's side, so a
// relationship between two members appears once per direction.
func CommunityFacts(store *graph.Store, c types.Community) []string {
	members := append([]string(nil), c.Members...)
	sort.Strings(members)

	var facts []string
	for _, m := range members {
		for _, r := range store.IncidentRelationships(m) {
			other := r.TargetID
			if other == m {
				other = r.SourceID
			}
			if !c.Contains(other) {
				continue
			}
			facts = append(facts, types.Fact(m, other, r.Label, r.Description))
		}
	}
	return facts
}

type summaryTask struct {
	id    int
	facts []string
}

// BuildCommunities partitions a snapshot of the graph and summarizes every
// finest-level community that has internal facts. A community whose
// generation fails is left out of the summaries and recorded in Failures.
// Only cancellation of ctx aborts the build.
func (s *Summarizer) BuildCommunities(ctx context.Context) error {
	start := time.Now()

	h, err := s.partitioner.Partition(ctx, s.store.ToSimpleGraph())
	if err != nil {
		return fmt.Errorf("partition graph: %w", err)
	}

	var tasks []summaryTask
	for _, c := range h.Finest() {
		facts := CommunityFacts(s.store, c)
		if len(facts) == 0 {
			continue
		}
		tasks = append(tasks, summaryTask{id: c.ID, facts: facts})
	}

	summaries := make(map[int]string, len(tasks))
	failures := make(map[int]error)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for _, task := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			summary, err := s.summarize(gctx, task)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.WarnContext(gctx, "community summarization failed",
					"community", task.id,
					"facts", len(task.facts),
					"error", err)
				mu.Lock()
				failures[task.id] = err
				mu.Unlock()
				return nil
			}
			mu.Lock()
			summaries[task.id] = summary
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	s.hierarchy = h
	s.summaries = summaries
	s.failures = failures
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "communities summarized",
		"communities", len(h.Finest()),
		"summarized", len(summaries),
		"failed", len(failures),
		"duration", time.Since(start))
	return nil
}

func (s *Summarizer) summarize(ctx context.Context, task summaryTask) (string, error) {
	ctx, cancel := context.WithTimeout(types.WithCommunityID(ctx, task.id), s.config.Timeout)
	defer cancel()

	prompt := prompts.CommunitySummaryPrompt(prompts.FactsText(task.facts))
	out, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize community %d: %w", task.id, err)
	}
	summary := prompts.StripRoleLabel(out)
	if summary == "" {
		return "", fmt.Errorf("summarize community %d: %w", task.id, llm.ErrEmptyResponse)
	}
	return summary, nil
}

// Summary returns the cached summary of community id.
func (s *Summarizer) Summary(id int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[id]
	return summary, ok
}

// GetCommunitySummaries returns a copy of the summaries, building them first
// when no build has completed. Concurrent callers share a single build.
func (s *Summarizer) GetCommunitySummaries(ctx context.Context) (map[int]string, error) {
	if !s.built() {
		_, err, _ := s.build.Do("build", func() (interface{}, error) {
			if s.built() {
				return nil, nil
			}
			return nil, s.BuildCommunities(ctx)
		})
		if err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]string, len(s.summaries))
	for id, summary := range s.summaries {
		out[id] = summary
	}
	return out, nil
}

func (s *Summarizer) built() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hierarchy != nil
}

// Failures returns the communities whose summarization failed in the last
// build, keyed by community id.
func (s *Summarizer) Failures() map[int]error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]error, len(s.failures))
	for id, err := range s.failures {
		out[id] = err
	}
	return out
}

// Hierarchy returns the partition of the last build.
func (s *Summarizer) Hierarchy() (*types.Hierarchy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.hierarchy == nil {
		return nil, ErrNotBuilt
	}
	return s.hierarchy, nil
}

// Reset drops the cached hierarchy, summaries and failures.
func (s *Summarizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hierarchy = nil
	s.summaries = make(map[int]string)
	s.failures = make(map[int]error)
}
