package community

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soundprediction/go-graphrag/pkg/graph"
	"github.com/soundprediction/go-graphrag/pkg/llm"
	"github.com/soundprediction/go-graphrag/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator answers every prompt through fn and counts calls.
type fakeGenerator struct {
	calls atomic.Int32
	fn    func(ctx context.Context, prompt string) (string, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, _ ...llm.Option) (string, error) {
	g.calls.Add(1)
	return g.fn(ctx, prompt)
}

func echoGenerator() *fakeGenerator {
	return &fakeGenerator{fn: func(_ context.Context, prompt string) (string, error) {
		input := prompt[strings.LastIndex(prompt, "Input: ")+len("Input: "):]
		first := strings.SplitN(input, " -> ", 2)[0]
		return "Assistant:  Summary starting at " + first + "\n", nil
	}}
}

func newSummarizer(t *testing.T, s *graph.Store, gen llm.Generator, cfg SummarizerConfig) *Summarizer {
	t.Helper()
	p, err := NewPartitioner(DefaultConfig(), nil)
	require.NoError(t, err)
	return NewSummarizer(s, p, gen, cfg)
}

func twoClusterStore(t *testing.T) *graph.Store {
	edges := append(clique("a", 4), clique("b", 4)...)
	edges = append(edges, [2]string{"a00", "b00"})
	return buildGraph(t, edges, "zz")
}

func TestCommunityFacts(t *testing.T) {
	s := graph.NewStore()
	s.AddEntity(types.Entity{ID: "Apple", Type: "Company"})
	s.AddEntity(types.Entity{ID: "iPhone", Type: "Product"})
	s.AddEntity(types.Entity{ID: "Cupertino", Type: "Resource"})
	require.NoError(t, s.AddRelationship(types.Relationship{SourceID: "Apple", TargetID: "iPhone", Label: "Produces", Description: "first"}))
	require.NoError(t, s.AddRelationship(types.Relationship{SourceID: "iPhone", TargetID: "Apple", Label: "MadeBy", Description: "second"}))
	require.NoError(t, s.AddRelationship(types.Relationship{SourceID: "Apple", TargetID: "Cupertino", Label: "LocatedIn", Description: "third"}))

	facts := CommunityFacts(s, types.Community{Members: []string{"Apple", "iPhone"}})
	assert.Equal(t, []string{
		"Apple -> iPhone -> Produces -> first",
		"Apple -> iPhone -> MadeBy -> second",
		"iPhone -> Apple -> Produces -> first",
		"iPhone -> Apple -> MadeBy -> second",
	}, facts)

	assert.Empty(t, CommunityFacts(s, types.Community{Members: []string{"Cupertino"}}))
}

func TestBuildCommunities(t *testing.T) {
	gen := echoGenerator()
	sum := newSummarizer(t, twoClusterStore(t), gen, SummarizerConfig{Concurrency: 2})

	require.NoError(t, sum.BuildCommunities(context.Background()))

	h, err := sum.Hierarchy()
	require.NoError(t, err)
	require.Len(t, h.Finest(), 3)

	summaries, err := sum.GetCommunitySummaries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[int]string{
		0: "Summary starting at a00",
		1: "Summary starting at b00",
	}, summaries)
	assert.Equal(t, int32(2), gen.calls.Load())
	assert.Empty(t, sum.Failures())

	summary, ok := sum.Summary(1)
	assert.True(t, ok)
	assert.Equal(t, "Summary starting at b00", summary)

	_, ok = sum.Summary(2)
	assert.False(t, ok, "singleton communities are not summarized")
}

func TestBuildCommunities_Idempotent(t *testing.T) {
	sum := newSummarizer(t, twoClusterStore(t), echoGenerator(), SummarizerConfig{})

	require.NoError(t, sum.BuildCommunities(context.Background()))
	first, err := sum.GetCommunitySummaries(context.Background())
	require.NoError(t, err)

	require.NoError(t, sum.BuildCommunities(context.Background()))
	second, err := sum.GetCommunitySummaries(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuildCommunities_FailureIsolated(t *testing.T) {
	tests := []struct {
		name    string
		answer  func(ctx context.Context) (string, error)
		timeout time.Duration
		wantErr error
	}{
		{
			name:   "service error",
			answer: func(context.Context) (string, error) { return "", errors.New("rate limited") },
		},
		{
			name:    "empty answer",
			answer:  func(context.Context) (string, error) { return "assistant:   ", nil },
			wantErr: llm.ErrEmptyResponse,
		},
		{
			name: "timeout",
			answer: func(ctx context.Context) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			},
			timeout: 10 * time.Millisecond,
			wantErr: context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{fn: func(ctx context.Context, prompt string) (string, error) {
				if strings.Contains(prompt, "Input: b00") {
					return tt.answer(ctx)
				}
				return "fine", nil
			}}
			sum := newSummarizer(t, twoClusterStore(t), gen, SummarizerConfig{Timeout: tt.timeout})

			require.NoError(t, sum.BuildCommunities(context.Background()))

			summaries, err := sum.GetCommunitySummaries(context.Background())
			require.NoError(t, err)
			assert.Equal(t, map[int]string{0: "fine"}, summaries)

			failures := sum.Failures()
			require.Len(t, failures, 1)
			require.Error(t, failures[1])
			if tt.wantErr != nil {
				assert.ErrorIs(t, failures[1], tt.wantErr)
			}
		})
	}
}

func TestBuildCommunities_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &fakeGenerator{fn: func(c context.Context, _ string) (string, error) {
		cancel()
		<-c.Done()
		return "", c.Err()
	}}
	sum := newSummarizer(t, twoClusterStore(t), gen, SummarizerConfig{Concurrency: 1})

	err := sum.BuildCommunities(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = sum.Hierarchy()
	assert.ErrorIs(t, err, ErrNotBuilt)
}

func TestGetCommunitySummaries_LazySingleBuild(t *testing.T) {
	gen := echoGenerator()
	sum := newSummarizer(t, twoClusterStore(t), gen, SummarizerConfig{})

	var wg sync.WaitGroup
	results := make([]map[int]string, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := sum.GetCommunitySummaries(context.Background())
			assert.NoError(t, err)
			results[i] = out
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), gen.calls.Load())
	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}

func TestGetCommunitySummaries_ReturnsCopy(t *testing.T) {
	sum := newSummarizer(t, twoClusterStore(t), echoGenerator(), SummarizerConfig{})

	out, err := sum.GetCommunitySummaries(context.Background())
	require.NoError(t, err)
	out[0] = "changed"
	delete(out, 1)

	again, err := sum.GetCommunitySummaries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Summary starting at a00", again[0])
	assert.Contains(t, again, 1)
}

func TestReset(t *testing.T) {
	gen := echoGenerator()
	sum := newSummarizer(t, twoClusterStore(t), gen, SummarizerConfig{})

	_, err := sum.GetCommunitySummaries(context.Background())
	require.NoError(t, err)

	sum.Reset()
	_, err = sum.Hierarchy()
	assert.ErrorIs(t, err, ErrNotBuilt)
	_, ok := sum.Summary(0)
	assert.False(t, ok)

	out, err := sum.GetCommunitySummaries(context.Background())
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, int32(4), gen.calls.Load())
}
