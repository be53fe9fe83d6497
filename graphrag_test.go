package graphrag_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/soundprediction/go-graphrag"
	"github.com/soundprediction/go-graphrag/pkg/llm"
	"github.com/soundprediction/go-graphrag/pkg/similarity"
	"github.com/soundprediction/go-graphrag/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubOracle maps each query to a fixed candidate.
type stubOracle map[string]string

func (o stubOracle) BestMatch(_ context.Context, queries, _ []string, _ similarity.Metric, _ int) ([]similarity.Match, error) {
	var out []similarity.Match
	for _, q := range queries {
		if c, ok := o[q]; ok {
			out = append(out, similarity.Match{Query: q, Candidate: c, Distance: 0.2})
		}
	}
	return out, nil
}

// factGenerator summarizes by echoing the facts block of the prompt.
type factGenerator struct {
	calls int
}

func (g *factGenerator) Generate(_ context.Context, prompt string, _ ...llm.Option) (string, error) {
	g.calls++
	facts := prompt[strings.LastIndex(prompt, "Input: ")+len("Input: "):]
	facts = strings.TrimSuffix(facts, "\nOutput:")
	return "assistant: Summary of " + strings.ReplaceAll(facts, "\n", "; "), nil
}

func appleInput() graphrag.Input {
	return graphrag.Input{
		Entities: []types.Mention{
			{Name: "Apple", Type: "Company", Description: "tech co"},
			{Name: "iPhone", Type: "Product", Description: "phone"},
		},
		Relationships: []types.RawRelationship{
			{Source: "Apple", Target: "iPhone", Label: "Produces", Description: "Apple designs and sells the iPhone"},
		},
	}
}

func TestRun_NoUnknownEndpoints(t *testing.T) {
	gen := &factGenerator{}
	p := graphrag.NewPipeline(nil, stubOracle{}, gen)

	report, err := p.Run(context.Background(), appleInput())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, report.RunID)
	assert.Empty(t, report.Mapping)
	assert.Empty(t, report.Placeholders)
	assert.Equal(t, 2, report.Entities)
	assert.Equal(t, 1, report.Relationships)

	finest := report.Hierarchy.Finest()
	require.Len(t, finest, 1)
	assert.Equal(t, []string{"Apple", "iPhone"}, finest[0].Members)

	require.Len(t, report.Summaries, 1)
	summary := report.Summaries[finest[0].ID]
	assert.Contains(t, summary, "Apple")
	assert.Contains(t, summary, "iPhone")
	assert.False(t, strings.HasPrefix(summary, "assistant:"))
	assert.Empty(t, report.Failures)

	for _, stage := range []string{graphrag.StageNormalize, graphrag.StageResolve, graphrag.StageBuild, graphrag.StageCommunities} {
		assert.Contains(t, report.Durations, stage)
	}

	again, err := p.GetCommunitySummaries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Summaries, again)
	assert.Equal(t, 1, gen.calls)
}

func TestRun_MergesUnknownEndpoint(t *testing.T) {
	input := graphrag.Input{
		Entities: []types.Mention{{Name: "Apple", Type: "Company", Description: "tech co"}},
		Relationships: []types.RawRelationship{
			{Source: "Apple Computer", Target: "Apple", Label: "SameAs"},
			{Source: "Steve", Target: "Apple Computer", Label: "Founded"},
		},
	}
	oracle := stubOracle{"Apple Computer": "Apple", "Steve": "Apple"}
	p := graphrag.NewPipeline(nil, oracle, nil)

	report, err := p.Run(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"Apple Computer": "Apple", "Steve": "Apple"}, report.Mapping)
	assert.Empty(t, report.Placeholders)
	assert.Equal(t, 1, report.Entities)

	store, err := p.Store()
	require.NoError(t, err)
	for _, r := range store.Relationships() {
		assert.NotEqual(t, "Apple Computer", r.SourceID)
		assert.NotEqual(t, "Apple Computer", r.TargetID)
	}
	assert.True(t, store.Frozen())
}

func TestRun_PlaceholdersAndNormalization(t *testing.T) {
	input := graphrag.Input{
		Entities: []types.Mention{
			{Name: " Apple \n Inc ", Type: "Company", Description: "tech -- co"},
			{Name: "\n", Type: "Nothing"},
		},
		Relationships: []types.RawRelationship{
			{Source: "Apple Inc", Target: "Cupertino", Label: "Located\nIn"},
			{Source: "", Target: "Apple Inc", Label: "Dropped"},
		},
		SkippedLines: 3,
	}
	p := graphrag.NewPipeline(nil, nil, nil)

	report, err := p.Run(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, []string{"Cupertino"}, report.Placeholders)
	assert.Equal(t, 3, report.SkippedLines)
	assert.Nil(t, report.Summaries)

	store, err := p.Store()
	require.NoError(t, err)
	apple, err := store.Entity("Apple Inc")
	require.NoError(t, err)
	assert.Equal(t, "tech co", apple.Description)

	cupertino, err := store.Entity("Cupertino")
	require.NoError(t, err)
	assert.True(t, cupertino.IsPlaceholder())

	rels := store.Relationships()
	require.Len(t, rels, 1)
	assert.Equal(t, "Located In", rels[0].Label)
	assert.NoError(t, store.Validate())

	summaries, err := p.GetCommunitySummaries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := graphrag.NewPipeline(nil, stubOracle{}, &factGenerator{}).Run(ctx, appleInput())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAccessorsBeforeRun(t *testing.T) {
	p := graphrag.NewPipeline(nil, nil, nil)

	_, err := p.Store()
	assert.ErrorIs(t, err, graphrag.ErrNotRun)
	_, err = p.Hierarchy()
	assert.ErrorIs(t, err, graphrag.ErrNotRun)
	_, err = p.GetCommunitySummaries(context.Background())
	assert.ErrorIs(t, err, graphrag.ErrNotRun)
}
