package similarity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapEmbedder returns fixed vectors per text.
type mapEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (m *mapEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := m.vectors[t]
		if !ok {
			return nil, errors.New("no vector for " + t)
		}
		out[i] = v
	}
	return out, nil
}

func (m *mapEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vs, err := m.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (m *mapEmbedder) Dimensions() int { return 3 }
func (m *mapEmbedder) Close() error    { return nil }

func appleVectors() *mapEmbedder {
	return &mapEmbedder{vectors: map[string][]float32{
		"Apple":          {1, 0, 0},
		"iPhone":         {0, 1, 0},
		"Mac":            {0, 0, 1},
		"Apple Computer": {0.9, 0.1, 0},
		"Cupertino":      {0.1, 0.1, 0.9},
		"Nothing":        {0, 0, 0},
	}}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in      string
		want    Metric
		wantErr bool
	}{
		{"", MetricCosine, false},
		{"Cosine", MetricCosine, false},
		{" euclidean ", MetricEuclidean, false},
		{"dot", MetricDot, false},
		{"manhattan", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMetric(tt.in)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestEmbeddingOracle_Cosine(t *testing.T) {
	o := NewEmbeddingOracle(appleVectors(), nil)

	matches, err := o.BestMatch(context.Background(),
		[]string{"Apple Computer", "Cupertino"},
		[]string{"Apple", "iPhone", "Mac", "Apple"},
		MetricCosine, 1)
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "Apple Computer", matches[0].Query)
	assert.Equal(t, "Apple", matches[0].Candidate)
	assert.InDelta(t, 1-0.9/0.9055385, matches[0].Distance, 1e-4)
	assert.Equal(t, "Mac", matches[1].Candidate)
}

func TestEmbeddingOracle_TopKOrdering(t *testing.T) {
	o := NewEmbeddingOracle(appleVectors(), nil)

	matches, err := o.BestMatch(context.Background(),
		[]string{"Apple Computer"}, []string{"Mac", "iPhone", "Apple"}, MetricCosine, 5)
	require.NoError(t, err)

	require.Len(t, matches, 3)
	assert.Equal(t, []string{"Apple", "iPhone", "Mac"},
		[]string{matches[0].Candidate, matches[1].Candidate, matches[2].Candidate})
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i-1].Distance, matches[i].Distance)
	}
}

func TestEmbeddingOracle_ExactMetrics(t *testing.T) {
	o := NewEmbeddingOracle(appleVectors(), nil)

	tests := []struct {
		metric   Metric
		distance float64
	}{
		{MetricEuclidean, 0.1414213},
		{MetricDot, -0.9},
	}
	for _, tt := range tests {
		t.Run(string(tt.metric), func(t *testing.T) {
			matches, err := o.BestMatch(context.Background(),
				[]string{"Apple Computer"}, []string{"Apple", "iPhone", "Mac"}, tt.metric, 1)
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, "Apple", matches[0].Candidate)
			assert.InDelta(t, tt.distance, matches[0].Distance, 1e-5)
		})
	}
}

func TestEmbeddingOracle_ZeroVectorFallsBackToScan(t *testing.T) {
	o := NewEmbeddingOracle(appleVectors(), nil)

	matches, err := o.BestMatch(context.Background(),
		[]string{"Nothing"}, []string{"Mac", "Apple"}, MetricCosine, 1)
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Equal(t, "Apple", matches[0].Candidate)
	assert.Equal(t, 1.0, matches[0].Distance)
}

func TestEmbeddingOracle_Errors(t *testing.T) {
	o := NewEmbeddingOracle(appleVectors(), nil)

	matches, err := o.BestMatch(context.Background(), nil, []string{"Apple"}, MetricCosine, 1)
	assert.NoError(t, err)
	assert.Empty(t, matches)

	_, err = o.BestMatch(context.Background(), []string{"Apple"}, nil, MetricCosine, 1)
	assert.ErrorIs(t, err, ErrNoCandidates)

	_, err = o.BestMatch(context.Background(), []string{"Apple"}, []string{"Mac"}, Metric("hamming"), 1)
	assert.Error(t, err)

	failing := NewEmbeddingOracle(&mapEmbedder{err: errors.New("service down")}, nil)
	_, err = failing.BestMatch(context.Background(), []string{"Apple"}, []string{"Mac"}, MetricCosine, 1)
	assert.ErrorContains(t, err, "service down")
}

type countingOracle struct {
	calls int
	err   error
}

func (c *countingOracle) BestMatch(context.Context, []string, []string, Metric, int) ([]Match, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []Match{{Query: "q", Candidate: "c"}}, nil
}

func TestBreakerOracle(t *testing.T) {
	inner := &countingOracle{err: errors.New("timeout")}
	o := NewBreakerOracle(inner, 2, time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := o.BestMatch(context.Background(), []string{"q"}, []string{"c"}, MetricCosine, 1)
		assert.Error(t, err)
	}
	_, err := o.BestMatch(context.Background(), []string{"q"}, []string{"c"}, MetricCosine, 1)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls)

	ok := NewBreakerOracle(&countingOracle{}, 2, time.Minute, nil)
	matches, err := ok.BestMatch(context.Background(), []string{"q"}, []string{"c"}, MetricCosine, 1)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
