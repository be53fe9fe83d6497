package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/philippgille/chromem-go"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/soundprediction/go-graphrag/pkg/embedder"
	"github.com/soundprediction/go-graphrag/pkg/utils"
)

// EmbeddingOracle embeds queries and candidates with an embedding service.
// Cosine queries go through an in-memory chromem-go collection; euclidean
// and dot queries, and any set containing a zero vector, use an exact scan.
type EmbeddingOracle struct {
	client embedder.Client
	logger *slog.Logger
}

// NewEmbeddingOracle creates an oracle backed by client.
func NewEmbeddingOracle(client embedder.Client, logger *slog.Logger) *EmbeddingOracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbeddingOracle{client: client, logger: logger}
}

// BestMatch implements Oracle.
func (o *EmbeddingOracle) BestMatch(ctx context.Context, queries, candidates []string, metric Metric, topK int) ([]Match, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	candidates = dedupe(candidates)
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	if topK <= 0 {
		topK = 1
	}
	if metric == "" {
		metric = MetricCosine
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return nil, err
	}

	var queryVecs, candVecs [][]float32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		queryVecs, err = o.client.Embed(gctx, queries)
		if err != nil {
			return fmt.Errorf("failed to embed queries: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		candVecs, err = o.client.Embed(gctx, candidates)
		if err != nil {
			return fmt.Errorf("failed to embed candidates: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := checkVectors(queryVecs, len(queries), candVecs, len(candidates)); err != nil {
		return nil, err
	}

	if metric == MetricCosine && !hasZeroVector(queryVecs) && !hasZeroVector(candVecs) {
		return o.cosineIndex(ctx, queries, queryVecs, candidates, candVecs, topK)
	}
	return exactScan(queries, queryVecs, candidates, candVecs, metric, topK), nil
}

func checkVectors(queryVecs [][]float32, nq int, candVecs [][]float32, nc int) error {
	if len(queryVecs) != nq || len(candVecs) != nc {
		return fmt.Errorf("embedder returned %d/%d vectors for %d/%d inputs",
			len(queryVecs), len(candVecs), nq, nc)
	}
	dim := len(candVecs[0])
	if dim == 0 {
		return fmt.Errorf("embedder returned empty vectors")
	}
	for _, vs := range [][][]float32{queryVecs, candVecs} {
		for _, v := range vs {
			if len(v) != dim {
				return fmt.Errorf("embedding dimension mismatch: %d != %d", len(v), dim)
			}
		}
	}
	return nil
}

func hasZeroVector(vs [][]float32) bool {
	for _, v := range vs {
		zero := true
		for _, x := range v {
			if x != 0 {
				zero = false
				break
			}
		}
		if zero {
			return true
		}
	}
	return false
}

// cosineIndex loads the candidates into a fresh chromem collection and runs
// one nearest-neighbour query per query vector.
func (o *EmbeddingOracle) cosineIndex(ctx context.Context, queries []string, queryVecs [][]float32,
	candidates []string, candVecs [][]float32, topK int) ([]Match, error) {

	db := chromem.NewDB()
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return o.client.EmbedSingle(ctx, text)
	}
	collection, err := db.CreateCollection("candidates", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create candidate index: %w", err)
	}

	docs := make([]chromem.Document, len(candidates))
	for i, c := range candidates {
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(i),
			Content:   c,
			Embedding: utils.NormalizeL2Float32(candVecs[i]),
		}
	}
	if err := collection.AddDocuments(ctx, docs, utils.GetSemaphoreLimit()); err != nil {
		return nil, fmt.Errorf("failed to index candidates: %w", err)
	}

	n := min(topK, collection.Count())
	matches := make([]Match, 0, len(queries)*n)
	for qi, q := range queries {
		results, err := collection.QueryEmbedding(ctx, utils.NormalizeL2Float32(queryVecs[qi]), n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to query candidate index for %q: %w", q, err)
		}

		ms := make([]Match, 0, len(results))
		for _, r := range results {
			idx, err := strconv.Atoi(r.ID)
			if err != nil || idx < 0 || idx >= len(candidates) {
				return nil, fmt.Errorf("candidate index returned unknown id %q", r.ID)
			}
			ms = append(ms, Match{
				Query:     q,
				Candidate: candidates[idx],
				Distance:  clampCosineDistance(1 - float64(r.Similarity)),
			})
		}
		sortMatches(ms)
		matches = append(matches, ms...)
	}

	o.logger.DebugContext(ctx, "cosine index matched",
		"queries", len(queries), "candidates", len(candidates), "top_k", n)
	return matches, nil
}

func clampCosineDistance(d float64) float64 {
	return math.Min(2, math.Max(0, d))
}

// exactScan compares every query with every candidate.
func exactScan(queries []string, queryVecs [][]float32, candidates []string, candVecs [][]float32,
	metric Metric, topK int) []Match {

	cands := make([][]float64, len(candVecs))
	for i, v := range candVecs {
		cands[i] = utils.Float64s(v)
	}

	n := min(topK, len(candidates))
	matches := make([]Match, 0, len(queries)*n)
	for qi, q := range queries {
		qv := utils.Float64s(queryVecs[qi])

		all := make([]Match, len(candidates))
		for ci, cv := range cands {
			all[ci] = Match{Query: q, Candidate: candidates[ci], Distance: distance(qv, cv, metric)}
		}
		sortMatches(all)
		matches = append(matches, all[:n]...)
	}
	return matches
}

func distance(a, b []float64, metric Metric) float64 {
	switch metric {
	case MetricEuclidean:
		return floats.Distance(a, b, 2)
	case MetricDot:
		return -floats.Dot(a, b)
	default:
		na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
		if na == 0 || nb == 0 {
			return 1
		}
		return clampCosineDistance(1 - floats.Dot(a, b)/(na*nb))
	}
}
