// Package similarity answers "which candidate string is closest to each
// query string" for entity resolution.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoCandidates is returned when a query is made against an empty
// candidate set.
var ErrNoCandidates = errors.New("no candidates to match against")

// Metric selects the distance function. Lower distance is closer for every
// metric.
type Metric string

const (
	// MetricCosine is 1 - cosine similarity.
	MetricCosine Metric = "cosine"
	// MetricEuclidean is the L2 distance.
	MetricEuclidean Metric = "euclidean"
	// MetricDot is the negated inner product.
	MetricDot Metric = "dot"
)

// ParseMetric parses a metric name. The empty string selects cosine.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MetricCosine, nil
	case MetricCosine, MetricEuclidean, MetricDot:
		return m, nil
	default:
		return "", fmt.Errorf("unknown similarity metric %q", s)
	}
}

// Match pairs a query with one of its nearest candidates.
type Match struct {
	Query     string  `json:"query"`
	Candidate string  `json:"candidate"`
	Distance  float64 `json:"distance"`
}

// Oracle finds, for each query, its topK nearest candidates.
//
// Matches are grouped by query in input order, nearest first. A query may
// have fewer than topK matches when there are fewer candidates.
type Oracle interface {
	BestMatch(ctx context.Context, queries, candidates []string, metric Metric, topK int) ([]Match, error)
}

// sortMatches orders one query's matches by distance, then candidate.
func sortMatches(ms []Match) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Distance != ms[j].Distance {
			return ms[i].Distance < ms[j].Distance
		}
		return ms[i].Candidate < ms[j].Candidate
	})
}

// dedupe returns the distinct strings of in, keeping first occurrences.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
