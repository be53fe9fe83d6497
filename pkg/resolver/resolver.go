// Package resolver maps relationship endpoints that were never extracted as
// entities onto known entities, and materializes placeholders for the rest.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/soundprediction/go-graphrag/pkg/similarity"
	"github.com/soundprediction/go-graphrag/pkg/types"
)

// DefaultTimeout bounds one similarity query.
const DefaultTimeout = 30 * time.Second

// Config controls resolution.
type Config struct {
	// TopK is the number of matches requested per unknown name. Only the
	// nearest is used. Default 1.
	TopK int
	// Metric is the distance metric. Default cosine.
	Metric similarity.Metric
	// MaxDistance rejects matches farther than this. Zero accepts the
	// nearest match whatever its distance.
	MaxDistance float64
	// Timeout bounds the similarity query. Default 30s.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = 1
	}
	if c.Metric == "" {
		c.Metric = similarity.MetricCosine
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Result is the outcome of one resolution.
type Result struct {
	// Entities are the explicit entities followed by placeholders.
	Entities []types.Entity
	// Relationships have every endpoint rewritten through Mapping.
	Relationships []types.Relationship
	// Mapping maps each merged unknown name to its entity id.
	Mapping map[string]string
	// Placeholders lists the unknown names materialized as placeholder
	// entities, sorted.
	Placeholders []string
	// OracleErr records why the similarity query failed, if it did. The
	// affected names are placeholders.
	OracleErr error
}

// Resolver resolves unknown relationship endpoints through a similarity
// oracle.
type Resolver struct {
	oracle similarity.Oracle
	config Config
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a resolver. A nil oracle turns every unknown name into a
// placeholder.
func New(oracle similarity.Oracle, config Config, opts ...Option) *Resolver {
	r := &Resolver{oracle: oracle, config: config.withDefaults(), logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve rewrites relationship endpoints onto known entities. Entity ids
// must be unique and already normalized.
//
// Oracle failures never fail resolution: unknown names fall through to
// placeholders and the failure is reported in Result.OracleErr. Only a
// cancelled ctx aborts resolution.
func (r *Resolver) Resolve(ctx context.Context, entities []types.Entity, rels []types.Relationship) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(entities))
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		if _, ok := known[e.ID]; ok {
			continue
		}
		known[e.ID] = struct{}{}
		ids = append(ids, e.ID)
	}

	unknown := unknownEndpoints(known, rels)
	result := &Result{Mapping: make(map[string]string)}

	if len(unknown) > 0 && len(ids) > 0 && r.oracle != nil {
		mapping, err := r.match(ctx, unknown, ids, known)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.WarnContext(ctx, "similarity oracle failed, unresolved names become placeholders",
				"unknown", len(unknown), "error", err)
			result.OracleErr = err
		} else {
			result.Mapping = mapping
		}
	}

	result.Entities = make([]types.Entity, len(entities), len(entities)+len(unknown))
	copy(result.Entities, entities)
	for _, name := range unknown {
		if _, ok := result.Mapping[name]; ok {
			continue
		}
		result.Entities = append(result.Entities, types.NewPlaceholderEntity(name))
		result.Placeholders = append(result.Placeholders, name)
	}

	result.Relationships = make([]types.Relationship, len(rels))
	for i, rel := range rels {
		if to, ok := result.Mapping[rel.SourceID]; ok {
			rel.SourceID = to
		}
		if to, ok := result.Mapping[rel.TargetID]; ok {
			rel.TargetID = to
		}
		result.Relationships[i] = rel
	}

	r.logger.InfoContext(ctx, "entities resolved",
		"explicit", len(ids),
		"unknown", len(unknown),
		"merged", len(result.Mapping),
		"placeholders", len(result.Placeholders))
	return result, nil
}

// unknownEndpoints returns the sorted distinct endpoint names absent from
// known.
func unknownEndpoints(known map[string]struct{}, rels []types.Relationship) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, rel := range rels {
		for _, name := range [2]string{rel.SourceID, rel.TargetID} {
			if _, ok := known[name]; ok {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// errMalformedMatches marks oracle output that cannot be trusted.
var errMalformedMatches = errors.New("malformed similarity matches")

// match queries the oracle and keeps the nearest acceptable candidate per
// unknown name. Any malformed match rejects the whole answer.
func (r *Resolver) match(ctx context.Context, unknown, ids []string, known map[string]struct{}) (map[string]string, error) {
	qctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	matches, err := r.oracle.BestMatch(qctx, unknown, ids, r.config.Metric, r.config.TopK)
	if err != nil {
		return nil, fmt.Errorf("similarity query failed: %w", err)
	}

	queried := make(map[string]struct{}, len(unknown))
	for _, u := range unknown {
		queried[u] = struct{}{}
	}

	best := make(map[string]similarity.Match, len(unknown))
	for _, m := range matches {
		if _, ok := queried[m.Query]; !ok {
			return nil, fmt.Errorf("%w: unexpected query %q", errMalformedMatches, m.Query)
		}
		if _, ok := known[m.Candidate]; !ok {
			return nil, fmt.Errorf("%w: candidate %q is not a known entity", errMalformedMatches, m.Candidate)
		}
		if math.IsNaN(m.Distance) {
			return nil, fmt.Errorf("%w: NaN distance for %q", errMalformedMatches, m.Query)
		}

		cur, ok := best[m.Query]
		if !ok || m.Distance < cur.Distance || (m.Distance == cur.Distance && m.Candidate < cur.Candidate) {
			best[m.Query] = m
		}
	}

	mapping := make(map[string]string, len(best))
	for q, m := range best {
		if r.config.MaxDistance > 0 && m.Distance > r.config.MaxDistance {
			r.logger.DebugContext(ctx, "match rejected by distance threshold",
				"name", q, "candidate", m.Candidate, "distance", m.Distance)
			continue
		}
		mapping[q] = m.Candidate
	}
	return mapping, nil
}
