// Package graph holds the in-memory property graph of one pipeline run.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/soundprediction/go-graphrag/pkg/types"
)

var (
	// ErrGraphConsistency is returned when a relationship references an
	// entity that does not exist.
	ErrGraphConsistency = errors.New("graph consistency violation")
	// ErrFrozen is returned by mutations after Freeze.
	ErrFrozen = errors.New("graph is frozen")
	// ErrEntityNotFound is returned by lookups of unknown entity ids.
	ErrEntityNotFound = errors.New("entity not found")
)

// MergePolicy decides what happens when an entity id is added twice.
type MergePolicy int

const (
	// KeepFirst ignores later entities with an existing id.
	KeepFirst MergePolicy = iota
	// Concatenate appends distinct non-empty descriptions, space separated.
	// The type of the first entity is kept.
	Concatenate
)

// ParseMergePolicy parses "keep-first" or "concatenate".
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep-first", "keep_first", "first":
		return KeepFirst, nil
	case "concatenate", "concat":
		return Concatenate, nil
	default:
		return KeepFirst, fmt.Errorf("unknown merge policy %q", s)
	}
}

// Store is a directed multigraph of entities and relationships. It is safe
// for concurrent use.
type Store struct {
	mu       sync.RWMutex
	policy   MergePolicy
	logger   *slog.Logger
	frozen   bool
	order    []string
	entities map[string]*types.Entity
	rels     []types.Relationship
	// incident maps an entity id to indexes into rels, in insertion order.
	incident map[string][]int
}

// Option configures a Store.
type Option func(*Store)

// WithMergePolicy sets the duplicate entity policy.
func WithMergePolicy(p MergePolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		logger:   slog.Default(),
		entities: make(map[string]*types.Entity),
		incident: make(map[string][]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddEntity upserts e by id and reports whether it was new. After Freeze it
// returns false and leaves the store unchanged.
func (s *Store) AddEntity(e types.Entity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		s.logger.Warn("entity added to frozen graph", "entity", e.ID)
		return false
	}

	if cur, ok := s.entities[e.ID]; ok {
		if s.policy == Concatenate && e.Description != "" && !strings.Contains(cur.Description, e.Description) {
			if cur.Description == "" {
				cur.Description = e.Description
			} else {
				cur.Description += " " + e.Description
			}
		}
		return false
	}

	stored := e
	s.entities[e.ID] = &stored
	s.order = append(s.order, e.ID)
	return true
}

// AddRelationship appends r. Both endpoints must already exist; otherwise
// the error wraps ErrGraphConsistency and names the relationship.
func (s *Store) AddRelationship(r types.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return fmt.Errorf("add relationship %s: %w", r, ErrFrozen)
	}
	if _, ok := s.entities[r.SourceID]; !ok {
		return fmt.Errorf("%w: relationship %s references unknown source %q", ErrGraphConsistency, r, r.SourceID)
	}
	if _, ok := s.entities[r.TargetID]; !ok {
		return fmt.Errorf("%w: relationship %s references unknown target %q", ErrGraphConsistency, r, r.TargetID)
	}

	idx := len(s.rels)
	s.rels = append(s.rels, r)
	s.incident[r.SourceID] = append(s.incident[r.SourceID], idx)
	if r.TargetID != r.SourceID {
		s.incident[r.TargetID] = append(s.incident[r.TargetID], idx)
	}
	return nil
}

// Freeze makes the store read-only.
func (s *Store) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
}

// Frozen reports whether Freeze was called.
func (s *Store) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

// Entity returns the entity with the given id.
func (s *Store) Entity(id string) (types.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return types.Entity{}, fmt.Errorf("%w: %q", ErrEntityNotFound, id)
	}
	return *e, nil
}

// Entities returns all entities in insertion order.
func (s *Store) Entities() []types.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Entity, len(s.order))
	for i, id := range s.order {
		out[i] = *s.entities[id]
	}
	return out
}

// Relationships returns all relationships in insertion order.
func (s *Store) Relationships() []types.Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Relationship, len(s.rels))
	copy(out, s.rels)
	return out
}

// IncidentRelationships returns the relationships that have id as source or
// target, in insertion order. A self-loop is returned once.
func (s *Store) IncidentRelationships(id string) []types.Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idxs := s.incident[id]
	out := make([]types.Relationship, len(idxs))
	for i, idx := range idxs {
		out[i] = s.rels[idx]
	}
	return out
}

// Neighbors returns the distinct ids connected to id in either direction,
// sorted. id itself is included only through a self-loop.
func (s *Store) Neighbors(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, idx := range s.incident[id] {
		r := s.rels[idx]
		other := r.TargetID
		if other == id {
			other = r.SourceID
		}
		seen[other] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// NumEntities returns the number of entities.
func (s *Store) NumEntities() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// NumRelationships returns the number of relationships.
func (s *Store) NumRelationships() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rels)
}

// Validate checks that every relationship endpoint exists.
func (s *Store) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var errs []error
	for _, r := range s.rels {
		for _, id := range [2]string{r.SourceID, r.TargetID} {
			if _, ok := s.entities[id]; !ok {
				errs = append(errs, fmt.Errorf("%w: relationship %s references unknown entity %q", ErrGraphConsistency, r, id))
			}
		}
	}
	return errors.Join(errs...)
}
