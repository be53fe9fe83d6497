package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/soundprediction/go-graphrag/pkg/types"
)

// GraphWriter persists the result of a pipeline run to an external
// database. Writes are idempotent: writing the same run twice leaves one
// copy.
type GraphWriter interface {
	// WriteGraph stores entities and relationships.
	WriteGraph(ctx context.Context, entities []types.Entity, rels []types.Relationship) error

	// WriteCommunities stores every community of every level together with
	// the summaries of the finest ones.
	WriteCommunities(ctx context.Context, h *types.Hierarchy, summaries map[int]string) error

	// Close releases the connection.
	Close(ctx context.Context) error
}

// GraphStats counts what a writer holds.
type GraphStats struct {
	Entities      int64 `json:"entities"`
	Relationships int64 `json:"relationships"`
	Communities   int64 `json:"communities"`
	Summaries     int64 `json:"summaries"`
}

// WriteAll writes the graph and then its communities.
func WriteAll(ctx context.Context, w GraphWriter, entities []types.Entity, rels []types.Relationship, h *types.Hierarchy, summaries map[int]string) error {
	if err := w.WriteGraph(ctx, entities, rels); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	if h.Empty() {
		return nil
	}
	if err := w.WriteCommunities(ctx, h, summaries); err != nil {
		return fmt.Errorf("write communities: %w", err)
	}
	return nil
}

var errNilHierarchy = errors.New("hierarchy is nil")

// communityRow flattens one community for bulk writes.
type communityRow struct {
	ID       int
	Level    int
	ParentID int
	Final    bool
	Members  []string
	Summary  string
	HasSum   bool
}

func communityRows(h *types.Hierarchy, summaries map[int]string) []communityRow {
	var rows []communityRow
	for _, level := range h.Levels {
		for _, c := range level {
			summary, ok := summaries[c.ID]
			rows = append(rows, communityRow{
				ID:       c.ID,
				Level:    c.Level,
				ParentID: c.ParentID,
				Final:    c.Final,
				Members:  c.Members,
				Summary:  summary,
				HasSum:   ok,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}
