package driver

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/soundprediction/go-graphrag/pkg/types"
)

// neo4jBatchSize bounds the rows sent in one UNWIND statement.
const neo4jBatchSize = 500

// Neo4jWriter merges the graph into a Neo4j database over Bolt.
type Neo4jWriter struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jWriter creates a writer. The connection is established lazily;
// call VerifyConnectivity to fail fast.
func NewNeo4jWriter(uri, username, password, database string) (*Neo4jWriter, error) {
	client, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jWriter{client: client, database: database}, nil
}

// VerifyConnectivity checks that the server is reachable.
func (n *Neo4jWriter) VerifyConnectivity(ctx context.Context) error {
	return n.client.VerifyConnectivity(ctx)
}

// CreateIndices creates the uniqueness constraints the MERGE statements
// rely on.
func (n *Neo4jWriter) CreateIndices(ctx context.Context) error {
	return n.write(ctx, func(tx neo4j.ManagedTransaction) error {
		for _, q := range []string{
			"CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE",
			"CREATE CONSTRAINT community_id IF NOT EXISTS FOR (c:Community) REQUIRE c.id IS UNIQUE",
		} {
			if _, err := tx.Run(ctx, q, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

const (
	mergeEntitiesQuery = `
		UNWIND $rows AS row
		MERGE (e:Entity {id: row.id})
		SET e.type = row.type, e.description = row.description, e.placeholder = row.placeholder
	`
	mergeRelationshipsQuery = `
		UNWIND $rows AS row
		MATCH (s:Entity {id: row.source})
		MATCH (t:Entity {id: row.target})
		MERGE (s)-[r:RELATES_TO {seq: row.seq}]->(t)
		SET r.label = row.label, r.description = row.description
	`
	mergeCommunitiesQuery = `
		UNWIND $rows AS row
		MERGE (c:Community {id: row.id})
		SET c.level = row.level, c.parent_id = row.parent_id, c.is_final = row.is_final,
			c.size = size(row.members), c.summary = row.summary
		WITH c, row
		UNWIND row.members AS member
		MATCH (e:Entity {id: member})
		MERGE (e)-[:IN_COMMUNITY]->(c)
	`
	linkParentsQuery = `
		UNWIND $rows AS row
		MATCH (c:Community {id: row.id})
		MATCH (p:Community {id: row.parent_id})
		MERGE (c)-[:CHILD_OF]->(p)
	`
)

// WriteGraph merges entities and relationships. Relationships are keyed by
// their position so multi-edges survive.
func (n *Neo4jWriter) WriteGraph(ctx context.Context, entities []types.Entity, rels []types.Relationship) error {
	if err := n.unwind(ctx, mergeEntitiesQuery, entityParams(entities)); err != nil {
		return fmt.Errorf("failed to merge entities: %w", err)
	}
	if err := n.unwind(ctx, mergeRelationshipsQuery, relationshipParams(rels)); err != nil {
		return fmt.Errorf("failed to merge relationships: %w", err)
	}
	return nil
}

// WriteCommunities merges community nodes, membership and parent links.
func (n *Neo4jWriter) WriteCommunities(ctx context.Context, h *types.Hierarchy, summaries map[int]string) error {
	if h == nil {
		return errNilHierarchy
	}
	rows := communityParams(h, summaries)
	if err := n.unwind(ctx, mergeCommunitiesQuery, rows); err != nil {
		return fmt.Errorf("failed to merge communities: %w", err)
	}

	var children []map[string]any
	for _, row := range rows {
		if row["parent_id"].(int64) != types.NoParent {
			children = append(children, row)
		}
	}
	if err := n.unwind(ctx, linkParentsQuery, children); err != nil {
		return fmt.Errorf("failed to link communities: %w", err)
	}
	return nil
}

func (n *Neo4jWriter) unwind(ctx context.Context, query string, rows []map[string]any) error {
	for start := 0; start < len(rows); start += neo4jBatchSize {
		batch := rows[start:min(start+neo4jBatchSize, len(rows))]
		err := n.write(ctx, func(tx neo4j.ManagedTransaction) error {
			_, err := tx.Run(ctx, query, map[string]any{"rows": batch})
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (n *Neo4jWriter) write(ctx context.Context, fn func(tx neo4j.ManagedTransaction) error) error {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(tx)
	})
	return err
}

// Close closes the driver.
func (n *Neo4jWriter) Close(ctx context.Context) error {
	return n.client.Close(ctx)
}

func entityParams(entities []types.Entity) []map[string]any {
	rows := make([]map[string]any, len(entities))
	for i, e := range entities {
		rows[i] = map[string]any{
			"id":          e.ID,
			"type":        e.Type,
			"description": e.Description,
			"placeholder": e.IsPlaceholder(),
		}
	}
	return rows
}

func relationshipParams(rels []types.Relationship) []map[string]any {
	rows := make([]map[string]any, len(rels))
	for i, r := range rels {
		rows[i] = map[string]any{
			"seq":         int64(i),
			"source":      r.SourceID,
			"target":      r.TargetID,
			"label":       r.Label,
			"description": r.Description,
		}
	}
	return rows
}

func communityParams(h *types.Hierarchy, summaries map[int]string) []map[string]any {
	var rows []map[string]any
	for _, c := range communityRows(h, summaries) {
		members := make([]any, len(c.Members))
		for i, m := range c.Members {
			members[i] = m
		}
		row := map[string]any{
			"id":        int64(c.ID),
			"level":     int64(c.Level),
			"parent_id": int64(c.ParentID),
			"is_final":  c.Final,
			"members":   members,
			"summary":   nil,
		}
		if c.HasSum {
			row["summary"] = c.Summary
		}
		rows = append(rows, row)
	}
	return rows
}

var _ GraphWriter = (*Neo4jWriter)(nil)
