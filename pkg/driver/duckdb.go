package driver

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/soundprediction/go-graphrag/pkg/types"
)

// DuckDBWriter writes the graph and its communities to DuckDB tables.
type DuckDBWriter struct {
	db *sql.DB
}

// NewDuckDBWriter opens (or creates) the database at dbPath and creates the
// tables. An empty path opens an in-memory database.
func NewDuckDBWriter(ctx context.Context, dbPath string) (*DuckDBWriter, error) {
	if dir := filepath.Dir(dbPath); dbPath != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	w := &DuckDBWriter{db: db}
	if err := w.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return w, nil
}

func (w *DuckDBWriter) createTables(ctx context.Context) error {
	tables := []struct {
		name string
		ddl  string
	}{
		{"entities", `
			CREATE TABLE IF NOT EXISTS entities (
				id VARCHAR PRIMARY KEY,
				entity_type VARCHAR,
				description VARCHAR,
				placeholder BOOLEAN
			)`},
		{"relationships", `
			CREATE TABLE IF NOT EXISTS relationships (
				seq INTEGER PRIMARY KEY,
				source_id VARCHAR,
				target_id VARCHAR,
				relation VARCHAR,
				description VARCHAR
			)`},
		{"communities", `
			CREATE TABLE IF NOT EXISTS communities (
				id INTEGER PRIMARY KEY,
				level INTEGER,
				parent_id INTEGER,
				size INTEGER,
				is_final BOOLEAN
			)`},
		{"community_members", `
			CREATE TABLE IF NOT EXISTS community_members (
				community_id INTEGER,
				entity_id VARCHAR,
				PRIMARY KEY (community_id, entity_id)
			)`},
		{"community_summaries", `
			CREATE TABLE IF NOT EXISTS community_summaries (
				community_id INTEGER PRIMARY KEY,
				summary VARCHAR
			)`},
	}

	for _, t := range tables {
		if _, err := w.db.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}
	return nil
}

// WriteGraph replaces entities and relationships. Relationships are keyed by
// their position so multi-edges survive.
func (w *DuckDBWriter) WriteGraph(ctx context.Context, entities []types.Entity, rels []types.Relationship) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"entities", "relationships"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	entityStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (id, entity_type, description, placeholder)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer entityStmt.Close()

	for _, e := range entities {
		if _, err := entityStmt.ExecContext(ctx, e.ID, e.Type, e.Description, e.IsPlaceholder()); err != nil {
			return fmt.Errorf("failed to insert entity %s: %w", e.ID, err)
		}
	}

	relStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relationships (seq, source_id, target_id, relation, description)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer relStmt.Close()

	for i, r := range rels {
		if _, err := relStmt.ExecContext(ctx, i, r.SourceID, r.TargetID, r.Label, r.Description); err != nil {
			return fmt.Errorf("failed to insert relationship %s: %w", r, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// WriteCommunities replaces communities, memberships and summaries.
func (w *DuckDBWriter) WriteCommunities(ctx context.Context, h *types.Hierarchy, summaries map[int]string) error {
	if h == nil {
		return errNilHierarchy
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"communities", "community_members", "community_summaries"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, row := range communityRows(h, summaries) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO communities (id, level, parent_id, size, is_final)
			VALUES (?, ?, ?, ?, ?)
		`, row.ID, row.Level, row.ParentID, len(row.Members), row.Final); err != nil {
			return fmt.Errorf("failed to insert community %d: %w", row.ID, err)
		}
		for _, m := range row.Members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO community_members (community_id, entity_id) VALUES (?, ?)`,
				row.ID, m); err != nil {
				return fmt.Errorf("failed to insert member %s of community %d: %w", m, row.ID, err)
			}
		}
		if row.HasSum {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO community_summaries (community_id, summary) VALUES (?, ?)`,
				row.ID, row.Summary); err != nil {
				return fmt.Errorf("failed to insert summary of community %d: %w", row.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Stats counts the rows of every table.
func (w *DuckDBWriter) Stats(ctx context.Context) (*GraphStats, error) {
	stats := &GraphStats{}
	counts := []struct {
		table string
		dst   *int64
	}{
		{"entities", &stats.Entities},
		{"relationships", &stats.Relationships},
		{"communities", &stats.Communities},
		{"community_summaries", &stats.Summaries},
	}
	for _, c := range counts {
		if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}
	return stats, nil
}

// Summary reads back the summary of one community.
func (w *DuckDBWriter) Summary(ctx context.Context, communityID int) (string, error) {
	var summary string
	err := w.db.QueryRowContext(ctx,
		`SELECT summary FROM community_summaries WHERE community_id = ?`, communityID).Scan(&summary)
	if err != nil {
		return "", fmt.Errorf("failed to read summary of community %d: %w", communityID, err)
	}
	return summary, nil
}

// Close closes the DuckDB connection.
func (w *DuckDBWriter) Close(context.Context) error {
	if w.db != nil {
		return w.db.Close()
	}
	return nil
}

var _ GraphWriter = (*DuckDBWriter)(nil)
