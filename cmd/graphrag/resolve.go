package graphrag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-graphrag/pkg/config"
	"github.com/soundprediction/go-graphrag/pkg/driver"
	"github.com/soundprediction/go-graphrag/pkg/export"
	"github.com/soundprediction/go-graphrag/pkg/types"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve an extraction log into a graph and export it",
	Long: `Read an extraction log, map every relationship endpoint that was never
extracted as an entity onto its most similar entity (or a placeholder of type
Resource) and write the resulting graph.

Output formats:
- simple:   entities.csv and relationships.csv
- ntriples: data.nt
- neo4j:    nodes.csv and relationships.csv for neo4j-admin import
- duckdb:   entities, relationships and community tables

With --neo4j-uri the graph and its communities are also merged into a running
Neo4j database.`,
	RunE: runResolve,
}

var (
	resolveInput     string
	resolveFormat    string
	resolveOutputDir string
	resolveNeo4jURI  string
)

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVarP(&resolveInput, "input", "i", "", "Extraction log to resolve")
	resolveCmd.Flags().StringVar(&resolveFormat, "outputFormat", "simple", "Output format (simple, ntriples, neo4j, duckdb)")
	resolveCmd.Flags().StringVarP(&resolveOutputDir, "output-dir", "o", ".", "Directory for the output files")
	resolveCmd.Flags().StringVar(&resolveNeo4jURI, "neo4j-uri", "", "Also merge the graph into this Neo4j database")
	resolveCmd.MarkFlagRequired("input")
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("outputFormat") {
		cfg.Export.Format = resolveFormat
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.Export.Dir = resolveOutputDir
	}
	if cmd.Flags().Changed("neo4j-uri") {
		cfg.Database.URI = resolveNeo4jURI
	}
	format, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return err
	}

	svc, err := newServices(cfg, logger, false, true)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := cmd.Context()
	p, report, err := runPipeline(ctx, cfg, logger, svc, resolveInput)
	if err != nil {
		return err
	}
	store, err := p.Store()
	if err != nil {
		return err
	}
	entities, rels := store.Entities(), store.Relationships()

	if err := writeOutput(ctx, cfg, format, entities, rels, report.Hierarchy, nil); err != nil {
		return err
	}
	logger.Info("output written", "format", format, "dir", cfg.Export.Dir)

	if cfg.Database.URI != "" {
		if err := pushNeo4j(ctx, cfg, entities, rels, report.Hierarchy, nil); err != nil {
			return err
		}
		logger.Info("graph exported to Neo4j", "uri", cfg.Database.URI)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Resolved %d entities and %d relationships: %d endpoints merged, %d placeholders, %d lines skipped\n",
		report.Entities, report.Relationships, len(report.Mapping), len(report.Placeholders), report.SkippedLines)
	for _, name := range sortedKeys(report.Mapping) {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s -> %s\n", name, report.Mapping[name])
	}
	return nil
}

// writeOutput writes the graph in the selected format into cfg.Export.Dir.
func writeOutput(ctx context.Context, cfg *config.Config, format export.Format, entities []types.Entity, rels []types.Relationship, h *types.Hierarchy, summaries map[int]string) error {
	dir := cfg.Export.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	switch format {
	case export.FormatSimple:
		return export.WriteSimple(dir, entities, rels)
	case export.FormatNeo4j:
		return export.WriteNeo4j(dir, entities, rels)
	case export.FormatNTriples:
		return export.WriteNTriplesFile(dir, entities, rels, export.NTriplesOptions{
			EntityBase:   cfg.Export.EntityBase,
			OntologyBase: cfg.Export.OntologyBase,
		})
	case export.FormatDuckDB:
		path := cfg.Export.DuckDBPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		w, err := driver.NewDuckDBWriter(ctx, path)
		if err != nil {
			return err
		}
		defer w.Close(ctx)
		return driver.WriteAll(ctx, w, entities, rels, h, summaries)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// pushNeo4j merges the graph and its communities into cfg.Database.
func pushNeo4j(ctx context.Context, cfg *config.Config, entities []types.Entity, rels []types.Relationship, h *types.Hierarchy, summaries map[int]string) error {
	w, err := driver.NewNeo4jWriter(cfg.Database.URI, cfg.Database.Username, cfg.Database.Password, cfg.Database.Database)
	if err != nil {
		return err
	}
	defer w.Close(context.Background())

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := w.VerifyConnectivity(verifyCtx); err != nil {
		return fmt.Errorf("failed to connect to Neo4j at %s: %w", cfg.Database.URI, err)
	}
	if err := w.CreateIndices(ctx); err != nil {
		return fmt.Errorf("failed to create Neo4j constraints: %w", err)
	}
	return driver.WriteAll(ctx, w, entities, rels, h, summaries)
}

func logSummaryFailures(logger *slog.Logger, failures map[int]error) {
	for _, id := range sortedKeys(failures) {
		logger.Warn("community not summarized", "community", id, "error", failures[id])
	}
}
