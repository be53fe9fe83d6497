package graphrag

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/go-graphrag/pkg/community"
	"github.com/soundprediction/go-graphrag/pkg/config"
	"github.com/soundprediction/go-graphrag/pkg/export"
	"github.com/soundprediction/go-graphrag/pkg/graph"
	"github.com/soundprediction/go-graphrag/pkg/logger"
	"github.com/soundprediction/go-graphrag/pkg/similarity"
	"github.com/soundprediction/go-graphrag/pkg/types"
)

const sampleLog = `Processing chunk 1
[('Apple', 'Company', 'Tech company'), ('iPhone', 'Product', 'Smartphone'), ('Apple', 'iPhone', 'Produces', 'Apple makes iPhone')]
[('Apple', 'Cupertino', 'LocatedIn', 'Apple is based in Cupertino')]
[('broken', 'line'
`

func writeSampleLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extraction.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o644))
	return path
}

func quietLogger() *slog.Logger {
	return logger.NewLogger(io.Discard, slog.LevelError)
}

// offlineEnv clears every variable that would enable a remote service.
func offlineEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENAI_API_KEY", "GRAPHRAG_LLM_API_KEY", "GRAPHRAG_LLM_BASE_URL",
		"GRAPHRAG_EMBEDDING_API_KEY", "GRAPHRAG_EMBEDDING_BASE_URL", "NEO4J_URI",
	} {
		t.Setenv(k, "")
	}
}

func TestPipelineConfig(t *testing.T) {
	cfg := &config.Config{
		Resolver: config.ResolverConfig{
			TopK: 3, Metric: "euclidean", MaxDistance: 0.5, MergePolicy: "concatenate",
		},
		Partition: config.PartitionConfig{
			MaxClusterSize: 7, Seed: 1, Algorithm: "label-propagation",
		},
		Summarizer: config.SummarizerConfig{Concurrency: 2},
	}

	pcfg, err := pipelineConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, graph.Concatenate, pcfg.MergePolicy)
	assert.Equal(t, 3, pcfg.Resolver.TopK)
	assert.Equal(t, similarity.MetricEuclidean, pcfg.Resolver.Metric)
	assert.Equal(t, 7, pcfg.Partition.MaxClusterSize)
	assert.Equal(t, community.AlgorithmLabelPropagation, pcfg.Partition.Algorithm)
	assert.Equal(t, 2, pcfg.Summarizer.Concurrency)

	for _, mutate := range []func(*config.Config){
		func(c *config.Config) { c.Resolver.MergePolicy = "newest" },
		func(c *config.Config) { c.Resolver.Metric = "manhattan" },
		func(c *config.Config) { c.Partition.Algorithm = "spectral" },
	} {
		bad := *cfg
		mutate(&bad)
		_, err := pipelineConfig(&bad)
		assert.Error(t, err)
	}
}

func TestLoadInput(t *testing.T) {
	in, err := loadInput(writeSampleLog(t), quietLogger())
	require.NoError(t, err)

	assert.Len(t, in.Entities, 2)
	assert.Len(t, in.Relationships, 2)
	assert.Equal(t, 1, in.SkippedLines)

	_, err = loadInput(filepath.Join(t.TempDir(), "missing.log"), quietLogger())
	assert.Error(t, err)
}

func TestNewServices_Offline(t *testing.T) {
	cfg := &config.Config{Cache: config.CacheConfig{Enabled: true}}
	svc, err := newServices(cfg, quietLogger(), true, true)
	require.NoError(t, err)
	defer svc.Close()

	assert.Nil(t, svc.generator)
	assert.Nil(t, svc.oracle)
	assert.Nil(t, svc.cache, "no cache is opened when nothing would use it")
}

func TestNewServices_Configured(t *testing.T) {
	cfg := &config.Config{
		LLM:       config.LLMConfig{APIKey: "sk-test", Model: "gpt-4o-mini", BreakerFailures: 3},
		Embedding: config.EmbeddingConfig{APIKey: "sk-test"},
		Cache:     config.CacheConfig{Enabled: true},
	}
	svc, err := newServices(cfg, quietLogger(), true, true)
	require.NoError(t, err)

	assert.NotNil(t, svc.generator)
	assert.NotNil(t, svc.oracle)
	assert.NotNil(t, svc.cache)
	assert.NoError(t, svc.Close())
}

func TestWriteOutput(t *testing.T) {
	entities := []types.Entity{
		{ID: "Apple", Type: "Company"},
		types.NewPlaceholderEntity("Cupertino"),
	}
	rels := []types.Relationship{{SourceID: "Apple", TargetID: "Cupertino", Label: "LocatedIn"}}

	tests := []struct {
		format export.Format
		files  []string
	}{
		{export.FormatSimple, []string{export.SimpleEntitiesFile, export.SimpleRelationshipsFile}},
		{export.FormatNeo4j, []string{export.Neo4jNodesFile, export.Neo4jRelationshipsFile}},
		{export.FormatNTriples, []string{export.NTriplesFile}},
		{export.FormatDuckDB, []string{"graph.duckdb"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			cfg := &config.Config{Export: config.ExportConfig{
				Dir:        filepath.Join(t.TempDir(), "out"),
				DuckDBPath: "graph.duckdb",
			}}
			require.NoError(t, writeOutput(context.Background(), cfg, tt.format, entities, rels, &types.Hierarchy{}, nil))
			for _, f := range tt.files {
				assert.FileExists(t, filepath.Join(cfg.Export.Dir, f))
			}
		})
	}
}

func TestResolveCommand(t *testing.T) {
	offlineEnv(t)
	input := writeSampleLog(t)
	outDir := filepath.Join(t.TempDir(), "out")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"resolve", "--input", input, "--output-dir", outDir, "--log-level", "error"})
	defer rootCmd.SetArgs(nil)
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, stdout.String(), "Resolved 3 entities and 2 relationships")
	assert.Contains(t, stdout.String(), "1 placeholders, 1 lines skipped")

	data, err := os.ReadFile(filepath.Join(outDir, export.SimpleEntitiesFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Cupertino,Resource,")
}

func TestBuildCommand_WithoutLLM(t *testing.T) {
	offlineEnv(t)
	input := writeSampleLog(t)
	output := filepath.Join(t.TempDir(), "summaries.json")

	rootCmd.SetArgs([]string{"build", "--input", input, "--output", output, "--max-cluster-size", "2", "--log-level", "error"})
	defer rootCmd.SetArgs(nil)
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var out buildOutputFile
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, 3, out.Entities)
	assert.Equal(t, []string{"Cupertino"}, out.Placeholders)
	assert.Empty(t, out.Summaries)
	require.NotNil(t, out.Hierarchy)
	for _, c := range out.Hierarchy.Finest() {
		assert.LessOrEqual(t, c.Size(), 2)
	}
}

func TestVersionCommand(t *testing.T) {
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, stdout.String(), "Version:    dev")
}
