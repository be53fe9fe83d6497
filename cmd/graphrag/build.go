package graphrag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-graphrag/pkg/export"
	"github.com/soundprediction/go-graphrag/pkg/llm"
	"github.com/soundprediction/go-graphrag/pkg/types"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build and summarize the community hierarchy of an extraction log",
	Long: `Resolve an extraction log, partition the graph into a hierarchy of
communities no larger than --max-cluster-size and summarize every
finest-level community with the language model.

The hierarchy and the summaries are written as JSON. Without a configured
language model only the hierarchy is written.`,
	RunE: runBuild,
}

var (
	buildInput          string
	buildOutput         string
	buildMaxClusterSize int
	buildSeed           uint64
	buildAlgorithm      string
	buildUsageFile      string
	buildDuckDB         string
	buildRefresh        bool
)

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildInput, "input", "i", "", "Extraction log to build from")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "summaries.json", "JSON file for the hierarchy and summaries")
	buildCmd.Flags().IntVar(&buildMaxClusterSize, "max-cluster-size", 5, "Largest community that is not split further")
	buildCmd.Flags().Uint64Var(&buildSeed, "seed", 42, "Seed for community detection")
	buildCmd.Flags().StringVar(&buildAlgorithm, "algorithm", "leiden", "Community detection algorithm (leiden, label-propagation)")
	buildCmd.Flags().StringVar(&buildUsageFile, "usage-file", "", "Write LLM token usage and cost to this JSON file")
	buildCmd.Flags().StringVar(&buildDuckDB, "duckdb", "", "Also write the graph, communities and summaries to this DuckDB file")
	buildCmd.Flags().BoolVar(&buildRefresh, "refresh-summaries", false, "Drop cached LLM responses before summarizing")
	buildCmd.MarkFlagRequired("input")
}

// buildOutputFile is the JSON layout written by build.
type buildOutputFile struct {
	RunID        string           `json:"run_id"`
	Entities     int              `json:"entities"`
	Placeholders []string         `json:"placeholders"`
	Hierarchy    *types.Hierarchy `json:"hierarchy"`
	Summaries    map[int]string   `json:"summaries"`
	Failures     map[int]string   `json:"failures,omitempty"`
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("max-cluster-size") {
		cfg.Partition.MaxClusterSize = buildMaxClusterSize
	}
	if cmd.Flags().Changed("seed") {
		cfg.Partition.Seed = buildSeed
	}
	if cmd.Flags().Changed("algorithm") {
		cfg.Partition.Algorithm = buildAlgorithm
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	svc, err := newServices(cfg, logger, true, true)
	if err != nil {
		return err
	}
	defer svc.Close()
	if svc.generator == nil {
		logger.Warn("no LLM configured; communities will not be summarized")
	}
	if buildRefresh && svc.cache != nil {
		n, _ := svc.cache.Len(llm.CachePrefix)
		if err := svc.cache.DropPrefix(llm.CachePrefix); err != nil {
			return fmt.Errorf("failed to refresh cache: %w", err)
		}
		logger.Info("cached LLM responses dropped", "entries", n)
	}

	ctx := cmd.Context()
	p, report, err := runPipeline(ctx, cfg, logger, svc, buildInput)
	if err != nil {
		return err
	}
	logSummaryFailures(logger, report.Failures)
	svc.logUsage(logger)

	out := buildOutputFile{
		RunID:        report.RunID.String(),
		Entities:     report.Entities,
		Placeholders: report.Placeholders,
		Hierarchy:    report.Hierarchy,
		Summaries:    report.Summaries,
	}
	if out.Summaries == nil {
		out.Summaries = map[int]string{}
	}
	if len(report.Failures) > 0 {
		out.Failures = make(map[int]string, len(report.Failures))
		for id, ferr := range report.Failures {
			out.Failures[id] = ferr.Error()
		}
	}
	if err := writeJSON(buildOutput, out); err != nil {
		return err
	}
	logger.Info("summaries written", "path", buildOutput, "summaries", len(out.Summaries))

	if buildDuckDB != "" {
		store, err := p.Store()
		if err != nil {
			return err
		}
		cfg.Export.Dir = filepath.Dir(buildDuckDB)
		cfg.Export.DuckDBPath = filepath.Base(buildDuckDB)
		if err := writeOutput(ctx, cfg, export.FormatDuckDB, store.Entities(), store.Relationships(), report.Hierarchy, report.Summaries); err != nil {
			return err
		}
		logger.Info("DuckDB written", "path", buildDuckDB)
	}

	if buildUsageFile != "" {
		if err := svc.tracker.Save(buildUsageFile); err != nil {
			return fmt.Errorf("failed to save usage: %w", err)
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
