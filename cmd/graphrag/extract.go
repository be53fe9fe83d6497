package graphrag

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-graphrag/pkg/extract"
	"github.com/soundprediction/go-graphrag/pkg/extractlog"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract entities and relationships from text chunks",
	Long: `Prompt the language model once per text chunk and write the extracted
entities and relationships as an extraction log that resolve, build and serve
read back.

Chunks in the input file are separated by blank lines.`,
	RunE: runExtract,
}

var (
	extractInput    string
	extractOutput   string
	extractMaxPaths int
)

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&extractInput, "input", "i", "", "Text file of blank-line separated chunks")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "-", "Extraction log to write (- for stdout)")
	extractCmd.Flags().IntVar(&extractMaxPaths, "max-paths-per-chunk", 2, "Relationships kept per chunk (negative keeps all)")
	extractCmd.MarkFlagRequired("input")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("max-paths-per-chunk") {
		cfg.Extract.MaxPathsPerChunk = extractMaxPaths
	}

	svc, err := newServices(cfg, logger, true, false)
	if err != nil {
		return err
	}
	defer svc.Close()
	if svc.generator == nil {
		return errNoLLM
	}

	in, err := os.Open(extractInput)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()
	chunks, err := extract.ReadChunks(in)
	if err != nil {
		return err
	}

	extractor := extract.New(svc.generator, extract.Config{
		MaxPathsPerChunk: cfg.Extract.MaxPathsPerChunk,
		Concurrency:      cfg.Extract.Concurrency,
		Timeout:          cfg.Extract.Timeout,
	}, extract.WithLogger(logger))
	res, err := extractor.Extract(cmd.Context(), chunks)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if extractOutput != "-" {
		f, err := os.Create(extractOutput)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := extractlog.Write(out, res.Mentions, res.Relationships); err != nil {
		return err
	}

	logger.Info("extraction finished",
		"chunks", res.Chunks,
		"failed", len(res.Failures),
		"entities", len(res.Mentions),
		"relationships", len(res.Relationships))
	svc.logUsage(logger)

	if len(res.Failures) == res.Chunks && res.Chunks > 0 {
		return fmt.Errorf("all %d chunks failed", res.Chunks)
	}
	return nil
}
