package graphrag

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-graphrag/pkg/config"
	"github.com/soundprediction/go-graphrag/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Build the graph of an extraction log and serve it over HTTP",
	Long: `Run the full pipeline over an extraction log and start the HTTP server.

The server provides endpoints for:
- Health and readiness checks (/healthcheck, /ready)
- Finest-level communities (/communities, /communities/:id)
- Community summaries (/summaries)
- Entities and their community (/entities/:id)

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServe,
}

var (
	serveInput string
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveInput, "input", "i", "", "Extraction log to build from")
	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serveCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serveCmd.Flags().StringVar(&serverMode, "mode", "release", "Server mode (debug, release, test)")

	// LLM flags
	serveCmd.Flags().String("llm-model", "gpt-4o-mini", "LLM model")
	serveCmd.Flags().String("llm-api-key", "", "LLM API key")
	serveCmd.Flags().String("llm-base-url", "", "LLM base URL")

	// Embedding flags
	serveCmd.Flags().String("embedding-model", "text-embedding-3-small", "Embedding model")
	serveCmd.Flags().String("embedding-api-key", "", "Embedding API key")
	serveCmd.Flags().String("embedding-base-url", "", "Embedding base URL")

	serveCmd.MarkFlagRequired("input")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	overrideServeFlags(cmd, cfg)
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

	ctx := cmd.Context()
	p, report, err := runPipeline(ctx, cfg, logger, svc, serveInput)
	if err != nil {
		return err
	}
	logSummaryFailures(logger, report.Failures)

	srv := server.New(cfg, p, server.WithLogger(logger))
	srv.Setup()

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		logger.Info("server stopped gracefully")
		return nil
	}
}

func overrideServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}

	if cmd.Flags().Changed("llm-model") {
		cfg.LLM.Model, _ = cmd.Flags().GetString("llm-model")
	}
	if cmd.Flags().Changed("llm-api-key") {
		cfg.LLM.APIKey, _ = cmd.Flags().GetString("llm-api-key")
	}
	if cmd.Flags().Changed("llm-base-url") {
		cfg.LLM.BaseURL, _ = cmd.Flags().GetString("llm-base-url")
	}

	if cmd.Flags().Changed("embedding-model") {
		cfg.Embedding.Model, _ = cmd.Flags().GetString("embedding-model")
	}
	if cmd.Flags().Changed("embedding-api-key") {
		cfg.Embedding.APIKey, _ = cmd.Flags().GetString("embedding-api-key")
	}
	if cmd.Flags().Changed("embedding-base-url") {
		cfg.Embedding.BaseURL, _ = cmd.Flags().GetString("embedding-base-url")
	}
}
