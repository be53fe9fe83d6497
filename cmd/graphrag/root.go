package graphrag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soundprediction/go-graphrag/pkg/config"
	"github.com/soundprediction/go-graphrag/pkg/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "graphrag",
	Short: "Build community-summarized knowledge graphs from extracted text",
	Long: `graphrag turns entity and relationship tuples extracted from text into a
knowledge graph. Relationship endpoints that were never extracted as entities
are resolved by embedding similarity, the graph is partitioned into a
hierarchy of bounded-size communities and every community is summarized by a
language model.

Configuration can be provided through a config file, GRAPHRAG_* environment
variables or command-line flags.`,
	SilenceUsage: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./graphrag.yaml or $HOME/.graphrag/graphrag.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("graphrag")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.graphrag")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}
}

// loadConfig loads the configuration and builds the logger every command
// shares.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	log := logger.NewDefaultLogger(level)
	slog.SetDefault(log)
	return cfg, log, nil
}
