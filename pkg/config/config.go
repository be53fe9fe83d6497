package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GRAPHRAG_LLM_MODEL.
const EnvPrefix = "GRAPHRAG"

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// LLM configuration
	LLM LLMConfig `mapstructure:"llm"`

	// Embedding configuration
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	Extract    ExtractConfig    `mapstructure:"extract"`
	Resolver   ResolverConfig   `mapstructure:"resolver"`
	Partition  PartitionConfig  `mapstructure:"partition"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`

	// Cache holds generation responses between runs
	Cache CacheConfig `mapstructure:"cache"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	Export ExportConfig `mapstructure:"export"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LLMConfig holds LLM configuration
type LLMConfig struct {
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	// BreakerFailures opens the circuit after this many consecutive
	// failures. Zero disables the breaker.
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// EmbeddingConfig holds embedding configuration
type EmbeddingConfig struct {
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	BatchSize  int    `mapstructure:"batch_size"`
	Dimensions int    `mapstructure:"dimensions"`
}

// ExtractConfig controls chunk extraction
type ExtractConfig struct {
	MaxPathsPerChunk int           `mapstructure:"max_paths_per_chunk"`
	Concurrency      int           `mapstructure:"concurrency"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// ResolverConfig controls entity resolution
type ResolverConfig struct {
	TopK        int           `mapstructure:"top_k"`
	Metric      string        `mapstructure:"metric"`
	MaxDistance float64       `mapstructure:"max_distance"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MergePolicy string        `mapstructure:"merge_policy"`
}

// PartitionConfig controls community detection
type PartitionConfig struct {
	MaxClusterSize int     `mapstructure:"max_cluster_size"`
	Resolution     float64 `mapstructure:"resolution"`
	Seed           uint64  `mapstructure:"seed"`
	MaxLevels      int     `mapstructure:"max_levels"`
	Algorithm      string  `mapstructure:"algorithm"`
}

// SummarizerConfig controls community summarization
type SummarizerConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds the generation cache settings
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Dir is the badger directory. Empty keeps the cache in memory.
	Dir string        `mapstructure:"dir"`
	TTL time.Duration `mapstructure:"ttl"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// ExportConfig selects the output of the resolve and build commands
type ExportConfig struct {
	Format       string `mapstructure:"format"`
	Dir          string `mapstructure:"dir"`
	EntityBase   string `mapstructure:"entity_base"`
	OntologyBase string `mapstructure:"ontology_base"`
	DuckDBPath   string `mapstructure:"duckdb_path"`
}

// DatabaseConfig holds the optional Neo4j sink
type DatabaseConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// Load loads configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom loads configuration from v after applying defaults and the
// environment.
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.breaker_failures", 5)
	v.SetDefault("llm.breaker_timeout", 30*time.Second)

	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.batch_size", 100)
	v.SetDefault("embedding.dimensions", 0)

	v.SetDefault("extract.max_paths_per_chunk", 2)
	v.SetDefault("extract.concurrency", 0)
	v.SetDefault("extract.timeout", 2*time.Minute)

	v.SetDefault("resolver.top_k", 1)
	v.SetDefault("resolver.metric", "cosine")
	v.SetDefault("resolver.max_distance", 0.0)
	v.SetDefault("resolver.timeout", 30*time.Second)
	v.SetDefault("resolver.merge_policy", "keep-first")

	v.SetDefault("partition.max_cluster_size", 5)
	v.SetDefault("partition.resolution", 1.0)
	v.SetDefault("partition.seed", 42)
	v.SetDefault("partition.max_levels", 16)
	v.SetDefault("partition.algorithm", "leiden")

	v.SetDefault("summarizer.concurrency", 0)
	v.SetDefault("summarizer.timeout", 60*time.Second)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.ttl", 7*24*time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("export.format", "simple")
	v.SetDefault("export.dir", ".")
	v.SetDefault("export.entity_base", "")
	v.SetDefault("export.ontology_base", "")
	v.SetDefault("export.duckdb_path", "graphrag.duckdb")

	// every key needs a default so AutomaticEnv can reach it during Unmarshal
	v.SetDefault("database.uri", "")
	v.SetDefault("database.username", "neo4j")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "neo4j")
}

// overrideWithEnv applies the conventional variables that do not carry the
// GRAPHRAG_ prefix.
func overrideWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		if config.LLM.APIKey == "" {
			config.LLM.APIKey = apiKey
		}
		if config.Embedding.APIKey == "" {
			config.Embedding.APIKey = apiKey
		}
	}

	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Database.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Database.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Database.Password = pass
	}
	if db := os.Getenv("NEO4J_DATABASE"); db != "" {
		config.Database.Database = db
	}
}

// Validate checks ranges that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Partition.MaxClusterSize <= 0 {
		return fmt.Errorf("partition.max_cluster_size must be positive, got %d", c.Partition.MaxClusterSize)
	}
	if c.Resolver.MaxDistance < 0 {
		return fmt.Errorf("resolver.max_distance must not be negative, got %g", c.Resolver.MaxDistance)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	return nil
}
