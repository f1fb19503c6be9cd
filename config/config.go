// Package config loads docrag settings from a YAML file with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/chunking"
	"github.com/poiesic/docrag/ingestion"
	"github.com/poiesic/docrag/search"
	"gopkg.in/yaml.v3"
)

// Index backends.
const (
	IndexBadger = "badger"
	IndexSQLite = "sqlite"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "docrag.yaml"

// Config is the root configuration.
type Config struct {
	AI        AIConfig        `yaml:"ai"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache,omitempty"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Search    SearchConfig    `yaml:"search"`
}

// AIConfig selects and tunes the embedding and generation provider.
type AIConfig struct {
	Provider          string  `yaml:"provider"` // "bedrock" | "openai" | "mock"
	Host              string  `yaml:"host,omitempty"`
	APIKey            string  `yaml:"api_key,omitempty"`
	Region            string  `yaml:"region,omitempty"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	GenerationModel   string  `yaml:"generation_model"`
	Dimensions        int     `yaml:"dimensions"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float64 `yaml:"temperature"`
	TopP              float64 `yaml:"top_p"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// StorageConfig locates the on-disk data.
type StorageConfig struct {
	// Path is the badger directory holding documents, blobs and, for the
	// badger index, the chunks.
	Path string `yaml:"path"`

	// Index is the vector index backend: "badger" or "sqlite".
	Index string `yaml:"index"`

	// SQLitePath defaults to <path>/index.db.
	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

// CacheConfig enables the redis embedding cache when Addr is set.
type CacheConfig struct {
	Addr     string        `yaml:"addr,omitempty"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
}

// Enabled reports whether a cache server is configured.
func (c CacheConfig) Enabled() bool {
	return c.Addr != ""
}

// ChunkingConfig sizes chunks in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// IngestionConfig tunes the ingest path.
type IngestionConfig struct {
	MaxSize          int  `yaml:"max_size"`
	Workers          int  `yaml:"workers,omitempty"`
	DisableRedaction bool `yaml:"disable_redaction,omitempty"`
}

// SearchConfig tunes retrieval for answers.
type SearchConfig struct {
	MaxResults int      `yaml:"max_results"`
	Threshold  *float32 `yaml:"threshold,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path, applies defaults and environment overrides, and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyDefaults() {
	def := ai.DefaultConfig()
	if c.AI.Provider == "" {
		c.AI.Provider = string(def.Provider)
	}
	if c.AI.Region == "" {
		c.AI.Region = def.Region
	}
	if c.AI.EmbeddingModel == "" {
		c.AI.EmbeddingModel = def.EmbeddingModel
	}
	if c.AI.GenerationModel == "" {
		c.AI.GenerationModel = def.GenerationModel
	}
	if c.AI.Dimensions == 0 {
		c.AI.Dimensions = def.Dimensions
	}
	if c.AI.MaxTokens == 0 {
		c.AI.MaxTokens = def.MaxTokens
	}
	if c.AI.Temperature == 0 {
		c.AI.Temperature = def.Temperature
	}
	if c.AI.TopP == 0 {
		c.AI.TopP = def.TopP
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "docrag.db"
	}
	c.Storage.Path = expandPath(c.Storage.Path)
	if c.Storage.Index == "" {
		c.Storage.Index = IndexBadger
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(c.Storage.Path, "index.db")
	}
	c.Storage.SQLitePath = expandPath(c.Storage.SQLitePath)

	if c.Chunking.Size == 0 {
		c.Chunking.Size = chunking.DefaultChunkSize
		if c.Chunking.Overlap == 0 {
			c.Chunking.Overlap = chunking.DefaultOverlap
		}
	}
	if c.Ingestion.MaxSize == 0 {
		c.Ingestion.MaxSize = ingestion.DefaultMaxSize
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = search.DefaultMaxResults
	}
	if c.Search.Threshold == nil {
		threshold := float32(search.DefaultThreshold)
		c.Search.Threshold = &threshold
	}
}

// applyEnv overrides file values with DOCRAG_* variables. OPENAI_API_KEY
// and AWS_REGION are honored when the docrag-specific names are unset.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	num := func(dst *int, key string) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}

	str(&c.AI.Provider, "DOCRAG_PROVIDER")
	str(&c.AI.Host, "DOCRAG_HOST")
	str(&c.AI.APIKey, "DOCRAG_API_KEY", "OPENAI_API_KEY")
	str(&c.AI.Region, "DOCRAG_REGION", "AWS_REGION")
	str(&c.AI.EmbeddingModel, "DOCRAG_EMBEDDING_MODEL")
	str(&c.AI.GenerationModel, "DOCRAG_GENERATION_MODEL")
	num(&c.AI.Dimensions, "DOCRAG_DIMENSIONS")
	str(&c.Storage.Path, "DOCRAG_DATA")
	str(&c.Storage.Index, "DOCRAG_INDEX")
	str(&c.Cache.Addr, "DOCRAG_REDIS_ADDR")
	str(&c.Cache.Password, "DOCRAG_REDIS_PASSWORD")
	num(&c.Chunking.Size, "DOCRAG_CHUNK_SIZE")
	num(&c.Chunking.Overlap, "DOCRAG_CHUNK_OVERLAP")
}

// Validate checks the values that are not validated by the components
// they configure.
func (c *Config) Validate() error {
	switch c.Storage.Index {
	case IndexBadger, IndexSQLite:
	default:
		return fmt.Errorf("unknown index backend %q", c.Storage.Index)
	}
	if c.Ingestion.MaxSize < 0 {
		return errors.New("ingestion max_size cannot be negative")
	}
	if c.Search.MaxResults < 0 {
		return errors.New("search max_results cannot be negative")
	}
	if c.Cache.TTL < 0 {
		return errors.New("cache ttl cannot be negative")
	}
	return c.AIConfig().Validate()
}

// AIConfig converts the ai section into an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(ai.ProviderKind(c.AI.Provider)),
		ai.WithHost(c.AI.Host),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithRegion(c.AI.Region),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGenerationModel(c.AI.GenerationModel),
		ai.WithDimensions(c.AI.Dimensions),
		ai.WithSampling(c.AI.MaxTokens, c.AI.Temperature, c.AI.TopP),
		ai.WithRequestsPerSecond(c.AI.RequestsPerSecond),
	)
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
