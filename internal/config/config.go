// Package config loads keeprag configuration: built-in defaults, merged
// with an optional .keeprag.yaml project file, then KEEPRAG_* environment
// overrides. A .env file in the project directory is loaded first so the
// Google API key can live outside the shell environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/keepstack/keeprag/internal/embed"
	kerrors "github.com/keepstack/keeprag/internal/errors"
	"github.com/keepstack/keeprag/internal/ingest"
	"github.com/keepstack/keeprag/internal/search"
	"github.com/keepstack/keeprag/internal/textproc"
)

// Config is the complete keeprag configuration.
type Config struct {
	Model  ModelConfig  `yaml:"model" json:"model"`
	Ingest IngestConfig `yaml:"ingest" json:"ingest"`
	Search SearchConfig `yaml:"search" json:"search"`
	Store  StoreConfig  `yaml:"store" json:"store"`
	Server ServerConfig `yaml:"server" json:"server"`
}

// ModelConfig configures the external model service.
type ModelConfig struct {
	// APIKey authenticates against the model service. Usually supplied via
	// the GOOGLE_API_KEY environment variable, not the config file.
	APIKey string `yaml:"api_key" json:"-"`

	BaseURL         string `yaml:"base_url" json:"base_url"`
	EmbeddingModel  string `yaml:"embedding_model" json:"embedding_model"`
	GenerationModel string `yaml:"generation_model" json:"generation_model"`
	SummaryModel    string `yaml:"summary_model" json:"summary_model"`
	Dimensions      int    `yaml:"dimensions" json:"dimensions"`

	// CacheSize is the embedding LRU capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// IngestConfig configures the ingestion worker.
type IngestConfig struct {
	ChunkCharTarget int `yaml:"chunk_char_target" json:"chunk_char_target"`
	ChunkCharMax    int `yaml:"chunk_char_max" json:"chunk_char_max"`
	BatchSize       int `yaml:"batch_size" json:"batch_size"`

	// StuckThreshold is a duration string, e.g. "1h".
	StuckThreshold string `yaml:"stuck_threshold" json:"stuck_threshold"`
}

// SearchConfig configures the retrieval engine.
type SearchConfig struct {
	TopK            int      `yaml:"top_k" json:"top_k"`
	ScoreThreshold  float64  `yaml:"score_threshold" json:"score_threshold"`
	Mode            string   `yaml:"mode" json:"mode"`
	SummaryTypes    []string `yaml:"summary_types" json:"summary_types"`
	TranscriptTypes []string `yaml:"transcript_types" json:"transcript_types"`
	AnswerLanguage  string   `yaml:"answer_language" json:"answer_language"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	// Path is the SQLite database file. Empty means in-memory, which only
	// makes sense for tests.
	Path string `yaml:"path" json:"path"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Model: ModelConfig{
			BaseURL:         embed.DefaultBaseURL,
			EmbeddingModel:  embed.DefaultEmbeddingModel,
			GenerationModel: embed.DefaultGenerationModel,
			SummaryModel:    embed.DefaultSummaryModel,
			Dimensions:      embed.DefaultDimensions,
			CacheSize:       embed.DefaultEmbeddingCacheSize,
		},
		Ingest: IngestConfig{
			ChunkCharTarget: textproc.DefaultChunkTarget,
			ChunkCharMax:    textproc.DefaultChunkMax,
			BatchSize:       ingest.DefaultBatchSize,
			StuckThreshold:  ingest.DefaultStuckThreshold.String(),
		},
		Search: SearchConfig{
			TopK:            search.DefaultTopK,
			ScoreThreshold:  search.DefaultThreshold,
			Mode:            string(search.ModeParallel),
			SummaryTypes:    search.DefaultSummaryTypes,
			TranscriptTypes: search.DefaultTranscriptTypes,
			AnswerLanguage:  search.DefaultAnswerLanguage,
		},
		Store: StoreConfig{
			Path: "keeprag.db",
		},
		Server: ServerConfig{
			Addr:     ":8090",
			LogLevel: "info",
		},
	}
}

// Load builds the effective configuration for a project directory:
// defaults, then .keeprag.yaml, then environment overrides, then validation.
func Load(dir string) (*Config, error) {
	// Best-effort: a missing .env is the common case.
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, kerrors.New(kerrors.ErrCodeConfigInvalid, "invalid configuration", err)
	}

	return cfg, nil
}

// loadFromFile merges .keeprag.yaml (or .yml) if present. No file is fine.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".keeprag.yaml", ".keeprag.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return c.loadYAML(path)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return kerrors.New(kerrors.ErrCodeConfigNotFound,
			fmt.Sprintf("read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return kerrors.New(kerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("parse config file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero values from other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Model.APIKey != "" {
		c.Model.APIKey = other.Model.APIKey
	}
	if other.Model.BaseURL != "" {
		c.Model.BaseURL = other.Model.BaseURL
	}
	if other.Model.EmbeddingModel != "" {
		c.Model.EmbeddingModel = other.Model.EmbeddingModel
	}
	if other.Model.GenerationModel != "" {
		c.Model.GenerationModel = other.Model.GenerationModel
	}
	if other.Model.SummaryModel != "" {
		c.Model.SummaryModel = other.Model.SummaryModel
	}
	if other.Model.Dimensions != 0 {
		c.Model.Dimensions = other.Model.Dimensions
	}
	if other.Model.CacheSize != 0 {
		c.Model.CacheSize = other.Model.CacheSize
	}

	if other.Ingest.ChunkCharTarget != 0 {
		c.Ingest.ChunkCharTarget = other.Ingest.ChunkCharTarget
	}
	if other.Ingest.ChunkCharMax != 0 {
		c.Ingest.ChunkCharMax = other.Ingest.ChunkCharMax
	}
	if other.Ingest.BatchSize != 0 {
		c.Ingest.BatchSize = other.Ingest.BatchSize
	}
	if other.Ingest.StuckThreshold != "" {
		c.Ingest.StuckThreshold = other.Ingest.StuckThreshold
	}

	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Search.ScoreThreshold != 0 {
		c.Search.ScoreThreshold = other.Search.ScoreThreshold
	}
	if other.Search.Mode != "" {
		c.Search.Mode = other.Search.Mode
	}
	if len(other.Search.SummaryTypes) > 0 {
		c.Search.SummaryTypes = other.Search.SummaryTypes
	}
	if len(other.Search.TranscriptTypes) > 0 {
		c.Search.TranscriptTypes = other.Search.TranscriptTypes
	}
	if other.Search.AnswerLanguage != "" {
		c.Search.AnswerLanguage = other.Search.AnswerLanguage
	}

	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}

	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies KEEPRAG_* environment variable overrides, plus
// GOOGLE_API_KEY which keeps the name the model service documents.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		c.Model.APIKey = v
	}
	if v := os.Getenv("KEEPRAG_BASE_URL"); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv("KEEPRAG_EMBEDDING_MODEL"); v != "" {
		c.Model.EmbeddingModel = v
	}
	if v := os.Getenv("KEEPRAG_GENERATION_MODEL"); v != "" {
		c.Model.GenerationModel = v
	}
	if v := os.Getenv("KEEPRAG_SUMMARY_MODEL"); v != "" {
		c.Model.SummaryModel = v
	}

	if v := os.Getenv("KEEPRAG_CHUNK_CHAR_TARGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.ChunkCharTarget = n
		}
	}
	if v := os.Getenv("KEEPRAG_CHUNK_CHAR_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.ChunkCharMax = n
		}
	}
	if v := os.Getenv("KEEPRAG_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.BatchSize = n
		}
	}
	if v := os.Getenv("KEEPRAG_STUCK_THRESHOLD"); v != "" {
		c.Ingest.StuckThreshold = v
	}

	if v := os.Getenv("KEEPRAG_SEARCH_MODE"); v != "" {
		c.Search.Mode = v
	}
	if v := os.Getenv("KEEPRAG_ANSWER_LANGUAGE"); v != "" {
		c.Search.AnswerLanguage = v
	}

	if v := os.Getenv("KEEPRAG_DB_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("KEEPRAG_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("KEEPRAG_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// StuckDuration returns the parsed stuck-job threshold adapted for the
// worker; Validate has already checked it parses.
func (c *IngestConfig) StuckDuration() time.Duration {
	d, err := time.ParseDuration(c.StuckThreshold)
	if err != nil {
		return ingest.DefaultStuckThreshold
	}
	return d
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.Model.Dimensions <= 0 {
		return fmt.Errorf("model.dimensions must be positive, got %d", c.Model.Dimensions)
	}
	if c.Ingest.ChunkCharTarget <= 0 {
		return fmt.Errorf("ingest.chunk_char_target must be positive, got %d", c.Ingest.ChunkCharTarget)
	}
	if c.Ingest.ChunkCharMax < c.Ingest.ChunkCharTarget {
		return fmt.Errorf("ingest.chunk_char_max (%d) must be at least chunk_char_target (%d)",
			c.Ingest.ChunkCharMax, c.Ingest.ChunkCharTarget)
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if _, err := time.ParseDuration(c.Ingest.StuckThreshold); err != nil {
		return fmt.Errorf("ingest.stuck_threshold must be a duration like \"1h\", got %s", c.Ingest.StuckThreshold)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}
	if c.Search.ScoreThreshold < 0 || c.Search.ScoreThreshold > 1 {
		return fmt.Errorf("search.score_threshold must be between 0 and 1, got %f", c.Search.ScoreThreshold)
	}

	validModes := map[string]bool{"layered": true, "parallel": true, "single": true}
	if !validModes[strings.ToLower(c.Search.Mode)] {
		return fmt.Errorf("search.mode must be 'layered', 'parallel', or 'single', got %s", c.Search.Mode)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}
