package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// IndexConfig selects the vector store backend and where it persists.
type IndexConfig struct {
	Type       string        `yaml:"type" validate:"oneof=memory bolt qdrant"`
	Dir        string        `yaml:"dir" validate:"required"`
	Collection string        `yaml:"collection" validate:"required"`
	Force      bool          `yaml:"force"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url" validate:"required,url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"gte=0"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKeyEnv         string `yaml:"api_key_env"`
	Model             string `yaml:"model"`
	RequestDimensions bool   `yaml:"request_dimensions"`
	TimeoutSecs       int    `yaml:"timeout_secs" validate:"gte=0"`
	MaxRetries        int    `yaml:"max_retries" validate:"gte=0"`
	BatchSize         int    `yaml:"batch_size" validate:"gte=0"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type          string                `yaml:"type" validate:"oneof=hashing openai"`
	Dimension     int                   `yaml:"dimension" validate:"gte=1"`
	MaxInputRunes int                   `yaml:"max_input_runes" validate:"gte=0"`
	OpenAI        *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize int `yaml:"chunk_size" validate:"gte=1"`
	Overlap   int `yaml:"overlap" validate:"gte=0"`
}

// RetrievalConfig holds query-time defaults. A threshold of 0 accepts every match.
type RetrievalConfig struct {
	K              int     `yaml:"k" validate:"gte=1"`
	ScoreThreshold float64 `yaml:"score_threshold" validate:"gte=0,lte=1"`
}

// IngestConfig configures bulk population of the index.
type IngestConfig struct {
	Dataset        string  `yaml:"dataset" validate:"required"`
	BatchSize      int     `yaml:"batch_size" validate:"gte=1"`
	MaxFailureRate float64 `yaml:"max_failure_rate" validate:"gte=0,lte=1"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type" validate:"oneof=frequency openai"`
	MaxSentences int    `yaml:"max_sentences" validate:"gte=1"`
}

// LLMConfig configures the OpenAI-compatible chat model used for answers.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	TimeoutSecs int     `yaml:"timeout_secs" validate:"gte=0"`
	MaxRetries  int     `yaml:"max_retries" validate:"gte=0"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	File  string `yaml:"file"`
	JSON  bool   `yaml:"json"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Index      IndexConfig      `yaml:"index"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	LLM        LLMConfig        `yaml:"llm"`
	Log        LogConfig        `yaml:"log"`
}

// Environment variables that override file values.
const (
	EnvIndexDir       = "REVIEWRAG_INDEX_DIR"
	EnvForceInit      = "REVIEWRAG_FORCE_INIT"
	EnvK              = "REVIEWRAG_K"
	EnvScoreThreshold = "REVIEWRAG_SCORE_THRESHOLD"
	EnvDataset        = "REVIEWRAG_DATASET"
	EnvLogLevel       = "REVIEWRAG_LOG_LEVEL"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied and the result is validated.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return finish(cfg)
}

// LoadDefault tries ./config.yaml first, then ~/.config/reviewrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/reviewrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, defaultConfig()); err != nil {
		return nil, "", err
	}
	cfg, err := finish(defaultConfig())
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks value ranges and backend names.
func Validate(cfg *AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Index.Type == "qdrant" && cfg.Index.Qdrant == nil {
		return errors.New("invalid config: index.qdrant is required for the qdrant backend")
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI == nil {
		return errors.New("invalid config: embedder.openai is required for the openai embedder")
	}
	return nil
}

func finish(cfg *AppConfig) (*AppConfig, error) {
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) error {
	if v := os.Getenv(EnvIndexDir); v != "" {
		cfg.Index.Dir = v
	}
	if v := os.Getenv(EnvForceInit); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvForceInit, err)
		}
		cfg.Index.Force = b
	}
	if v := os.Getenv(EnvK); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvK, err)
		}
		cfg.Retrieval.K = k
	}
	if v := os.Getenv(EnvScoreThreshold); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvScoreThreshold, err)
		}
		cfg.Retrieval.ScoreThreshold = f
	}
	if v := os.Getenv(EnvDataset); v != "" {
		cfg.Ingest.Dataset = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "reviewrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Index:      IndexConfig{Type: "bolt", Dir: "./data/review_index", Collection: "business_reviews"},
		Embedder:   EmbedderConfig{Type: "hashing", Dimension: 384, MaxInputRunes: 8192},
		Chunker:    ChunkerConfig{ChunkSize: 500, Overlap: 50},
		Retrieval:  RetrievalConfig{K: 5, ScoreThreshold: 0.0},
		Ingest:     IngestConfig{Dataset: "data/complete_reviews.csv", BatchSize: 64, MaxFailureRate: 0.1},
		Summarizer: SummarizerConfig{Type: "frequency", MaxSentences: 5},
		LLM:        LLMConfig{Temperature: 0.9},
		Log:        LogConfig{Level: "info"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.Index.Type == "qdrant" && cfg.Index.Qdrant != nil && cfg.Index.Qdrant.TimeoutSecs == 0 {
		cfg.Index.Qdrant.TimeoutSecs = 15
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-3.5-turbo"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}
}
