package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "bolt", cfg.Index.Type)
	assert.Equal(t, "business_reviews", cfg.Index.Collection)
	assert.Equal(t, 500, cfg.Chunker.ChunkSize)
	assert.Equal(t, 50, cfg.Chunker.Overlap)
	assert.Equal(t, 5, cfg.Retrieval.K)
	assert.Equal(t, 0.0, cfg.Retrieval.ScoreThreshold)
	assert.Equal(t, 384, cfg.Embedder.Dimension)
	assert.Equal(t, "gpt-3.5-turbo", cfg.LLM.Model)
	assert.Equal(t, 2, cfg.LLM.MaxRetries)
}

func TestLoad_LLMMaxRetries(t *testing.T) {
	cfg, err := Load(writeConfig(t, "llm:\n  max_retries: 4\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.LLM.MaxRetries)

	_, err = Load(writeConfig(t, "llm:\n  max_retries: -1\n"))
	assert.Error(t, err)
}

func TestLoad_PartialFileKeepsOtherDefaults(t *testing.T) {
	path := writeConfig(t, `
retrieval:
  k: 3
  score_threshold: 0.6
chunker:
  overlap: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Retrieval.K)
	assert.Equal(t, 0.6, cfg.Retrieval.ScoreThreshold)
	assert.Equal(t, 0, cfg.Chunker.Overlap)
	assert.Equal(t, 500, cfg.Chunker.ChunkSize)
	assert.Equal(t, "hashing", cfg.Embedder.Type)
}

func TestLoad_OpenAIDefaults(t *testing.T) {
	path := writeConfig(t, `
embedder:
  type: openai
  dimension: 1536
  openai: {}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, 32, cfg.Embedder.OpenAI.BatchSize)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvIndexDir, "/tmp/idx")
	t.Setenv(EnvForceInit, "true")
	t.Setenv(EnvK, "9")
	t.Setenv(EnvScoreThreshold, "0.25")
	t.Setenv(EnvDataset, "reviews.csv")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/idx", cfg.Index.Dir)
	assert.True(t, cfg.Index.Force)
	assert.Equal(t, 9, cfg.Retrieval.K)
	assert.Equal(t, 0.25, cfg.Retrieval.ScoreThreshold)
	assert.Equal(t, "reviews.csv", cfg.Ingest.Dataset)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv(EnvK, "many")
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]string{
		"zero k":             "retrieval:\n  k: 0\n",
		"threshold above 1":  "retrieval:\n  score_threshold: 1.5\n",
		"negative threshold": "retrieval:\n  score_threshold: -0.1\n",
		"unknown index":      "index:\n  type: chroma\n",
		"qdrant without url": "index:\n  type: qdrant\n",
		"failure rate":       "ingest:\n  max_failure_rate: 2\n",
		"bad log level":      "log:\n  level: loud\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retrieval.K = 7
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Retrieval.K)
}

func TestLoadDefault_WritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "reviewrag", "config.yaml"), path)
	assert.FileExists(t, path)
	assert.Equal(t, 5, cfg.Retrieval.K)
}
