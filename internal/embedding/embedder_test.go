package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewrag/internal/config"
)

func TestNew(t *testing.T) {
	e, err := New(config.EmbedderConfig{Type: "hashing", Dimension: 64})
	require.NoError(t, err)
	assert.Equal(t, "hashing", e.Name())
	assert.Equal(t, 64, e.Dimension())

	_, err = New(config.EmbedderConfig{Type: "openai", Dimension: 64})
	assert.Error(t, err)

	t.Setenv("FACTORY_TEST_KEY", "sk-test")
	e, err = New(config.EmbedderConfig{Type: "openai", Dimension: 1536, OpenAI: &config.OpenAIEmbedderConfig{APIKeyEnv: "FACTORY_TEST_KEY"}})
	require.NoError(t, err)
	assert.Equal(t, "openai/text-embedding-3-small", e.Name())
	assert.Equal(t, 1536, e.Dimension())

	_, err = New(config.EmbedderConfig{Type: "word2vec"})
	assert.Error(t, err)
}
