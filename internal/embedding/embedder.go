// Package embedding selects the text embedder named in the configuration.
package embedding

import (
	"fmt"
	"time"

	"reviewrag/internal/config"
	"reviewrag/internal/domain"
	"reviewrag/internal/embedding/hashing"
	"reviewrag/internal/embedding/openai"
)

// New builds the embedder described by cfg.
func New(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "hashing", "":
		return hashing.NewEmbedder(
			hashing.WithDimension(cfg.Dimension),
			hashing.WithMaxInputRunes(cfg.MaxInputRunes),
		), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return openai.NewClient(openai.Config{
			BaseURL:           cfg.OpenAI.BaseURL,
			APIKeyEnv:         cfg.OpenAI.APIKeyEnv,
			Model:             cfg.OpenAI.Model,
			Dimension:         cfg.Dimension,
			RequestDimensions: cfg.OpenAI.RequestDimensions,
			Timeout:           time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			MaxRetries:        cfg.OpenAI.MaxRetries,
			BatchSize:         cfg.OpenAI.BatchSize,
		})
	}
	return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
}
