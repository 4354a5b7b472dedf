package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reviewrag/internal/chunker"
	"reviewrag/internal/config"
	"reviewrag/internal/dataset"
	"reviewrag/internal/domain"
	"reviewrag/internal/embedding"
	"reviewrag/internal/index"
	"reviewrag/internal/llm"
	"reviewrag/internal/logger"
	"reviewrag/internal/service"
	"reviewrag/internal/summarizer"
	"reviewrag/internal/vectorstore"
	"reviewrag/internal/vectorstore/bolt"
	"reviewrag/internal/vectorstore/memory"
	"reviewrag/internal/vectorstore/qdrant"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	indexDir   string
	forceInit  bool
	verbose    bool
	logOutput  io.Writer
}

// app holds the wired components for one command invocation.
type app struct {
	cfg      *config.AppConfig
	log      *zap.Logger
	embedder domain.Embedder
	manager  *index.Manager
	service  *service.ReviewService
}

func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if flags.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(flags.configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("index-dir") {
		cfg.Index.Dir = flags.indexDir
	}
	if cmd.Flags().Changed("force-init") {
		cfg.Index.Force = flags.forceInit
	}
	if flags.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, config.Validate(cfg)
}

// newApp wires config, logging, the embedder, the index manager and the
// review service. The chat model is only created when withLLM is set or the
// summarizer is model backed.
func newApp(cmd *cobra.Command, flags *globalFlags, withLLM bool) (*app, error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File, JSON: cfg.Log.JSON, Output: flags.logOutput})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	emb, err := embedding.New(cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("embedder init failed: %w", err)
	}
	open, err := storeOpener(cfg.Index)
	if err != nil {
		return nil, err
	}
	splitter := chunker.New(chunker.WithChunkSize(cfg.Chunker.ChunkSize), chunker.WithOverlap(cfg.Chunker.Overlap))
	datasetPath := cfg.Ingest.Dataset
	source := func(context.Context) ([]domain.ReviewRecord, error) { return dataset.LoadCSV(datasetPath) }
	manager := index.New(index.Config{
		Dir:            cfg.Index.Dir,
		Collection:     cfg.Index.Collection,
		Force:          cfg.Index.Force,
		BatchSize:      cfg.Ingest.BatchSize,
		MaxFailureRate: cfg.Ingest.MaxFailureRate,
	}, open, emb, splitter, source,
		index.WithLogger(log.Named("index")),
		index.WithProgress(progressLogger(log.Named("index"))),
	)

	var chat *llm.Client
	if withLLM || cfg.Summarizer.Type == "openai" {
		chat, err = llm.NewClient(llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKeyEnv:   cfg.LLM.APIKeyEnv,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
			MaxRetries:  cfg.LLM.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("chat model init failed: %w", err)
		}
	}
	var sum domain.Summarizer = summarizer.NewFrequencySummarizer()
	if cfg.Summarizer.Type == "openai" {
		sum = chat
	}
	var answerer domain.Answerer
	if chat != nil {
		answerer = chat
	}

	svc := service.NewReviewService(manager, emb, sum, answerer, service.Config{
		K:              cfg.Retrieval.K,
		ScoreThreshold: cfg.Retrieval.ScoreThreshold,
		MaxSentences:   cfg.Summarizer.MaxSentences,
	}, log.Named("service"))

	log.Debug("components ready",
		zap.String("index", cfg.Index.Type),
		zap.String("embedder", emb.Name()),
		zap.Int("dimension", emb.Dimension()),
		zap.String("summarizer", cfg.Summarizer.Type),
	)
	return &app{cfg: cfg, log: log, embedder: emb, manager: manager, service: svc}, nil
}

func (a *app) close() {
	if err := a.manager.Close(); err != nil {
		a.log.Warn("close index", zap.Error(err))
	}
	_ = a.log.Sync()
}

func storeOpener(cfg config.IndexConfig) (index.Opener, error) {
	switch cfg.Type {
	case "memory":
		return func(string, string) (vectorstore.Storage, error) { return memory.NewStorage(), nil }, nil
	case "bolt", "":
		return func(dir, collection string) (vectorstore.Storage, error) { return bolt.Open(dir, collection) }, nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		q := *cfg.Qdrant
		return func(_, collection string) (vectorstore.Storage, error) {
			return qdrant.NewStorage(qdrant.Config{
				URL:        q.URL,
				APIKey:     q.APIKey,
				Collection: collection,
				Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
			}), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
}

// progressLogger reports population progress roughly every tenth.
func progressLogger(log *zap.Logger) index.ProgressFunc {
	last := -1
	return func(done, total int) {
		if total == 0 {
			return
		}
		step := done * 10 / total
		if step == last && done != total {
			return
		}
		last = step
		log.Info("indexing", zap.Int("done", done), zap.Int("total", total))
	}
}
