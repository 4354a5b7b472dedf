// Package index owns the lifecycle of the review vector index: provisioning,
// one-time bulk population, force-reset and read access.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"reviewrag/internal/chunker"
	"reviewrag/internal/document"
	"reviewrag/internal/domain"
	"reviewrag/internal/logger"
	"reviewrag/internal/vectorstore"
)

// DefaultBatchSize is the number of chunks embedded and upserted together.
const DefaultBatchSize = 64

// Opener opens the storage backend for a collection under dir.
type Opener func(dir, collection string) (vectorstore.Storage, error)

// RecordSource loads the review dataset.
type RecordSource func(ctx context.Context) ([]domain.ReviewRecord, error)

// ProgressFunc receives the number of chunks processed so far and the total.
type ProgressFunc func(done, total int)

// Config controls where the index lives and how it is populated.
type Config struct {
	Dir            string
	Collection     string
	Force          bool
	BatchSize      int
	MaxFailureRate float64
}

// Manager is the single owner of the index handle. EnsureReady must succeed
// before Search is served.
type Manager struct {
	cfg      Config
	open     Opener
	embedder domain.Embedder
	splitter *chunker.Splitter
	source   RecordSource
	log      *zap.Logger
	progress ProgressFunc

	mu         sync.RWMutex
	store      vectorstore.Storage
	ready      bool
	forceDone  bool
	lastIngest Stats
}

// Stats describes the most recent population run.
type Stats struct {
	Records  int
	Skipped  int
	Chunks   int
	Failed   int
	Vectors  int
	Duration time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.log = logger.OrNop(l) } }

// WithProgress sets the progress callback used during population.
func WithProgress(fn ProgressFunc) Option { return func(m *Manager) { m.progress = fn } }

// New creates a manager. Nothing is opened until EnsureReady.
func New(cfg Config, open Opener, embedder domain.Embedder, splitter *chunker.Splitter, source RecordSource, opts ...Option) *Manager {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	m := &Manager{
		cfg:      cfg,
		open:     open,
		embedder: embedder,
		splitter: splitter,
		source:   source,
		log:      zap.NewNop(),
		progress: func(int, int) {},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MarkerPath is the file whose presence records a completed population.
func (m *Manager) MarkerPath() string {
	return filepath.Join(m.cfg.Dir, m.cfg.Collection+".complete")
}

// EnsureReady provisions and, when needed, populates the index. It is safe to
// call concurrently; only the first caller loads. A configured force reset is
// applied once per Manager.
func (m *Manager) EnsureReady(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready {
		return nil
	}
	if m.cfg.Force && !m.forceDone {
		if err := m.reset(ctx); err != nil {
			return err
		}
		m.forceDone = true
	}
	return m.load(ctx)
}

// Rebuild deletes the index and populates it again.
func (m *Manager) Rebuild(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = false
	if err := m.reset(ctx); err != nil {
		return err
	}
	return m.load(ctx)
}

// Search serves a query against the ready index.
func (m *Manager) Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready {
		return nil, domain.ErrIndexNotReady
	}
	return m.store.Search(ctx, req)
}

// Count returns the number of stored vectors, or 0 when nothing is open.
func (m *Manager) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.store == nil {
		return 0, nil
	}
	return m.store.Count(ctx)
}

// Ready reports whether Search will be served.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// LastIngest returns statistics of the last population, if any ran.
func (m *Manager) LastIngest() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastIngest
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = false
	if m.store == nil {
		return nil
	}
	err := m.store.Close()
	m.store = nil
	return err
}

// reset closes the store and recreates the index directory from scratch.
func (m *Manager) reset(ctx context.Context) error {
	m.log.Warn("resetting index", zap.String("dir", m.cfg.Dir), zap.String("collection", m.cfg.Collection))
	if m.store == nil {
		s, err := m.open(m.cfg.Dir, m.cfg.Collection)
		if err != nil {
			return fmt.Errorf("%w: open store: %v", domain.ErrPersistence, err)
		}
		m.store = s
	}
	// Remote backends keep the collection outside dir.
	if err := m.store.Clear(ctx); err != nil {
		return err
	}
	if err := m.store.Close(); err != nil {
		m.log.Warn("close store", zap.Error(err))
	}
	m.store = nil
	if err := os.RemoveAll(m.cfg.Dir); err != nil {
		return fmt.Errorf("%w: remove index dir: %v", domain.ErrPersistence, err)
	}
	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("%w: create index dir: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (m *Manager) load(ctx context.Context) error {
	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("%w: create index dir: %v", domain.ErrPersistence, err)
	}
	if m.store == nil {
		s, err := m.open(m.cfg.Dir, m.cfg.Collection)
		if err != nil {
			return fmt.Errorf("%w: open store: %v", domain.ErrPersistence, err)
		}
		m.store = s
	}
	if err := m.store.Init(ctx, m.embedder.Dimension()); err != nil {
		return err
	}
	count, err := m.store.Count(ctx)
	if err != nil {
		return err
	}
	mk, err := m.readMarker()
	if err != nil {
		return err
	}
	switch {
	case count > 0 && mk != nil:
		if mk.Embedder != m.embedder.Name() || mk.Dimension != m.embedder.Dimension() {
			return fmt.Errorf("%w: index was built with %s (dimension %d) but the embedder is %s (dimension %d); force a rebuild",
				domain.ErrDimensionMismatch, mk.Embedder, mk.Dimension, m.embedder.Name(), m.embedder.Dimension())
		}
		m.log.Info("index already populated", zap.Int("vectors", count))
		m.ready = true
		return nil
	case count > 0:
		m.log.Warn("resuming interrupted population", zap.Int("vectors", count))
	}

	stats, err := m.populate(ctx)
	m.lastIngest = stats
	if err != nil {
		return err
	}
	if err := m.writeMarker(stats); err != nil {
		return err
	}
	m.log.Info("index populated",
		zap.Int("records", stats.Records),
		zap.Int("chunks", stats.Chunks),
		zap.Int("vectors", stats.Vectors),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.Duration("took", stats.Duration),
	)
	m.ready = true
	return nil
}

func (m *Manager) populate(ctx context.Context) (Stats, error) {
	started := time.Now()
	var stats Stats
	if err := removeIfExists(m.MarkerPath()); err != nil {
		return stats, err
	}
	records, err := m.source(ctx)
	if err != nil {
		return stats, fmt.Errorf("%w: load dataset: %v", domain.ErrIngestionFailed, err)
	}
	stats.Records = len(records)

	docs := make([]domain.Document, 0, len(records))
	for row, rec := range records {
		if strings.TrimSpace(rec.BusinessName) == "" {
			m.log.Warn("skipping record without business name", zap.Int("row", row))
			stats.Skipped++
			continue
		}
		docs = append(docs, document.Build(rec, row))
	}

	chunks := m.splitter.Chunks(docs)
	total := 0
	for range chunks {
		total++
	}
	stats.Chunks = total

	failedDocs := map[string]struct{}{}
	batch := make([]domain.Chunk, 0, m.cfg.BatchSize)
	done := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		items := m.embedBatch(ctx, batch, failedDocs, &stats)
		if err := m.store.Upsert(ctx, items); err != nil {
			return err
		}
		stats.Vectors += len(items)
		done += len(batch)
		m.progress(done, total)
		batch = batch[:0]
		return ctx.Err()
	}
	for c := range chunks {
		batch = append(batch, c)
		if len(batch) == m.cfg.BatchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}
	stats.Duration = time.Since(started)

	bad := stats.Skipped + len(failedDocs)
	if stats.Records > 0 && float64(bad)/float64(stats.Records) > m.cfg.MaxFailureRate {
		return stats, fmt.Errorf("%w: %d of %d records failed", domain.ErrIngestionFailed, bad, stats.Records)
	}
	return stats, nil
}

// embedBatch embeds a batch in one call and falls back to per-chunk calls
// when the batch is rejected, so one bad chunk only loses itself.
func (m *Manager) embedBatch(ctx context.Context, batch []domain.Chunk, failedDocs map[string]struct{}, stats *Stats) []domain.IndexedVector {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}
	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		m.log.Debug("batch embedding failed, retrying per chunk", zap.Error(err))
		vectors = make([][]float64, len(batch))
		for i, c := range batch {
			v, err := m.embedder.Embed(ctx, c.Text)
			if err != nil {
				m.log.Warn("skipping chunk", zap.String("chunk", c.ID), zap.Int("row", c.Metadata.RowIndex), zap.Error(err))
				continue
			}
			vectors[i] = v
		}
	}
	items := make([]domain.IndexedVector, 0, len(batch))
	for i, c := range batch {
		if vectors[i] == nil {
			stats.Failed++
			failedDocs[c.Metadata.DocumentID] = struct{}{}
			continue
		}
		items = append(items, domain.IndexedVector{ID: c.ID, Vector: vectors[i], Text: c.Text, Metadata: c.Metadata})
	}
	return items
}

type marker struct {
	Embedder    string    `json:"embedder"`
	Dimension   int       `json:"dimension"`
	Vectors     int       `json:"vectors"`
	CompletedAt time.Time `json:"completed_at"`
}

// readMarker returns nil when no completed population is recorded. An
// unreadable marker counts as absent so the load is resumed.
func (m *Manager) readMarker() (*marker, error) {
	data, err := os.ReadFile(m.MarkerPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%w: read marker: %v", domain.ErrPersistence, err)
	}
	var mk marker
	if err := json.Unmarshal(data, &mk); err != nil {
		m.log.Warn("ignoring corrupt marker", zap.String("path", m.MarkerPath()), zap.Error(err))
		return nil, nil
	}
	return &mk, nil
}

// writeMarker publishes the marker with a rename so it is never half written.
func (m *Manager) writeMarker(stats Stats) error {
	data, err := json.MarshalIndent(marker{
		Embedder:    m.embedder.Name(),
		Dimension:   m.embedder.Dimension(),
		Vectors:     stats.Vectors,
		CompletedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}
	tmp := m.MarkerPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write marker: %v", domain.ErrPersistence, err)
	}
	if err := os.Rename(tmp, m.MarkerPath()); err != nil {
		return fmt.Errorf("%w: write marker: %v", domain.ErrPersistence, err)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}
