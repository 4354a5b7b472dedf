// Package bolt persists a vector collection in a bbolt file and serves
// searches from an in-memory mirror loaded at open.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"reviewrag/internal/domain"
	"reviewrag/internal/vectorstore"
	"reviewrag/internal/vectorstore/memory"
)

var (
	bucketVectors = []byte("vectors")
	bucketRecords = []byte("records")
	bucketMeta    = []byte("meta")
	keyDimension  = []byte("dimension")
)

// record is the JSON value of the records bucket. Vectors live in their own
// bucket as raw little-endian float64s to keep records small.
type record struct {
	Text     string          `json:"text"`
	Metadata domain.Metadata `json:"metadata"`
}

// Storage is a durable vectorstore.Storage for one collection.
type Storage struct {
	mu    sync.Mutex
	db    *bbolt.DB
	path  string
	cache *memory.Storage
}

// Open opens or creates <dir>/<collection>.db and loads its vectors.
func Open(dir, collection string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create index dir: %v", domain.ErrPersistence, err)
	}
	path := filepath.Join(dir, collection+".db")
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrPersistence, path, err)
	}
	s := &Storage{db: db, path: path, cache: memory.NewStorage()}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Storage) Path() string { return s.path }

func (s *Storage) load() error {
	var (
		dim   int
		items []domain.IndexedVector
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return nil
		}
		d, err := strconv.Atoi(string(meta.Get(keyDimension)))
		if err != nil {
			return fmt.Errorf("corrupt dimension: %w", err)
		}
		dim = d
		vectors := tx.Bucket(bucketVectors)
		records := tx.Bucket(bucketRecords)
		if vectors == nil || records == nil {
			return errors.New("missing buckets")
		}
		return records.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("record %s: %w", k, err)
			}
			vec, err := decodeVector(vectors.Get(k))
			if err != nil {
				return fmt.Errorf("vector %s: %w", k, err)
			}
			items = append(items, domain.IndexedVector{ID: string(k), Vector: vec, Text: rec.Text, Metadata: rec.Metadata})
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("%w: load %s: %v", domain.ErrPersistence, s.path, err)
	}
	if dim == 0 {
		return nil
	}
	ctx := context.Background()
	if err := s.cache.Init(ctx, dim); err != nil {
		return err
	}
	return s.cache.Upsert(ctx, items)
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketVectors, bucketRecords, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if stored := meta.Get(keyDimension); stored != nil {
			if d, _ := strconv.Atoi(string(stored)); d != dimension {
				return fmt.Errorf("%w: collection has %d, requested %d", domain.ErrDimensionMismatch, d, dimension)
			}
			return nil
		}
		return meta.Put(keyDimension, []byte(strconv.Itoa(dimension)))
	})
	if errors.Is(err, domain.ErrDimensionMismatch) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: init: %v", domain.ErrPersistence, err)
	}
	return s.cache.Init(ctx, dimension)
}

// Count reads the number of stored vectors from disk.
func (s *Storage) Count(_ context.Context) (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketRecords); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", domain.ErrPersistence, err)
	}
	return n, nil
}

// Upsert writes all items in one transaction, then updates the mirror.
func (s *Storage) Upsert(ctx context.Context, items []domain.IndexedVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dim := s.cache.Dimension()
	if dim == 0 {
		return domain.ErrIndexNotReady
	}
	if err := vectorstore.CheckVectors(items, dim); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		vectors := tx.Bucket(bucketVectors)
		records := tx.Bucket(bucketRecords)
		for _, it := range items {
			data, err := json.Marshal(record{Text: it.Text, Metadata: it.Metadata})
			if err != nil {
				return err
			}
			key := []byte(it.ID)
			if err := records.Put(key, data); err != nil {
				return err
			}
			if err := vectors.Put(key, encodeVector(it.Vector)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", domain.ErrPersistence, err)
	}
	return s.cache.Upsert(ctx, items)
}

func (s *Storage) Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResult, error) {
	s.mu.Lock()
	cache := s.cache
	s.mu.Unlock()
	return cache.Search(ctx, req)
}

// Clear drops the collection. Init must be called again before use.
func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketVectors, bucketRecords, bucketMeta} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: clear: %v", domain.ErrPersistence, err)
	}
	s.cache = memory.NewStorage()
	return nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = memory.NewStorage()
	return s.db.Close()
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("vector of %d bytes", len(b))
	}
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return v, nil
}
