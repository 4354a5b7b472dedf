package vectorstore

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"reviewrag/internal/domain"
)

// DefaultLimit is used when a search request sets no limit.
const DefaultLimit = 5

// Storage persists vectors of one collection and supports similarity search.
type Storage interface {
	// Init provisions the collection for vectors of the given dimension.
	// Searching before Init returns domain.ErrIndexNotReady.
	Init(ctx context.Context, dimension int) error
	// Count returns the number of stored vectors.
	Count(ctx context.Context) (int, error)
	// Upsert inserts or overwrites items by id. Items are durable on return.
	Upsert(ctx context.Context, items []domain.IndexedVector) error
	// Search returns at most req.Limit results matching req.Filter with a
	// score of at least req.Threshold, best first.
	Search(ctx context.Context, req domain.SearchRequest) ([]domain.SearchResult, error)
	// Clear removes every vector of the collection.
	Clear(ctx context.Context) error
	Close() error
}

// Similarity returns the cosine similarity of a and b clamped to [0, 1].
// A zero vector has similarity 0 with everything.
func Similarity(a, b []float64) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return ClampScore(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// ClampScore maps a raw similarity into [0, 1].
func ClampScore(s float64) float64 {
	switch {
	case math.IsNaN(s) || s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// Rank drops candidates scoring below threshold, orders the rest by score
// descending (ties keep candidate order) and truncates to limit.
// A threshold of 0 keeps every candidate.
func Rank(candidates []domain.SearchResult, threshold float64, limit int) []domain.SearchResult {
	if limit <= 0 {
		limit = DefaultLimit
	}
	kept := make([]domain.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= threshold {
			kept = append(kept, c)
		}
	}
	slices.SortStableFunc(kept, func(a, b domain.SearchResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

// CheckVectors verifies that every item has the given dimension and an id.
func CheckVectors(items []domain.IndexedVector, dimension int) error {
	for _, it := range items {
		if it.ID == "" {
			return fmt.Errorf("%w: item without id", domain.ErrInvalidInput)
		}
		if len(it.Vector) != dimension {
			return fmt.Errorf("%w: item %s has %d, index has %d", domain.ErrDimensionMismatch, it.ID, len(it.Vector), dimension)
		}
	}
	return nil
}
