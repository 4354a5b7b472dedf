// Package storetest holds behaviour tests shared by every vectorstore.Storage backend.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewrag/internal/domain"
	"reviewrag/internal/vectorstore"
)

// Dim is the vector size used by the suite.
const Dim = 3

// Item builds an indexed vector for business with the given rating.
func Item(id, business string, rating float64, vec ...float64) domain.IndexedVector {
	return domain.IndexedVector{
		ID:     id,
		Vector: vec,
		Text:   "review " + id,
		Metadata: domain.Metadata{
			BusinessName: business,
			Rating:       domain.Float(rating),
			DocumentID:   id,
		},
	}
}

// Fixture is the dataset most cases start from.
func Fixture() []domain.IndexedVector {
	return []domain.IndexedVector{
		Item("11111111-0000-0000-0000-000000000001", "Cafe X", 5, 1, 0, 0),
		Item("11111111-0000-0000-0000-000000000002", "Cafe X", 2, 0.8, 0.6, 0),
		Item("11111111-0000-0000-0000-000000000003", "Cafe X", 4, 0, 1, 0),
		Item("11111111-0000-0000-0000-000000000004", "Cafe X", 1, -1, 0, 0),
		Item("11111111-0000-0000-0000-000000000005", "Deli Y", 5, 1, 0, 0),
	}
}

func ids(rs []domain.SearchResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

// Run exercises a fresh, empty store returned by open for each case.
func Run(t *testing.T, open func(t *testing.T) vectorstore.Storage) {
	ctx := context.Background()
	fx := Fixture()

	ready := func(t *testing.T) vectorstore.Storage {
		s := open(t)
		require.NoError(t, s.Init(ctx, Dim))
		return s
	}
	loaded := func(t *testing.T) vectorstore.Storage {
		s := ready(t)
		require.NoError(t, s.Upsert(ctx, fx))
		return s
	}
	query := func(vec []float64, business string, threshold float64, limit int) domain.SearchRequest {
		return domain.SearchRequest{Vector: vec, Filter: domain.Filter{BusinessName: business}, Threshold: threshold, Limit: limit}
	}

	t.Run("search before init is not ready", func(t *testing.T) {
		s := open(t)
		_, err := s.Search(ctx, query([]float64{1, 0, 0}, "Cafe X", 0, 5))
		assert.ErrorIs(t, err, domain.ErrIndexNotReady)
	})

	t.Run("empty collection", func(t *testing.T) {
		s := ready(t)
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		res, err := s.Search(ctx, query([]float64{1, 0, 0}, "Cafe X", 0, 5))
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("ranks descending within business", func(t *testing.T) {
		s := loaded(t)
		res, err := s.Search(ctx, query([]float64{1, 0, 0}, "Cafe X", 0, 10))
		require.NoError(t, err)
		assert.Equal(t, []string{fx[0].ID, fx[1].ID}, ids(res)[:2])
		for _, r := range res {
			assert.Equal(t, "Cafe X", r.Metadata.BusinessName)
			assert.GreaterOrEqual(t, r.Score, 0.0)
			assert.LessOrEqual(t, r.Score, 1.0)
		}
		assert.InDelta(t, 1.0, res[0].Score, 1e-6)
		assert.InDelta(t, 0.8, res[1].Score, 1e-6)
	})

	t.Run("zero threshold keeps every match", func(t *testing.T) {
		s := loaded(t)
		res, err := s.Search(ctx, query([]float64{1, 0, 0}, "Cafe X", 0, 10))
		require.NoError(t, err)
		assert.Len(t, res, 4, "orthogonal and opposite reviews still match at threshold 0")
	})

	t.Run("threshold excludes low scores", func(t *testing.T) {
		s := loaded(t)
		res, err := s.Search(ctx, query([]float64{1, 0, 0}, "Cafe X", 0.5, 10))
		require.NoError(t, err)
		assert.Equal(t, []string{fx[0].ID, fx[1].ID}, ids(res))
	})

	t.Run("limit caps results", func(t *testing.T) {
		s := loaded(t)
		res, err := s.Search(ctx, query([]float64{1, 0, 0}, "Cafe X", 0, 1))
		require.NoError(t, err)
		assert.Equal(t, []string{fx[0].ID}, ids(res))
	})

	t.Run("unknown business is empty", func(t *testing.T) {
		s := loaded(t)
		res, err := s.Search(ctx, query([]float64{1, 0, 0}, "Nowhere", 0, 5))
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		s := loaded(t)
		require.NoError(t, s.Upsert(ctx, fx))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, len(fx), n)

		changed := fx[2]
		changed.Text = "rewritten"
		require.NoError(t, s.Upsert(ctx, []domain.IndexedVector{changed}))
		n, _ = s.Count(ctx)
		assert.Equal(t, len(fx), n)
		res, err := s.Search(ctx, query([]float64{0, 1, 0}, "Cafe X", 0.99, 1))
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "rewritten", res[0].Text)
	})

	t.Run("round trip keeps text and metadata", func(t *testing.T) {
		s := ready(t)
		it := fx[1]
		it.Metadata.AvgBusinessRating = domain.Float(4.2)
		it.Metadata.NumOfReviews = domain.Int(31)
		require.NoError(t, s.Upsert(ctx, []domain.IndexedVector{it}))
		res, err := s.Search(ctx, query(it.Vector, "Cafe X", 0, 5))
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, it.Text, res[0].Text)
		assert.Equal(t, it.Metadata, res[0].Metadata)
		assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		s := ready(t)
		err := s.Upsert(ctx, []domain.IndexedVector{Item("11111111-0000-0000-0000-000000000009", "Cafe X", 3, 1, 0)})
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	})

	t.Run("clear empties the collection", func(t *testing.T) {
		s := loaded(t)
		require.NoError(t, s.Clear(ctx))
		require.NoError(t, s.Init(ctx, Dim))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
