package bolt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewrag/internal/domain"
	"reviewrag/internal/vectorstore"
	"reviewrag/internal/vectorstore/storetest"
)

func openTemp(t *testing.T, dir string) *Storage {
	t.Helper()
	s, err := Open(dir, "reviews")
	require.NoError(t, err)
	return s
}

func TestStorage(t *testing.T) {
	storetest.Run(t, func(t *testing.T) vectorstore.Storage {
		s := openTemp(t, t.TempDir())
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestStorage_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := openTemp(t, dir)
	require.NoError(t, s.Init(ctx, storetest.Dim))
	fx := storetest.Fixture()
	fx[0].Metadata.NumOfReviews = domain.Int(12)
	require.NoError(t, s.Upsert(ctx, fx))
	require.NoError(t, s.Close())

	_, err := os.Stat(filepath.Join(dir, "reviews.db"))
	require.NoError(t, err)

	s = openTemp(t, dir)
	defer s.Close()
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(fx), n)

	res, err := s.Search(ctx, domain.SearchRequest{
		Vector: []float64{1, 0, 0},
		Filter: domain.Filter{BusinessName: "Cafe X"},
		Limit:  1,
	})
	require.NoError(t, err, "reopened store is searchable without Init")
	require.Len(t, res, 1)
	assert.Equal(t, fx[0].ID, res[0].ID)
	assert.Equal(t, fx[0].Metadata, res[0].Metadata)

	assert.ErrorIs(t, s.Init(ctx, storetest.Dim+1), domain.ErrDimensionMismatch)
}

func TestStorage_ClearIsDurable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := openTemp(t, dir)
	require.NoError(t, s.Init(ctx, storetest.Dim))
	require.NoError(t, s.Upsert(ctx, storetest.Fixture()))
	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Close())

	s = openTemp(t, dir)
	defer s.Close()
	_, err := s.Search(ctx, domain.SearchRequest{Vector: []float64{1, 0, 0}, Filter: domain.Filter{BusinessName: "Cafe X"}})
	assert.ErrorIs(t, err, domain.ErrIndexNotReady)
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVectorCodec(t *testing.T) {
	in := []float64{0, -1.5, 3.25, 1e-9}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
