package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewrag/internal/domain"
	"reviewrag/internal/vectorstore"
	"reviewrag/internal/vectorstore/storetest"
)

func TestStorage(t *testing.T) {
	storetest.Run(t, func(t *testing.T) vectorstore.Storage { return NewStorage() })
}

func TestStorage_InitRejectsNewDimension(t *testing.T) {
	s := NewStorage()
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, 3))
	require.NoError(t, s.Init(ctx, 3))
	assert.ErrorIs(t, s.Init(ctx, 4), domain.ErrDimensionMismatch)
	assert.Error(t, s.Init(ctx, 0))
}

func TestStorage_UpsertBeforeInit(t *testing.T) {
	err := NewStorage().Upsert(context.Background(), storetest.Fixture())
	assert.ErrorIs(t, err, domain.ErrIndexNotReady)
}

func TestStorage_TiesKeepInsertionOrder(t *testing.T) {
	s := NewStorage()
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.IndexedVector{
		{ID: "b", Vector: []float64{1, 0}, Metadata: domain.Metadata{BusinessName: "A"}},
		{ID: "a", Vector: []float64{1, 0}, Metadata: domain.Metadata{BusinessName: "A"}},
	}))
	res, err := s.Search(ctx, domain.SearchRequest{Vector: []float64{1, 0}, Filter: domain.Filter{BusinessName: "A"}, Limit: 5})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "b", res[0].ID)
	assert.Equal(t, "a", res[1].ID)
}
