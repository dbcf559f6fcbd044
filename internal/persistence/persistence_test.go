package persistence_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedactor/flmesh/internal/actor"
	"github.com/fedactor/flmesh/internal/persistence"
	"github.com/fedactor/flmesh/internal/storage"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "flmesh-persistence-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	store, err := storage.NewBadgerStore(dir, false)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRoundStorePutGetLatest(t *testing.T) {
	ctx := context.Background()
	rs := persistence.NewRoundStore(newTestStore(t))

	require.NoError(t, rs.Put(ctx, persistence.RoundRecord{Round: 1, Weights: actor.ModelWeights{W: []float64{1}}}))
	require.NoError(t, rs.Put(ctx, persistence.RoundRecord{Round: 3, Weights: actor.ModelWeights{W: []float64{3}}}))
	require.NoError(t, rs.Put(ctx, persistence.RoundRecord{Round: 2, Weights: actor.ModelWeights{W: []float64{2}}}))

	rec, ok, err := rs.Get(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float64{2}, rec.Weights.W)

	latest, ok, err := rs.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, latest.Round)

	_, ok, err = rs.Get(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGossipStorePerPeer(t *testing.T) {
	ctx := context.Background()
	gs := persistence.NewGossipStore(newTestStore(t))

	require.NoError(t, gs.Put(ctx, persistence.GossipRecord{PeerID: "a", RoundNum: 1, DeltaNorm: 0.5}))
	require.NoError(t, gs.Put(ctx, persistence.GossipRecord{PeerID: "a", RoundNum: 2, DeltaNorm: 0.1}))
	require.NoError(t, gs.Put(ctx, persistence.GossipRecord{PeerID: "b", RoundNum: 1, DeltaNorm: 0.9}))

	rows, err := gs.ForPeer(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	latest, ok, err := gs.Latest(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, latest.RoundNum)

	_, ok, err = gs.Latest(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}
