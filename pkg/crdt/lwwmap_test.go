package crdt_test

import (
	"testing"

	"github.com/fedactor/flmesh/pkg/crdt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLWWMapPutGetDelete(t *testing.T) {
	m := crdt.NewLWWMap("A")

	_, ok := m.Get("k")
	assert.False(t, ok)

	m.Put("k", "v1")
	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	m.Put("k", "v2")
	v, ok = m.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", v)

	m.Delete("k")
	_, ok = m.Get("k")
	assert.False(t, ok)
}

func TestLWWMapConvergence(t *testing.T) {
	a := crdt.NewLWWMap("A")
	b := crdt.NewLWWMap("B")

	a.Put("x", 1)
	b.Put("y", 2)

	snapA := a.ToSnapshot()
	snapB := b.ToSnapshot()

	// exchange state in both directions, out of order is fine since
	// MergeState is idempotent per key.
	a.MergeState(snapB)
	b.MergeState(snapA)

	va, _ := a.Get("x")
	vb, _ := b.Get("x")
	assert.Equal(t, va, vb)

	va, _ = a.Get("y")
	vb, _ = b.Get("y")
	assert.Equal(t, va, vb)
}

func TestLWWMapTieBreakByReplicaID(t *testing.T) {
	// Two puts at the same logical time via two replicas racing to the
	// same destination; the greater replica id survives.
	c := crdt.NewLWWMap("C")

	tsA := crdt.Timestamp{ReplicaID: "A", LogicalTime: 5}
	tsB := crdt.Timestamp{ReplicaID: "B", LogicalTime: 5}

	c.Merge(crdt.NewPutDelta("k", "from-a", tsA))
	c.Merge(crdt.NewPutDelta("k", "from-b", tsB))

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "from-b", v)

	// Applying in the opposite order must yield the same survivor.
	c2 := crdt.NewLWWMap("C")
	c2.Merge(crdt.NewPutDelta("k", "from-b", tsB))
	c2.Merge(crdt.NewPutDelta("k", "from-a", tsA))
	v2, ok := c2.Get("k")
	require.True(t, ok)
	assert.Equal(t, v, v2)
}

func TestLWWMapCausalDelete(t *testing.T) {
	// Scenario 4: A puts ("k","v") at (1,"A"). B merges that put (its clock
	// moves to 2) and then deletes "k" at (3,"B"). A third replica C,
	// receiving both deltas in either order,
	// must end up with "k" absent.
	a := crdt.NewLWWMap("A")
	a.Put("k", "v")
	putDelta, ok := a.DeltaFor("k")
	require.True(t, ok)

	b := crdt.NewLWWMap("B")
	b.Merge(putDelta)
	b.Delete("k")
	delDelta, ok := b.DeltaFor("k")
	require.True(t, ok)

	c1 := crdt.NewLWWMap("C")
	require.NoError(t, c1.Merge(putDelta))
	require.NoError(t, c1.Merge(delDelta))
	_, ok = c1.Get("k")
	assert.False(t, ok)

	c2 := crdt.NewLWWMap("C")
	require.NoError(t, c2.Merge(delDelta))
	require.NoError(t, c2.Merge(putDelta))
	_, ok = c2.Get("k")
	assert.False(t, ok)
}

func TestLWWMapMalformedDeltaSkippedWithError(t *testing.T) {
	m := crdt.NewLWWMap("A")
	err := m.Merge(crdt.Delta{Op: "put"})
	assert.Error(t, err)
	err = m.Merge(crdt.Delta{Op: "bogus"})
	assert.Error(t, err)
}

func TestLWWMapGC(t *testing.T) {
	m := crdt.NewLWWMap("A")
	m.Put("k", "v")
	m.Delete("k")

	// advance the clock well past the GC horizon via many unrelated puts
	for i := 0; i < 400; i++ {
		m.Put("filler", i)
	}

	m.GC()
	_, ok := m.Get("k")
	assert.False(t, ok)
}

func TestLWWMapMarshalUnmarshalRoundTrip(t *testing.T) {
	m := crdt.NewLWWMap("A")
	m.Put("k1", "v1")
	m.Put("k2", 42.0)
	m.Delete("k2")

	data, err := m.Marshal()
	require.NoError(t, err)

	m2 := crdt.NewLWWMap("B")
	require.NoError(t, m2.Unmarshal(data))

	v, ok := m2.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	_, ok = m2.Get("k2")
	assert.False(t, ok)
}
