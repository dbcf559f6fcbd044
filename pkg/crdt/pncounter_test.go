package crdt_test

import (
	"testing"

	"github.com/fedactor/flmesh/pkg/crdt"
	"github.com/stretchr/testify/assert"
)

func TestPNCounter(t *testing.T) {
	t.Run("NewPNCounter", func(t *testing.T) {
		counter := crdt.NewPNCounter("node1")
		assert.Equal(t, int64(0), counter.Value())
	})

	t.Run("Increment", func(t *testing.T) {
		counter := crdt.NewPNCounter("node1")
		counter.Increment()
		counter.Increment()
		assert.Equal(t, int64(2), counter.Value())
	})

	t.Run("Decrement", func(t *testing.T) {
		counter := crdt.NewPNCounter("node1")
		counter.Increment()
		counter.Increment()
		counter.Increment()
		counter.Decrement()
		assert.Equal(t, int64(2), counter.Value())
	})

	t.Run("MergeCommutativeAssociativeIdempotent", func(t *testing.T) {
		a := crdt.NewPNCounter("A")
		b := crdt.NewPNCounter("B")
		c := crdt.NewPNCounter("C")

		a.Increment()
		a.Increment()
		b.Increment()
		b.Decrement()
		c.Increment()
		c.Increment()
		c.Increment()

		// merge in one order
		ab := crdt.NewPNCounter("A")
		ab.Merge(a)
		ab.Merge(b)
		ab.Merge(c)

		// merge in reverse order
		cba := crdt.NewPNCounter("A")
		cba.Merge(c)
		cba.Merge(b)
		cba.Merge(a)

		assert.Equal(t, ab.Value(), cba.Value())
		assert.Equal(t, int64(2+1+3-1), ab.Value())

		// idempotent: merging again changes nothing
		ab.Merge(a)
		assert.Equal(t, int64(2+1+3-1), ab.Value())
	})

	t.Run("MarshalUnmarshal", func(t *testing.T) {
		counter1 := crdt.NewPNCounter("node1")
		counter1.Increment()
		counter1.Decrement()

		data, err := counter1.Marshal()
		assert.NoError(t, err)
		assert.NotEmpty(t, data)

		counter2 := crdt.NewPNCounter("node2")
		err = counter2.Unmarshal(data)
		assert.NoError(t, err)
		assert.Equal(t, counter1.Value(), counter2.Value())
	})
}
