package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestQueueNextPow2(t *testing.T) {
	assert.Equal(t, 1, nextPow2(0))
	assert.Equal(t, 1, nextPow2(1))
	assert.Equal(t, 2, nextPow2(2))
	assert.Equal(t, 4, nextPow2(3))
	assert.Equal(t, 64, nextPow2(64))
	assert.Equal(t, 128, nextPow2(65))
}

func TestQueueFIFOOrder(t *testing.T) {
	var q = NewQueue[int](8)

	for i := 0; i < 5; i++ {
		require.True(t, q.Post(i))
	}

	for i := 0; i < 5; i++ {
		var v, ok = q.Get()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}

	var _, ok = q.Get()
	assert.False(t, ok, "queue should be empty")
}

func TestQueueDropOnFull(t *testing.T) {
	var q = NewQueue[int](4) // usable capacity 3, one slot always kept open

	for i := 0; i < 3; i++ {
		assert.True(t, q.Post(i))
	}
	assert.False(t, q.Post(99), "posting past capacity should drop, not block or overwrite")
	assert.Equal(t, uint64(1), q.Drops())

	var v, ok = q.Get()
	require.True(t, ok)
	assert.Equal(t, 0, v, "oldest entry should still be 0, not overwritten by the dropped post")
}

func TestQueueDepthAndCapacity(t *testing.T) {
	var q = NewQueue[int](8)
	assert.Equal(t, 7, q.Capacity())
	assert.Equal(t, 0, q.Depth())

	q.Post(1)
	q.Post(2)
	assert.Equal(t, 2, q.Depth())

	q.Get()
	assert.Equal(t, 1, q.Depth())
}

// Property: for any sequence of posts that never exceeds the queue's usable
// capacity, every Get returns values in the exact order they were posted,
// and the drop counter never advances.
func TestQueueOrderingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var capacity = rapid.SampledFrom([]int{2, 4, 8, 16}).Draw(t, "capacity")
		var q = NewQueue[int](capacity)
		var usable = q.Capacity()

		var n = rapid.IntRange(0, usable).Draw(t, "n")
		var posted = make([]int, n)
		for i := 0; i < n; i++ {
			posted[i] = rapid.Int().Draw(t, "value")
			require.True(t, q.Post(posted[i]))
		}
		require.Equal(t, uint64(0), q.Drops())

		for i := 0; i < n; i++ {
			var v, ok = q.Get()
			require.True(t, ok)
			require.Equal(t, posted[i], v)
		}
		var _, ok = q.Get()
		require.False(t, ok)
	})
}
