package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPushAndItems keeps insertion order below capacity.
func TestPushAndItems(t *testing.T) {
	b := New[int](5)
	b.Push(1)
	b.Push(2)
	b.Push(3)

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 5, b.Cap())
	assert.Equal(t, []int{1, 2, 3}, b.Items())
}

// TestEvictionOldestFirst drops the oldest element past capacity.
func TestEvictionOldestFirst(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []int{3, 4, 5}, b.Items())
}

// TestLast returns the most recent n, oldest-first.
func TestLast(t *testing.T) {
	b := New[int](4)
	for i := 1; i <= 6; i++ {
		b.Push(i)
	}

	assert.Equal(t, []int{5, 6}, b.Last(2))
	assert.Equal(t, []int{3, 4, 5, 6}, b.Last(10))
	assert.Nil(t, b.Last(0))
	assert.Nil(t, b.Last(-1))
}

// TestLatest reports presence alongside the value.
func TestLatest(t *testing.T) {
	b := New[string](2)

	_, ok := b.Latest()
	assert.False(t, ok)

	b.Push("a")
	b.Push("b")
	b.Push("c")

	v, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, "c", v)
}

// TestMinimumCapacity clamps capacity to one.
func TestMinimumCapacity(t *testing.T) {
	b := New[int](0)
	b.Push(1)
	b.Push(2)

	assert.Equal(t, 1, b.Cap())
	assert.Equal(t, []int{2}, b.Items())
}

// TestItemsIsACopy later pushes do not mutate an earlier slice.
func TestItemsIsACopy(t *testing.T) {
	b := New[int](2)
	b.Push(1)

	snapshot := b.Items()
	b.Push(2)
	b.Push(3)

	assert.Equal(t, []int{1}, snapshot)
}
