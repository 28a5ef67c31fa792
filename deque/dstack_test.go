package deque

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDStackLIFOOrder(t *testing.T) {
	s := NewDStack[string](2)
	require.NoError(t, s.Push("a"))
	require.NoError(t, s.Push("b"))
	require.NoError(t, s.Push("c"))

	v, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, "c", v)

	v, ok = s.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestDStackPeekDoesNotRemove(t *testing.T) {
	s := NewDStack[int](4)
	_ = s.Push(1)
	_ = s.Push(2)
	v, ok := s.Peek()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, s.Len())
}

func TestDStackOldestFirstIterationOrder(t *testing.T) {
	s := NewDStack[int](2)
	_ = s.Push(1)
	_ = s.Push(2)
	_ = s.Push(3)

	var got []int
	s.ForEachOldestFirst(func(v int) bool {
		got = append(got, v)
		return true
	})
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestDStackGrowsPastInitialCapacity(t *testing.T) {
	s := NewDStack[int](1)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Push(i))
	}
	assert.Equal(t, 10, s.Len())
	var got []int
	s.ForEachOldestFirst(func(v int) bool { got = append(got, v); return true })
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestDStackClearReturnsOldestFirstAndEmpties(t *testing.T) {
	s := NewDStack[int](4)
	_ = s.Push(1)
	_ = s.Push(2)
	out := s.Clear()
	assert.Equal(t, []int{1, 2}, out)
	assert.Equal(t, 0, s.Len())
}
