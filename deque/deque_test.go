package deque

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDequePushPopBothEnds(t *testing.T) {
	d := New[int](4)
	d.PushBack(1)
	d.PushBack(2)
	d.PushFront(0)
	require.Equal(t, 3, d.Len())

	v, ok := d.PeekFront()
	require.True(t, ok)
	assert.Equal(t, 0, v)

	v, ok = d.PeekBack()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	got := make([]int, 0, 3)
	d.ForEach(func(v int) bool {
		got = append(got, v)
		return true
	})
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestDequeWrapAround(t *testing.T) {
	d := New[int](3)
	d.PushBack(1)
	d.PushBack(2)
	d.PushBack(3)
	v, _ := d.PopFront()
	assert.Equal(t, 1, v)
	d.PushBack(4) // wraps into the freed front slot
	got := make([]int, 0, 3)
	d.ForEach(func(v int) bool { got = append(got, v); return true })
	assert.Equal(t, []int{2, 3, 4}, got)
}

func TestDequePushOverwritesOppositeEndWhenFull(t *testing.T) {
	d := New[int](2)
	d.PushBack(1)
	d.PushBack(2)
	require.Equal(t, 2, d.Len())
	d.PushBack(3) // full: overwrites the front (1)
	got := make([]int, 0, 2)
	d.ForEach(func(v int) bool { got = append(got, v); return true })
	assert.Equal(t, []int{2, 3}, got)
}

func TestDequeEnsureGrows(t *testing.T) {
	d := New[int](1)
	d.PushBack(1)
	require.NoError(t, d.Ensure(3, 2))
	assert.GreaterOrEqual(t, d.Cap(), 4)
	d.PushBack(2)
	d.PushBack(3)
	d.PushBack(4)
	assert.Equal(t, 4, d.Len())
}

func TestDequeEnsureRejectsBadGrowth(t *testing.T) {
	d := New[int](1)
	d.PushBack(1)
	err := d.Ensure(5, 0.5)
	assert.ErrorIs(t, err, ErrInvalidGrowth)
}

func TestDequeResizeLosslessRejectsShrink(t *testing.T) {
	d := New[int](4)
	d.PushBack(1)
	d.PushBack(2)
	err := d.Resize(1, true)
	assert.ErrorIs(t, err, ErrLossy)
	assert.Equal(t, 2, d.Len())
}

func TestDequeResizeLossyShrinkTruncates(t *testing.T) {
	d := New[int](4)
	d.PushBack(1)
	d.PushBack(2)
	d.PushBack(3)
	require.NoError(t, d.Resize(2, false))
	assert.Equal(t, 2, d.Len())
	v, _ := d.GetAt(0)
	assert.Equal(t, 1, v)
}

func TestDequeGetAtSetAtBounds(t *testing.T) {
	d := New[int](4)
	d.PushBack(1)
	d.PushBack(2)
	_, ok := d.GetAt(-1)
	assert.False(t, ok)
	_, ok = d.GetAt(2)
	assert.False(t, ok)
	assert.True(t, d.SetAt(1, 99))
	v, _ := d.GetAt(1)
	assert.Equal(t, 99, v)
}

func TestDequeInsertRemoveAt(t *testing.T) {
	d := New[int](4)
	d.PushBack(1)
	d.PushBack(3)
	require.True(t, d.InsertAt(1, 2))
	got := make([]int, 0, 3)
	d.ForEach(func(v int) bool { got = append(got, v); return true })
	assert.Equal(t, []int{1, 2, 3}, got)

	v, ok := d.RemoveAt(0)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, d.Len())
}
