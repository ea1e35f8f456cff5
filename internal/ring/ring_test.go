package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		expected int
	}{
		{"zero raised to one", 0, 1},
		{"negative raised to one", -3, 1},
		{"custom", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New[int](tt.size)
			assert.Equal(t, tt.expected, b.Cap())
			assert.Equal(t, 0, b.Len())
			assert.Empty(t, b.Items())
		})
	}
}

func TestAppendEvictsOldest(t *testing.T) {
	b := New[int](3)

	for i := 1; i <= 3; i++ {
		_, evicted := b.Append(i)
		assert.False(t, evicted)
	}

	old, evicted := b.Append(4)
	assert.True(t, evicted)
	assert.Equal(t, 1, old)
	assert.Equal(t, []int{2, 3, 4}, b.Items())
	assert.Equal(t, 3, b.Len())
}

func TestLenNeverExceedsCap(t *testing.T) {
	b := New[int](5)
	for i := 0; i < 100; i++ {
		b.Append(i)
		require.LessOrEqual(t, b.Len(), b.Cap())
	}
	assert.Equal(t, []int{95, 96, 97, 98, 99}, b.Items())
}

func TestItemsIsASnapshot(t *testing.T) {
	b := New[int](3)
	b.Append(1)
	b.Append(2)

	snap := b.Items()
	b.Append(3)
	b.Append(4)
	snap[0] = 100

	assert.Equal(t, []int{100, 2}, snap)
	assert.Equal(t, []int{2, 3, 4}, b.Items())
}

func TestLast(t *testing.T) {
	b := New[string](4)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		b.Append(s)
	}

	assert.Equal(t, []string{"d", "e"}, b.Last(2))
	assert.Equal(t, []string{"b", "c", "d", "e"}, b.Last(10))
	assert.Empty(t, b.Last(0))

	newest, ok := b.Newest()
	require.True(t, ok)
	assert.Equal(t, "e", newest)
}

func TestClear(t *testing.T) {
	b := New[int](2)
	b.Append(1)
	b.Append(2)
	b.Clear()

	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 2, b.Cap())
	_, ok := b.Newest()
	assert.False(t, ok)

	b.Append(9)
	assert.Equal(t, []int{9}, b.Items())
}

func TestResize(t *testing.T) {
	t.Run("shrink keeps newest", func(t *testing.T) {
		b := New[int](5)
		for i := 1; i <= 5; i++ {
			b.Append(i)
		}
		b.Resize(2)
		assert.Equal(t, []int{4, 5}, b.Items())
		b.Append(6)
		assert.Equal(t, []int{5, 6}, b.Items())
	})

	t.Run("grow keeps everything", func(t *testing.T) {
		b := New[int](2)
		b.Append(1)
		b.Append(2)
		b.Append(3)
		b.Resize(4)
		assert.Equal(t, []int{2, 3}, b.Items())
		b.Append(4)
		b.Append(5)
		assert.Equal(t, []int{2, 3, 4, 5}, b.Items())
		b.Append(6)
		assert.Equal(t, []int{3, 4, 5, 6}, b.Items())
	})

	t.Run("grow when full wraps correctly", func(t *testing.T) {
		b := New[int](3)
		for i := 1; i <= 3; i++ {
			b.Append(i)
		}
		b.Resize(3)
		b.Resize(6)
		b.Append(4)
		assert.Equal(t, []int{1, 2, 3, 4}, b.Items())
	})
}
