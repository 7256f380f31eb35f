package checker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSparseBitmapSetTestClear(t *testing.T) {
	b := NewSparseBitmap("test")
	require.False(t, b.Test(10))
	b.Set(10)
	require.True(t, b.Test(10))
	b.Clear(10)
	require.False(t, b.Test(10))
}

func TestSparseBitmapCrossesChunkBoundary(t *testing.T) {
	b := NewSparseBitmap("test")
	first := uint64(sparseBitmapChunkBits - 1)
	second := uint64(sparseBitmapChunkBits)
	b.Set(first)
	b.Set(second)
	require.True(t, b.Test(first))
	require.True(t, b.Test(second))
	require.False(t, b.Test(second+1))
}

func TestSparseBitmapTestAndSet(t *testing.T) {
	b := NewSparseBitmap("test")
	require.False(t, b.TestAndSet(5))
	require.True(t, b.TestAndSet(5))
}

func TestSparseBitmapEmpty(t *testing.T) {
	b := NewSparseBitmap("test")
	require.True(t, b.Empty())
	b.Set(1000)
	require.False(t, b.Empty())
}

func TestSparseBitmapEachAscendingOrder(t *testing.T) {
	b := NewSparseBitmap("test")
	want := []uint64{3, sparseBitmapChunkBits + 1, sparseBitmapChunkBits * 3}
	for _, w := range want {
		b.Set(w)
	}
	var got []uint64
	b.Each(func(i uint64) { got = append(got, i) })
	require.Equal(t, want, got)
}

func TestSparseBitmapCount(t *testing.T) {
	b := NewSparseBitmap("test")
	b.Set(1)
	b.Set(2)
	b.Set(sparseBitmapChunkBits + 5)
	require.Equal(t, uint64(3), b.Count())
}
