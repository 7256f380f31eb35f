package checker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirParentsAddAndLookup(t *testing.T) {
	dp := NewDirParents()
	require.NoError(t, dp.Add(2, 2, 2))

	e, ok := dp.Lookup(2)
	require.True(t, ok)
	require.Equal(t, uint64(2), e.DotDot)
	require.False(t, e.Connected)
}

func TestDirParentsAddDuplicateFails(t *testing.T) {
	dp := NewDirParents()
	require.NoError(t, dp.Add(5, 2, 2))
	err := dp.Add(5, 2, 2)
	require.Error(t, err)

	res, ok := err.(*Result)
	require.True(t, ok)
	require.Equal(t, KindInternal, res.Kind)
}

func TestDirParentsEachAscendingOrder(t *testing.T) {
	dp := NewDirParents()
	require.NoError(t, dp.Add(9, 2, 2))
	require.NoError(t, dp.Add(4, 2, 2))
	require.NoError(t, dp.Add(7, 2, 2))

	var order []uint64
	dp.Each(func(e *DirParent) bool {
		order = append(order, e.Ino)
		return true
	})
	require.Equal(t, []uint64{4, 7, 9}, order)
	require.Equal(t, 3, dp.Len())
}
