package checker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderedMapBasics(t *testing.T) {
	m := NewOrderedMap[string]()
	m.Set(5, "five")
	m.Set(1, "one")
	m.Set(3, "three")

	v, ok := m.Get(1)
	require.True(t, ok)
	require.Equal(t, "one", v)

	require.Equal(t, 3, m.Len())

	var keys []uint64
	m.Ascend(func(k uint64, _ string) bool {
		keys = append(keys, k)
		return true
	})
	require.Equal(t, []uint64{1, 3, 5}, keys)
}

func TestOrderedMapInsertRejectsDuplicate(t *testing.T) {
	m := NewOrderedMap[int]()
	require.True(t, m.Insert(1, 100))
	require.False(t, m.Insert(1, 200))

	v, _ := m.Get(1)
	require.Equal(t, 100, v)
}

func TestOrderedMapDelete(t *testing.T) {
	m := NewOrderedMap[int]()
	m.Set(1, 1)
	m.Delete(1)
	require.False(t, m.Has(1))
	require.Equal(t, 0, m.Len())
}

func TestOrderedMapAscendEarlyStop(t *testing.T) {
	m := NewOrderedMap[int]()
	for i := uint64(0); i < 10; i++ {
		m.Set(i, int(i))
	}
	count := 0
	m.Ascend(func(k uint64, v int) bool {
		count++
		return k < 3
	})
	require.Equal(t, 4, count)
}
