package betree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIteratorFullScanOrder(t *testing.T) {
	tree := newTestTree(t, 16, 4, 4)
	keys := []uint64{5, 1, 9, 3, 7}
	for _, k := range keys {
		require.NoError(t, tree.Insert(k, "v"))
	}

	var got []uint64
	it := tree.Begin()
	for it.Next() {
		got = append(got, it.Key())
	}
	require.NoError(t, it.Err())
	require.Equal(t, []uint64{1, 3, 5, 7, 9}, got)
}

func TestIteratorLowerBound(t *testing.T) {
	tree := newTestTree(t, 16, 4, 4)
	for _, k := range []uint64{1, 3, 5, 7, 9} {
		require.NoError(t, tree.Insert(k, "v"))
	}

	it := tree.LowerBound(4)
	var got []uint64
	for it.Next() {
		got = append(got, it.Key())
	}
	require.Equal(t, []uint64{5, 7, 9}, got)

	it = tree.LowerBound(5)
	got = nil
	for it.Next() {
		got = append(got, it.Key())
	}
	require.Equal(t, []uint64{5, 7, 9}, got)
}

func TestIteratorUpperBound(t *testing.T) {
	tree := newTestTree(t, 16, 4, 4)
	for _, k := range []uint64{1, 3, 5, 7, 9} {
		require.NoError(t, tree.Insert(k, "v"))
	}

	it := tree.UpperBound(5)
	var got []uint64
	for it.Next() {
		got = append(got, it.Key())
	}
	require.Equal(t, []uint64{7, 9}, got)
}

func TestIteratorSkipsTombstonedKeys(t *testing.T) {
	tree := newTestTree(t, 16, 4, 4)
	require.NoError(t, tree.Insert(1, "a"))
	require.NoError(t, tree.Insert(2, "b"))
	require.NoError(t, tree.Erase(2))
	require.NoError(t, tree.Insert(3, "c"))

	it := tree.Begin()
	var got []uint64
	for it.Next() {
		got = append(got, it.Key())
	}
	require.Equal(t, []uint64{1, 3}, got)
}
